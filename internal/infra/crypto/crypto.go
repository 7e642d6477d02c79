// Package crypto unwraps secrets stored by the backend in an AES-256-GCM envelope.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/runoshun/crew-agent/internal/domain"
)

const (
	// NonceSize is the size of the nonce for AES-GCM (12 bytes).
	NonceSize = 12
	// KeySize is the size of the AES-256 key (32 bytes).
	KeySize = 32
	// EnvelopePrefix marks a value as an encrypted envelope.
	EnvelopePrefix = "enc:"
)

// ErrInvalidKey is returned when the secret key is not 64 hex characters.
var ErrInvalidKey = errors.New("invalid secret key: must be 32 bytes (64 hex characters)")

// Ensure Unwrapper implements domain.SecretUnwrapper interface.
var _ domain.SecretUnwrapper = (*Unwrapper)(nil)

// Unwrapper decrypts enveloped secrets.
// Values without the envelope prefix are returned unchanged.
type Unwrapper struct {
	gcm cipher.AEAD // nil when no key is configured
}

// NewUnwrapper creates an Unwrapper with the given hex-encoded key.
// An empty key yields an Unwrapper that passes plain values through and
// rejects enveloped ones with domain.ErrNoSecretKey.
func NewUnwrapper(hexKey string) (*Unwrapper, error) {
	if hexKey == "" {
		return &Unwrapper{}, nil
	}
	gcm, err := newGCM(hexKey)
	if err != nil {
		return nil, err
	}
	return &Unwrapper{gcm: gcm}, nil
}

// IsEnveloped reports whether value carries the envelope prefix.
func IsEnveloped(value string) bool {
	return strings.HasPrefix(value, EnvelopePrefix)
}

// Unwrap returns the plain-text form of value.
func (u *Unwrapper) Unwrap(value string) (string, error) {
	if !IsEnveloped(value) {
		return value, nil
	}
	if u.gcm == nil {
		return "", domain.ErrNoSecretKey
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, EnvelopePrefix))
	if err != nil {
		return "", fmt.Errorf("%w: decode envelope: %v", domain.ErrSecretDecryptFailed, err)
	}
	if len(data) < NonceSize {
		return "", fmt.Errorf("%w: envelope too short", domain.ErrSecretDecryptFailed)
	}

	plaintext, err := u.gcm.Open(nil, data[:NonceSize], data[NonceSize:], nil)
	if err != nil {
		return "", domain.ErrSecretDecryptFailed
	}
	return string(plaintext), nil
}

// Seal wraps plaintext in an envelope under hexKey.
// It is the inverse of Unwrap and is used to prepare stored secrets.
func Seal(hexKey, plaintext string) (string, error) {
	gcm, err := newGCM(hexKey)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return EnvelopePrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func newGCM(hexKey string) (cipher.AEAD, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil || len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return gcm, nil
}
