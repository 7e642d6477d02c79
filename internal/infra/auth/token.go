// Package auth provides bearer tokens for the backend API.
package auth

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"

	"github.com/runoshun/crew-agent/internal/domain"
)

const (
	// TokenTTL is the lifetime of minted tokens.
	TokenTTL = time.Hour
	// RefreshWindow is how long before expiry a minted token is replaced.
	RefreshWindow = time.Minute
)

// Claims is the private claim set carried by agent tokens.
// Older tokens use the snake_case project claim.
type Claims struct {
	ProjectID       string `json:"projectId,omitempty"`
	LegacyProjectID string `json:"project_id,omitempty"`
}

// Project returns the project ID from whichever claim is set.
func (c Claims) Project() string {
	if c.ProjectID != "" {
		return c.ProjectID
	}
	return c.LegacyProjectID
}

// ProjectIDFromToken reads the project ID from a token without verifying it.
// The agent is not the token's audience for verification; the backend is.
func ProjectIDFromToken(token string) (string, error) {
	parsed, err := jwt.ParseSigned(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	var claims Claims
	if err := parsed.UnsafeClaimsWithoutVerification(&claims); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	if claims.Project() == "" {
		return "", fmt.Errorf("%w: no project claim", domain.ErrInvalidToken)
	}
	return claims.Project(), nil
}

// Ensure StaticTokenSource implements domain.TokenSource interface.
var _ domain.TokenSource = StaticTokenSource("")

// StaticTokenSource always returns the same token.
type StaticTokenSource string

// Token returns the configured token.
func (s StaticTokenSource) Token() (string, error) {
	return string(s), nil
}

// Ensure Minter implements domain.TokenSource interface.
var _ domain.TokenSource = (*Minter)(nil)

// Minter signs HS256 tokens for a project and re-signs them shortly before they expire.
// Fields are ordered to minimize memory padding.
type Minter struct {
	expiry    time.Time
	clock     domain.Clock
	signer    jose.Signer
	projectID string
	cached    string
	mu        sync.Mutex
}

// NewMinter creates a Minter for projectID signed with secret.
func NewMinter(secret, projectID string, clock domain.Clock) (*Minter, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: jwt secret", domain.ErrMissingConfig)
	}
	if projectID == "" {
		return nil, fmt.Errorf("%w: project id is required to mint tokens", domain.ErrMissingConfig)
	}
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: []byte(secret)},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("create signer: %w", err)
	}
	return &Minter{signer: signer, projectID: projectID, clock: clock}, nil
}

// Token returns a valid token, minting a new one when needed.
func (m *Minter) Token() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if m.cached != "" && now.Before(m.expiry.Add(-RefreshWindow)) {
		return m.cached, nil
	}

	expiry := now.Add(TokenTTL)
	std := jwt.Claims{
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(expiry),
	}
	token, err := jwt.Signed(m.signer).Claims(std).Claims(Claims{ProjectID: m.projectID}).CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	m.cached = token
	m.expiry = expiry
	return token, nil
}

// NewTokenSource picks the token source for the given credentials.
// A configured token wins over a signing secret.
func NewTokenSource(token, secret, projectID string, clock domain.Clock) (domain.TokenSource, error) {
	if token != "" {
		return StaticTokenSource(token), nil
	}
	if secret != "" {
		return NewMinter(secret, projectID, clock)
	}
	return nil, fmt.Errorf("%w: agent token or jwt secret", domain.ErrMissingConfig)
}
