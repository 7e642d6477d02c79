package auth

import (
	"testing"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runoshun/crew-agent/internal/domain"
	"github.com/runoshun/crew-agent/internal/testutil"
)

func signToken(t *testing.T, claims any) string {
	t.Helper()
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: []byte("k")}, nil)
	require.NoError(t, err)
	token, err := jwt.Signed(signer).Claims(claims).CompactSerialize()
	require.NoError(t, err)
	return token
}

func TestProjectIDFromToken(t *testing.T) {
	tests := []struct {
		name    string
		claims  map[string]any
		want    string
		wantErr bool
	}{
		{name: "camelCase claim", claims: map[string]any{"projectId": "p1"}, want: "p1"},
		{name: "snake_case claim", claims: map[string]any{"project_id": "p2"}, want: "p2"},
		{name: "camelCase wins", claims: map[string]any{"projectId": "a", "project_id": "b"}, want: "a"},
		{name: "missing claim", claims: map[string]any{"sub": "x"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ProjectIDFromToken(signToken(t, tt.claims))
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidToken)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProjectIDFromToken_Malformed(t *testing.T) {
	_, err := ProjectIDFromToken("not-a-jwt")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestMinter_Token(t *testing.T) {
	clock := &testutil.MockClock{NowTime: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	m, err := NewMinter("secret", "proj-1", clock)
	require.NoError(t, err)

	first, err := m.Token()
	require.NoError(t, err)

	projectID, err := ProjectIDFromToken(first)
	require.NoError(t, err)
	assert.Equal(t, "proj-1", projectID)

	parsed, err := jwt.ParseSigned(first)
	require.NoError(t, err)
	var std jwt.Claims
	require.NoError(t, parsed.Claims([]byte("secret"), &std))
	assert.Equal(t, clock.NowTime.Unix(), std.IssuedAt.Time().Unix())
	assert.Equal(t, clock.NowTime.Add(TokenTTL).Unix(), std.Expiry.Time().Unix())

	t.Run("reuses token before refresh window", func(t *testing.T) {
		clock.NowTime = clock.NowTime.Add(30 * time.Minute)
		again, err := m.Token()
		require.NoError(t, err)
		assert.Equal(t, first, again)
	})

	t.Run("re-mints inside refresh window", func(t *testing.T) {
		clock.NowTime = time.Date(2025, 1, 1, 12, 59, 30, 0, time.UTC)
		fresh, err := m.Token()
		require.NoError(t, err)
		assert.NotEqual(t, first, fresh)
	})
}

func TestNewTokenSource(t *testing.T) {
	clock := &testutil.MockClock{NowTime: time.Now()}

	src, err := NewTokenSource("tok", "secret", "p", clock)
	require.NoError(t, err)
	token, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "tok", token)

	src, err = NewTokenSource("", "secret", "p", clock)
	require.NoError(t, err)
	assert.IsType(t, &Minter{}, src)

	_, err = NewTokenSource("", "", "p", clock)
	assert.ErrorIs(t, err, domain.ErrMissingConfig)

	_, err = NewTokenSource("", "secret", "", clock)
	assert.ErrorIs(t, err, domain.ErrMissingConfig)
}
