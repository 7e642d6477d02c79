package app

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runoshun/crew-agent/internal/domain"
	"github.com/runoshun/crew-agent/internal/infra/crypto"
	"github.com/runoshun/crew-agent/internal/testutil"
)

const testSecretKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func projectToken(t *testing.T, projectID string) string {
	t.Helper()
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: []byte("backend-secret")}, nil)
	require.NoError(t, err)
	token, err := jwt.Signed(signer).Claims(map[string]any{"projectId": projectID}).CompactSerialize()
	require.NoError(t, err)
	return token
}

func baseConfig(url string) domain.Config {
	cfg := *domain.NewDefaultConfig()
	cfg.Backend.URL = url
	cfg.Agent.ContainerID = "c-1"
	cfg.Agent.WorkspaceDir = "/tmp/ws"
	return cfg
}

func newTestContainer(t *testing.T, cfg domain.Config) *Container {
	t.Helper()
	c, err := New(context.Background(), cfg, Options{LogOutput: io.Discard, Version: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func TestNew_ProjectFromToken(t *testing.T) {
	cfg := baseConfig("http://localhost:1")
	cfg.Backend.Token = projectToken(t, "proj-from-token")

	c := newTestContainer(t, cfg)

	assert.Equal(t, "proj-from-token", c.Config.Agent.ProjectID)
	assert.NotEmpty(t, c.RunID)
}

func TestNew_ExplicitProjectWins(t *testing.T) {
	cfg := baseConfig("http://localhost:1")
	cfg.Backend.Token = projectToken(t, "from-token")
	cfg.Agent.ProjectID = "explicit"

	c := newTestContainer(t, cfg)

	assert.Equal(t, "explicit", c.Config.Agent.ProjectID)
}

func TestNew_EnvelopedToken(t *testing.T) {
	plain := projectToken(t, "sealed-project")
	sealed, err := crypto.Seal(testSecretKey, plain)
	require.NoError(t, err)

	cfg := baseConfig("http://localhost:1")
	cfg.Backend.Token = sealed
	cfg.Backend.SecretKey = testSecretKey

	c := newTestContainer(t, cfg)

	assert.Equal(t, plain, c.Config.Backend.Token)
	assert.Equal(t, "sealed-project", c.Config.Agent.ProjectID)
}

func TestNew_Errors(t *testing.T) {
	sealed, err := crypto.Seal(testSecretKey, "whatever")
	require.NoError(t, err)

	tests := []struct {
		mutate func(*domain.Config)
		want   error
		name   string
	}{
		{
			name:   "missing container id",
			mutate: func(c *domain.Config) { c.Agent.ContainerID = ""; c.Backend.Token = "x" },
			want:   domain.ErrMissingConfig,
		},
		{
			name:   "missing credentials",
			mutate: func(*domain.Config) {},
			want:   domain.ErrMissingConfig,
		},
		{
			name:   "secret without project id",
			mutate: func(c *domain.Config) { c.Backend.JWTSecret = "s" },
			want:   domain.ErrMissingConfig,
		},
		{
			name:   "malformed token",
			mutate: func(c *domain.Config) { c.Backend.Token = "not-a-jwt" },
			want:   domain.ErrInvalidToken,
		},
		{
			name:   "enveloped token without key",
			mutate: func(c *domain.Config) { c.Backend.Token = sealed },
			want:   domain.ErrNoSecretKey,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig("http://localhost:1")
			tt.mutate(&cfg)

			_, err := New(context.Background(), cfg, Options{LogOutput: io.Discard})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNew_MintsTokenFromSecret(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	cfg := baseConfig(fake.URL())
	cfg.Backend.JWTSecret = "signing-secret"
	cfg.Agent.ProjectID = "p-1"

	c := newTestContainer(t, cfg)
	out, err := c.ClaimTaskUseCase().Execute(context.Background())
	require.NoError(t, err)
	assert.Nil(t, out.Task)

	tokens := fake.Tokens()
	require.NotEmpty(t, tokens)
	parsed, err := jwt.ParseSigned(tokens[0])
	require.NoError(t, err)
	var claims map[string]any
	require.NoError(t, parsed.Claims([]byte("signing-secret"), &claims))
	assert.Equal(t, "p-1", claims["projectId"])
}

func TestContainer_ReportStatusOnce(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	be := testutil.NewMockBackend()
	c := NewWithDeps(baseConfig(""), Deps{Backend: be, Clock: &testutil.MockClock{NowTime: now}})

	require.NoError(t, c.ReportCompleted(context.Background()))
	err := c.ReportFailed(context.Background(), errors.New("late"))
	assert.ErrorIs(t, err, domain.ErrContainerAlreadyFinal)

	require.Len(t, be.ContainerUpdates, 1)
	call := be.ContainerUpdates[0]
	assert.Equal(t, "c-1", call.ContainerID)
	assert.Equal(t, domain.ContainerCompleted, call.Update.Status)
	assert.Equal(t, 0, call.Update.ExitCode)
	require.NotNil(t, call.Update.CompletedAt)
	assert.True(t, now.Equal(*call.Update.CompletedAt))
}

func TestContainer_ReportNonTerminalStatus(t *testing.T) {
	be := testutil.NewMockBackend()
	c := NewWithDeps(baseConfig(""), Deps{Backend: be})

	err := c.reportStatus(context.Background(), domain.ContainerRunning, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Empty(t, be.ContainerUpdates)

	require.NoError(t, c.ReportCompleted(context.Background()))
	require.Len(t, be.ContainerUpdates, 1)
}

func TestContainer_ReportFailed(t *testing.T) {
	be := testutil.NewMockBackend()
	logger := &testutil.RecordingLogger{}
	c := NewWithDeps(baseConfig(""), Deps{Backend: be, Logger: logger})

	require.NoError(t, c.ReportFailed(context.Background(), errors.New("boom")))

	require.Len(t, be.ContainerUpdates, 1)
	assert.Equal(t, domain.ContainerFailed, be.ContainerUpdates[0].Update.Status)
	assert.Equal(t, 1, be.ContainerUpdates[0].Update.ExitCode)
	assert.True(t, logger.Has("error", "boom"))
}

func TestContainer_ReportStatusBackendError(t *testing.T) {
	be := testutil.NewMockBackend()
	be.UpdateContainerErr = domain.ErrBackendUnavailable
	c := NewWithDeps(baseConfig(""), Deps{Backend: be})

	err := c.ReportCompleted(context.Background())
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
	// The failure is remembered, not retried.
	assert.ErrorIs(t, c.ReportCompleted(context.Background()), domain.ErrContainerAlreadyFinal)
}

func TestContainer_UseCaseFactories(t *testing.T) {
	c := NewWithDeps(baseConfig(""), Deps{
		Backend:  testutil.NewMockBackend(),
		Planner:  &testutil.MockPlanner{},
		Executor: testutil.NewMockCommandExecutor(),
		Cloner:   testutil.NewMockRepoCloner(),
		Secrets:  &testutil.MockSecretUnwrapper{},
	})

	assert.NotNil(t, c.ClaimTaskUseCase())
	assert.NotNil(t, c.ExecuteItemUseCase())
	assert.NotNil(t, c.RunPlannerUseCase())
	assert.NotNil(t, c.RunAgentUseCase())
	assert.NotNil(t, c.SyncRepositoriesUseCase())
	assert.NotNil(t, c.ShowHistoryUseCase())
}

func TestLoadConfig_UsesLookup(t *testing.T) {
	env := map[string]string{"CONTAINER_ID": "from-env", "BACKEND_URL": "http://backend"}
	cfg, err := LoadConfig(Options{
		Dir: t.TempDir(),
		LookupEnv: func(k string) (string, bool) {
			v, ok := env[k]
			return v, ok
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Agent.ContainerID)
	assert.True(t, strings.HasPrefix(cfg.Backend.URL, "http://backend"))
}
