package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runoshun/crew-agent/internal/app"
	"github.com/runoshun/crew-agent/internal/domain"
)

// testOptions returns options that read the environment from env only.
func testOptions(t *testing.T, env map[string]string) app.Options {
	t.Helper()
	return app.Options{
		Dir:       t.TempDir(),
		LogOutput: io.Discard,
		LookupEnv: func(key string) (string, bool) {
			v, ok := env[key]
			return v, ok
		},
	}
}

// useDeps makes commands build their container from deps instead of real infrastructure.
// It returns a pointer to the last built container.
func useDeps(t *testing.T, deps app.Deps) **app.Container {
	t.Helper()
	original := newContainerFunc
	t.Cleanup(func() { newContainerFunc = original })

	var built *app.Container
	newContainerFunc = func(_ context.Context, cfg domain.Config, _ app.Options) (*app.Container, error) {
		built = app.NewWithDeps(cfg, deps)
		return built, nil
	}
	return &built
}

func TestNewRootCommand_Version(t *testing.T) {
	root := NewRootCommand(testOptions(t, nil), "1.2.3")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "1.2.3")
}

func TestNewRootCommand_WithHelp_ShowsCommands(t *testing.T) {
	root := NewRootCommand(testOptions(t, nil), "test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--help"})

	require.NoError(t, root.Execute())
	for _, name := range []string{"run", "history", "config", "--config"} {
		assert.Contains(t, out.String(), name)
	}
}

func TestNewRootCommand_ContainerError(t *testing.T) {
	original := newContainerFunc
	t.Cleanup(func() { newContainerFunc = original })
	newContainerFunc = func(context.Context, domain.Config, app.Options) (*app.Container, error) {
		return nil, domain.ErrMissingConfig
	}

	for _, args := range [][]string{{}, {"run"}, {"history", "t1"}} {
		root := NewRootCommand(testOptions(t, nil), "test")
		root.SetArgs(args)
		err := root.Execute()
		assert.True(t, errors.Is(err, domain.ErrMissingConfig), "args %v: %v", args, err)
	}
}

func TestNewRootCommand_ExplicitConfigMissing(t *testing.T) {
	useDeps(t, app.Deps{})
	root := NewRootCommand(testOptions(t, nil), "test")
	root.SetArgs([]string{"--config", "/does/not/exist.toml", "config"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/does/not/exist.toml")
}
