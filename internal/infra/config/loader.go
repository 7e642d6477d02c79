// Package config provides configuration loading functionality.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/runoshun/crew-agent/internal/domain"
)

// Environment variable names.
const (
	EnvConfigPath       = "CREW_AGENT_CONFIG"
	EnvBackendURL       = "BACKEND_URL"
	EnvAPIBaseURL       = "API_BASE_URL"
	EnvAgentToken       = "AGENT_TOKEN"
	EnvJWTToken         = "JWT_TOKEN"
	EnvJWTSecret        = "JWT_SECRET"
	EnvProjectID        = "PROJECT_ID"
	EnvContainerID      = "CONTAINER_ID"
	EnvWorkspaceDir     = "WORKSPACE_DIR"
	EnvSecretKey        = "AGENT_SECRET_KEY"
	EnvIdleInterval     = "AGENT_IDLE_INTERVAL"
	EnvErrorInterval    = "AGENT_ERROR_INTERVAL"
	EnvMaxErrorInterval = "AGENT_MAX_ERROR_INTERVAL"
	EnvLogLevel         = "AGENT_LOG_LEVEL"
	EnvLogFormat        = "AGENT_LOG_FORMAT"
	EnvLogDir           = "AGENT_LOG_DIR"
	EnvOTLPEndpoint     = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvSkipRepoSync     = "AGENT_SKIP_REPO_SYNC"
)

// DotenvFileName is the dotenv file read from the working directory.
const DotenvFileName = ".env"

// Loader builds the agent configuration from defaults, a TOML file,
// a dotenv file and the process environment, in increasing precedence.
type Loader struct {
	lookupEnv func(string) (string, bool)
	dir       string // Directory searched for the config and dotenv files
	path      string // Explicit config file path (must exist when set)
}

// NewLoader creates a Loader reading the process environment.
// dir is searched for crew-agent.toml and .env; path overrides the TOML location.
func NewLoader(dir, path string) *Loader {
	return &Loader{lookupEnv: os.LookupEnv, dir: dir, path: path}
}

// NewLoaderWithEnv creates a Loader with a custom environment lookup.
// This is useful for testing.
func NewLoaderWithEnv(dir, path string, lookupEnv func(string) (string, bool)) *Loader {
	return &Loader{lookupEnv: lookupEnv, dir: dir, path: path}
}

// fileConfig is the TOML file layout. Empty values leave defaults untouched.
type fileConfig struct {
	Telemetry struct {
		Endpoint    string `toml:"endpoint"`
		ServiceName string `toml:"service_name"`
	} `toml:"telemetry"`
	Agent struct {
		SkipRepoSync *bool  `toml:"skip_repo_sync"`
		ProjectID    string `toml:"project_id"`
		ContainerID  string `toml:"container_id"`
		WorkspaceDir string `toml:"workspace_dir"`
	} `toml:"agent"`
	Backend struct {
		URL     string `toml:"url"`
		Timeout string `toml:"timeout"`
	} `toml:"backend"`
	Loop struct {
		IdleInterval     string `toml:"idle_interval"`
		ErrorInterval    string `toml:"error_interval"`
		MaxErrorInterval string `toml:"max_error_interval"`
	} `toml:"loop"`
	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
		Dir    string `toml:"dir"`
	} `toml:"log"`
	Scripts []domain.ScriptRule `toml:"scripts"`
}

// Load returns the merged configuration. It does not validate it.
func (l *Loader) Load() (*domain.Config, error) {
	cfg := domain.NewDefaultConfig()

	dotenv, err := l.readDotenv()
	if err != nil {
		return nil, err
	}
	env := func(keys ...string) (string, bool) {
		for _, key := range keys {
			if v, ok := l.lookupEnv(key); ok && v != "" {
				return v, true
			}
			if v, ok := dotenv[key]; ok && v != "" {
				return v, true
			}
		}
		return "", false
	}

	path, required := l.path, l.path != ""
	if !required {
		if p, ok := env(EnvConfigPath); ok {
			path, required = p, true
		} else {
			path = filepath.Join(l.dir, domain.ConfigFileName)
		}
	}
	fc, err := loadFile(path)
	switch {
	case err == nil:
		if err := applyFile(cfg, fc); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !required:
	default:
		return nil, fmt.Errorf("load config file %s: %w", path, err)
	}

	if err := applyEnv(cfg, env); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) readDotenv() (map[string]string, error) {
	path := filepath.Join(l.dir, DotenvFileName)
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return values, nil
}

func loadFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}
	return &fc, nil
}

func applyFile(cfg *domain.Config, fc *fileConfig) error {
	setString(&cfg.Backend.URL, fc.Backend.URL)
	setString(&cfg.Agent.ProjectID, fc.Agent.ProjectID)
	setString(&cfg.Agent.ContainerID, fc.Agent.ContainerID)
	setString(&cfg.Agent.WorkspaceDir, fc.Agent.WorkspaceDir)
	if fc.Agent.SkipRepoSync != nil {
		cfg.Agent.SkipRepoSync = *fc.Agent.SkipRepoSync
	}
	setString(&cfg.Log.Level, fc.Log.Level)
	setString(&cfg.Log.Format, fc.Log.Format)
	setString(&cfg.Log.Dir, fc.Log.Dir)
	setString(&cfg.Telemetry.Endpoint, fc.Telemetry.Endpoint)
	setString(&cfg.Telemetry.ServiceName, fc.Telemetry.ServiceName)
	if len(fc.Scripts) > 0 {
		cfg.Scripts = fc.Scripts
	}

	durations := []struct {
		dst *time.Duration
		key string
		raw string
	}{
		{&cfg.Backend.Timeout, "backend.timeout", fc.Backend.Timeout},
		{&cfg.Loop.IdleInterval, "loop.idle_interval", fc.Loop.IdleInterval},
		{&cfg.Loop.ErrorInterval, "loop.error_interval", fc.Loop.ErrorInterval},
		{&cfg.Loop.MaxErrorInterval, "loop.max_error_interval", fc.Loop.MaxErrorInterval},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = v
	}
	return nil
}

func applyEnv(cfg *domain.Config, env func(keys ...string) (string, bool)) error {
	strs := []struct {
		dst  *string
		keys []string
	}{
		{&cfg.Backend.URL, []string{EnvBackendURL, EnvAPIBaseURL}},
		{&cfg.Backend.Token, []string{EnvAgentToken, EnvJWTToken}},
		{&cfg.Backend.JWTSecret, []string{EnvJWTSecret}},
		{&cfg.Backend.SecretKey, []string{EnvSecretKey}},
		{&cfg.Agent.ProjectID, []string{EnvProjectID}},
		{&cfg.Agent.ContainerID, []string{EnvContainerID}},
		{&cfg.Agent.WorkspaceDir, []string{EnvWorkspaceDir}},
		{&cfg.Log.Level, []string{EnvLogLevel}},
		{&cfg.Log.Format, []string{EnvLogFormat}},
		{&cfg.Log.Dir, []string{EnvLogDir}},
		{&cfg.Telemetry.Endpoint, []string{EnvOTLPEndpoint}},
	}
	for _, s := range strs {
		if v, ok := env(s.keys...); ok {
			*s.dst = strings.TrimSpace(v)
		}
	}

	durations := []struct {
		dst *time.Duration
		key string
	}{
		{&cfg.Loop.IdleInterval, EnvIdleInterval},
		{&cfg.Loop.ErrorInterval, EnvErrorInterval},
		{&cfg.Loop.MaxErrorInterval, EnvMaxErrorInterval},
	}
	for _, d := range durations {
		v, ok := env(d.key)
		if !ok {
			continue
		}
		parsed, err := ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	if v, ok := env(EnvSkipRepoSync); ok {
		skip, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w: %v", EnvSkipRepoSync, domain.ErrInvalidConfig, err)
		}
		cfg.Agent.SkipRepoSync = skip
	}
	return nil
}

// ParseDuration accepts Go duration strings ("30s", "10m") and bare integers as seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}
	return d, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
