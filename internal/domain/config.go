package domain

import (
	"fmt"
	"time"
)

// Config file name looked up in the working directory when no path is given.
const ConfigFileName = "crew-agent.toml"

// Config is the agent configuration. It is built once at startup and passed
// by value into every component that needs it.
type Config struct {
	Backend   BackendConfig
	Agent     AgentConfig
	Telemetry TelemetryConfig
	Log       LogConfig
	Scripts   []ScriptRule
	Loop      LoopConfig
}

// BackendConfig holds backend connection settings.
type BackendConfig struct {
	URL       string // Base URL of the backend
	Token     string // Bearer token (may be an enveloped secret)
	JWTSecret string // Secret used to mint a token when Token is empty
	SecretKey string // Hex AES-256 key for enveloped secrets
	Timeout   time.Duration
}

// AgentConfig identifies this agent instance.
type AgentConfig struct {
	ProjectID    string
	ContainerID  string
	WorkspaceDir string
	SkipRepoSync bool
}

// LoopConfig holds the scheduler intervals.
type LoopConfig struct {
	IdleInterval     time.Duration // Wait after a cycle with no claimable task
	ErrorInterval    time.Duration // First wait after a failed cycle
	MaxErrorInterval time.Duration // Cap for the exponential error backoff
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or console
	Dir    string // Per-task log files directory (empty = disabled)
}

// TelemetryConfig holds tracing settings.
type TelemetryConfig struct {
	Endpoint    string // OTLP/HTTP endpoint (empty = tracing disabled)
	ServiceName string
}

// ScriptRule maps a workspace-relative glob to the interpreter that runs matching files.
type ScriptRule struct {
	Pattern     string   `toml:"pattern" yaml:"pattern"`
	Interpreter []string `toml:"interpreter" yaml:"interpreter"`
}

// Default values.
const (
	DefaultBackendURL       = "http://localhost:5000"
	DefaultWorkspaceDir     = "/workspace"
	DefaultIdleInterval     = 30 * time.Second
	DefaultErrorInterval    = 60 * time.Second
	DefaultMaxErrorInterval = 10 * time.Minute
	DefaultRequestTimeout   = 30 * time.Second
	DefaultServiceName      = "crew-agent"
)

// NewDefaultConfig returns a Config populated with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:     DefaultBackendURL,
			Timeout: DefaultRequestTimeout,
		},
		Agent: AgentConfig{
			WorkspaceDir: DefaultWorkspaceDir,
		},
		Loop: LoopConfig{
			IdleInterval:     DefaultIdleInterval,
			ErrorInterval:    DefaultErrorInterval,
			MaxErrorInterval: DefaultMaxErrorInterval,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			ServiceName: DefaultServiceName,
		},
		Scripts: []ScriptRule{
			{Pattern: "**/*.py", Interpreter: []string{"python3"}},
		},
	}
}

// Validate checks that every required value is present.
// The project ID is not checked here because it may come from the token.
func (c Config) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("%w: BACKEND_URL", ErrMissingConfig)
	}
	if c.Backend.Token == "" && c.Backend.JWTSecret == "" {
		return fmt.Errorf("%w: AGENT_TOKEN or JWT_SECRET", ErrMissingConfig)
	}
	if c.Agent.ContainerID == "" {
		return fmt.Errorf("%w: CONTAINER_ID", ErrMissingConfig)
	}
	if c.Agent.WorkspaceDir == "" {
		return fmt.Errorf("%w: WORKSPACE_DIR", ErrMissingConfig)
	}
	if c.Loop.IdleInterval <= 0 || c.Loop.ErrorInterval <= 0 {
		return fmt.Errorf("%w: loop intervals must be positive", ErrInvalidConfig)
	}
	if c.Loop.MaxErrorInterval < c.Loop.ErrorInterval {
		return fmt.Errorf("%w: max error interval is shorter than error interval", ErrInvalidConfig)
	}
	for _, rule := range c.Scripts {
		if rule.Pattern == "" || len(rule.Interpreter) == 0 {
			return fmt.Errorf("%w: script rule needs pattern and interpreter", ErrInvalidConfig)
		}
	}
	return nil
}

// Redacted returns a copy with secrets masked, suitable for display.
func (c Config) Redacted() Config {
	c.Backend.Token = redact(c.Backend.Token)
	c.Backend.JWTSecret = redact(c.Backend.JWTSecret)
	c.Backend.SecretKey = redact(c.Backend.SecretKey)
	c.Scripts = append([]ScriptRule(nil), c.Scripts...)
	return c
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
