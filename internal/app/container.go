// Package app provides the dependency injection container for the application.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/runoshun/crew-agent/internal/domain"
	"github.com/runoshun/crew-agent/internal/infra/auth"
	"github.com/runoshun/crew-agent/internal/infra/backend"
	"github.com/runoshun/crew-agent/internal/infra/config"
	"github.com/runoshun/crew-agent/internal/infra/crypto"
	"github.com/runoshun/crew-agent/internal/infra/executor"
	"github.com/runoshun/crew-agent/internal/infra/git"
	"github.com/runoshun/crew-agent/internal/infra/logging"
	"github.com/runoshun/crew-agent/internal/infra/planner"
	"github.com/runoshun/crew-agent/internal/infra/telemetry"
	"github.com/runoshun/crew-agent/internal/usecase"
)

// Options holds process-level inputs that are not part of the agent configuration.
type Options struct {
	LogOutput  io.Writer                       // Log stream (defaults to os.Stderr)
	LookupEnv  func(key string) (string, bool) // Environment lookup (defaults to os.LookupEnv)
	Dir        string                          // Directory searched for crew-agent.toml and .env
	ConfigPath string                          // Explicit config file (--config)
	Version    string                          // Build version
}

// LoadConfig reads the configuration from file, .env and environment.
// The result is not validated; New does that.
func LoadConfig(opts Options) (*domain.Config, error) {
	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return config.NewLoaderWithEnv(opts.Dir, opts.ConfigPath, lookup).Load()
}

// Deps are the ports a Container is built from.
type Deps struct {
	Backend  domain.Backend
	Planner  domain.Planner
	Executor domain.CommandExecutor
	Cloner   domain.RepoCloner
	Secrets  domain.SecretUnwrapper
	Clock    domain.Clock
	Logger   domain.Logger
}

// Container provides dependency injection for the application.
// It holds all port implementations and provides factory methods for use cases.
type Container struct {
	// Ports (interfaces bound to implementations)
	Backend  domain.Backend
	Planner  domain.Planner
	Executor domain.CommandExecutor
	Cloner   domain.RepoCloner
	Secrets  domain.SecretUnwrapper
	Clock    domain.Clock
	Logger   domain.Logger

	closers    []func(context.Context) error
	statusErr  error
	RunID      string
	Config     domain.Config
	statusOnce sync.Once
}

// New validates cfg and wires the production implementations.
// If startup fails after the backend client exists, the container is reported failed.
func New(ctx context.Context, cfg domain.Config, opts Options) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	secrets, err := crypto.NewUnwrapper(cfg.Backend.SecretKey)
	if err != nil {
		return nil, err
	}
	token, err := secrets.Unwrap(cfg.Backend.Token)
	if err != nil {
		return nil, fmt.Errorf("agent token: %w", err)
	}
	cfg.Backend.Token = token

	if cfg.Agent.ProjectID == "" && token != "" {
		projectID, err := auth.ProjectIDFromToken(token)
		if err != nil {
			return nil, err
		}
		cfg.Agent.ProjectID = projectID
	}
	if cfg.Agent.ProjectID == "" {
		return nil, fmt.Errorf("%w: PROJECT_ID", domain.ErrMissingConfig)
	}

	clock := domain.RealClock{}
	tokens, err := auth.NewTokenSource(cfg.Backend.Token, cfg.Backend.JWTSecret, cfg.Agent.ProjectID, clock)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger := logging.New(logging.Options{
		Output: opts.LogOutput,
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Dir:    cfg.Log.Dir,
		RunID:  runID,
	})

	c := NewWithDeps(cfg, Deps{
		Backend:  backend.NewClient(cfg.Backend.URL, tokens, backend.WithTimeout(cfg.Backend.Timeout)),
		Planner:  planner.NewPlaceholder(),
		Executor: executor.NewClient(),
		Cloner:   git.NewClient(),
		Secrets:  secrets,
		Clock:    clock,
		Logger:   logger,
	})
	c.RunID = runID
	c.closers = append(c.closers, func(context.Context) error { return logger.Close() })

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: opts.Version,
		RunID:          runID,
		OTLPEndpoint:   cfg.Telemetry.Endpoint,
	})
	if err != nil {
		err = fmt.Errorf("init telemetry: %w", err)
		_ = c.ReportFailed(ctx, err)
		_ = c.Close(ctx)
		return nil, err
	}
	c.closers = append([]func(context.Context) error{shutdown}, c.closers...)

	logger.Info("", "startup", fmt.Sprintf("agent %s started for project %s in container %s",
		opts.Version, cfg.Agent.ProjectID, cfg.Agent.ContainerID))
	return c, nil
}

// NewWithDeps creates a Container with explicit dependencies.
// This is useful for testing.
func NewWithDeps(cfg domain.Config, deps Deps) *Container {
	logger := deps.Logger
	if logger == nil {
		logger = domain.NopLogger{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &Container{
		Config:   cfg,
		Backend:  deps.Backend,
		Planner:  deps.Planner,
		Executor: deps.Executor,
		Cloner:   deps.Cloner,
		Secrets:  deps.Secrets,
		Clock:    clock,
		Logger:   logger,
	}
}

// ClaimTaskUseCase returns a new ClaimTask use case.
func (c *Container) ClaimTaskUseCase() *usecase.ClaimTask {
	return usecase.NewClaimTask(c.Backend, c.Logger, c.Config.Agent.ProjectID, c.Config.Agent.ContainerID)
}

// ExecuteItemUseCase returns a new ExecuteItem use case.
func (c *Container) ExecuteItemUseCase() *usecase.ExecuteItem {
	return usecase.NewExecuteItem(c.Executor, c.Logger, c.Config.Agent.WorkspaceDir, c.Config.Scripts)
}

// RunPlannerUseCase returns a new RunPlanner use case.
func (c *Container) RunPlannerUseCase() *usecase.RunPlanner {
	return usecase.NewRunPlanner(c.Backend, c.Planner, c.ExecuteItemUseCase(), c.Clock, c.Logger)
}

// RunAgentUseCase returns a new RunAgent use case.
func (c *Container) RunAgentUseCase() *usecase.RunAgent {
	return usecase.NewRunAgent(c.ClaimTaskUseCase(), c.RunPlannerUseCase(), c.Backend, c.Logger, c.Config.Loop)
}

// SyncRepositoriesUseCase returns a new SyncRepositories use case.
func (c *Container) SyncRepositoriesUseCase() *usecase.SyncRepositories {
	return usecase.NewSyncRepositories(
		c.Backend, c.Cloner, c.Secrets, c.Logger,
		c.Config.Agent.ProjectID, c.Config.Agent.WorkspaceDir,
	)
}

// ShowHistoryUseCase returns a new ShowHistory use case.
func (c *Container) ShowHistoryUseCase() *usecase.ShowHistory {
	return usecase.NewShowHistory(c.Backend)
}

// ReportCompleted reports the container completed. Only the first report is sent.
func (c *Container) ReportCompleted(ctx context.Context) error {
	return c.reportStatus(ctx, domain.ContainerCompleted, 0)
}

// ReportFailed reports the container failed with cause. Only the first report is sent.
func (c *Container) ReportFailed(ctx context.Context, cause error) error {
	c.Logger.Error("", "container", fmt.Sprintf("agent failed: %v", cause))
	return c.reportStatus(ctx, domain.ContainerFailed, 1)
}

func (c *Container) reportStatus(ctx context.Context, status domain.ContainerStatus, exitCode int) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: container cannot be reported %s", domain.ErrInvalidTransition, status)
	}
	sent := false
	c.statusOnce.Do(func() {
		sent = true
		if c.Backend == nil {
			return
		}
		now := c.Clock.Now()
		err := c.Backend.UpdateContainer(context.WithoutCancel(ctx), c.Config.Agent.ContainerID, domain.ContainerUpdate{
			Status:      status,
			ExitCode:    exitCode,
			CompletedAt: &now,
		})
		if err != nil {
			c.statusErr = fmt.Errorf("report container %s: %w", status, err)
			c.Logger.Error("", "container", c.statusErr.Error())
			return
		}
		c.Logger.Info("", "container", fmt.Sprintf("container reported %s", status))
	})
	if !sent {
		return domain.ErrContainerAlreadyFinal
	}
	return c.statusErr
}

// Close flushes telemetry and closes log files.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	for _, closeFn := range c.closers {
		if err := closeFn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
