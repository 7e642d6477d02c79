package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/runoshun/crew-agent/internal/app"
	"github.com/runoshun/crew-agent/internal/domain"
)

// newRunCommand creates the run command.
func newRunCommand(opts *app.Options) *cobra.Command {
	var skipRepoSync bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Claim and process tasks until stopped",
		Long: `Start the agent loop.

At startup the project's repositories are cloned (or pulled) into the
workspace unless --skip-repo-sync or AGENT_SKIP_REPO_SYNC is set. The agent
then claims pending tasks one at a time until it receives SIGINT or SIGTERM.
A task that is already being processed is finished before the agent exits.

On a graceful stop the container is reported completed. If the agent cannot
start, it is reported failed.

Examples:
  # Run with configuration from the environment
  CONTAINER_ID=c-1 AGENT_TOKEN=... crew-agent run

  # Run with a config file and no repository checkout
  crew-agent --config ./crew-agent.toml run --skip-repo-sync`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAgent(cmd, opts, skipRepoSync)
		},
	}

	cmd.Flags().BoolVar(&skipRepoSync, "skip-repo-sync", false, "Do not clone or pull project repositories at startup")

	return cmd
}

// runAgent runs the agent loop until the process is signalled.
func runAgent(cmd *cobra.Command, opts *app.Options, skipRepoSync bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := buildContainer(ctx, opts, func(cfg *domain.Config) {
		if skipRepoSync {
			cfg.Agent.SkipRepoSync = true
		}
	})
	if err != nil {
		return err
	}
	defer func() { _ = c.Close(context.WithoutCancel(ctx)) }()

	if !c.Config.Agent.SkipRepoSync {
		synced, err := c.SyncRepositoriesUseCase().Execute(ctx)
		if err != nil {
			c.Logger.Warn("", "repos", fmt.Sprintf("repository sync skipped: %v", err))
		} else {
			c.Logger.Info("", "repos", fmt.Sprintf("repositories synced: %d cloned, %d pulled, %d skipped, %d failed",
				len(synced.Cloned), len(synced.Pulled), len(synced.Skipped), len(synced.Failed)))
		}
	}

	out, err := c.RunAgentUseCase().Execute(ctx)
	if err != nil {
		_ = c.ReportFailed(ctx, err)
		return fmt.Errorf("agent loop: %w", err)
	}

	c.Logger.Info("", "shutdown", fmt.Sprintf("agent stopped: %d tasks completed, %d failed, %d loop errors",
		out.Completed, out.Failed, out.Errors))
	if err := c.ReportCompleted(ctx); err != nil {
		c.Logger.Warn("", "shutdown", err.Error())
	}
	return nil
}
