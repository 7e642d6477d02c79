// Package cli provides the command-line interface for crew-agent.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/runoshun/crew-agent/internal/app"
	"github.com/runoshun/crew-agent/internal/domain"
)

// Command group IDs.
const (
	groupAgent   = "agent"
	groupInspect = "inspect"
)

// newContainerFunc is a function variable for building the container, allowing it to be mocked in tests.
var newContainerFunc = app.New

// NewRootCommand creates the root command for crew-agent.
// opts carries process-level inputs; --config fills opts.ConfigPath.
func NewRootCommand(opts app.Options, version string) *cobra.Command {
	opts.Version = version

	root := &cobra.Command{
		Use:   "crew-agent",
		Short: "Remote task execution agent",
		Long: `crew-agent runs inside a task container. It claims pending tasks from the
backend one at a time, plans them, executes the resulting items in the
workspace and reports every task completed or failed.

Running crew-agent without a subcommand is the same as 'crew-agent run'.`,
		Version: version,
		// SilenceUsage prevents usage from being printed on errors
		SilenceUsage: true,
		// SilenceErrors prevents Cobra from printing errors (we handle it in main)
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAgent(cmd, &opts, false)
		},
	}

	root.PersistentFlags().StringVar(&opts.ConfigPath, "config", opts.ConfigPath, "Path to a crew-agent.toml file (default $CREW_AGENT_CONFIG or ./crew-agent.toml)")

	root.AddGroup(
		&cobra.Group{ID: groupAgent, Title: "Agent Commands:"},
		&cobra.Group{ID: groupInspect, Title: "Inspection Commands:"},
	)

	runCmd := newRunCommand(&opts)
	runCmd.GroupID = groupAgent

	historyCmd := newHistoryCommand(&opts)
	historyCmd.GroupID = groupInspect

	configCmd := newConfigCommand(&opts)
	configCmd.GroupID = groupInspect

	root.AddCommand(runCmd, historyCmd, configCmd)
	return root
}

// buildContainer loads the configuration, applies flag overrides and builds the container.
func buildContainer(ctx context.Context, opts *app.Options, override func(*domain.Config)) (*app.Container, error) {
	cfg, err := app.LoadConfig(*opts)
	if err != nil {
		return nil, err
	}
	if override != nil {
		override(cfg)
	}
	return newContainerFunc(ctx, *cfg, *opts)
}
