// Package executor provides command execution functionality.
package executor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/runoshun/crew-agent/internal/domain"
)

// Client implements domain.CommandExecutor interface.
type Client struct{}

// NewClient creates a new command executor client.
func NewClient() *Client {
	return &Client{}
}

// Ensure Client implements domain.CommandExecutor interface.
var _ domain.CommandExecutor = (*Client)(nil)

// Execute runs the command and returns its combined output and exit code.
// A command that ran and exited non-zero is not an error.
func (c *Client) Execute(ctx context.Context, cmd *domain.ExecCommand) (*domain.ExecResult, error) {
	// #nosec G204 - cmd.Program comes from configured script rules
	execCmd := exec.CommandContext(ctx, cmd.Program, cmd.Args...)
	if cmd.Dir != "" {
		execCmd.Dir = cmd.Dir
	}

	out, err := execCmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &domain.ExecResult{Output: out, ExitCode: exitErr.ExitCode()}, nil
		}
		return nil, fmt.Errorf("run %s: %w", cmd.Program, err)
	}
	return &domain.ExecResult{Output: out}, nil
}
