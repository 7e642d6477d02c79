// Package planner provides the agent's planner implementations.
package planner

import (
	"context"
	"fmt"

	"github.com/runoshun/crew-agent/internal/domain"
)

// Ensure Placeholder implements domain.Planner interface.
var _ domain.Planner = (*Placeholder)(nil)

// Placeholder is a deterministic planner used until a model-backed planner is wired in.
// Its reply depends only on the task and the history length.
type Placeholder struct{}

// NewPlaceholder creates a Placeholder planner.
func NewPlaceholder() *Placeholder {
	return &Placeholder{}
}

// Plan returns a fixed analysis of the task.
func (p *Placeholder) Plan(ctx context.Context, req domain.PlanRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.Task == nil {
		return "", fmt.Errorf("plan: %w", domain.ErrTaskNotFound)
	}

	return fmt.Sprintf(`I've analyzed the task %q.

Description: %s

Based on the chat history (%d messages), I'll create a plan to execute this task.

This is a placeholder response. A full planner would:
1. Analyze the task requirements
2. Create a step-by-step execution plan
3. Execute code and file operations as needed
4. Report progress and results

The task has been processed and is ready for more sophisticated planning integration.`,
		req.Task.Title, req.Task.Description, len(req.History)), nil
}
