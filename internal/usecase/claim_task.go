package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/runoshun/crew-agent/internal/domain"
)

// ClaimTaskOutput contains the result of a claim attempt.
// Task is nil when nothing was claimed.
type ClaimTaskOutput struct {
	Task *domain.Task
}

// ClaimTask is the use case for acquiring exclusive ownership of one pending task.
type ClaimTask struct {
	backend     domain.Backend
	logger      domain.Logger
	projectID   string
	containerID string
}

// NewClaimTask creates a new ClaimTask use case.
func NewClaimTask(backend domain.Backend, logger domain.Logger, projectID, containerID string) *ClaimTask {
	return &ClaimTask{
		backend:     backend,
		logger:      logger,
		projectID:   projectID,
		containerID: containerID,
	}
}

// Execute claims the first claimable task in backend order.
// Only one candidate is tried per call: if the backend refuses the claim,
// the result is "no task" and the next call starts over from the list.
// Tasks with a status the agent does not know are skipped.
func (uc *ClaimTask) Execute(ctx context.Context) (out *ClaimTaskOutput, err error) {
	ctx, span := tracer.Start(ctx, "ClaimTask")
	defer func() { endSpan(span, err) }()

	tasks, err := uc.backend.ListTasks(ctx, uc.projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	var candidate *domain.Task
	for _, t := range tasks {
		if t == nil {
			continue
		}
		if !t.Status.IsValid() {
			uc.logger.Warn(t.ID, "claim", fmt.Sprintf("skipping task with unknown status %q", t.Status))
			continue
		}
		if t.IsClaimable() {
			candidate = t
			break
		}
	}
	if candidate == nil {
		uc.logger.Debug("", "claim", fmt.Sprintf("no pending task among %d", len(tasks)))
		return &ClaimTaskOutput{}, nil
	}
	span.SetAttributes(attribute.String("task.id", candidate.ID))

	claimed, err := uc.backend.UpdateTask(ctx, candidate.ID, domain.TaskUpdate{
		Status:         domain.StatusRunning,
		ContainerID:    uc.containerID,
		ExpectedStatus: domain.StatusPending,
	})
	if err != nil {
		if errors.Is(err, domain.ErrClaimRejected) || errors.Is(err, domain.ErrNotFound) {
			uc.logger.Info(candidate.ID, "claim", fmt.Sprintf("claim rejected: %v", err))
			return &ClaimTaskOutput{}, nil
		}
		return nil, fmt.Errorf("claim task %s: %w", candidate.ID, err)
	}
	if claimed == nil {
		uc.logger.Info(candidate.ID, "claim", "claim not confirmed: empty response")
		return &ClaimTaskOutput{}, nil
	}
	if !claimed.IsOwnedBy(uc.containerID) {
		uc.logger.Info(candidate.ID, "claim", fmt.Sprintf("claim lost to container %q", claimed.ContainerID))
		return &ClaimTaskOutput{}, nil
	}

	uc.logger.Info(claimed.ID, "claim", fmt.Sprintf("claimed task %q", claimed.Title))
	return &ClaimTaskOutput{Task: claimed}, nil
}
