package usecase

import (
	"context"
	"fmt"

	"github.com/runoshun/crew-agent/internal/domain"
)

// ShowHistoryInput contains the parameters for showing a task's history.
type ShowHistoryInput struct {
	TaskID string
}

// ShowHistoryOutput contains a task's items and the chat history derived from them.
type ShowHistoryOutput struct {
	Items   []domain.TaskItem   // Sorted by creation time
	History []domain.ChatMessage
}

// ShowHistory is the use case for inspecting the chat history of a task.
type ShowHistory struct {
	backend domain.Backend
}

// NewShowHistory creates a new ShowHistory use case.
func NewShowHistory(backend domain.Backend) *ShowHistory {
	return &ShowHistory{backend: backend}
}

// Execute fetches the task's items and rebuilds its chat history.
func (uc *ShowHistory) Execute(ctx context.Context, in ShowHistoryInput) (*ShowHistoryOutput, error) {
	if in.TaskID == "" {
		return nil, domain.ErrTaskNotFound
	}
	items, err := uc.backend.ListItems(ctx, in.TaskID)
	if err != nil {
		return nil, fmt.Errorf("list items for task %s: %w", in.TaskID, err)
	}
	return &ShowHistoryOutput{
		Items:   domain.SortItems(items),
		History: domain.BuildChatHistory(items),
	}, nil
}
