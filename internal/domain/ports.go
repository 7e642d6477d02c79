package domain

import (
	"context"
	"time"
)

// Backend is the job service the agent works against.
// Implementations return errors wrapping ErrBackendUnavailable for transport
// failures and ErrClaimRejected when a conditional update is refused.
type Backend interface {
	// ListRepositories returns the repositories attached to a project.
	ListRepositories(ctx context.Context, projectID string) ([]Repository, error)

	// ListTasks returns the project's tasks in backend order.
	ListTasks(ctx context.Context, projectID string) ([]*Task, error)

	// ListItems returns all items recorded for a task.
	ListItems(ctx context.Context, taskID string) ([]TaskItem, error)

	// CreateItem appends a new item to a task.
	CreateItem(ctx context.Context, taskID string, draft NewItemDraft) (*TaskItem, error)

	// UpdateTask applies a partial update to a task. When update.ExpectedStatus
	// is set the backend applies it only if the task still has that status.
	UpdateTask(ctx context.Context, taskID string, update TaskUpdate) (*Task, error)

	// UpdateContainer reports the status of a container.
	UpdateContainer(ctx context.Context, containerID string, update ContainerUpdate) error
}

// PlanRequest is the input handed to the planner.
type PlanRequest struct {
	Task    *Task
	History []ChatMessage
}

// Planner produces the next assistant response for a task.
type Planner interface {
	Plan(ctx context.Context, req PlanRequest) (string, error)
}

// ExecResult is the outcome of a finished external command.
type ExecResult struct {
	Output   []byte
	ExitCode int
}

// CommandExecutor runs external commands.
type CommandExecutor interface {
	// Execute runs the command to completion. A non-zero exit status is
	// reported through ExecResult.ExitCode, not as an error; errors mean the
	// command could not be run at all.
	Execute(ctx context.Context, cmd *ExecCommand) (*ExecResult, error)
}

// CloneOptions configures a repository checkout.
type CloneOptions struct {
	URL   string // Remote URL
	Dir   string // Target directory
	Token string // Access token for private repositories (plain text)
}

// RepoCloner materializes repositories on disk.
type RepoCloner interface {
	// IsRepository reports whether dir already holds a checkout.
	IsRepository(dir string) bool

	// Clone clones opts.URL into opts.Dir.
	Clone(ctx context.Context, opts CloneOptions) error

	// Pull fast-forwards an existing checkout.
	Pull(ctx context.Context, opts CloneOptions) error
}

// SecretUnwrapper turns a stored secret into its plain-text value.
type SecretUnwrapper interface {
	Unwrap(value string) (string, error)
}

// TokenSource provides the bearer token for backend requests.
type TokenSource interface {
	Token() (string, error)
}

// Logger writes agent log entries. taskID is empty for entries not tied to a task.
type Logger interface {
	Info(taskID, category, msg string)
	Debug(taskID, category, msg string)
	Warn(taskID, category, msg string)
	Error(taskID, category, msg string)
}

// NopLogger discards all log entries.
type NopLogger struct{}

func (NopLogger) Info(_, _, _ string)  {}
func (NopLogger) Debug(_, _, _ string) {}
func (NopLogger) Warn(_, _, _ string)  {}
func (NopLogger) Error(_, _, _ string) {}

// Clock provides time operations for testability.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// RealClock implements Clock using the system clock.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time {
	return time.Now()
}
