// Package testutil provides shared test utilities and mock implementations.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/runoshun/crew-agent/internal/domain"
)

// MockClock is a test double for domain.Clock.
type MockClock struct {
	NowTime time.Time
}

// Now returns the configured time.
func (m *MockClock) Now() time.Time {
	return m.NowTime
}

// TaskUpdateCall records one call to MockBackend.UpdateTask.
type TaskUpdateCall struct {
	TaskID string
	Update domain.TaskUpdate
}

// ContainerUpdateCall records one call to MockBackend.UpdateContainer.
type ContainerUpdateCall struct {
	ContainerID string
	Update      domain.ContainerUpdate
}

// MockBackend is an in-memory test double for domain.Backend.
// It is safe for concurrent use.
// Fields are ordered to minimize memory padding.
type MockBackend struct {
	ListTasksErr       error
	ListItemsErr       error
	CreateItemErr      error
	ClaimErr           error // Returned for conditional (claim) updates
	UpdateTaskErr      error // Returned for unconditional (status report) updates
	UpdateContainerErr error
	ListReposErr       error
	Items              map[string][]domain.TaskItem
	Tasks              []*domain.Task
	Repos              []domain.Repository
	TaskUpdates        []TaskUpdateCall
	ContainerUpdates   []ContainerUpdateCall
	CreatedItems       []domain.TaskItem
	BaseTime           time.Time
	mu                 sync.Mutex
	seq                int
	ListTasksCalls     int
	EmptyClaimResponse bool // Accept the claim but answer with an empty body
}

// NewMockBackend creates a MockBackend holding the given tasks.
func NewMockBackend(tasks ...*domain.Task) *MockBackend {
	return &MockBackend{
		Tasks:    tasks,
		Items:    make(map[string][]domain.TaskItem),
		BaseTime: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Ensure MockBackend implements domain.Backend interface.
var _ domain.Backend = (*MockBackend)(nil)

// ListRepositories returns the configured repositories.
func (m *MockBackend) ListRepositories(_ context.Context, _ string) ([]domain.Repository, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListReposErr != nil {
		return nil, m.ListReposErr
	}
	return append([]domain.Repository(nil), m.Repos...), nil
}

// ListTasks returns copies of all tasks in insertion order.
func (m *MockBackend) ListTasks(_ context.Context, _ string) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListTasksCalls++
	if m.ListTasksErr != nil {
		return nil, m.ListTasksErr
	}
	out := make([]*domain.Task, 0, len(m.Tasks))
	for _, t := range m.Tasks {
		c := *t
		out = append(out, &c)
	}
	return out, nil
}

// ListItems returns the items recorded for a task.
func (m *MockBackend) ListItems(_ context.Context, taskID string) ([]domain.TaskItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListItemsErr != nil {
		return nil, m.ListItemsErr
	}
	return append([]domain.TaskItem(nil), m.Items[taskID]...), nil
}

// CreateItem appends an item with a generated ID and increasing timestamp.
func (m *MockBackend) CreateItem(_ context.Context, taskID string, draft domain.NewItemDraft) (*domain.TaskItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateItemErr != nil {
		return nil, m.CreateItemErr
	}
	m.seq++
	item := domain.TaskItem{
		ID:           fmt.Sprintf("item-%d", m.seq),
		TaskID:       taskID,
		Title:        draft.Title,
		Content:      draft.Content,
		ChatResponse: draft.ChatResponse,
		Payload:      draft.Payload,
		Tool:         draft.Tool,
		CreatedAt:    m.BaseTime.Add(time.Duration(m.seq) * time.Hour),
	}
	m.Items[taskID] = append(m.Items[taskID], item)
	m.CreatedItems = append(m.CreatedItems, item)
	return &item, nil
}

// UpdateTask applies an update. Conditional updates are rejected with
// domain.ErrClaimRejected when the task no longer has the expected status.
func (m *MockBackend) UpdateTask(_ context.Context, taskID string, update domain.TaskUpdate) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TaskUpdates = append(m.TaskUpdates, TaskUpdateCall{TaskID: taskID, Update: update})

	conditional := update.ExpectedStatus != ""
	if conditional && m.ClaimErr != nil {
		return nil, m.ClaimErr
	}
	if !conditional && m.UpdateTaskErr != nil {
		return nil, m.UpdateTaskErr
	}

	task := m.find(taskID)
	if task == nil {
		return nil, domain.ErrNotFound
	}
	if conditional && task.Status != update.ExpectedStatus {
		return nil, fmt.Errorf("task %s is %s: %w", taskID, task.Status, domain.ErrClaimRejected)
	}
	if update.Status != "" {
		task.Status = update.Status
	}
	if update.ContainerID != "" {
		task.ContainerID = update.ContainerID
	}
	if update.CompletedAt != nil {
		completed := *update.CompletedAt
		task.CompletedAt = &completed
	}
	if conditional && m.EmptyClaimResponse {
		return nil, nil
	}
	c := *task
	return &c, nil
}

// UpdateContainer records the container report.
func (m *MockBackend) UpdateContainer(_ context.Context, containerID string, update domain.ContainerUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ContainerUpdates = append(m.ContainerUpdates, ContainerUpdateCall{ContainerID: containerID, Update: update})
	return m.UpdateContainerErr
}

// Task returns a copy of the task with the given ID, or nil.
func (m *MockBackend) Task(id string) *domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.find(id)
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Updates returns a copy of the recorded task updates.
func (m *MockBackend) Updates() []TaskUpdateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TaskUpdateCall(nil), m.TaskUpdates...)
}

// Calls returns how many times ListTasks was called.
func (m *MockBackend) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ListTasksCalls
}

func (m *MockBackend) find(id string) *domain.Task {
	for _, t := range m.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// MockPlanner is a test double for domain.Planner.
type MockPlanner struct {
	Err      error
	Panic    any
	Response string
	Requests []domain.PlanRequest
}

// Plan records the request and returns the configured response.
func (m *MockPlanner) Plan(_ context.Context, req domain.PlanRequest) (string, error) {
	m.Requests = append(m.Requests, req)
	if m.Panic != nil {
		panic(m.Panic)
	}
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}

// MockCommandExecutor is a test double for domain.CommandExecutor.
type MockCommandExecutor struct {
	Err      error
	Result   *domain.ExecResult
	Commands []*domain.ExecCommand
}

// NewMockCommandExecutor creates a MockCommandExecutor that reports success.
func NewMockCommandExecutor() *MockCommandExecutor {
	return &MockCommandExecutor{Result: &domain.ExecResult{}}
}

// Execute records the command and returns the configured result.
func (m *MockCommandExecutor) Execute(_ context.Context, cmd *domain.ExecCommand) (*domain.ExecResult, error) {
	m.Commands = append(m.Commands, cmd)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Result, nil
}

// MockRepoCloner is a test double for domain.RepoCloner.
type MockRepoCloner struct {
	Existing map[string]bool  // dir -> already a checkout
	Errs     map[string]error // URL -> error returned by Clone/Pull
	Cloned   []domain.CloneOptions
	Pulled   []domain.CloneOptions
}

// NewMockRepoCloner creates a MockRepoCloner with initialized maps.
func NewMockRepoCloner() *MockRepoCloner {
	return &MockRepoCloner{
		Existing: make(map[string]bool),
		Errs:     make(map[string]error),
	}
}

// IsRepository reports the configured value.
func (m *MockRepoCloner) IsRepository(dir string) bool {
	return m.Existing[dir]
}

// Clone records the call.
func (m *MockRepoCloner) Clone(_ context.Context, opts domain.CloneOptions) error {
	m.Cloned = append(m.Cloned, opts)
	return m.Errs[opts.URL]
}

// Pull records the call.
func (m *MockRepoCloner) Pull(_ context.Context, opts domain.CloneOptions) error {
	m.Pulled = append(m.Pulled, opts)
	return m.Errs[opts.URL]
}

// MockSecretUnwrapper is a test double for domain.SecretUnwrapper.
type MockSecretUnwrapper struct {
	Values map[string]string // wrapped -> plain; missing keys pass through
	Err    error
}

// Unwrap returns the mapped value.
func (m *MockSecretUnwrapper) Unwrap(value string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	if v, ok := m.Values[value]; ok {
		return v, nil
	}
	return value, nil
}

// LogEntry is one entry captured by RecordingLogger.
type LogEntry struct {
	Level    string
	TaskID   string
	Category string
	Msg      string
}

// RecordingLogger is a domain.Logger that keeps entries in memory.
type RecordingLogger struct {
	entries []LogEntry
	mu      sync.Mutex
}

// Ensure RecordingLogger implements domain.Logger interface.
var _ domain.Logger = (*RecordingLogger)(nil)

func (l *RecordingLogger) add(level, taskID, category, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, TaskID: taskID, Category: category, Msg: msg})
}

// Info records an info entry.
func (l *RecordingLogger) Info(taskID, category, msg string) { l.add("info", taskID, category, msg) }

// Debug records a debug entry.
func (l *RecordingLogger) Debug(taskID, category, msg string) { l.add("debug", taskID, category, msg) }

// Warn records a warning entry.
func (l *RecordingLogger) Warn(taskID, category, msg string) { l.add("warn", taskID, category, msg) }

// Error records an error entry.
func (l *RecordingLogger) Error(taskID, category, msg string) { l.add("error", taskID, category, msg) }

// Entries returns a copy of the recorded entries.
func (l *RecordingLogger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogEntry(nil), l.entries...)
}

// Has reports whether an entry with the level contains substr.
func (l *RecordingLogger) Has(level, substr string) bool {
	for _, e := range l.Entries() {
		if e.Level == level && strings.Contains(e.Msg, substr) {
			return true
		}
	}
	return false
}
