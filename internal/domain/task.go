// Package domain contains core business entities and interfaces.
package domain

import "time"

// Task is one unit of work tracked by the backend.
// The agent holds a transient copy for the duration of one claim.
// Fields are ordered to minimize memory padding.
type Task struct {
	CompletedAt *time.Time `json:"completedAt,omitempty" yaml:"completedAt,omitempty"` // Set when the task reached a terminal status
	ID          string     `json:"id" yaml:"id"`                                       // Backend identity
	ProjectID   string     `json:"projectId,omitempty" yaml:"projectId,omitempty"`     // Owning project
	Title       string     `json:"title" yaml:"title"`                                 // Title
	Description string     `json:"description,omitempty" yaml:"description,omitempty"` // Description (optional)
	Status      Status     `json:"status" yaml:"status"`                               // Current status
	ContainerID string     `json:"containerId,omitempty" yaml:"containerId,omitempty"` // Owning container (empty until claimed)
}

// IsClaimable returns true if the task is pending and not owned by any container.
func (t *Task) IsClaimable() bool {
	return t.Status == StatusPending && t.ContainerID == ""
}

// IsOwnedBy returns true if the task is owned by the given container.
func (t *Task) IsOwnedBy(containerID string) bool {
	return containerID != "" && t.ContainerID == containerID
}

// TaskUpdate is a partial update of a task record.
// Nil fields are left untouched by the backend.
type TaskUpdate struct {
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	Status         Status     `json:"status,omitempty"`
	ContainerID    string     `json:"containerId,omitempty"`
	ExpectedStatus Status     `json:"expectedStatus,omitempty"` // Precondition for conditional updates
}

// Repository is a version-controlled repository attached to a project.
// Fields are ordered to minimize memory padding.
type Repository struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	Token     string `json:"githubToken,omitempty"` // May be an enveloped secret
	IsPrivate bool   `json:"isPrivate,omitempty"`
}
