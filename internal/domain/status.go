package domain

import "slices"

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"   // Created, waiting for an agent
	StatusRunning   Status = "running"   // Claimed by an agent
	StatusCompleted Status = "completed" // Finished successfully
	StatusFailed    Status = "failed"    // Finished with an error
)

// AllStatuses returns all valid status values.
func AllStatuses() []Status {
	return []Status{
		StatusPending,
		StatusRunning,
		StatusCompleted,
		StatusFailed,
	}
}

// transitions defines the allowed status transitions.
// Flow: pending → running → completed | failed
var transitions = map[Status][]Status{
	StatusPending:   {StatusRunning},
	StatusRunning:   {StatusCompleted, StatusFailed},
	StatusCompleted: {},
	StatusFailed:    {},
}

// CanTransitionTo returns true if the status can transition to the target status.
func (s Status) CanTransitionTo(target Status) bool {
	allowed, ok := transitions[s]
	if !ok {
		return false
	}
	for _, t := range allowed {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsValid returns true if the status is a known valid value.
func (s Status) IsValid() bool {
	return slices.Contains(AllStatuses(), s)
}

// ContainerStatus represents the lifecycle state of the container hosting the agent.
type ContainerStatus string

const (
	ContainerRunning   ContainerStatus = "running"
	ContainerCompleted ContainerStatus = "completed"
	ContainerFailed    ContainerStatus = "failed"
)

// IsTerminal returns true if the container status is final.
func (s ContainerStatus) IsTerminal() bool {
	return s == ContainerCompleted || s == ContainerFailed
}
