package domain

import "time"

// Container is the isolated execution environment hosting one agent process.
type Container struct {
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	ID          string          `json:"id"`
	Status      ContainerStatus `json:"status"`
	ExitCode    int             `json:"exitCode"`
}

// ContainerUpdate is the status report sent for the agent's container.
type ContainerUpdate struct {
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	Status      ContainerStatus `json:"status"`
	ExitCode    int             `json:"exitCode"`
}
