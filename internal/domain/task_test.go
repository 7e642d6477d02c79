package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTask_IsClaimable(t *testing.T) {
	tests := []struct {
		name string
		task Task
		want bool
	}{
		{"pending and unowned", Task{Status: StatusPending}, true},
		{"pending but owned", Task{Status: StatusPending, ContainerID: "c-1"}, false},
		{"running", Task{Status: StatusRunning}, false},
		{"completed", Task{Status: StatusCompleted}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.task.IsClaimable())
		})
	}
}

func TestTask_IsOwnedBy(t *testing.T) {
	task := Task{ContainerID: "c-1"}
	assert.True(t, task.IsOwnedBy("c-1"))
	assert.False(t, task.IsOwnedBy("c-2"))
	assert.False(t, (&Task{}).IsOwnedBy(""))
}
