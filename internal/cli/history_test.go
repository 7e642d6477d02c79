package cli

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/runoshun/crew-agent/internal/app"
	"github.com/runoshun/crew-agent/internal/domain"
	"github.com/runoshun/crew-agent/internal/testutil"
)

func historyBackend() *testutil.MockBackend {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	be := testutil.NewMockBackend()
	// Stored out of order; the history is rebuilt by creation time.
	be.Items["t1"] = []domain.TaskItem{
		{
			ID: "i2", TaskID: "t1", CreatedAt: base.Add(2 * time.Minute),
			Payload: domain.ToolCall{Name: "write_file"},
			Tool:    &domain.ToolCall{Name: "write_file", Parameters: map[string]any{"path": "README.md"}},
		},
		{
			ID: "i1", TaskID: "t1", CreatedAt: base.Add(time.Minute),
			Payload: domain.Planning{}, Content: "Add README", ChatResponse: "On it",
		},
	}
	return be
}

func runHistory(t *testing.T, args ...string) (string, error) {
	t.Helper()
	useDeps(t, app.Deps{Backend: historyBackend()})
	root := NewRootCommand(testOptions(t, nil), "test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(append([]string{"history"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestHistoryCommand_Text(t *testing.T) {
	out, err := runHistory(t, "t1")
	require.NoError(t, err)

	assert.Contains(t, out, "Task t1: 2 items, 3 messages")
	assert.Contains(t, out, "[1] user\n    Add README")
	assert.Contains(t, out, "[2] assistant\n    On it")
	assert.Contains(t, out, "tool write_file (path=README.md)")
}

func TestHistoryCommand_YAML(t *testing.T) {
	out, err := runHistory(t, "t1", "--format", "yaml")
	require.NoError(t, err)

	var view historyView
	require.NoError(t, yaml.Unmarshal([]byte(out), &view))
	assert.Equal(t, "t1", view.TaskID)
	assert.Equal(t, 2, view.Items)
	require.Len(t, view.Messages, 3)
	assert.Equal(t, domain.RoleUser, view.Messages[0].Role)
	require.Len(t, view.Messages[2].ToolCalls, 1)
	assert.Equal(t, "write_file", view.Messages[2].ToolCalls[0].Name)
}

func TestHistoryCommand_JSON(t *testing.T) {
	out, err := runHistory(t, "t1", "-f", "json")
	require.NoError(t, err)

	var view historyView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	require.Len(t, view.Messages, 3)
	assert.Equal(t, "Add README", view.Messages[0].Content)
	assert.Equal(t, "On it", view.Messages[1].Content)
}

func TestHistoryCommand_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "missing task id", args: nil},
		{name: "too many args", args: []string{"t1", "t2"}},
		{name: "unknown format", args: []string{"t1", "--format", "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runHistory(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestHistoryCommand_EmptyTask(t *testing.T) {
	out, err := runHistory(t, "unknown")
	require.NoError(t, err)
	assert.Contains(t, out, "Task unknown: 0 items, 0 messages")
}
