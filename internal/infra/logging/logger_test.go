package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"WARN", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"unknown", zerolog.InfoLevel}, // default
		{"", zerolog.InfoLevel},        // default
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Output: &buf, Level: "info", RunID: "run-1"})

	logger.Info("task-9", "claim", "claimed task")
	logger.Warn("", "loop", "backend unavailable")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)

	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "claim", lines[0]["cmp"])
	assert.Equal(t, "task-9", lines[0]["task"])
	assert.Equal(t, "run-1", lines[0]["run"])
	assert.Equal(t, "claimed task", lines[0]["message"])

	assert.Equal(t, "warn", lines[1]["level"])
	assert.NotContains(t, lines[1], "task")
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Output: &buf, Level: "warn"})

	logger.Debug("", "x", "debug")
	logger.Info("", "x", "info")
	logger.Error("", "x", "error")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "error", lines[0]["message"])
}

func TestLogger_ConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Output: &buf, Format: "console"})

	logger.Info("t1", "exec", "hello")

	out := buf.String()
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "cmp=exec")
	assert.Contains(t, out, "task=t1")
}

func TestLogger_TaskFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logger := New(Options{Output: &bytes.Buffer{}, Dir: dir})
	defer func() { _ = logger.Close() }()

	logger.Info("task-1", "planner", "planner responded")
	logger.Error("task-1", "task", "task failed")
	logger.Info("", "loop", "global only")

	content, err := os.ReadFile(TaskLogPath(dir, "task-1"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "[INFO] [planner] planner responded")
	assert.Contains(t, string(content), "[ERROR] [task] task failed")
	assert.NotContains(t, string(content), "global only")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestTaskLogPath_Sanitizes(t *testing.T) {
	path := TaskLogPath("/logs", "../../etc/passwd")
	assert.Equal(t, "/logs", filepath.Dir(path))
}
