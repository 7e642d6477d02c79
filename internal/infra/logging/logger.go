// Package logging provides the agent logger.
// Entries go to a zerolog stream (JSON or console) and, when a log directory
// is configured, also to a per-task file (<dir>/task-<id>.log).
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/runoshun/crew-agent/internal/domain"
)

// Ensure Logger implements domain.Logger interface.
var _ domain.Logger = (*Logger)(nil)

// Options configures a Logger.
type Options struct {
	Output io.Writer // Stream output (defaults to os.Stderr)
	Level  string    // debug, info, warn, error
	Format string    // json or console
	Dir    string    // Per-task log directory (empty disables task files)
	RunID  string    // Identifies this agent process in every entry
}

// Logger writes structured entries through zerolog.
// Fields are ordered to minimize memory padding.
type Logger struct {
	taskFiles map[string]*os.File
	zl        zerolog.Logger
	dir       string
	mu        sync.Mutex
	level     zerolog.Level
}

// New creates a Logger.
func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if opts.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.DateTime, NoColor: true}
	}
	level := ParseLevel(opts.Level)

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if opts.RunID != "" {
		ctx = ctx.Str("run", opts.RunID)
	}
	return &Logger{
		zl:        ctx.Logger(),
		dir:       opts.Dir,
		level:     level,
		taskFiles: make(map[string]*os.File),
	}
}

// ParseLevel parses a log level string into a zerolog level.
func ParseLevel(levelStr string) zerolog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Zerolog returns the underlying logger for components that log directly.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

// TaskLogPath returns the path of a task's log file inside dir.
func TaskLogPath(dir, taskID string) string {
	return filepath.Join(dir, fmt.Sprintf("task-%s.log", sanitize(taskID)))
}

// sanitize keeps task IDs from escaping the log directory.
func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\':
			return '_'
		}
		return r
	}, strings.ReplaceAll(id, "..", "_"))
}

// ensureTaskFile opens or returns the task log file.
func (l *Logger) ensureTaskFile(taskID string) (*os.File, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if f, ok := l.taskFiles[taskID]; ok {
		return f, nil
	}

	if err := os.MkdirAll(l.dir, 0o750); err != nil {
		return nil, fmt.Errorf("create logs directory: %w", err)
	}

	path := TaskLogPath(l.dir, taskID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640) //nolint:gosec // Log file readable by owner and group
	if err != nil {
		return nil, fmt.Errorf("open task log file: %w", err)
	}
	l.taskFiles[taskID] = f
	return f, nil
}

// Close closes all open task log files.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var lastErr error
	for id, f := range l.taskFiles {
		if err := f.Close(); err != nil {
			lastErr = err
		}
		delete(l.taskFiles, id)
	}
	return lastErr
}

// formatTaskLine formats an entry for a task log file.
// Format: [2025-12-30 09:32:51] [INFO] [category] message
func formatTaskLine(t time.Time, level zerolog.Level, category, msg string) string {
	return fmt.Sprintf("[%s] [%s] [%s] %s\n",
		t.Format(time.DateTime),
		strings.ToUpper(level.String()),
		category,
		msg,
	)
}

func (l *Logger) log(level zerolog.Level, taskID, category, msg string) {
	if level < l.level {
		return
	}

	ev := l.zl.WithLevel(level).Str("cmp", category)
	if taskID != "" {
		ev = ev.Str("task", taskID)
	}
	ev.Msg(msg)

	if taskID == "" || l.dir == "" {
		return
	}
	if f, err := l.ensureTaskFile(taskID); err == nil {
		_, _ = io.WriteString(f, formatTaskLine(time.Now(), level, category, msg))
	}
}

// Info logs an info message.
func (l *Logger) Info(taskID, category, msg string) {
	l.log(zerolog.InfoLevel, taskID, category, msg)
}

// Debug logs a debug message.
func (l *Logger) Debug(taskID, category, msg string) {
	l.log(zerolog.DebugLevel, taskID, category, msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(taskID, category, msg string) {
	l.log(zerolog.WarnLevel, taskID, category, msg)
}

// Error logs an error message.
func (l *Logger) Error(taskID, category, msg string) {
	l.log(zerolog.ErrorLevel, taskID, category, msg)
}
