package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/runoshun/crew-agent/internal/domain"
)

// ExecuteItemInput contains the item to act on.
type ExecuteItemInput struct {
	Item domain.TaskItem
}

// ExecuteItemOutput describes the side effects of executing an item.
type ExecuteItemOutput struct {
	Script      *ScriptRun // Set when the written file was run as a script
	WrittenPath string     // Absolute path of the written file, if any
}

// ScriptRun is the outcome of running a written file.
// Err is set when the interpreter could not be started.
type ScriptRun struct {
	Err      error
	Command  *domain.ExecCommand
	ExitCode int
}

// ExecuteItem is the use case for performing the side effect of one task item.
type ExecuteItem struct {
	executor     domain.CommandExecutor
	logger       domain.Logger
	workspaceDir string
	scripts      []domain.ScriptRule
}

// NewExecuteItem creates a new ExecuteItem use case.
func NewExecuteItem(executor domain.CommandExecutor, logger domain.Logger, workspaceDir string, scripts []domain.ScriptRule) *ExecuteItem {
	return &ExecuteItem{
		executor:     executor,
		logger:       logger,
		workspaceDir: workspaceDir,
		scripts:      scripts,
	}
}

// Execute dispatches on the item's payload.
// Only file creation has side effects; every other kind is logged.
func (uc *ExecuteItem) Execute(ctx context.Context, in ExecuteItemInput) (*ExecuteItemOutput, error) {
	item := in.Item

	switch p := item.Payload.(type) {
	case domain.FileCreation:
		return uc.createFile(ctx, item, p)
	case domain.Planning:
		uc.logger.Info(item.TaskID, "item", fmt.Sprintf("planning item: %s", item.Title))
	case domain.Completion:
		uc.logger.Info(item.TaskID, "item", fmt.Sprintf("completion item: %s", item.Title))
	case domain.ToolCall:
		uc.logger.Info(item.TaskID, "item", fmt.Sprintf("tool call item: %s", p.Name))
	case domain.Unknown:
		uc.logger.Warn(item.TaskID, "item", fmt.Sprintf("unknown item type %q (item %s)", p.Type, item.ID))
	default:
		uc.logger.Warn(item.TaskID, "item", fmt.Sprintf("item %s has no type", item.ID))
	}
	return &ExecuteItemOutput{}, nil
}

func (uc *ExecuteItem) createFile(ctx context.Context, item domain.TaskItem, p domain.FileCreation) (*ExecuteItemOutput, error) {
	if p.Path == "" {
		uc.logger.Warn(item.TaskID, "item", fmt.Sprintf("file creation item %s has no path; skipped", item.ID))
		return &ExecuteItemOutput{}, nil
	}

	root, rel, err := ResolveWorkspacePath(uc.workspaceDir, p.Path)
	if err != nil {
		return nil, err
	}
	target := filepath.Join(root, rel)

	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return nil, fmt.Errorf("create parent directories for %s: %w", rel, err)
	}
	// #nosec G306 - workspace files are read by scripts and tools in the container
	if err := os.WriteFile(target, []byte(domain.UnescapeNewlines(p.Content)), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", rel, err)
	}
	uc.logger.Info(item.TaskID, "item", fmt.Sprintf("created file %s", rel))

	out := &ExecuteItemOutput{WrittenPath: target}
	if rule, ok := uc.matchScript(rel); ok {
		out.Script = uc.runScript(ctx, item.TaskID, rule, root, rel)
	}
	return out, nil
}

// matchScript returns the first rule whose pattern matches the workspace-relative path.
func (uc *ExecuteItem) matchScript(rel string) (domain.ScriptRule, bool) {
	slashed := filepath.ToSlash(rel)
	for _, rule := range uc.scripts {
		if ok, err := doublestar.Match(rule.Pattern, slashed); err == nil && ok {
			return rule, true
		}
	}
	return domain.ScriptRule{}, false
}

// runScript runs a written file. Failures are logged and never fail the item.
func (uc *ExecuteItem) runScript(ctx context.Context, taskID string, rule domain.ScriptRule, root, rel string) *ScriptRun {
	cmd := domain.NewInterpreterCommand(rule.Interpreter, rel, root)
	run := &ScriptRun{Command: cmd}
	if cmd == nil {
		uc.logger.Warn(taskID, "script", fmt.Sprintf("no interpreter configured for %s", rel))
		return run
	}

	res, err := uc.executor.Execute(ctx, cmd)
	if err != nil {
		run.Err = err
		uc.logger.Error(taskID, "script", fmt.Sprintf("run %s: %v", rel, err))
		return run
	}

	run.ExitCode = res.ExitCode
	output := strings.TrimSpace(string(res.Output))
	if res.ExitCode != 0 {
		uc.logger.Warn(taskID, "script", fmt.Sprintf("%s exited with code %d: %s", rel, res.ExitCode, output))
		return run
	}
	uc.logger.Info(taskID, "script", fmt.Sprintf("%s ran successfully", rel))
	if output != "" {
		uc.logger.Debug(taskID, "script", output)
	}
	return run
}

// ResolveWorkspacePath cleans path relative to workspaceDir and returns the
// cleaned root and the workspace-relative path. Leading separators are
// treated as workspace-relative; paths that climb out of the root fail with
// domain.ErrPathOutsideWorkspace, as do paths naming the root itself.
func ResolveWorkspacePath(workspaceDir, path string) (root, rel string, err error) {
	root, err = filepath.Abs(workspaceDir)
	if err != nil {
		return "", "", fmt.Errorf("resolve workspace: %w", err)
	}
	target := filepath.Join(root, path)
	rel, err = filepath.Rel(root, target)
	if err != nil {
		return "", "", fmt.Errorf("%w: %s", domain.ErrPathOutsideWorkspace, path)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("%w: %s", domain.ErrPathOutsideWorkspace, path)
	}
	return root, rel, nil
}
