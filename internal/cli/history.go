package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/runoshun/crew-agent/internal/app"
	"github.com/runoshun/crew-agent/internal/domain"
	"github.com/runoshun/crew-agent/internal/usecase"
)

// Output formats accepted by --format.
const (
	formatText = "text"
	formatYAML = "yaml"
	formatJSON = "json"
	formatTOML = "toml"
)

// historyView is the structured form of the history command output.
type historyView struct {
	TaskID   string               `json:"taskId" yaml:"taskId"`
	Messages []domain.ChatMessage `json:"messages" yaml:"messages"`
	Items    int                  `json:"items" yaml:"items"`
}

// newHistoryCommand creates the history command.
func newHistoryCommand(opts *app.Options) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "history <task-id>",
		Short: "Show the chat history the planner sees for a task",
		Long: `Fetch a task's items from the backend and print the chat history
rebuilt from them, in the same order the planner receives it.

Examples:
  crew-agent history 4f1c2a
  crew-agent history 4f1c2a --format yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case formatText, formatYAML, formatJSON:
			default:
				return fmt.Errorf("unknown format %q (use text, yaml or json)", format)
			}

			c, err := buildContainer(cmd.Context(), opts, nil)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close(cmd.Context()) }()

			out, err := c.ShowHistoryUseCase().Execute(cmd.Context(), usecase.ShowHistoryInput{TaskID: args[0]})
			if err != nil {
				return err
			}

			view := historyView{TaskID: args[0], Items: len(out.Items), Messages: out.History}
			return writeHistory(cmd.OutOrStdout(), format, view)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatText, "Output format: text, yaml or json")

	return cmd
}

func writeHistory(w io.Writer, format string, view historyView) error {
	switch format {
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(view); err != nil {
			return err
		}
		return enc.Close()
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}

	_, _ = fmt.Fprintf(w, "Task %s: %d items, %d messages\n", view.TaskID, view.Items, len(view.Messages))
	for i, msg := range view.Messages {
		_, _ = fmt.Fprintf(w, "\n[%d] %s\n", i+1, msg.Role)
		if msg.Content != "" {
			_, _ = fmt.Fprintln(w, indent(msg.Content))
		}
		for _, call := range msg.ToolCalls {
			_, _ = fmt.Fprintf(w, "    tool %s%s\n", call.Name, formatParams(call.Parameters))
		}
	}
	return nil
}

func indent(s string) string {
	return "    " + strings.ReplaceAll(s, "\n", "\n    ")
}

// formatParams renders tool parameters in a stable key order.
func formatParams(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return " (" + strings.Join(parts, ", ") + ")"
}
