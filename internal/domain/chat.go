package domain

import "fmt"

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one entry of a task's chat history.
// It is derived from task items and never persisted by the agent.
type ChatMessage struct {
	Role      Role       `json:"role" yaml:"role"`
	Content   string     `json:"content" yaml:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty" yaml:"tool_calls,omitempty"`
}

// UserMessage returns a user message with the given content.
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

// AssistantMessage returns an assistant message with the given content.
func AssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content}
}

// BuildChatHistory rebuilds the conversation for a task from its items.
// Items are processed in creation order; each item may contribute, in order:
//   - a user message with its content, if it is a planning item with content
//   - an assistant message with its chat response, if any
//   - an assistant message carrying the tool call, if it names a tool
//
// The function is pure: the same set of items always yields the same history.
func BuildChatHistory(items []TaskItem) []ChatMessage {
	history := make([]ChatMessage, 0, len(items))
	for _, item := range SortItems(items) {
		if _, ok := item.Payload.(Planning); ok && item.Content != "" {
			history = append(history, UserMessage(item.Content))
		}

		if item.ChatResponse != "" {
			history = append(history, AssistantMessage(item.ChatResponse))
		}

		if item.Tool != nil {
			history = append(history, ChatMessage{
				Role:      RoleAssistant,
				Content:   fmt.Sprintf("I'll use the %s tool.", item.Tool.Name),
				ToolCalls: []ToolCall{normalizeToolCall(*item.Tool)},
			})
		}
	}
	return history
}

func normalizeToolCall(call ToolCall) ToolCall {
	out := ToolCall{
		Name:       call.Name,
		Parameters: make(map[string]any, len(call.Parameters)),
		Response:   make(map[string]any, len(call.Response)),
	}
	for k, v := range call.Parameters {
		out.Parameters[k] = v
	}
	for k, v := range call.Response {
		out.Response[k] = v
	}
	return out
}
