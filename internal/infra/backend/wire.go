package backend

import (
	"time"

	"github.com/runoshun/crew-agent/internal/domain"
)

// wireItem is the JSON shape of a task item on the backend API.
type wireItem struct {
	CreatedAt      *time.Time     `json:"createdAt,omitempty"`
	ToolParameters map[string]any `json:"toolParameters,omitempty"`
	ToolResponse   map[string]any `json:"toolResponse,omitempty"`
	ID             string         `json:"id,omitempty"`
	TaskID         string         `json:"taskId,omitempty"`
	Type           string         `json:"type,omitempty"`
	Title          string         `json:"title,omitempty"`
	Content        string         `json:"content,omitempty"`
	ChatResponse   string         `json:"chatResponse,omitempty"`
	ToolName       string         `json:"toolName,omitempty"`
	FilePath       string         `json:"filePath,omitempty"`
	FileContent    string         `json:"fileContent,omitempty"`
}

// toDomain converts a wire item into the tagged domain representation.
// The tool record is kept for every type. A record without a recognised
// type but with a tool name is a tool call.
func (w wireItem) toDomain() domain.TaskItem {
	item := domain.TaskItem{
		ID:           w.ID,
		TaskID:       w.TaskID,
		Title:        w.Title,
		Content:      w.Content,
		ChatResponse: w.ChatResponse,
	}
	if w.CreatedAt != nil {
		item.CreatedAt = *w.CreatedAt
	}
	if w.ToolName != "" {
		call := w.toolCall()
		item.Tool = &call
	}

	switch domain.ItemType(w.Type) {
	case domain.ItemTypePlanning:
		item.Payload = domain.Planning{}
	case domain.ItemTypeFileCreation:
		content := w.FileContent
		if content == "" {
			content = w.Content
		}
		item.Payload = domain.FileCreation{Path: w.FilePath, Content: content}
	case domain.ItemTypeCompletion:
		item.Payload = domain.Completion{}
	case domain.ItemTypeToolCall:
		item.Payload = w.toolCall()
	default:
		if w.ToolName != "" {
			item.Payload = w.toolCall()
		} else {
			item.Payload = domain.Unknown{Type: w.Type}
		}
	}
	return item
}

func (w wireItem) toolCall() domain.ToolCall {
	return domain.ToolCall{
		Name:       w.ToolName,
		Parameters: w.ToolParameters,
		Response:   w.ToolResponse,
	}
}

// fromDraft builds the request body for creating an item.
// Tool calls carry no type; the backend infers it from the tool fields.
func fromDraft(taskID string, d domain.NewItemDraft) wireItem {
	w := wireItem{
		TaskID:       taskID,
		Title:        d.Title,
		Content:      d.Content,
		ChatResponse: d.ChatResponse,
	}
	if d.Tool != nil {
		w.ToolName = d.Tool.Name
		w.ToolParameters = d.Tool.Parameters
		w.ToolResponse = d.Tool.Response
	}
	switch p := d.Payload.(type) {
	case nil, domain.ToolCall:
	case domain.FileCreation:
		w.Type = string(p.ItemType())
		w.FilePath = p.Path
		w.FileContent = p.Content
	default:
		w.Type = string(p.ItemType())
	}
	return w
}
