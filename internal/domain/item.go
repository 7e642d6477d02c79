package domain

import (
	"sort"
	"time"
)

// ItemType identifies the kind of a task item.
type ItemType string

const (
	ItemTypePlanning     ItemType = "planning"
	ItemTypeFileCreation ItemType = "file_creation"
	ItemTypeCompletion   ItemType = "completion"
	ItemTypeToolCall     ItemType = "tool_call"
)

// TaskItem is an append-only record of one step within a task's execution.
// Fields shared by every kind live on TaskItem; kind-specific fields live in Payload.
// Tool is set whenever the record names a tool, whatever its kind.
// Fields are ordered to minimize memory padding.
type TaskItem struct {
	CreatedAt    time.Time
	Payload      ItemPayload
	Tool         *ToolCall
	ID           string
	TaskID       string
	Title        string
	Content      string
	ChatResponse string
}

// ItemPayload is the kind-specific part of a TaskItem.
// Implementations: Planning, FileCreation, Completion, ToolCall, Unknown.
type ItemPayload interface {
	ItemType() ItemType
	isItemPayload()
}

// Planning is a planning note or planner response.
type Planning struct{}

// FileCreation asks the agent to write a file into the workspace.
type FileCreation struct {
	Path    string // Path relative to the workspace root
	Content string // File content; literal `\n` sequences become line breaks
}

// Completion is an informational completion note.
type Completion struct{}

// ToolCall records a tool invocation and its outcome.
type ToolCall struct {
	Parameters map[string]any `json:"parameters" yaml:"parameters"`
	Response   map[string]any `json:"response" yaml:"response"`
	Name       string         `json:"name" yaml:"name"`
}

// Unknown is an item whose declared type the agent does not recognise.
type Unknown struct {
	Type string
}

func (Planning) ItemType() ItemType     { return ItemTypePlanning }
func (FileCreation) ItemType() ItemType { return ItemTypeFileCreation }
func (Completion) ItemType() ItemType   { return ItemTypeCompletion }
func (ToolCall) ItemType() ItemType     { return ItemTypeToolCall }
func (u Unknown) ItemType() ItemType    { return ItemType(u.Type) }

func (Planning) isItemPayload()     {}
func (FileCreation) isItemPayload() {}
func (Completion) isItemPayload()   {}
func (ToolCall) isItemPayload()     {}
func (Unknown) isItemPayload()      {}

// NewItemDraft is a task item that has not been persisted yet.
// The backend assigns ID and CreatedAt.
type NewItemDraft struct {
	Payload      ItemPayload
	Tool         *ToolCall
	Title        string
	Content      string
	ChatResponse string
}

// SortItems returns a copy of items ordered by creation time.
// Equal timestamps are ordered by ID so the result does not depend on input order.
func SortItems(items []TaskItem) []TaskItem {
	sorted := make([]TaskItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return sorted
}
