package core

import "encoding/json"

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"

	// RoleTool carries tool results back to the model. Messages with this
	// role exist only inside a running turn and are never persisted.
	RoleTool Role = "tool"
)

// Message is one entry in a conversation.
//
// Plain user/assistant/system messages carry only Content. During a turn the
// agent loop also produces assistant messages with ToolCalls and RoleTool
// messages with ToolResults; those are ephemeral turn state.
type Message struct {
	Role        Role
	Content     string
	ToolCalls   []ToolRequest
	ToolResults []ToolResult
}

// ToolRequest is a structured tool invocation requested by the model.
type ToolRequest struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResult is the outcome of one tool invocation, fed back to the model.
type ToolResult struct {
	ID      string
	Content string
	IsError bool
}
