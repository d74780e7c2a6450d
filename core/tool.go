package core

import (
	"context"
	"encoding/json"
)

// ToolDefinition describes a tool to the model.
type ToolDefinition struct {
	Name        string
	Description string

	// InputSchema is a JSON Schema object describing the tool's input.
	InputSchema map[string]any
}

// ToolContext is the per-turn state threaded to tools at call time. It is
// created fresh for every turn; tools must not retain it. The image travels
// here explicitly so that concurrent turns for different sessions can never
// observe each other's uploads.
type ToolContext struct {
	SessionID   string
	ImageBase64 string
}

// Tool is a named capability the agent can invoke during a conversation.
//
// Execute returns the tool's output as text for the model. Recoverable
// domain errors (a malformed expression, a missing image) should be reported
// in the returned string rather than as an error; a non-nil error marks the
// invocation as failed but never aborts the turn.
type Tool interface {
	Definition() ToolDefinition
	Execute(ctx context.Context, tc *ToolContext, input json.RawMessage) (string, error)
}
