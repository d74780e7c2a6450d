package core

import "context"

// CompletionRequest is one model invocation.
type CompletionRequest struct {
	System    string
	Messages  []Message
	Tools     []ToolDefinition
	MaxTokens int
}

// Completion is the model's response to one invocation. A non-empty
// ToolCalls slice means the model is requesting tool execution before it can
// produce a final answer.
type Completion struct {
	Text      string
	ToolCalls []ToolRequest
}

// ChatModel is the completion capability the agent loop runs against.
type ChatModel interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)

	// CompleteStream behaves like Complete but additionally invokes onDelta
	// for each text fragment as it arrives. The returned Completion holds
	// the fully accumulated response.
	CompleteStream(ctx context.Context, req CompletionRequest, onDelta func(text string)) (*Completion, error)
}

// VisionModel analyzes an image (base64-encoded, optionally a data URL) and
// answers a question about it.
type VisionModel interface {
	AnalyzeImage(ctx context.Context, imageBase64, question string) (string, error)
}
