// Package engine runs the agent's reasoning loop: it alternates between
// model calls and tool execution until the model produces a final answer.
package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quillmind/quill/core"
)

// state is a phase of the reasoning loop.
type state int

const (
	stateModelCall state = iota
	stateToolExec
	stateDone
)

const (
	// maxIterations bounds the number of model calls per turn.
	maxIterations = 8

	// toolLogLimit caps tool output in the turn's call log.
	toolLogLimit = 500
)

// ToolCallRecord is one tool invocation from a completed turn.
type ToolCallRecord struct {
	ToolName   string          `json:"tool_name"`
	ToolInput  json.RawMessage `json:"tool_input"`
	ToolOutput string          `json:"tool_output"`
}

// Input is one turn's worth of work.
type Input struct {
	// History is the prior conversation, oldest first.
	History []core.Message

	// Prompt is the user message for this turn, possibly augmented with
	// retrieved context.
	Prompt string

	// ToolContext carries per-turn state available to tools.
	ToolContext *core.ToolContext

	// UseTools exposes the registry to the model when true.
	UseTools bool

	// OnDelta, when set, receives text fragments of the final answer as
	// they stream from the model.
	OnDelta func(text string)
}

// Output is the result of a completed turn.
type Output struct {
	Text      string
	ToolCalls []ToolCallRecord
}

// Engine drives the model/tool loop.
type Engine struct {
	model     core.ChatModel
	registry  *ToolRegistry
	system    string
	maxTokens int
	log       zerolog.Logger
}

// New creates an engine. registry may be empty but not nil.
func New(model core.ChatModel, registry *ToolRegistry, system string, maxTokens int, log zerolog.Logger) *Engine {
	return &Engine{
		model:     model,
		registry:  registry,
		system:    system,
		maxTokens: maxTokens,
		log:       log.With().Str("component", "engine").Logger(),
	}
}

// Run executes one turn. It returns when the model answers without
// requesting tools, when tools are disabled, or with an error when the
// iteration cap is hit or the context is cancelled.
func (e *Engine) Run(ctx context.Context, in Input) (*Output, error) {
	messages := make([]core.Message, 0, len(in.History)+1)
	messages = append(messages, in.History...)
	messages = append(messages, core.Message{Role: core.RoleUser, Content: in.Prompt})

	var tools []core.ToolDefinition
	if in.UseTools {
		tools = e.registry.Definitions()
	}

	out := &Output{}
	var completion *core.Completion
	current := stateModelCall
	iterations := 0

	for current != stateDone {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch current {
		case stateModelCall:
			if iterations >= maxIterations {
				return nil, fmt.Errorf("reasoning loop exceeded %d iterations", maxIterations)
			}
			iterations++

			req := core.CompletionRequest{
				System:    e.system,
				Messages:  messages,
				Tools:     tools,
				MaxTokens: e.maxTokens,
			}

			var err error
			completion, err = e.complete(ctx, req, in.OnDelta)
			if err != nil {
				return nil, fmt.Errorf("model call: %w", err)
			}

			if !in.UseTools || len(completion.ToolCalls) == 0 {
				out.Text = completion.Text
				current = stateDone
				continue
			}
			current = stateToolExec

		case stateToolExec:
			assistant := core.Message{
				Role:      core.RoleAssistant,
				Content:   completion.Text,
				ToolCalls: completion.ToolCalls,
			}
			results := core.Message{Role: core.RoleTool}

			for _, call := range completion.ToolCalls {
				content, isError := e.executeTool(ctx, call, in.ToolContext)
				results.ToolResults = append(results.ToolResults, core.ToolResult{
					ID:      call.ID,
					Content: content,
					IsError: isError,
				})
				out.ToolCalls = append(out.ToolCalls, ToolCallRecord{
					ToolName:   call.Name,
					ToolInput:  normalizeInput(call.Input),
					ToolOutput: truncate(content, toolLogLimit),
				})
			}

			messages = append(messages, assistant, results)
			current = stateModelCall
		}
	}

	return out, nil
}

func (e *Engine) complete(ctx context.Context, req core.CompletionRequest, onDelta func(string)) (*core.Completion, error) {
	if onDelta != nil {
		return e.model.CompleteStream(ctx, req, onDelta)
	}
	return e.model.Complete(ctx, req)
}

// executeTool runs one requested tool. Failures become result content so the
// model can see them and recover; they never abort the turn.
func (e *Engine) executeTool(ctx context.Context, call core.ToolRequest, tc *core.ToolContext) (string, bool) {
	tool, ok := e.registry.Get(call.Name)
	if !ok {
		e.log.Warn().Str("tool", call.Name).Msg("model requested unknown tool")
		return fmt.Sprintf("tool not found: %s", call.Name), true
	}

	e.log.Debug().Str("tool", call.Name).RawJSON("input", normalizeInput(call.Input)).Msg("executing tool")
	content, err := tool.Execute(ctx, tc, call.Input)
	if err != nil {
		e.log.Warn().Err(err).Str("tool", call.Name).Msg("tool execution failed")
		return fmt.Sprintf("tool execution error: %v", err), true
	}
	return content, false
}

func normalizeInput(input json.RawMessage) json.RawMessage {
	if len(input) == 0 {
		return json.RawMessage("{}")
	}
	return input
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
