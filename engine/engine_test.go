package engine_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillmind/quill/core"
	"github.com/quillmind/quill/engine"
	"github.com/quillmind/quill/provider/scripted"
	"github.com/quillmind/quill/tools"
)

// echoTool returns a fixed payload, used to exercise the loop without real
// tool logic.
type echoTool struct {
	name   string
	output string
}

func (e echoTool) Definition() core.ToolDefinition {
	return core.ToolDefinition{
		Name:        e.name,
		Description: "test tool",
		InputSchema: tools.ObjectSchema(map[string]any{}),
	}
}

func (e echoTool) Execute(context.Context, *core.ToolContext, json.RawMessage) (string, error) {
	return e.output, nil
}

func toolCall(id, name, input string) *core.Completion {
	return &core.Completion{ToolCalls: []core.ToolRequest{{
		ID:    id,
		Name:  name,
		Input: json.RawMessage(input),
	}}}
}

func newEngine(model core.ChatModel, reg *engine.ToolRegistry) *engine.Engine {
	return engine.New(model, reg, "You are a test assistant.", 1024, zerolog.Nop())
}

func TestRunDirectAnswer(t *testing.T) {
	model := scripted.New(&core.Completion{Text: "direct answer"})
	eng := newEngine(model, engine.NewToolRegistry())

	out, err := eng.Run(context.Background(), engine.Input{
		Prompt:   "question",
		UseTools: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "direct answer", out.Text)
	assert.Empty(t, out.ToolCalls)
}

func TestRunToolLoop(t *testing.T) {
	model := scripted.New(
		toolCall("call_1", "calculator", `{"expression": "6 * 7"}`),
		&core.Completion{Text: "the answer is 42"},
	)
	reg := engine.NewToolRegistry()
	reg.Register(tools.NewCalculator())
	eng := newEngine(model, reg)

	out, err := eng.Run(context.Background(), engine.Input{
		Prompt:   "what is 6 * 7?",
		UseTools: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "the answer is 42", out.Text)
	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, "calculator", out.ToolCalls[0].ToolName)
	assert.Equal(t, "42", out.ToolCalls[0].ToolOutput)

	// The second model call must carry the tool result back.
	reqs := model.Requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, core.RoleTool, last.Role)
	require.Len(t, last.ToolResults, 1)
	assert.Equal(t, "42", last.ToolResults[0].Content)
	assert.False(t, last.ToolResults[0].IsError)
}

func TestRunUnknownTool(t *testing.T) {
	model := scripted.New(
		toolCall("call_1", "does_not_exist", `{}`),
		&core.Completion{Text: "recovered"},
	)
	eng := newEngine(model, engine.NewToolRegistry())

	out, err := eng.Run(context.Background(), engine.Input{Prompt: "go", UseTools: true})
	require.NoError(t, err)
	assert.Equal(t, "recovered", out.Text)
	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, "tool not found: does_not_exist", out.ToolCalls[0].ToolOutput)

	// The failure is surfaced to the model as an error result.
	reqs := model.Requests()
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.True(t, last.ToolResults[0].IsError)
}

func TestRunToolsDisabled(t *testing.T) {
	// The model asks for a tool anyway; with tools disabled the text is
	// taken as the final answer.
	model := scripted.New(&core.Completion{
		Text:      "answering without tools",
		ToolCalls: []core.ToolRequest{{ID: "call_1", Name: "calculator"}},
	})
	reg := engine.NewToolRegistry()
	reg.Register(tools.NewCalculator())
	eng := newEngine(model, reg)

	out, err := eng.Run(context.Background(), engine.Input{Prompt: "hi", UseTools: false})
	require.NoError(t, err)
	assert.Equal(t, "answering without tools", out.Text)
	assert.Empty(t, out.ToolCalls)

	// No tool definitions are offered to the model either.
	assert.Empty(t, model.Requests()[0].Tools)
}

func TestRunIterationCap(t *testing.T) {
	model := scripted.New()
	for i := 0; i < 10; i++ {
		model.Enqueue(toolCall("call_x", "echo", `{}`))
	}
	reg := engine.NewToolRegistry()
	reg.Register(echoTool{name: "echo", output: "again"})
	eng := newEngine(model, reg)

	_, err := eng.Run(context.Background(), engine.Input{Prompt: "loop", UseTools: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeded 8 iterations")
}

func TestToolOutputTruncatedInLog(t *testing.T) {
	long := strings.Repeat("x", 1200)
	model := scripted.New(
		toolCall("call_1", "echo", `{}`),
		&core.Completion{Text: "done"},
	)
	reg := engine.NewToolRegistry()
	reg.Register(echoTool{name: "echo", output: long})
	eng := newEngine(model, reg)

	out, err := eng.Run(context.Background(), engine.Input{Prompt: "go", UseTools: true})
	require.NoError(t, err)
	require.Len(t, out.ToolCalls, 1)
	assert.Len(t, out.ToolCalls[0].ToolOutput, 500)

	// The model still receives the full output.
	last := model.Requests()[1].Messages[len(model.Requests()[1].Messages)-1]
	assert.Len(t, last.ToolResults[0].Content, 1200)
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng := newEngine(scripted.New(), engine.NewToolRegistry())
	_, err := eng.Run(ctx, engine.Input{Prompt: "hi", UseTools: true})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegistryDefinitionsSorted(t *testing.T) {
	reg := engine.NewToolRegistry()
	reg.Register(echoTool{name: "zebra"})
	reg.Register(echoTool{name: "alpha"})
	reg.Register(echoTool{name: "midway"})

	defs := reg.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, "alpha", defs[0].Name)
	assert.Equal(t, "midway", defs[1].Name)
	assert.Equal(t, "zebra", defs[2].Name)
}
