// Package anthropic adapts the Anthropic Messages API to the core model
// interfaces.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/quillmind/quill/core"
)

const defaultMaxTokens = 4096

// Model is a chat and vision model backed by the Anthropic API.
type Model struct {
	client anthropic.Client
	model  anthropic.Model
}

// New creates a model. An empty model name falls back to Claude Sonnet.
func New(apiKey, model string) *Model {
	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_20250514)
	}
	return &Model{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}
}

// Complete performs a single non-streaming model call.
func (m *Model) Complete(ctx context.Context, req core.CompletionRequest) (*core.Completion, error) {
	params, err := m.buildParams(req)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	return completionFromMessage(resp), nil
}

// CompleteStream performs a streaming model call, forwarding text deltas to
// onDelta. Tool use blocks are accumulated and returned with the completion.
func (m *Model) CompleteStream(ctx context.Context, req core.CompletionRequest, onDelta func(string)) (*core.Completion, error) {
	params, err := m.buildParams(req)
	if err != nil {
		return nil, err
	}

	stream := m.client.Messages.NewStreaming(ctx, params)
	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return nil, fmt.Errorf("anthropic stream accumulate: %w", err)
		}
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && onDelta != nil {
				onDelta(delta.Text)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic stream: %w", err)
	}
	return completionFromMessage(&message), nil
}

// AnalyzeImage sends a base64 image with a question and returns the model's
// text answer.
func (m *Model) AnalyzeImage(ctx context.Context, imageBase64, question string) (string, error) {
	mediaType, data := splitDataURL(imageBase64)

	resp, err := m.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     m.model,
		MaxTokens: defaultMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(mediaType, data),
				anthropic.NewTextBlock(question),
			),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic vision: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}

func (m *Model) buildParams(req core.CompletionRequest) (anthropic.MessageNewParams, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     m.model,
		MaxTokens: int64(maxTokens),
	}

	var system strings.Builder
	if req.System != "" {
		system.WriteString(req.System)
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case core.RoleSystem:
			// The API takes system text out of band.
			if system.Len() > 0 {
				system.WriteString("\n\n")
			}
			system.WriteString(msg.Content)
		case core.RoleUser:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case core.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				var input any
				if len(call.Input) > 0 {
					if err := json.Unmarshal(call.Input, &input); err != nil {
						return params, fmt.Errorf("decode tool input for %s: %w", call.Name, err)
					}
				} else {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, input, call.Name))
			}
			if len(blocks) > 0 {
				params.Messages = append(params.Messages, anthropic.NewAssistantMessage(blocks...))
			}
		case core.RoleTool:
			var blocks []anthropic.ContentBlockParamUnion
			for _, res := range msg.ToolResults {
				blocks = append(blocks, anthropic.NewToolResultBlock(res.ID, res.Content, res.IsError))
			}
			if len(blocks) > 0 {
				params.Messages = append(params.Messages, anthropic.NewUserMessage(blocks...))
			}
		}
	}

	if system.Len() > 0 {
		params.System = []anthropic.TextBlockParam{{Text: system.String()}}
	}

	for _, def := range req.Tools {
		params.Tools = append(params.Tools, toolParam(def))
	}
	return params, nil
}

func toolParam(def core.ToolDefinition) anthropic.ToolUnionParam {
	p := anthropic.ToolParam{
		Name:        def.Name,
		Description: anthropic.String(def.Description),
	}
	if props, ok := def.InputSchema["properties"]; ok {
		p.InputSchema.Properties = props
	}
	if required, ok := def.InputSchema["required"].([]string); ok {
		p.InputSchema.Required = required
	}
	return anthropic.ToolUnionParam{OfTool: &p}
}

func completionFromMessage(msg *anthropic.Message) *core.Completion {
	out := &core.Completion{}
	var text strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, core.ToolRequest{
				ID:    block.ID,
				Name:  block.Name,
				Input: json.RawMessage(block.Input),
			})
		}
	}
	out.Text = text.String()
	return out
}

// splitDataURL separates an optional data URL prefix from the base64
// payload, defaulting the media type to PNG.
func splitDataURL(s string) (mediaType, data string) {
	mediaType = "image/png"
	data = s
	if !strings.HasPrefix(s, "data:") {
		return mediaType, data
	}
	rest := strings.TrimPrefix(s, "data:")
	semi := strings.Index(rest, ";base64,")
	if semi < 0 {
		return mediaType, data
	}
	if mt := rest[:semi]; mt != "" {
		mediaType = mt
	}
	data = rest[semi+len(";base64,"):]
	return mediaType, data
}
