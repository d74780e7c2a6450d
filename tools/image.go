package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/quillmind/quill/core"
)

// ImageAnalysis answers questions about the image attached to the current
// turn. The image comes from the tool context, never from the model's input.
type ImageAnalysis struct {
	vision core.VisionModel
}

// NewImageAnalysis returns the image analysis tool.
func NewImageAnalysis(vision core.VisionModel) *ImageAnalysis {
	return &ImageAnalysis{vision: vision}
}

func (t *ImageAnalysis) Definition() core.ToolDefinition {
	return core.ToolDefinition{
		Name:        "analyze_image",
		Description: "Analyze the image the user attached to this message. Provide the question you want answered about the image.",
		InputSchema: ObjectSchema(map[string]any{
			"question": StringProperty("What to look for or describe in the image"),
		}, "question"),
	}
}

func (t *ImageAnalysis) Execute(ctx context.Context, tc *core.ToolContext, input json.RawMessage) (string, error) {
	var args struct {
		Question string `json:"question"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("parse image analysis input: %w", err)
	}

	if tc == nil || tc.ImageBase64 == "" {
		return "no image is attached to the current message", nil
	}
	if args.Question == "" {
		args.Question = "Describe this image in detail."
	}

	answer, err := t.vision.AnalyzeImage(ctx, tc.ImageBase64, args.Question)
	if err != nil {
		return "", fmt.Errorf("analyze image: %w", err)
	}
	return answer, nil
}
