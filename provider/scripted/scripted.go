// Package scripted provides a deterministic in-process model for tests and
// examples. It replays a queue of prepared completions.
package scripted

import (
	"context"
	"fmt"
	"sync"

	"github.com/quillmind/quill/core"
)

// Model replays completions in order. It records every request it receives.
type Model struct {
	mu       sync.Mutex
	steps    []*core.Completion
	requests []core.CompletionRequest

	// VisionAnswer is returned by AnalyzeImage.
	VisionAnswer string
}

// New creates a model that replays the given completions.
func New(steps ...*core.Completion) *Model {
	return &Model{steps: steps}
}

// Enqueue appends another completion to the script.
func (m *Model) Enqueue(c *core.Completion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, c)
}

// Requests returns the requests seen so far.
func (m *Model) Requests() []core.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// Complete pops the next scripted completion.
func (m *Model) Complete(_ context.Context, req core.CompletionRequest) (*core.Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	if len(m.steps) == 0 {
		return nil, fmt.Errorf("scripted model: no completions left")
	}
	next := m.steps[0]
	m.steps = m.steps[1:]
	return next, nil
}

// CompleteStream pops the next scripted completion, delivering its text as a
// single delta.
func (m *Model) CompleteStream(ctx context.Context, req core.CompletionRequest, onDelta func(string)) (*core.Completion, error) {
	completion, err := m.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if onDelta != nil && completion.Text != "" {
		onDelta(completion.Text)
	}
	return completion, nil
}

// AnalyzeImage returns the configured vision answer.
func (m *Model) AnalyzeImage(context.Context, string, string) (string, error) {
	if m.VisionAnswer == "" {
		return "a scripted image description", nil
	}
	return m.VisionAnswer, nil
}
