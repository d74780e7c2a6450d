package tools_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillmind/quill/core"
	"github.com/quillmind/quill/knowledge"
	"github.com/quillmind/quill/knowledge/embedder/mock"
	"github.com/quillmind/quill/tools"
)

func TestClock(t *testing.T) {
	out, err := tools.NewClock().Execute(context.Background(), nil, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "current time:"))
}

func TestWeatherIsSimulated(t *testing.T) {
	out, err := tools.NewWeather().Execute(context.Background(), nil,
		json.RawMessage(`{"city": "Berlin"}`))
	require.NoError(t, err)
	assert.Contains(t, out, "Berlin")
	assert.Contains(t, out, "simulated")
}

func TestImageAnalysisWithoutImage(t *testing.T) {
	tool := tools.NewImageAnalysis(nil)
	out, err := tool.Execute(context.Background(),
		&core.ToolContext{SessionID: "s1"},
		json.RawMessage(`{"question": "what is this?"}`))
	require.NoError(t, err)
	assert.Equal(t, "no image is attached to the current message", out)
}

func TestKnowledgeSearch(t *testing.T) {
	ctx := context.Background()
	store, err := knowledge.NewStore("", mock.New(32), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, store.AddRecords(ctx, knowledge.GlobalPartition,
		[]string{"the deployment runbook lives in the wiki"},
		[]map[string]string{{"filename": "runbook.md"}}, nil))

	tool := tools.NewKnowledgeSearch(knowledge.NewRetriever(store, zerolog.Nop()))

	out, err := tool.Execute(ctx, nil, json.RawMessage(`{"query": "deployment runbook"}`))
	require.NoError(t, err)
	assert.Contains(t, out, "runbook.md")
	assert.Contains(t, out, "deployment runbook")
}

func TestKnowledgeSearchNoResults(t *testing.T) {
	store, err := knowledge.NewStore("", mock.New(32), zerolog.Nop())
	require.NoError(t, err)
	tool := tools.NewKnowledgeSearch(knowledge.NewRetriever(store, zerolog.Nop()))

	out, err := tool.Execute(context.Background(), nil, json.RawMessage(`{"query": "anything"}`))
	require.NoError(t, err)
	assert.Equal(t, "no relevant information found in the knowledge base", out)
}
