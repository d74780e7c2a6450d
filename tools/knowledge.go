package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/quillmind/quill/core"
	"github.com/quillmind/quill/knowledge"
)

const (
	searchResults    = 3
	snippetLimit     = 300
	noResultsMessage = "no relevant information found in the knowledge base"
)

// KnowledgeSearch lets the model query the global knowledge base on demand,
// independent of the retrieval that runs before the turn.
type KnowledgeSearch struct {
	retriever *knowledge.Retriever
}

// NewKnowledgeSearch returns the knowledge search tool.
func NewKnowledgeSearch(retriever *knowledge.Retriever) *KnowledgeSearch {
	return &KnowledgeSearch{retriever: retriever}
}

func (k *KnowledgeSearch) Definition() core.ToolDefinition {
	return core.ToolDefinition{
		Name:        "search_knowledge_base",
		Description: "Search the knowledge base for information relevant to a query. Use this when the user asks about topics that may be covered by stored documents.",
		InputSchema: ObjectSchema(map[string]any{
			"query": StringProperty("What to search for"),
		}, "query"),
	}
}

func (k *KnowledgeSearch) Execute(ctx context.Context, _ *core.ToolContext, input json.RawMessage) (string, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("parse search input: %w", err)
	}
	if strings.TrimSpace(args.Query) == "" {
		return noResultsMessage, nil
	}

	hits, err := k.retriever.SearchGlobal(ctx, args.Query, searchResults)
	if err != nil {
		return "", fmt.Errorf("knowledge search: %w", err)
	}
	if len(hits) == 0 {
		return noResultsMessage, nil
	}

	var b strings.Builder
	for i, hit := range hits {
		if i > 0 {
			b.WriteString("\n\n")
		}
		source := hit.Metadata["filename"]
		if source == "" {
			source = "unknown"
		}
		fmt.Fprintf(&b, "[%d] (source: %s)\n%s", i+1, source, snippet(hit.Content))
	}
	return b.String(), nil
}

func snippet(s string) string {
	runes := []rune(s)
	if len(runes) <= snippetLimit {
		return s
	}
	return string(runes[:snippetLimit]) + "..."
}
