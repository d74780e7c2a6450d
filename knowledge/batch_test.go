package knowledge_test

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillmind/quill/knowledge"
	"github.com/quillmind/quill/knowledge/embedder/mock"
)

// batchFailingEmbedder fails every batch call while single embeds keep
// working, the shape of a provider whose bulk endpoint is down.
type batchFailingEmbedder struct {
	inner *mock.Embedder
}

func (e batchFailingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.inner.Embed(ctx, text)
}

func (e batchFailingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, fmt.Errorf("bulk endpoint down")
}

func (e batchFailingEmbedder) Dimensions() int { return e.inner.Dimensions() }
func (e batchFailingEmbedder) Model() string   { return e.inner.Model() }

// poisonGroupEmbedder fails only for groups containing a marked text.
type poisonGroupEmbedder struct {
	inner *mock.Embedder
}

func (e poisonGroupEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.inner.Embed(ctx, text)
}

func (e poisonGroupEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for _, text := range texts {
		if strings.Contains(text, "poison") {
			return nil, fmt.Errorf("bad group")
		}
	}
	return e.inner.EmbedBatch(ctx, texts)
}

func (e poisonGroupEmbedder) Dimensions() int { return e.inner.Dimensions() }
func (e poisonGroupEmbedder) Model() string   { return e.inner.Model() }

func TestBatchPreservesOrderAcrossGroups(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	// Well past one group of 25, so reassembly spans several workers.
	texts := make([]string, 60)
	for i := range texts {
		texts[i] = fmt.Sprintf("ordered fact number %d", i)
	}
	require.NoError(t, store.AddRecords(ctx, knowledge.GlobalPartition, texts, nil, nil))
	require.Equal(t, 60, store.Count(knowledge.GlobalPartition))

	hits, err := store.Query(ctx, knowledge.GlobalPartition, "ordered fact number 42", 60, nil)
	require.NoError(t, err)
	require.Len(t, hits, 60)

	// Identical text ranks first, proving its embedding was not swapped
	// with another group's.
	assert.Equal(t, "ordered fact number 42", hits[0].Content)

	// Every record's synthetic id must match its input position.
	for _, h := range hits {
		var n int
		_, err := fmt.Sscanf(h.Content, "ordered fact number %d", &n)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("doc_%d", n), h.ID)
	}
}

func TestBatchZeroesOnlyTheFailedGroup(t *testing.T) {
	ctx := context.Background()
	store, err := knowledge.NewStore("", poisonGroupEmbedder{inner: mock.New(32)}, zerolog.Nop())
	require.NoError(t, err)

	// First group of 25 embeds normally, the second group fails wholesale.
	texts := make([]string, 30)
	for i := 0; i < 25; i++ {
		texts[i] = fmt.Sprintf("healthy fact %d", i)
	}
	for i := 25; i < 30; i++ {
		texts[i] = fmt.Sprintf("poison fact %d", i)
	}
	require.NoError(t, store.AddRecords(ctx, knowledge.GlobalPartition, texts, nil, nil))
	require.Equal(t, 30, store.Count(knowledge.GlobalPartition))

	// Healthy records kept their real embeddings: exact text still ranks
	// first with near-perfect similarity.
	hits, err := store.Query(ctx, knowledge.GlobalPartition, "healthy fact 3", 30, nil)
	require.NoError(t, err)
	require.Len(t, hits, 30)
	assert.Equal(t, "healthy fact 3", hits[0].Content)
	assert.InDelta(t, 1.0, float64(hits[0].Similarity), 0.01)

	// Failed-group records got fallback embeddings: they are still stored
	// under their positional ids, but their own text no longer matches them.
	byContent := map[string]knowledge.Hit{}
	for _, h := range hits {
		byContent[h.Content] = h
	}
	poisoned, ok := byContent["poison fact 26"]
	require.True(t, ok)
	assert.Equal(t, "doc_26", poisoned.ID)
	assert.Less(t, float64(poisoned.Similarity), 0.9)
}

func TestBatchFailureKeepsSimilaritiesFinite(t *testing.T) {
	ctx := context.Background()
	store, err := knowledge.NewStore("", batchFailingEmbedder{inner: mock.New(32)}, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, store.AddRecords(ctx, knowledge.GlobalPartition,
		[]string{"degraded one", "degraded two"}, nil, nil))
	require.Equal(t, 2, store.Count(knowledge.GlobalPartition))

	// Single-text embedding works, so the query runs against the fallback
	// vectors. Every similarity must be a real number or ordering breaks.
	hits, err := store.Query(ctx, knowledge.GlobalPartition, "degraded one", 2, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.False(t, math.IsNaN(float64(h.Similarity)), "similarity for %s is NaN", h.ID)
	}
}
