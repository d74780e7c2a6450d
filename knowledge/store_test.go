package knowledge_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillmind/quill/knowledge"
	"github.com/quillmind/quill/knowledge/embedder/mock"
)

func newTestStore(t *testing.T) *knowledge.Store {
	t.Helper()
	store, err := knowledge.NewStore("", mock.New(32), zerolog.Nop())
	require.NoError(t, err)
	return store
}

func TestSessionPartitionName(t *testing.T) {
	assert.Equal(t, "session_abcdef01", knowledge.SessionPartition("abcdef01-2345-6789"))
	assert.Equal(t, "session_short", knowledge.SessionPartition("short"))
}

func TestAddAndQuery(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	texts := []string{
		"the capital of France is Paris",
		"golang has goroutines and channels",
		"chromem stores embeddings in collections",
	}
	metas := []map[string]string{
		{"filename": "geo.txt"},
		{"filename": "go.txt"},
		{"filename": "db.txt"},
	}
	require.NoError(t, store.AddRecords(ctx, knowledge.GlobalPartition, texts, metas, nil))
	assert.Equal(t, 3, store.Count(knowledge.GlobalPartition))

	// Identical text embeds identically, so it must rank first.
	hits, err := store.Query(ctx, knowledge.GlobalPartition, "golang has goroutines and channels", 3, nil)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "golang has goroutines and channels", hits[0].Content)
	assert.Equal(t, "go.txt", hits[0].Metadata["filename"])
}

func TestQueryShrinksToAvailableRecords(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.AddRecords(ctx, knowledge.GlobalPartition,
		[]string{"only one record"}, nil, nil))

	hits, err := store.Query(ctx, knowledge.GlobalPartition, "anything", 10, nil)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestQueryMissingPartition(t *testing.T) {
	store := newTestStore(t)

	hits, err := store.Query(context.Background(), "session_nothere", "query", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSyntheticIDs(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.AddRecords(ctx, knowledge.GlobalPartition,
		[]string{"first", "second"}, nil, nil))
	require.NoError(t, store.AddRecords(ctx, knowledge.GlobalPartition,
		[]string{"third"}, nil, nil))

	hits, err := store.Query(ctx, knowledge.GlobalPartition, "first", 3, nil)
	require.NoError(t, err)

	ids := map[string]bool{}
	for _, h := range hits {
		ids[h.ID] = true
	}
	for _, want := range []string{"doc_0", "doc_1", "doc_2"} {
		assert.True(t, ids[want], "missing id %s", want)
	}
}

func TestSessionPartitionIDPrefix(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	partition := knowledge.SessionPartition("11112222-3333")

	require.NoError(t, store.AddRecords(ctx, partition, []string{"session doc"}, nil, nil))

	hits, err := store.Query(ctx, partition, "session doc", 1, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "sdoc_0", hits[0].ID)
}

func TestFilenameFilter(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	var texts []string
	var metas []map[string]string
	for i := 0; i < 3; i++ {
		texts = append(texts, fmt.Sprintf("alpha content %d", i))
		metas = append(metas, map[string]string{"filename": "alpha.txt"})
	}
	texts = append(texts, "beta content")
	metas = append(metas, map[string]string{"filename": "beta.txt"})
	require.NoError(t, store.AddRecords(ctx, knowledge.GlobalPartition, texts, metas, nil))

	hits, err := store.Query(ctx, knowledge.GlobalPartition, "content", 10,
		&knowledge.Filter{Filenames: []string{"alpha.txt"}})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	for _, h := range hits {
		assert.Equal(t, "alpha.txt", h.Metadata["filename"])
	}

	// Multiple filenames behave as set membership, capped at k.
	hits, err = store.Query(ctx, knowledge.GlobalPartition, "content", 2,
		&knowledge.Filter{Filenames: []string{"alpha.txt", "beta.txt"}})
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestDeletePartitionIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	partition := knowledge.SessionPartition("deadbeef")

	require.NoError(t, store.AddRecords(ctx, partition, []string{"doomed"}, nil, nil))
	require.Equal(t, 1, store.Count(partition))

	require.NoError(t, store.DeletePartition(ctx, partition))
	assert.Equal(t, 0, store.Count(partition))

	// A second delete of a gone partition is a no-op success.
	require.NoError(t, store.DeletePartition(ctx, partition))
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.AddRecords(ctx, knowledge.GlobalPartition,
		[]string{"a", "b"}, nil, nil))

	stats := store.Stats(knowledge.GlobalPartition)
	assert.Equal(t, knowledge.GlobalPartition, stats.Partition)
	assert.Equal(t, 2, stats.Records)
	assert.Equal(t, "mock-embedder", stats.EmbeddingModel)
}

// failingEmbedder fails every call so fallback-vector substitution kicks in.
type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("embedder down")
}

func (failingEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("embedder down")
}

func (failingEmbedder) Dimensions() int { return 8 }
func (failingEmbedder) Model() string   { return "failing" }

func TestAddRecordsSurvivesEmbedderFailure(t *testing.T) {
	ctx := context.Background()
	store, err := knowledge.NewStore("", failingEmbedder{}, zerolog.Nop())
	require.NoError(t, err)

	// The batch is stored with fallback vectors instead of failing.
	require.NoError(t, store.AddRecords(ctx, knowledge.GlobalPartition,
		[]string{"one", "two"}, nil, nil))
	assert.Equal(t, 2, store.Count(knowledge.GlobalPartition))
}
