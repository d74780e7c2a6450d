package knowledge_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillmind/quill/knowledge"
)

func seedGlobal(t *testing.T, store *knowledge.Store, n int, filename string) {
	t.Helper()
	var texts []string
	var metas []map[string]string
	for i := 0; i < n; i++ {
		texts = append(texts, filename+" global fact number "+string(rune('a'+i)))
		metas = append(metas, map[string]string{"filename": filename})
	}
	require.NoError(t, store.AddRecords(context.Background(), knowledge.GlobalPartition, texts, metas, nil))
}

func TestRetrieveSessionFirst(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	retriever := knowledge.NewRetriever(store, zerolog.Nop())

	sessionID := "aabbccdd-0000"
	partition := knowledge.SessionPartition(sessionID)
	require.NoError(t, store.AddRecords(ctx, partition,
		[]string{"session note one", "session note two", "session note three"},
		[]map[string]string{
			{"filename": "upload.txt"},
			{"filename": "upload.txt"},
			{"filename": "upload.txt"},
		}, nil))
	seedGlobal(t, store, 4, "handbook.md")

	result := retriever.Retrieve(ctx, sessionID, "note", nil)
	require.False(t, result.Empty())

	// Three session hits satisfy the broad floor, so nothing global joins.
	assert.Len(t, result.Docs, 3)
	for _, doc := range result.Docs {
		assert.Equal(t, knowledge.SourceSession, doc.Source)
	}
	assert.Equal(t, []knowledge.Source{knowledge.SourceSession}, result.Sources)
	assert.Equal(t, []string{"upload.txt"}, result.Filenames)
}

func TestRetrieveTopsUpFromGlobal(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	retriever := knowledge.NewRetriever(store, zerolog.Nop())

	sessionID := "11223344-5566"
	require.NoError(t, store.AddRecords(ctx, knowledge.SessionPartition(sessionID),
		[]string{"lone session note"},
		[]map[string]string{{"filename": "note.txt"}}, nil))
	seedGlobal(t, store, 4, "handbook.md")

	result := retriever.Retrieve(ctx, sessionID, "note", nil)

	// One session hit, topped up to the floor of three from the broad
	// global stage.
	require.Len(t, result.Docs, 3)
	assert.Equal(t, knowledge.SourceSession, result.Docs[0].Source)
	assert.Equal(t, knowledge.SourceGlobal, result.Docs[1].Source)
	assert.Equal(t, knowledge.SourceGlobal, result.Docs[2].Source)
	assert.Equal(t, []string{"note.txt", "handbook.md"}, result.Filenames)
}

func TestRetrieveTargetedStage(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	retriever := knowledge.NewRetriever(store, zerolog.Nop())

	seedGlobal(t, store, 3, "mine.txt")
	seedGlobal(t, store, 3, "other.txt")

	// No session partition exists, so stage one is empty and stage two
	// should fill from the uploaded filenames only.
	result := retriever.Retrieve(ctx, "fefefefe-0000", "fact", []string{"mine.txt"})
	require.False(t, result.Empty())

	targeted := 0
	for _, doc := range result.Docs {
		if doc.Source == knowledge.SourceGlobalTargeted {
			targeted++
			assert.Equal(t, "mine.txt", doc.Metadata["filename"])
		}
	}
	assert.Equal(t, 3, targeted)
}

func TestRetrieveEmptyStore(t *testing.T) {
	store := newTestStore(t)
	retriever := knowledge.NewRetriever(store, zerolog.Nop())

	result := retriever.Retrieve(context.Background(), "00000000", "anything", nil)
	assert.True(t, result.Empty())
	assert.Empty(t, result.Contents())
}

func TestSearchGlobal(t *testing.T) {
	store := newTestStore(t)
	retriever := knowledge.NewRetriever(store, zerolog.Nop())
	seedGlobal(t, store, 5, "kb.md")

	hits, err := retriever.SearchGlobal(context.Background(), "fact", 3)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}
