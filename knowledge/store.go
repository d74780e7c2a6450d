package knowledge

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"github.com/rs/zerolog"
)

// GlobalPartition is the name of the singular global partition.
const GlobalPartition = "knowledge_base"

const sessionPartitionPrefix = "session_"

// SessionPartition derives the partition name for a session id. The name is
// keyed by a fixed-length prefix of the id, so it is stable across restarts.
func SessionPartition(sessionID string) string {
	key := sessionID
	if len(key) > 8 {
		key = key[:8]
	}
	return sessionPartitionPrefix + key
}

// Filter restricts a query to records whose filename metadata matches.
type Filter struct {
	// Filenames to match: exact match for one entry, set membership for
	// several.
	Filenames []string
}

// Store is the partitioned vector store. Partitions map to chromem-go
// collections; session partitions are created lazily on first write and the
// global partition on Store construction.
type Store struct {
	db       *chromem.DB
	embedder Embedder
	log      zerolog.Logger

	// Serializes synthetic id assignment per AddRecords call. Ids are seeded
	// from the current partition size, which is not collision-free under
	// concurrent writers to the same partition; the global partition is
	// append-only so collisions only manifest as overwrites of same-batch
	// duplicates.
	idMu sync.Mutex
}

// NewStore opens a persistent store rooted at path. An empty path keeps
// everything in memory, which is what tests use.
func NewStore(path string, embedder Embedder, log zerolog.Logger) (*Store, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open vector db: %w", err)
		}
	}

	s := &Store{db: db, embedder: embedder, log: log}

	// The global partition is long-lived; create it eagerly so stats and
	// broad queries never race its creation.
	if _, err := db.GetOrCreateCollection(GlobalPartition, nil, nil); err != nil {
		return nil, fmt.Errorf("create global partition: %w", err)
	}
	return s, nil
}

// AddRecords embeds texts and appends them to the named partition, creating
// it if needed. Synthetic ids are assigned when ids is nil, seeded from the
// current partition size. Embedding failures degrade to fallback vectors per
// group rather than failing the batch.
func (s *Store) AddRecords(ctx context.Context, partition string, texts []string, metadatas []map[string]string, ids []string) error {
	if len(texts) == 0 {
		return nil
	}
	if metadatas != nil && len(metadatas) != len(texts) {
		return fmt.Errorf("add records: %d texts but %d metadatas", len(texts), len(metadatas))
	}
	if ids != nil && len(ids) != len(texts) {
		return fmt.Errorf("add records: %d texts but %d ids", len(texts), len(ids))
	}

	col, err := s.db.GetOrCreateCollection(partition, nil, nil)
	if err != nil {
		return fmt.Errorf("get partition %s: %w", partition, err)
	}

	if ids == nil {
		s.idMu.Lock()
		seed := col.Count()
		prefix := "doc"
		if strings.HasPrefix(partition, sessionPartitionPrefix) {
			prefix = "sdoc"
		}
		ids = make([]string, len(texts))
		for i := range texts {
			ids[i] = fmt.Sprintf("%s_%d", prefix, seed+i)
		}
		s.idMu.Unlock()
	}

	embeddings := s.embedBatch(ctx, texts)

	for i, text := range texts {
		meta := map[string]string{}
		if metadatas != nil {
			for k, v := range metadatas[i] {
				meta[k] = v
			}
		}
		doc := chromem.Document{
			ID:        ids[i],
			Content:   text,
			Embedding: embeddings[i],
			Metadata:  meta,
		}
		if err := col.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("add record %s to %s: %w", ids[i], partition, err)
		}
	}

	s.log.Debug().Str("partition", partition).Int("records", len(texts)).Msg("records added")
	return nil
}

// Query embeds the query text and returns up to k hits from the named
// partition, nearest first. A missing or empty partition yields an empty
// result without error.
func (s *Store) Query(ctx context.Context, partition, text string, k int, filter *Filter) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	col := s.db.GetCollection(partition, nil)
	if col == nil || col.Count() == 0 {
		return nil, nil
	}

	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		// Same soft-degradation policy as ingestion: a fallback vector keeps
		// the query path available at the cost of relevance.
		s.log.Warn().Err(err).Str("partition", partition).Msg("query embedding failed, substituting fallback vector")
		embedding = fallbackVector(s.embedder.Dimensions())
	}

	if filter == nil || len(filter.Filenames) == 0 {
		return s.queryEmbedding(ctx, col, embedding, k, nil)
	}
	if len(filter.Filenames) == 1 {
		return s.queryEmbedding(ctx, col, embedding, k, map[string]string{"filename": filter.Filenames[0]})
	}

	// chromem where-clauses are exact-match only, so set membership runs one
	// exact-match query per filename and merges nearest-first.
	var merged []Hit
	for _, name := range filter.Filenames {
		hits, err := s.queryEmbedding(ctx, col, embedding, k, map[string]string{"filename": name})
		if err != nil {
			return nil, err
		}
		merged = append(merged, hits...)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Similarity > merged[j].Similarity })
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}

// queryEmbedding runs one chromem query, walking k down when the collection
// (or the filtered subset) holds fewer documents than requested.
func (s *Store) queryEmbedding(ctx context.Context, col *chromem.Collection, embedding []float32, k int, where map[string]string) ([]Hit, error) {
	if n := col.Count(); k > n {
		k = n
	}
	var results []chromem.Result
	for ; k >= 1; k-- {
		var err error
		results, err = col.QueryEmbedding(ctx, embedding, k, where, nil)
		if err == nil {
			break
		}
		if isInsufficientDocsError(err) {
			if k == 1 {
				return nil, nil
			}
			continue
		}
		return nil, fmt.Errorf("vector query: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, res := range results {
		// A NaN similarity means the stored embedding was corrupt. It would
		// sort unpredictably, so the hit is dropped rather than ranked.
		if math.IsNaN(float64(res.Similarity)) {
			s.log.Warn().Str("id", res.ID).Msg("dropping hit with NaN similarity")
			continue
		}
		hits = append(hits, Hit{
			Record: Record{
				ID:       res.ID,
				Content:  res.Content,
				Metadata: res.Metadata,
			},
			Similarity: res.Similarity,
		})
	}
	return hits, nil
}

// DeletePartition removes a partition. Deleting a nonexistent partition is a
// no-op success.
func (s *Store) DeletePartition(_ context.Context, name string) error {
	if s.db.GetCollection(name, nil) == nil {
		return nil
	}
	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("delete partition %s: %w", name, err)
	}
	s.log.Info().Str("partition", name).Msg("partition deleted")
	return nil
}

// Count returns the number of records in a partition, zero if it does not
// exist.
func (s *Store) Count(partition string) int {
	col := s.db.GetCollection(partition, nil)
	if col == nil {
		return 0
	}
	return col.Count()
}

// Stats reports the partition name, record count, and embedding model id.
func (s *Store) Stats(partition string) Stats {
	return Stats{
		Partition:      partition,
		Records:        s.Count(partition),
		EmbeddingModel: s.embedder.Model(),
	}
}

// isInsufficientDocsError reports whether err is chromem complaining that
// nResults exceeds the number of queryable documents.
func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
