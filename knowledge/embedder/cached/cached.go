// Package cached wraps an embedder with a ristretto read-through cache for
// single-text embeddings. The tiered retriever embeds the same query text
// once per stage; the cache makes the repeats cheap without changing which
// records any stage considers.
package cached

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/quillmind/quill/knowledge"
)

// Embedder is a caching wrapper around another embedder. Batch calls pass
// through uncached; ingestion texts rarely repeat.
type Embedder struct {
	inner knowledge.Embedder
	cache *ristretto.Cache
}

// New creates a caching embedder with the given cache budget in bytes.
func New(inner knowledge.Embedder, maxBytes int64) (*Embedder, error) {
	if maxBytes <= 0 {
		maxBytes = 32 << 20
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Embedder{inner: inner, cache: cache}, nil
}

// Embed returns the cached vector for text, computing and caching it on a
// miss. Cached vectors must not be mutated by callers.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(text); ok {
		return v.([]float32), nil
	}
	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, vec, int64(len(vec)*4))
	return vec, nil
}

// EmbedBatch passes through to the wrapped embedder.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return e.inner.EmbedBatch(ctx, texts)
}

// Dimensions returns the wrapped embedder's vector size.
func (e *Embedder) Dimensions() int { return e.inner.Dimensions() }

// Model returns the wrapped embedder's model identifier.
func (e *Embedder) Model() string { return e.inner.Model() }

// Close releases cache resources.
func (e *Embedder) Close() { e.cache.Close() }
