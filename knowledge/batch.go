package knowledge

import (
	"context"

	"github.com/sourcegraph/conc/pool"
)

const (
	// embedGroupSize is the maximum number of texts per provider call.
	embedGroupSize = 25

	// embedWorkers bounds concurrent provider calls so a large upload does
	// not trip provider rate limits.
	embedWorkers = 5
)

// fallbackVector is the stand-in embedding for a text whose embedding call
// failed. It must be unit-length already: chromem normalizes non-unit vectors
// on insert, and normalizing an all-zero vector yields NaN components that
// poison every similarity the record appears in.
func fallbackVector(dims int) []float32 {
	vec := make([]float32, dims)
	if dims > 0 {
		vec[0] = 1
	}
	return vec
}

// embedBatch computes embeddings for texts, fanning groups of embedGroupSize
// out across a bounded worker pool and reassembling results in input order.
// A failed group is replaced with fallback vectors for every text in the
// group; the batch as a whole never fails.
func (s *Store) embedBatch(ctx context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))

	p := pool.New().WithMaxGoroutines(embedWorkers)
	for start := 0; start < len(texts); start += embedGroupSize {
		end := start + embedGroupSize
		if end > len(texts) {
			end = len(texts)
		}
		start, end := start, end
		p.Go(func() {
			group := texts[start:end]
			vecs, err := s.embedder.EmbedBatch(ctx, group)
			if err != nil || len(vecs) != len(group) {
				s.log.Warn().Err(err).Int("group_start", start).Int("group_size", len(group)).
					Msg("group embedding failed, substituting fallback vectors")
				for i := range group {
					out[start+i] = fallbackVector(s.embedder.Dimensions())
				}
				return
			}
			// Workers write disjoint index ranges, so no locking is needed.
			copy(out[start:end], vecs)
		})
	}
	p.Wait()

	return out
}
