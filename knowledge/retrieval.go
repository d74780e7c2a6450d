package knowledge

import (
	"context"

	"github.com/rs/zerolog"
)

// Source tags a retrieved document with the retrieval stage that produced it.
type Source string

const (
	SourceSession        Source = "session"
	SourceGlobalTargeted Source = "global-targeted"
	SourceGlobal         Source = "global"
)

const (
	// resultBudget is the target result count for the session and targeted
	// stages.
	resultBudget = 5

	// broadFloor is the minimum result count below which the broad global
	// stage tops the result set up.
	broadFloor = 3
)

// RetrievedDoc is one document fragment produced by tiered retrieval.
type RetrievedDoc struct {
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Similarity float32           `json:"similarity"`
	Source     Source            `json:"source"`
}

// RetrievalResult is the outcome of one tiered retrieval pass.
type RetrievalResult struct {
	// Docs in strategy order: session hits first, then targeted-global,
	// then broad-global. No re-ranking across stages.
	Docs []RetrievedDoc

	// Filenames is the distinct set of filename metadata values across all
	// docs, in first-seen order, for attribution text.
	Filenames []string

	// Sources is the distinct set of stages that contributed, in stage
	// order.
	Sources []Source
}

// Empty reports whether retrieval found nothing.
func (r *RetrievalResult) Empty() bool { return r == nil || len(r.Docs) == 0 }

// Contents returns the document texts in order.
func (r *RetrievalResult) Contents() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.Docs))
	for i, d := range r.Docs {
		out[i] = d.Content
	}
	return out
}

// Retriever implements the tiered search over the partitioned store.
type Retriever struct {
	store *Store
	log   zerolog.Logger
}

// NewRetriever creates a retriever over the store.
func NewRetriever(store *Store, log zerolog.Logger) *Retriever {
	return &Retriever{store: store, log: log}
}

// Retrieve applies the three ordered strategies against the session's
// partition and the global partition:
//
//  1. the session's own partition, up to 5 matches
//  2. if fewer than 5 so far and the session has uploaded documents, the
//     global partition filtered to those filenames, up to the remainder
//  3. if fewer than 3 total, the unfiltered global partition, topping up
//     to 3
//
// Results are concatenated in strategy order. A stage failure is logged and
// skipped; it never fails the turn.
func (r *Retriever) Retrieve(ctx context.Context, sessionID, query string, uploadedDocs []string) *RetrievalResult {
	result := &RetrievalResult{}

	hits, err := r.store.Query(ctx, SessionPartition(sessionID), query, resultBudget, nil)
	if err != nil {
		r.log.Warn().Err(err).Str("session", sessionID).Msg("session partition query failed")
	}
	result.add(hits, SourceSession)

	if len(result.Docs) < resultBudget && len(uploadedDocs) > 0 {
		hits, err = r.store.Query(ctx, GlobalPartition, query, resultBudget-len(result.Docs), &Filter{Filenames: uploadedDocs})
		if err != nil {
			r.log.Warn().Err(err).Msg("targeted global query failed")
		}
		result.add(hits, SourceGlobalTargeted)
	}

	if len(result.Docs) < broadFloor {
		hits, err = r.store.Query(ctx, GlobalPartition, query, broadFloor-len(result.Docs), nil)
		if err != nil {
			r.log.Warn().Err(err).Msg("broad global query failed")
		}
		result.add(hits, SourceGlobal)
	}

	r.log.Debug().Str("session", sessionID).Int("docs", len(result.Docs)).
		Strs("filenames", result.Filenames).Msg("tiered retrieval complete")
	return result
}

// SearchGlobal is the single-stage broad lookup used by the knowledge-search
// tool. It does not participate in the tiered session/global logic.
func (r *Retriever) SearchGlobal(ctx context.Context, query string, k int) ([]Hit, error) {
	return r.store.Query(ctx, GlobalPartition, query, k, nil)
}

func (r *RetrievalResult) add(hits []Hit, source Source) {
	if len(hits) == 0 {
		return
	}
	r.Sources = append(r.Sources, source)
	for _, h := range hits {
		r.Docs = append(r.Docs, RetrievedDoc{
			Content:    h.Content,
			Metadata:   h.Metadata,
			Similarity: h.Similarity,
			Source:     source,
		})
		if name := h.Metadata["filename"]; name != "" && !containsString(r.Filenames, name) {
			r.Filenames = append(r.Filenames, name)
		}
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
