// Package knowledge implements the two-tier knowledge store: a singular
// long-lived global partition plus lazily created per-session partitions,
// backed by an embedded vector database.
//
// Architecture:
//   - Store: partitioned vector storage (chromem-go collections)
//   - Embedder: text-to-vector conversion (REST endpoint, local ONNX, mock)
//   - Retriever: the tiered session / targeted-global / broad-global search
package knowledge

import "context"

// Embedder converts text to vector embeddings.
//
// Implementations: mock (testing), rest (OpenAI-compatible endpoint),
// cached (ristretto read-through wrapper), onnx (local model, build tag).
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts a group of texts in one provider call. The result
	// has one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int

	// Model returns the embedding model identifier for stats reporting.
	Model() string
}

// Record is a stored unit of retrievable text. A record lives in exactly one
// partition; its embedding is computed once at insertion time.
type Record struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// Hit is one similarity-search result.
type Hit struct {
	Record
	Similarity float32
}

// Stats summarizes one partition.
type Stats struct {
	Partition      string `json:"collection_name"`
	Records        int    `json:"document_count"`
	EmbeddingModel string `json:"embedding_model"`
}
