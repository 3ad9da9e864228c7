// Package vectorize produces semantic embeddings for source records,
// batched under a concurrency cap and cached by content hash.
package vectorize

import "context"

// EmbeddingService generates vector embeddings from text.
//
// Implementations may include OpenAI-compatible HTTP endpoints or local
// inference servers; the vectorizer only depends on this contract.
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one call.
	// More efficient than calling Embed in a loop for large batches.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int

	// ModelName returns the embedding model identifier. Cached vectors
	// are keyed by (content hash, model) so a model change invalidates
	// the cache naturally.
	ModelName() string

	// Ping validates the service is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
