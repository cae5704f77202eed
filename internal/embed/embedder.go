// Package embed turns chunk text into unit-length vectors via an embedding
// provider. Batch calls report per-item outcomes so one bad chunk never sinks
// a whole ingest batch.
package embed

import "context"

// BatchResult is the outcome for a single input in a batch call. Exactly one
// of Vector or Err is set.
type BatchResult struct {
	Vector []float32
	Err    error
}

// Embedder produces L2-normalized embeddings.
type Embedder interface {
	// Embed embeds a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch embeds texts and returns one result per input, in order.
	// The returned error is non-nil only when the whole call failed.
	EmbedBatch(ctx context.Context, texts []string) ([]BatchResult, error)
	// Dimensions reports the vector width this embedder produces.
	Dimensions() int
	Close() error
}
