// Package embeddings turns node text into vectors for the context index.
package embeddings

import "context"

// Embedder computes the vector for one node's text. Implementations are safe
// for concurrent use by the worker pool and request handlers.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Close() error
}
