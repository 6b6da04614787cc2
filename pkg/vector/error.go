package vector

import "errors"

var (
	// ErrDimensions is returned when an embedding does not match the
	// dimensionality the store was created with.
	ErrDimensions = errors.New("embedding dimension mismatch")

	// ErrEmbedding wraps failures from an embeddings provider.
	ErrEmbedding = errors.New("embedding failed")

	// ErrConnection wraps failures reaching a remote vector store.
	ErrConnection = errors.New("vector store connection failed")
)
