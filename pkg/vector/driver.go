// Package vector provides interfaces and implementations for storing node
// embeddings and finding the nodes most similar to a query.
package vector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Document is one indexed node.
type Document struct {
	// ID is the memory node id.
	ID string

	// Hash fingerprints the text the embedding was computed from, so
	// indexers can skip nodes whose text has not changed.
	Hash string

	// Embedding is the vector representation of the node text.
	Embedding []float32
}

// QueryResult represents a search result with similarity score.
type QueryResult struct {
	Document

	// Score represents the similarity score (higher = more similar).
	Score float32
}

// Driver handles storage and retrieval of vector embeddings.
type Driver interface {
	// Add stores documents with their embeddings. A document with an
	// existing ID replaces the stored one.
	Add(ctx context.Context, docs []Document) error

	// Query finds the topK most similar documents to the given embedding,
	// most similar first.
	Query(ctx context.Context, embedding []float32, topK int) ([]QueryResult, error)

	// Get retrieves documents by their IDs. Unknown IDs are skipped.
	Get(ctx context.Context, ids []string) ([]Document, error)

	// Delete removes documents by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Close releases any resources held by the driver.
	Close() error
}

// HashText returns the fingerprint stored in Document.Hash for text.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
