package contextbuilder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/memstate/pkg/embeddings"
	"github.com/papercomputeco/memstate/pkg/state"
	"github.com/papercomputeco/memstate/pkg/vector"
)

// Index ranks node ids by similarity to a query, most similar first.
type Index interface {
	Rank(ctx context.Context, query string, k int) ([]string, error)
}

// VectorIndex is an Index over a vector store. Sync keeps the store in
// step with a state.
type VectorIndex struct {
	vectors  vector.Driver
	embedder embeddings.Embedder
	logger   *zap.Logger
}

// NewVectorIndex creates a VectorIndex. A nil logger is replaced with a no-op.
func NewVectorIndex(vectors vector.Driver, embedder embeddings.Embedder, logger *zap.Logger) *VectorIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VectorIndex{vectors: vectors, embedder: embedder, logger: logger}
}

// Rank embeds query and returns the ids of the k nearest nodes.
func (x *VectorIndex) Rank(ctx context.Context, query string, k int) ([]string, error) {
	emb, err := x.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := x.vectors.Query(ctx, emb, k)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	return ids, nil
}

// NodeText is the text embedded for a node.
func NodeText(st *state.State, n *state.Node) string {
	parts := []string{string(n.Kind), n.ID}
	if s := st.SummaryFor(n.ID); s != "" {
		parts = append(parts, s)
	}
	if len(n.Detail) > 0 {
		parts = append(parts, string(n.Detail))
	}
	return strings.Join(parts, " ")
}

// Sync embeds every node of ids whose text changed since it was last
// indexed and removes archived nodes, as well as ids missing from st, which
// a checkpoint rewind leaves behind. An empty ids syncs the whole state.
func (x *VectorIndex) Sync(ctx context.Context, st *state.State, ids []string) error {
	if len(ids) == 0 {
		ids = st.IDs()
	}

	var (
		gone []string
		live []*state.Node
	)
	for _, id := range ids {
		n := st.Node(id)
		switch {
		case n == nil || n.Archived():
			gone = append(gone, id)
		default:
			live = append(live, n)
		}
	}

	if len(gone) > 0 {
		if err := x.vectors.Delete(ctx, gone); err != nil {
			return fmt.Errorf("removing nodes: %w", err)
		}
	}
	if len(live) == 0 {
		return nil
	}

	liveIDs := make([]string, len(live))
	for i, n := range live {
		liveIDs[i] = n.ID
	}
	existing, err := x.vectors.Get(ctx, liveIDs)
	if err != nil {
		return fmt.Errorf("reading indexed nodes: %w", err)
	}
	indexed := make(map[string]string, len(existing))
	for _, doc := range existing {
		indexed[doc.ID] = doc.Hash
	}

	var docs []vector.Document
	for _, n := range live {
		text := NodeText(st, n)
		hash := vector.HashText(text)
		if indexed[n.ID] == hash {
			continue
		}

		emb, err := x.embedder.Embed(ctx, text)
		if err != nil {
			return fmt.Errorf("embedding node %s: %w", n.ID, err)
		}
		docs = append(docs, vector.Document{ID: n.ID, Hash: hash, Embedding: emb})
	}

	if len(docs) == 0 {
		return nil
	}
	if err := x.vectors.Add(ctx, docs); err != nil {
		return fmt.Errorf("indexing nodes: %w", err)
	}

	x.logger.Debug("synced vector index",
		zap.Int("embedded", len(docs)),
		zap.Int("removed", len(gone)),
	)
	return nil
}

// Close releases the vector store and the embedder.
func (x *VectorIndex) Close() error {
	return errors.Join(x.vectors.Close(), x.embedder.Close())
}
