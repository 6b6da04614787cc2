// Package storage defines the pluggable persistence contract for memstate
// checkpoints and the mutation log. The engine is storage-agnostic; every
// driver under this package satisfies Driver.
package storage

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/memstate/pkg/state"
)

// Checkpoint describes a saved snapshot.
type Checkpoint struct {
	ID        string    `json:"id"`
	Label     string    `json:"label,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Snapshot is a loaded checkpoint together with its state.
type Snapshot struct {
	Checkpoint
	State *state.State `json:"state"`
}

// Driver persists checkpoints and the ordered mutation log.
type Driver interface {
	// SaveCheckpoint persists a copy of st under a new checkpoint id.
	SaveCheckpoint(ctx context.Context, st *state.State, label string) (Checkpoint, error)

	// LoadCheckpoint returns the checkpoint with the given id. It fails with
	// NotFoundError when no such checkpoint exists.
	LoadCheckpoint(ctx context.Context, id string) (*Snapshot, error)

	// ListCheckpoints returns every checkpoint, oldest first.
	ListCheckpoints(ctx context.Context) ([]Checkpoint, error)

	// AppendToLog appends entries to the mutation log. Callers treat the log
	// as best-effort and do not fail the write path on error.
	AppendToLog(ctx context.Context, entries []state.Entry) error

	// ReadLog returns the full mutation log in append order.
	ReadLog(ctx context.Context) ([]state.Entry, error)

	// Close releases any resources held by the driver.
	Close() error
}

// NewCheckpoint mints checkpoint metadata with a time-ordered id.
func NewCheckpoint(label string) Checkpoint {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}

	return Checkpoint{
		ID:        id.String(),
		Label:     label,
		CreatedAt: time.Now().Round(0).UTC(),
	}
}

// CompareCheckpoints orders checkpoints by creation time, then id.
func CompareCheckpoints(a, b Checkpoint) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}
