// Package inmemory provides a map-backed storage driver, used by tests and
// by sessions that need no durability.
package inmemory

import (
	"context"
	"slices"
	"sync"

	"github.com/papercomputeco/memstate/pkg/state"
	"github.com/papercomputeco/memstate/pkg/storage"
)

// Driver implements storage.Driver using in-memory maps.
type Driver struct {
	// mu guards checkpoints, order and log
	mu sync.RWMutex

	// checkpoints maps checkpoint id to its snapshot; states are stored as
	// deep copies so callers can keep mutating their own.
	checkpoints map[string]*storage.Snapshot

	// order holds checkpoint ids in save order
	order []string

	log []state.Entry
}

// NewDriver creates a new in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		checkpoints: make(map[string]*storage.Snapshot),
	}
}

// SaveCheckpoint stores a snapshot of st.
func (d *Driver) SaveCheckpoint(_ context.Context, st *state.State, label string) (storage.Checkpoint, error) {
	cp := storage.NewCheckpoint(label)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.checkpoints[cp.ID] = &storage.Snapshot{Checkpoint: cp, State: st.Snapshot()}
	d.order = append(d.order, cp.ID)
	return cp, nil
}

// LoadCheckpoint retrieves a checkpoint by id.
func (d *Driver) LoadCheckpoint(_ context.Context, id string) (*storage.Snapshot, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	snap, ok := d.checkpoints[id]
	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}

	return &storage.Snapshot{Checkpoint: snap.Checkpoint, State: snap.State.Clone()}, nil
}

// ListCheckpoints returns checkpoints in save order.
func (d *Driver) ListCheckpoints(_ context.Context) ([]storage.Checkpoint, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]storage.Checkpoint, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.checkpoints[id].Checkpoint)
	}
	return out, nil
}

// AppendToLog appends copies of entries to the log.
func (d *Driver) AppendToLog(_ context.Context, entries []state.Entry) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, e := range entries {
		e.Value = slices.Clone(e.Value)
		d.log = append(d.log, e)
	}
	return nil
}

// ReadLog returns a copy of the log.
func (d *Driver) ReadLog(_ context.Context) ([]state.Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]state.Entry, len(d.log))
	for i, e := range d.log {
		e.Value = slices.Clone(e.Value)
		out[i] = e
	}
	return out, nil
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}
