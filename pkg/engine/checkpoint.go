package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/memstate/pkg/state"
)

// ErrNoStorage is returned by checkpoint operations on an engine configured
// without a storage driver.
var ErrNoStorage = errors.New("engine has no storage driver configured")

// Save persists a snapshot of st and records the checkpoint in
// st.Checkpoints. That map is bookkeeping only, so recording into st does
// not violate the clone-per-batch rule for Raw and History.
func (e *Engine) Save(ctx context.Context, st *state.State, label string) (string, error) {
	if e.store == nil {
		return "", ErrNoStorage
	}

	cp, err := e.store.SaveCheckpoint(ctx, st.Snapshot(), label)
	if err != nil {
		return "", fmt.Errorf("saving checkpoint: %w", err)
	}

	if st.Checkpoints == nil {
		st.Checkpoints = make(map[string]state.CheckpointRef)
	}
	st.Checkpoints[cp.ID] = state.CheckpointRef{ID: cp.ID, Label: cp.Label, CreatedAt: cp.CreatedAt}

	e.logger.Info("saved checkpoint",
		zap.String("checkpoint", cp.ID),
		zap.String("label", cp.Label),
		zap.Int("nodes", len(st.Raw)),
		zap.Int("history", len(st.History)),
	)
	return cp.ID, nil
}

// Load returns the state saved under id. A missing checkpoint surfaces as
// storage.NotFoundError.
func (e *Engine) Load(ctx context.Context, id string) (*state.State, error) {
	if e.store == nil {
		return nil, ErrNoStorage
	}

	snap, err := e.store.LoadCheckpoint(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint %s: %w", id, err)
	}

	st := snap.State.Clone()
	st.Checkpoints = nil
	st.RecomputeDerived()
	return st, nil
}
