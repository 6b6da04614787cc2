package engine

import (
	"context"
	"fmt"
	"maps"

	"go.uber.org/zap"

	"github.com/papercomputeco/memstate/pkg/state"
)

// HealReason is the reason recorded on self-heal mutations.
const HealReason = "self-heal: resolve contradiction"

// HealPatches returns the repair batch for st: every node in a live
// contradiction is marked resolved, and contradicted assumptions without an
// assumption status get one. The batch is empty when st has no live
// contradictions.
func HealPatches(st *state.State) ([]state.Mutation, error) {
	var batch []state.Mutation
	for _, id := range contradicted(st) {
		n := st.Raw[id].Clone()
		n.Status = state.StatusResolved
		n.Dirty = false
		if n.Kind == state.KindAssumption && n.AssumptionStatus == "" {
			n.AssumptionStatus = state.AssumptionResolved
		}

		m, err := state.NewNodeMutation(state.OpReplace, n, HealReason)
		if err != nil {
			return nil, fmt.Errorf("encoding repair for %s: %w", id, err)
		}
		batch = append(batch, m)
	}
	return batch, nil
}

// SelfHeal resolves every live contradiction in st through the normal write
// path, so the repair is logged and replayable. When fromCheckpoint is set
// the repair starts from that checkpoint's state instead of st. st is never
// modified.
func (e *Engine) SelfHeal(ctx context.Context, st *state.State, fromCheckpoint string) (*state.State, error) {
	base := st
	if fromCheckpoint != "" {
		loaded, err := e.Load(ctx, fromCheckpoint)
		if err != nil {
			return nil, fmt.Errorf("rewinding for self-heal: %w", err)
		}
		if st != nil {
			loaded.Checkpoints = maps.Clone(st.Checkpoints)
		}
		base = loaded
	}

	batch, err := HealPatches(base)
	if err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return base.Clone(), nil
	}

	healed, err := e.Apply(batch, base)
	if err != nil {
		return nil, fmt.Errorf("applying self-heal: %w", err)
	}

	e.logger.Info("self-heal resolved contradictions",
		zap.Int("nodes", len(batch)),
		zap.String("checkpoint", fromCheckpoint),
	)
	return healed, nil
}
