package engine

import (
	"fmt"
	"slices"

	"github.com/papercomputeco/memstate/pkg/state"
)

// RollbackReason is the reason recorded on rollback mutations.
const RollbackReason = "rollback: dependency invalidated"

// Dependents returns the ids of every node that transitively gates on id
// through dependsOn, temporalAfter or temporalBefore edges, sorted. The
// target itself is excluded, even when it sits on a cycle.
func Dependents(st *state.State, id string) []string {
	g := state.NewGraph(st)
	start, ok := g.Index(id)
	if !ok {
		return nil
	}

	var out []string
	for _, i := range g.Reach([]string{id}, g.Dependents) {
		if i != start {
			out = append(out, g.ID(i))
		}
	}
	slices.Sort(out)
	return out
}

// RollbackPatches returns a batch forcing every transitive dependent of id
// into blocked and dirty, keeping their summaries. It does not modify st;
// callers apply the batch like any other. An unknown id yields no batch.
func RollbackPatches(st *state.State, id string) ([]state.Mutation, error) {
	var batch []state.Mutation
	for _, dep := range Dependents(st, id) {
		n := st.Raw[dep].Clone()
		n.Status = state.StatusBlocked
		n.Dirty = true

		m, err := state.NewNodeMutation(state.OpReplace, n, RollbackReason)
		if err != nil {
			return nil, fmt.Errorf("encoding rollback for %s: %w", dep, err)
		}
		batch = append(batch, m)
	}
	return batch, nil
}
