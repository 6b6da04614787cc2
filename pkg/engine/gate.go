package engine

import "github.com/papercomputeco/memstate/pkg/state"

// CanExecute reports whether it is safe to act on st now. Any unknown node
// or any dirty node blocks every kind; actions additionally require every
// live assumption to be valid. The result depends only on st and must be
// re-checked after every batch.
func CanExecute(kind state.Kind, st *state.State) bool {
	if st == nil {
		return true
	}
	if len(st.Unknowns) > 0 {
		return false
	}

	for _, n := range st.Raw {
		if n.Dirty {
			return false
		}
		if kind == state.KindAction && n.Kind == state.KindAssumption && !n.Archived() &&
			n.AssumptionStatus != state.AssumptionValid {
			return false
		}
	}
	return true
}

// CanExecute is the engine-bound form of the package function that also
// records the outcome in the engine's metrics.
func (e *Engine) CanExecute(kind state.Kind, st *state.State) bool {
	ok := CanExecute(kind, st)
	e.metrics.ObserveGate(string(kind), ok)
	return ok
}
