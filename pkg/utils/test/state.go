package testutils

import (
	"encoding/json"
	"time"

	"github.com/papercomputeco/memstate/pkg/state"
)

// NewTestNode creates an open fact node with a summary derived from its id.
func NewTestNode(id string) *state.Node {
	return &state.Node{
		ID:      id,
		Kind:    state.KindFact,
		Summary: "node " + id,
		Status:  state.StatusOpen,
	}
}

// MustNodeMutation builds a /raw mutation for n, panicking on encode errors.
func MustNodeMutation(op state.Op, n *state.Node) state.Mutation {
	m, err := state.NewNodeMutation(op, n, "test")
	if err != nil {
		panic(err)
	}
	return m
}

// NewTestState returns a state containing copies of nodes with derived
// lists computed. It bypasses the engine, so no history is recorded.
func NewTestState(nodes ...*state.Node) *state.State {
	st := state.New()
	for _, n := range nodes {
		st.Raw[n.ID] = n.Clone()
	}
	st.RecomputeDerived()
	return st
}

// NewTestEntries returns a two-entry log for storage round trip tests.
func NewTestEntries() []state.Entry {
	at := time.Date(2025, 1, 2, 3, 4, 5, 6, time.UTC)
	value, _ := json.Marshal(NewTestNode("a"))

	return []state.Entry{
		{
			Mutation: state.Mutation{Op: state.OpAdd, Path: state.RawPath("a"), Value: value, Reason: "seed"},
			Seq:      1,
			Batch:    1,
			At:       at,
		},
		{
			Mutation: state.Mutation{Op: state.OpReplace, Path: state.SummaryPath("a"), Value: json.RawMessage(`"short"`)},
			Seq:      2,
			Batch:    1,
			At:       at.Add(time.Nanosecond),
		},
	}
}

// SteppingClock returns a clock that advances by step on every call,
// starting at start.
func SteppingClock(start time.Time, step time.Duration) func() time.Time {
	next := start
	return func() time.Time {
		now := next
		next = next.Add(step)
		return now
	}
}
