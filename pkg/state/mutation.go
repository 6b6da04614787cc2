package state

import (
	"encoding/json"
	"time"
)

// Op is a mutation operation. There is deliberately no remove: retraction
// is expressed as a status change so the audit trail survives.
type Op string

const (
	OpAdd     Op = "add"
	OpReplace Op = "replace"
)

const (
	// RawPrefix addresses whole nodes: /raw/{id}.
	RawPrefix = "/raw/"

	// SummaryPrefix addresses compact summaries: /summary/{id}.
	SummaryPrefix = "/summary/"
)

// RawPath returns the mutation path addressing node id.
func RawPath(id string) string {
	return RawPrefix + id
}

// SummaryPath returns the mutation path addressing the summary entry for id.
func SummaryPath(id string) string {
	return SummaryPrefix + id
}

// Mutation is a single proposed change in wire form. Value stays raw JSON
// until the patch package parses it into a typed patch.
type Mutation struct {
	Op     Op              `json:"op"`
	Path   string          `json:"path"`
	Value  json.RawMessage `json:"value,omitempty"`
	Reason string          `json:"reason,omitempty"`
}

// NewNodeMutation builds a /raw mutation carrying n. Engine managed
// timestamps are stripped since callers may not supply them.
func NewNodeMutation(op Op, n *Node, reason string) (Mutation, error) {
	v := n.Clone()
	v.CreatedAt = time.Time{}
	v.UpdatedAt = time.Time{}

	data, err := json.Marshal(v)
	if err != nil {
		return Mutation{}, err
	}

	return Mutation{
		Op:     op,
		Path:   RawPath(n.ID),
		Value:  data,
		Reason: reason,
	}, nil
}

// NewSummaryMutation builds a /summary replace mutation.
func NewSummaryMutation(id, summary, reason string) (Mutation, error) {
	data, err := json.Marshal(summary)
	if err != nil {
		return Mutation{}, err
	}

	return Mutation{
		Op:     OpReplace,
		Path:   SummaryPath(id),
		Value:  data,
		Reason: reason,
	}, nil
}

// Entry is one applied mutation as recorded in a state's history.
type Entry struct {
	Mutation

	// Seq is the 1-based position of the entry in the history.
	Seq int `json:"seq"`

	// Batch numbers the batch the entry was applied in. Replay re-groups
	// entries by batch so reconciliation runs at the same boundaries.
	Batch int `json:"batch"`

	// At is the engine timestamp stamped onto the touched node.
	At time.Time `json:"at"`
}
