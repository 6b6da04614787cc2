package state

import (
	"maps"
	"slices"
	"time"
)

// CheckpointRef records a checkpoint taken of a state.
type CheckpointRef struct {
	ID        string    `json:"id"`
	Label     string    `json:"label,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// State is a full snapshot of the memory graph.
type State struct {
	// Raw maps node id to node.
	Raw map[string]*Node `json:"raw"`

	// Summary maps id to a plain-string summary used for compact rendering.
	// It is a namespace separate from Raw.
	Summary map[string]string `json:"summary"`

	// Unknowns and Assumptions are derived from Raw by RecomputeDerived.
	Unknowns    []string `json:"unknowns"`
	Assumptions []string `json:"assumptions"`

	// History is the append-only ordered log of applied mutations.
	History []Entry `json:"history"`

	// Checkpoints is bookkeeping owned by the checkpoint component. It is
	// not needed for Raw or History correctness and may be discarded.
	Checkpoints map[string]CheckpointRef `json:"checkpoints,omitempty"`
}

// New returns an empty state.
func New() *State {
	return &State{
		Raw:         make(map[string]*Node),
		Summary:     make(map[string]string),
		Unknowns:    []string{},
		Assumptions: []string{},
		History:     []Entry{},
	}
}

// Clone returns a deep copy of s. Mutating the clone never affects s.
func (s *State) Clone() *State {
	if s == nil {
		return New()
	}

	c := &State{
		Raw:         make(map[string]*Node, len(s.Raw)),
		Summary:     maps.Clone(s.Summary),
		Unknowns:    slices.Clone(s.Unknowns),
		Assumptions: slices.Clone(s.Assumptions),
		History:     make([]Entry, len(s.History)),
		Checkpoints: maps.Clone(s.Checkpoints),
	}

	for id, n := range s.Raw {
		c.Raw[id] = n.Clone()
	}

	for i, e := range s.History {
		e.Value = slices.Clone(e.Value)
		c.History[i] = e
	}

	if c.Summary == nil {
		c.Summary = make(map[string]string)
	}
	if c.Unknowns == nil {
		c.Unknowns = []string{}
	}
	if c.Assumptions == nil {
		c.Assumptions = []string{}
	}

	return c
}

// Node returns the node with the given id, or nil.
func (s *State) Node(id string) *Node {
	return s.Raw[id]
}

// IDs returns every node id in lexicographic order.
func (s *State) IDs() []string {
	return slices.Sorted(maps.Keys(s.Raw))
}

// RecomputeDerived rebuilds Unknowns and Assumptions from Raw. Archived
// nodes are excluded from both lists.
func (s *State) RecomputeDerived() {
	s.Unknowns = []string{}
	s.Assumptions = []string{}

	for _, id := range s.IDs() {
		n := s.Raw[id]
		if n.Archived() {
			continue
		}

		switch n.Kind {
		case KindUnknown:
			s.Unknowns = append(s.Unknowns, id)
		case KindAssumption:
			if n.AssumptionStatus != AssumptionRetracted {
				s.Assumptions = append(s.Assumptions, id)
			}
		}
	}
}

// LastEntry returns the most recent history entry and whether one exists.
func (s *State) LastEntry() (Entry, bool) {
	if len(s.History) == 0 {
		return Entry{}, false
	}
	return s.History[len(s.History)-1], true
}

// SummaryFor returns the compact summary for id, falling back to the node's
// own summary when the summary namespace has no entry.
func (s *State) SummaryFor(id string) string {
	if sum, ok := s.Summary[id]; ok && sum != "" {
		return sum
	}
	if n := s.Raw[id]; n != nil {
		return n.Summary
	}
	return ""
}

// Snapshot returns a clone with checkpoint bookkeeping dropped, suitable for
// persisting as a checkpoint.
func (s *State) Snapshot() *State {
	c := s.Clone()
	c.Checkpoints = nil
	return c
}
