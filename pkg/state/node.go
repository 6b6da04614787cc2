// Package state holds the memory graph data model: nodes, the snapshot that
// contains them, and the ordered mutation log that produced it.
package state

import (
	"encoding/json"
	"slices"
	"time"
)

// Kind is the category of a memory node.
type Kind string

const (
	KindFact       Kind = "fact"
	KindUnknown    Kind = "unknown"
	KindAssumption Kind = "assumption"
	KindAction     Kind = "action"
	KindPlanning   Kind = "planning"
)

// Kinds lists every valid node kind.
var Kinds = []Kind{KindFact, KindUnknown, KindAssumption, KindAction, KindPlanning}

// Valid reports whether k is a member of Kinds.
func (k Kind) Valid() bool {
	return slices.Contains(Kinds, k)
}

// Status is the lifecycle status of a node.
type Status string

const (
	StatusOpen     Status = "open"
	StatusBlocked  Status = "blocked"
	StatusResolved Status = "resolved"
	StatusDirty    Status = "dirty"
	StatusArchived Status = "archived"
)

// Statuses lists every valid node status.
var Statuses = []Status{StatusOpen, StatusBlocked, StatusResolved, StatusDirty, StatusArchived}

// Valid reports whether s is a member of Statuses.
func (s Status) Valid() bool {
	return slices.Contains(Statuses, s)
}

// AssumptionStatus tracks the validity of an assumption-kind node. It is
// independent of Status and unused by every other kind.
type AssumptionStatus string

const (
	AssumptionValid      AssumptionStatus = "valid"
	AssumptionRetracted  AssumptionStatus = "retracted"
	AssumptionSuperseded AssumptionStatus = "superseded"
	AssumptionUnknown    AssumptionStatus = "unknown"
	AssumptionResolved   AssumptionStatus = "resolved"
)

// AssumptionStatuses lists every valid assumption status.
var AssumptionStatuses = []AssumptionStatus{
	AssumptionValid,
	AssumptionRetracted,
	AssumptionSuperseded,
	AssumptionUnknown,
	AssumptionResolved,
}

// Valid reports whether a is a member of AssumptionStatuses.
func (a AssumptionStatus) Valid() bool {
	return slices.Contains(AssumptionStatuses, a)
}

// Node is the atomic unit of memory.
type Node struct {
	// ID is unique, stable and immutable once created. It is used inside
	// mutation paths so it never contains a '/'.
	ID string `json:"id"`

	Kind Kind `json:"kind"`

	// Summary is an optional human-readable one-liner.
	Summary string `json:"summary,omitempty"`

	// Detail is an opaque structured payload. The engine never interprets
	// it, except for the legacy single-id "contradicts" field.
	Detail json.RawMessage `json:"detail,omitempty"`

	DependsOn      []string `json:"dependsOn,omitempty"`
	Contradicts    []string `json:"contradicts,omitempty"`
	TemporalAfter  []string `json:"temporalAfter,omitempty"`
	TemporalBefore []string `json:"temporalBefore,omitempty"`

	// ParentID and Children form a pure hierarchy. They are only consulted
	// as neighbors during dirty propagation.
	ParentID string   `json:"parentId,omitempty"`
	Children []string `json:"children,omitempty"`

	Status           Status           `json:"status"`
	AssumptionStatus AssumptionStatus `json:"assumptionStatus,omitempty"`
	Dirty            bool             `json:"dirty"`

	// CreatedAt and UpdatedAt are engine managed. The zero time means the
	// node was never stamped.
	CreatedAt time.Time `json:"createdAt,omitzero"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}

	c := *n
	c.Detail = slices.Clone(n.Detail)
	c.DependsOn = slices.Clone(n.DependsOn)
	c.Contradicts = slices.Clone(n.Contradicts)
	c.TemporalAfter = slices.Clone(n.TemporalAfter)
	c.TemporalBefore = slices.Clone(n.TemporalBefore)
	c.Children = slices.Clone(n.Children)
	return &c
}

// LastTouched returns the most recent of UpdatedAt and CreatedAt.
func (n *Node) LastTouched() time.Time {
	if n.UpdatedAt.After(n.CreatedAt) {
		return n.UpdatedAt
	}
	return n.CreatedAt
}

// Dependencies returns every target the node gates on, in edge order:
// dependsOn, temporalAfter, then temporalBefore.
func (n *Node) Dependencies() []string {
	deps := make([]string, 0, len(n.DependsOn)+len(n.TemporalAfter)+len(n.TemporalBefore))
	deps = append(deps, n.DependsOn...)
	deps = append(deps, n.TemporalAfter...)
	deps = append(deps, n.TemporalBefore...)
	return deps
}

// Archived reports whether the node has been retired.
func (n *Node) Archived() bool {
	return n.Status == StatusArchived
}

// LegacyContradiction returns the single id held in the detail payload's
// "contradicts" field, kept for payloads written before contradicts became
// an edge set. It returns "" when absent or not a string.
func (n *Node) LegacyContradiction() string {
	if len(n.Detail) == 0 {
		return ""
	}

	var legacy struct {
		Contradicts any `json:"contradicts"`
	}
	if err := json.Unmarshal(n.Detail, &legacy); err != nil {
		return ""
	}

	id, _ := legacy.Contradicts.(string)
	return id
}

// Normalize sorts and de-duplicates every edge set so that equal graphs
// compare equal regardless of the order a caller listed edges in.
func (n *Node) Normalize() {
	n.DependsOn = normalizeEdges(n.DependsOn)
	n.Contradicts = normalizeEdges(n.Contradicts)
	n.TemporalAfter = normalizeEdges(n.TemporalAfter)
	n.TemporalBefore = normalizeEdges(n.TemporalBefore)
	n.Children = normalizeEdges(n.Children)
}

func normalizeEdges(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
