package contextbuilder

import (
	"github.com/papercomputeco/memstate/pkg/state"
)

// Selector reports whether n belongs in a bucket.
type Selector func(n *state.Node) bool

// Bucket is one labeled section of the context view.
type Bucket struct {
	Label    string
	Selector Selector

	// TopK caps the section. Zero means no cap.
	TopK int
}

// OfKind selects nodes of any of the given kinds.
func OfKind(kinds ...state.Kind) Selector {
	return func(n *state.Node) bool {
		for _, k := range kinds {
			if n.Kind == k {
				return true
			}
		}
		return false
	}
}

// Any selects nodes matched by at least one selector.
func Any(selectors ...Selector) Selector {
	return func(n *state.Node) bool {
		for _, s := range selectors {
			if s(n) {
				return true
			}
		}
		return false
	}
}

// IsDirty selects nodes awaiting re-verification.
func IsDirty(n *state.Node) bool {
	return n.Dirty
}

// InvalidAssumption selects assumptions whose assumption status is anything
// other than valid. These are the assumptions that block actions.
func InvalidAssumption(n *state.Node) bool {
	return n.Kind == state.KindAssumption && n.AssumptionStatus != state.AssumptionValid
}

// IsBlocker selects what stands between the graph and execution.
var IsBlocker = Any(OfKind(state.KindUnknown), IsDirty, InvalidAssumption)

// DefaultBuckets returns the standard section layout. A node may appear in
// more than one section.
func DefaultBuckets() []Bucket {
	return []Bucket{
		{Label: "Blockers", Selector: IsBlocker, TopK: 10},
		{Label: "Assumptions", Selector: OfKind(state.KindAssumption), TopK: 10},
		{Label: "Unknowns", Selector: OfKind(state.KindUnknown), TopK: 10},
		{Label: "Facts", Selector: OfKind(state.KindFact), TopK: 20},
		{Label: "Plan", Selector: OfKind(state.KindPlanning), TopK: 10},
		{Label: "Actions", Selector: OfKind(state.KindAction), TopK: 10},
	}
}

func kindPriority(k state.Kind) int {
	switch k {
	case state.KindAssumption:
		return 0
	case state.KindUnknown:
		return 1
	case state.KindFact:
		return 2
	case state.KindPlanning:
		return 3
	case state.KindAction:
		return 4
	default:
		return 5
	}
}
