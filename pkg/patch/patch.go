// Package patch turns wire mutations into typed patches. Parsing is the
// only way to obtain a Patch, so an illegal shape cannot reach the engine:
// a NodeReplace always carries a schema-valid node and a SummaryReplace
// always carries a plain string.
package patch

import (
	"github.com/papercomputeco/memstate/pkg/state"
)

// Header carries the fields shared by every patch.
type Header struct {
	Op     state.Op
	ID     string
	Reason string
}

// Patch is a parsed mutation: either NodeReplace or SummaryReplace.
type Patch interface {
	Meta() Header
	sealed()
}

// NodeReplace sets raw[ID] to Node.
type NodeReplace struct {
	Header
	Node *state.Node
}

// SummaryReplace sets summary[ID] to Summary.
type SummaryReplace struct {
	Header
	Summary string
}

func (p NodeReplace) Meta() Header    { return p.Header }
func (p SummaryReplace) Meta() Header { return p.Header }

func (NodeReplace) sealed()    {}
func (SummaryReplace) sealed() {}

// References returns every node id the patch's edges point at. Ids held in
// the opaque detail payload are not included.
func (p NodeReplace) References() []string {
	n := p.Node
	refs := n.Dependencies()
	refs = append(refs, n.Contradicts...)
	refs = append(refs, n.Children...)
	if n.ParentID != "" {
		refs = append(refs, n.ParentID)
	}
	return refs
}
