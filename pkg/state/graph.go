package state

// EdgeKind identifies one of the node edge sets.
type EdgeKind int

const (
	EdgeDependsOn EdgeKind = iota
	EdgeContradicts
	EdgeTemporalAfter
	EdgeTemporalBefore
	EdgeParent
	EdgeChild

	edgeKindCount
)

// GatingEdges are the edge kinds that make a node wait on its targets.
var GatingEdges = []EdgeKind{EdgeDependsOn, EdgeTemporalAfter, EdgeTemporalBefore}

// Graph is an arena view over a state's nodes. Ids are interned to dense
// indexes in lexicographic order, and every edge kind carries both forward
// and precomputed reverse adjacency so traversal in either direction is a
// slice lookup rather than a scan over all nodes.
//
// A Graph is a read-only index: it is rebuilt from Raw whenever the edge
// structure may have changed. Edges to ids absent from Raw are dropped.
type Graph struct {
	ids   []string
	index map[string]int
	out   [edgeKindCount][][]int
	in    [edgeKindCount][][]int
}

// NewGraph builds the arena for the nodes in s.
func NewGraph(s *State) *Graph {
	ids := s.IDs()
	g := &Graph{
		ids:   ids,
		index: make(map[string]int, len(ids)),
	}

	for i, id := range ids {
		g.index[id] = i
	}

	for k := range edgeKindCount {
		g.out[k] = make([][]int, len(ids))
		g.in[k] = make([][]int, len(ids))
	}

	for i, id := range ids {
		n := s.Raw[id]
		g.link(EdgeDependsOn, i, n.DependsOn)
		g.link(EdgeContradicts, i, n.Contradicts)
		g.link(EdgeTemporalAfter, i, n.TemporalAfter)
		g.link(EdgeTemporalBefore, i, n.TemporalBefore)
		g.link(EdgeChild, i, n.Children)

		if n.ParentID != "" {
			g.link(EdgeParent, i, []string{n.ParentID})
		}

		if legacy := n.LegacyContradiction(); legacy != "" {
			g.link(EdgeContradicts, i, []string{legacy})
		}
	}

	return g
}

func (g *Graph) link(kind EdgeKind, from int, targets []string) {
	for _, t := range targets {
		to, ok := g.index[t]
		if !ok {
			continue
		}
		g.out[kind][from] = append(g.out[kind][from], to)
		g.in[kind][to] = append(g.in[kind][to], from)
	}
}

// Len returns the number of nodes in the arena.
func (g *Graph) Len() int {
	return len(g.ids)
}

// ID returns the node id interned at index i.
func (g *Graph) ID(i int) string {
	return g.ids[i]
}

// Index returns the arena index of id.
func (g *Graph) Index(id string) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// Out returns the targets of node i's edges of the given kind.
func (g *Graph) Out(kind EdgeKind, i int) []int {
	return g.out[kind][i]
}

// In returns the nodes whose edges of the given kind point at node i.
func (g *Graph) In(kind EdgeKind, i int) []int {
	return g.in[kind][i]
}

// Neighbors returns every node adjacent to i over any edge kind in either
// direction. The result may contain duplicates.
func (g *Graph) Neighbors(i int) []int {
	var out []int
	for k := range edgeKindCount {
		out = append(out, g.out[k][i]...)
		out = append(out, g.in[k][i]...)
	}
	return out
}

// Dependents returns the nodes that gate on node i directly.
func (g *Graph) Dependents(i int) []int {
	var out []int
	for _, k := range GatingEdges {
		out = append(out, g.in[k][i]...)
	}
	return out
}

// Reach walks the graph breadth-first from the given ids using next to
// produce successors, and returns the visited indexes in visit order.
// Unknown start ids are ignored.
func (g *Graph) Reach(start []string, next func(int) []int) []int {
	seen := make([]bool, len(g.ids))
	var queue, order []int

	for _, id := range start {
		i, ok := g.index[id]
		if !ok || seen[i] {
			continue
		}
		seen[i] = true
		queue = append(queue, i)
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)

		for _, nb := range next(cur) {
			if seen[nb] {
				continue
			}
			seen[nb] = true
			queue = append(queue, nb)
		}
	}

	return order
}
