package engine

import (
	"bytes"
	"container/heap"
	"encoding/json"
	"slices"
	"strings"

	"github.com/papercomputeco/memstate/pkg/state"
)

// Report summarizes one reconciliation pass.
type Report struct {
	// Propagated counts nodes marked dirty by propagation from the frontier.
	Propagated int

	// Clusters holds each contradiction cluster, winner first.
	Clusters [][]string

	// Blocked lists nodes that ended the pass blocked.
	Blocked []string
}

// reconcile restores consistency after a batch: propagate dirtiness from
// the touched frontier, resolve contradiction clusters by recency, backfill
// summaries, then gate and clear every node in dependency order. A blocked
// node that neither lost a contradiction nor fails its gate reopens. Nodes
// the batch explicitly submitted as dirty are pinned: they keep their
// submitted status and stay dirty until a later batch re-verifies them.
// reconcile never fails; every node ends in a valid status and dirty
// combination.
func reconcile(s *state.State, touched []string, pinned map[string]bool) Report {
	g := state.NewGraph(s)
	nodes := make([]*state.Node, g.Len())
	for i := range nodes {
		nodes[i] = s.Raw[g.ID(i)]
	}

	var report Report

	for _, i := range g.Reach(touched, g.Neighbors) {
		nodes[i].Dirty = true
		report.Propagated++
	}

	lost := make([]bool, len(nodes))
	for _, cluster := range contradictionClusters(g, nodes) {
		for _, i := range cluster[1:] {
			nodes[i].Status = state.StatusBlocked
			nodes[i].Dirty = true
			lost[i] = true
		}

		ids := make([]string, len(cluster))
		for k, i := range cluster {
			ids[k] = g.ID(i)
		}
		report.Clusters = append(report.Clusters, ids)
	}

	for _, n := range nodes {
		if n.Dirty && n.Summary == "" && len(n.Detail) > 0 {
			n.Summary = compactDetail(n.Detail)
		}
	}

	// Dependencies are settled before their dependents, so a chain of any
	// depth is gated against final dependency states in a single pass.
	for _, i := range dependencyOrder(g) {
		n := nodes[i]
		switch {
		case n.Archived():
			n.Dirty = false
		case lost[i]:
		case !dependenciesSatisfied(s, n):
			n.Status = state.StatusBlocked
			n.Dirty = true
		case pinned[n.ID]:
			n.Dirty = true
		default:
			// Not a cluster loser and not gated, so nothing blocks it any more.
			if n.Status == state.StatusBlocked {
				n.Status = state.StatusOpen
			}
			n.Dirty = false
		}
	}

	for i, n := range nodes {
		if n.Status == state.StatusBlocked {
			report.Blocked = append(report.Blocked, g.ID(i))
		}
	}

	return report
}

// dependencyOrder returns every node index with gating targets before the
// nodes that gate on them. Ready nodes are taken in id order; nodes left on
// dependency cycles follow in id order.
func dependencyOrder(g *state.Graph) []int {
	pending := make([]int, g.Len())
	for i := range pending {
		for _, k := range state.GatingEdges {
			pending[i] += len(g.Out(k, i))
		}
	}

	done := make([]bool, g.Len())
	order := make([]int, 0, g.Len())
	ready := &indexHeap{}
	for i, c := range pending {
		if c == 0 {
			heap.Push(ready, i)
		}
	}

	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		done[i] = true
		order = append(order, i)
		for _, d := range g.Dependents(i) {
			pending[d]--
			if pending[d] == 0 {
				heap.Push(ready, d)
			}
		}
	}

	for i := range done {
		if !done[i] {
			order = append(order, i)
		}
	}
	return order
}

// indexHeap is a min-heap of arena indexes; indexes follow id order.
type indexHeap []int

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(a, b int) bool { return h[a] < h[b] }
func (h indexHeap) Swap(a, b int)      { h[a], h[b] = h[b], h[a] }
func (h *indexHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

// dependenciesSatisfied reports whether every gating edge of n points at an
// existing, clean, unblocked node, and every temporalBefore target is
// resolved. Nodes without dependencies are trivially satisfied.
func dependenciesSatisfied(s *state.State, n *state.Node) bool {
	ready := func(id string) bool {
		dep := s.Raw[id]
		return dep != nil && !dep.Dirty && dep.Status != state.StatusBlocked
	}

	for _, id := range n.DependsOn {
		if !ready(id) {
			return false
		}
	}
	for _, id := range n.TemporalAfter {
		if !ready(id) {
			return false
		}
	}
	for _, id := range n.TemporalBefore {
		if !ready(id) || s.Raw[id].Status != state.StatusResolved {
			return false
		}
	}
	return true
}

// live reports whether n takes part in contradiction detection.
func live(n *state.Node) bool {
	return !n.Archived() && n.Status != state.StatusResolved
}

// contradictionClusters groups live contradiction pairs into connected
// clusters. Each cluster is returned winner first, followed by the losers
// in id order; clusters are ordered by their smallest member.
func contradictionClusters(g *state.Graph, nodes []*state.Node) [][]int {
	parent := make([]int, len(nodes))
	for i := range parent {
		parent[i] = i
	}

	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	member := make([]bool, len(nodes))
	for i := range nodes {
		if !live(nodes[i]) {
			continue
		}
		for _, j := range g.Out(state.EdgeContradicts, i) {
			if i == j || !live(nodes[j]) {
				continue
			}
			member[i], member[j] = true, true
			if ri, rj := find(i), find(j); ri != rj {
				parent[max(ri, rj)] = min(ri, rj)
			}
		}
	}

	groups := make(map[int][]int)
	var roots []int
	for i := range nodes {
		if !member[i] {
			continue
		}
		r := find(i)
		if _, ok := groups[r]; !ok {
			roots = append(roots, r)
		}
		groups[r] = append(groups[r], i)
	}

	clusters := make([][]int, 0, len(roots))
	for _, r := range roots {
		members := groups[r]
		w := slices.MaxFunc(members, func(a, b int) int {
			return compareRecency(g, nodes, a, b)
		})

		cluster := []int{w}
		for _, i := range members {
			if i != w {
				cluster = append(cluster, i)
			}
		}
		clusters = append(clusters, cluster)
	}
	return clusters
}

// compareRecency orders nodes by last touch, breaking ties by id so the
// lexicographically greatest id wins.
func compareRecency(g *state.Graph, nodes []*state.Node, a, b int) int {
	if c := nodes[a].LastTouched().Compare(nodes[b].LastTouched()); c != 0 {
		return c
	}
	return strings.Compare(g.ID(a), g.ID(b))
}

// Contradictions returns the live contradiction clusters of st, each as
// sorted ids. The result is empty when st is contradiction free.
func Contradictions(st *state.State) [][]string {
	g := state.NewGraph(st)
	nodes := make([]*state.Node, g.Len())
	for i := range nodes {
		nodes[i] = st.Raw[g.ID(i)]
	}

	var out [][]string
	for _, cluster := range contradictionClusters(g, nodes) {
		ids := make([]string, len(cluster))
		for k, i := range cluster {
			ids[k] = g.ID(i)
		}
		slices.Sort(ids)
		out = append(out, ids)
	}
	return out
}

// contradicted returns every node id in a live contradiction, sorted.
func contradicted(st *state.State) []string {
	var ids []string
	for _, cluster := range Contradictions(st) {
		ids = append(ids, cluster...)
	}
	slices.Sort(ids)
	return ids
}

func compactDetail(detail json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, detail); err != nil {
		return string(detail)
	}
	return buf.String()
}
