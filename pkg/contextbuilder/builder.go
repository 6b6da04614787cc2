// Package contextbuilder renders a bounded, prioritized text view of a
// memory graph for a model to read. Building never changes the state.
package contextbuilder

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/papercomputeco/memstate/pkg/state"
)

const (
	// DefaultBudget is the character budget used when Options.Budget is unset.
	DefaultBudget = 4000

	// DefaultHistoryDepth is the number of trailing log entries rendered
	// when history is included without a depth.
	DefaultHistoryDepth = 5

	// DefaultIndexTopK is the number of ids requested from the index.
	DefaultIndexTopK = 20
)

// Options configures Build.
type Options struct {
	// Budget is the maximum output length in characters.
	Budget int

	IncludeHistory bool
	HistoryDepth   int

	// Buckets defaults to DefaultBuckets.
	Buckets []Bucket

	// Index, when set together with Query, moves the ids it ranks to the
	// front of every bucket in rank order. It never adds or removes nodes.
	Index Index
	Query string
	TopK  int
}

// Build renders st. Sections appear in bucket order and empty sections are
// omitted. Archived nodes never appear.
func Build(ctx context.Context, st *state.State, opts Options) (string, error) {
	if opts.Budget <= 0 {
		opts.Budget = DefaultBudget
	}
	if opts.HistoryDepth <= 0 {
		opts.HistoryDepth = DefaultHistoryDepth
	}
	if opts.Buckets == nil {
		opts.Buckets = DefaultBuckets()
	}
	if st == nil {
		st = state.New()
	}

	var rank map[string]int
	if opts.Index != nil && opts.Query != "" {
		k := opts.TopK
		if k <= 0 {
			k = DefaultIndexTopK
		}
		ids, err := opts.Index.Rank(ctx, opts.Query, k)
		if err != nil {
			return "", fmt.Errorf("ranking context: %w", err)
		}
		rank = make(map[string]int, len(ids))
		for i, id := range ids {
			if _, seen := rank[id]; !seen {
				rank[id] = i
			}
		}
	}

	var b strings.Builder
	for _, bucket := range opts.Buckets {
		nodes := Select(st, bucket, rank)
		if len(nodes) == 0 {
			continue
		}

		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "### %s\n", bucket.Label)
		for _, n := range nodes {
			b.WriteString(line(st, n))
		}
	}

	if opts.IncludeHistory && len(st.History) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("### Recent Changes\n")
		start := max(len(st.History)-opts.HistoryDepth, 0)
		for _, e := range st.History[start:] {
			fmt.Fprintf(&b, "- #%d %s %s", e.Seq, e.Op, e.Path)
			if e.Reason != "" {
				fmt.Fprintf(&b, ": %s", e.Reason)
			}
			b.WriteString("\n")
		}
	}

	return truncate(b.String(), opts.Budget), nil
}

// Select returns the non-archived nodes matched by bucket in render order,
// capped at bucket.TopK. Ids present in rank come first, in rank order.
func Select(st *state.State, bucket Bucket, rank map[string]int) []*state.Node {
	var nodes []*state.Node
	for _, n := range st.Raw {
		if n.Archived() || bucket.Selector == nil || !bucket.Selector(n) {
			continue
		}
		nodes = append(nodes, n)
	}

	slices.SortFunc(nodes, func(a, b *state.Node) int {
		ra, aRanked := rank[a.ID]
		rb, bRanked := rank[b.ID]
		switch {
		case aRanked && bRanked:
			if c := cmp.Compare(ra, rb); c != 0 {
				return c
			}
		case aRanked:
			return -1
		case bRanked:
			return 1
		}
		return compareNodes(a, b)
	})

	if bucket.TopK > 0 && len(nodes) > bucket.TopK {
		nodes = nodes[:bucket.TopK]
	}
	return nodes
}

// compareNodes orders dirty nodes first, then by kind priority, then most
// recently touched, then by id.
func compareNodes(a, b *state.Node) int {
	if a.Dirty != b.Dirty {
		if a.Dirty {
			return -1
		}
		return 1
	}
	if c := cmp.Compare(kindPriority(a.Kind), kindPriority(b.Kind)); c != 0 {
		return c
	}
	if c := b.LastTouched().Compare(a.LastTouched()); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func line(st *state.State, n *state.Node) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- [%s] %s", n.Kind, n.ID)

	marks := []string{string(n.Status)}
	if n.Kind == state.KindAssumption && n.AssumptionStatus != "" {
		marks = append(marks, string(n.AssumptionStatus))
	}
	if n.Dirty {
		marks = append(marks, "dirty")
	}
	fmt.Fprintf(&b, " (%s)", strings.Join(marks, ", "))

	if text := st.SummaryFor(n.ID); text != "" {
		b.WriteString(": ")
		b.WriteString(strings.Join(strings.Fields(text), " "))
	}
	b.WriteString("\n")
	return b.String()
}

// truncate cuts s to at most budget characters without splitting a rune.
func truncate(s string, budget int) string {
	if utf8.RuneCountInString(s) <= budget {
		return s
	}
	n := 0
	for i := range s {
		if n == budget {
			return s[:i]
		}
		n++
	}
	return s
}
