// Package engine applies mutation batches to memory states and keeps them
// consistent. Apply validates, clones, applies, logs and reconciles; the
// rest of the package layers checkpointing, replay, self-heal and rollback
// on top of it.
package engine

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/memstate/pkg/metrics"
	"github.com/papercomputeco/memstate/pkg/patch"
	"github.com/papercomputeco/memstate/pkg/state"
	"github.com/papercomputeco/memstate/pkg/storage"
)

// Config configures an Engine.
type Config struct {
	// Storage persists checkpoints. Save, Load and checkpoint rewinds fail
	// with ErrNoStorage when it is nil.
	Storage storage.Driver

	// Clock supplies timestamps. Defaults to time.Now.
	Clock func() time.Time

	// Metrics records batch and gate metrics. May be nil.
	Metrics *metrics.Recorder

	Logger *zap.Logger
}

// Engine is stateless apart from its dependencies; a single Engine may be
// shared by any number of states.
type Engine struct {
	store   storage.Driver
	clock   func() time.Time
	metrics *metrics.Recorder
	logger  *zap.Logger
}

// New creates an engine.
func New(c Config) *Engine {
	e := &Engine{
		store:   c.Storage,
		clock:   c.Clock,
		metrics: c.Metrics,
		logger:  c.Logger,
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e
}

// Apply validates batch against st and returns a new, reconciled state.
// Either every mutation is applied or none is: on error st is untouched and
// the returned state is nil. st itself is never modified.
func (e *Engine) Apply(batch []state.Mutation, st *state.State) (*state.State, error) {
	if st == nil {
		st = state.New()
	}

	last, _ := st.LastEntry()
	entries := make([]state.Entry, len(batch))
	at := last.At
	for i, m := range batch {
		at = e.stamp(at)
		entries[i] = state.Entry{
			Mutation: m,
			Seq:      len(st.History) + i + 1,
			Batch:    last.Batch + 1,
			At:       at,
		}
	}

	return e.applyEntries(st, entries)
}

// Now returns the engine clock reading in UTC.
func (e *Engine) Now() time.Time {
	return e.clock().Round(0).UTC()
}

// stamp returns the clock reading, bumped past prev so that timestamps in a
// state's history are strictly increasing.
func (e *Engine) stamp(prev time.Time) time.Time {
	now := e.Now()
	if !now.After(prev) {
		now = prev.Add(time.Nanosecond)
	}
	return now
}

// applyEntries is the shared write path of Apply and Replay: entries carry
// their own sequence, batch and timestamp.
func (e *Engine) applyEntries(st *state.State, entries []state.Entry) (*state.State, error) {
	patches, err := parseAll(entries)
	if err != nil {
		e.metrics.ObserveRejected()
		return nil, err
	}

	created := make(map[string]bool)
	for _, p := range patches {
		if nr, ok := p.(patch.NodeReplace); ok {
			created[nr.ID] = true
		}
	}

	next := st.Clone()
	var touched []string
	pinned := make(map[string]bool)

	for i, p := range patches {
		en := entries[i]

		switch p := p.(type) {
		case patch.NodeReplace:
			prev := next.Raw[p.ID]
			if p.Op == state.OpReplace && prev == nil {
				e.metrics.ObserveRejected()
				return nil, patch.AtIndex(&patch.ValidationError{
					Path:   en.Path,
					Field:  "path",
					Reason: fmt.Sprintf("replace of unknown node %q", p.ID),
				}, i)
			}

			exists := func(id string) bool { return next.Raw[id] != nil || created[id] }
			if err := patch.CheckReferences(p, en.Path, exists); err != nil {
				e.metrics.ObserveRejected()
				return nil, patch.AtIndex(err, i)
			}

			n := p.Node.Clone()
			n.CreatedAt = en.At
			if prev != nil && !prev.CreatedAt.IsZero() {
				n.CreatedAt = prev.CreatedAt
			}
			n.UpdatedAt = en.At

			next.Raw[p.ID] = n
			touched = append(touched, p.ID)
			pinned[p.ID] = n.Dirty

		case patch.SummaryReplace:
			next.Summary[p.ID] = p.Summary
		}

		en.Value = cloneRaw(en.Value)
		next.History = append(next.History, en)
	}

	next.RecomputeDerived()

	start := time.Now()
	report := reconcile(next, touched, pinned)
	e.metrics.ObserveBatch(len(entries), time.Since(start), len(report.Clusters))

	if len(entries) > 0 {
		e.logger.Debug("applied batch",
			zap.Int("batch", entries[0].Batch),
			zap.Int("mutations", len(entries)),
			zap.Strings("touched", touched),
			zap.Int("propagated", report.Propagated),
			zap.Int("contradiction_clusters", len(report.Clusters)),
			zap.Strings("blocked", report.Blocked),
		)
	}

	return next, nil
}

func parseAll(entries []state.Entry) ([]patch.Patch, error) {
	patches := make([]patch.Patch, len(entries))
	for i, en := range entries {
		p, err := patch.Parse(en.Mutation)
		if err != nil {
			return nil, patch.AtIndex(err, i)
		}
		patches[i] = p
	}
	return patches, nil
}

func cloneRaw(v []byte) []byte {
	if v == nil {
		return nil
	}
	return append([]byte(nil), v...)
}
