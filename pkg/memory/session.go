// Package memory provides Session, the managed owner of one memory state.
//
// The engine is a set of pure functions over states and does no locking of
// its own. A Session holds the current snapshot, serializes every writer
// through a mutex and hands each applied batch to a worker pool for its
// side effects (log append, index sync, change event). Readers always get a
// copy of a complete snapshot.
package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/papercomputeco/memstate/pkg/contextbuilder"
	"github.com/papercomputeco/memstate/pkg/engine"
	"github.com/papercomputeco/memstate/pkg/state"
	"github.com/papercomputeco/memstate/pkg/worker"
)

// DefaultSessionName is used when Config.Name is empty.
const DefaultSessionName = "default"

// Config configures a Session.
type Config struct {
	// Name identifies the session in events and logs.
	Name string

	Engine *engine.Engine

	// Pool receives a job for every change. Optional; the caller owns it.
	Pool *worker.Pool

	// Index ranks nodes for Context when the options carry a query.
	Index contextbuilder.Index

	// Initial is the starting state. It is copied.
	Initial *state.State

	Logger *zap.Logger
}

// Session owns one memory state.
type Session struct {
	name   string
	engine *engine.Engine
	pool   *worker.Pool
	index  contextbuilder.Index
	logger *zap.Logger

	mu     sync.RWMutex
	st     *state.State
	closed bool
}

// NewSession creates a session over c.Initial, or an empty state.
func NewSession(c Config) (*Session, error) {
	if c.Engine == nil {
		return nil, ErrNoEngine
	}
	if c.Name == "" {
		c.Name = DefaultSessionName
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	st := c.Initial.Clone()
	st.RecomputeDerived()

	return &Session{
		name:   c.Name,
		engine: c.Engine,
		pool:   c.Pool,
		index:  c.Index,
		logger: c.Logger.With(zap.String("session", c.Name)),
		st:     st,
	}, nil
}

// Name returns the session name.
func (s *Session) Name() string {
	return s.name
}

// State returns a copy of the current snapshot.
func (s *Session) State() *state.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.Clone()
}

// Node returns a copy of the node with the given id.
func (s *Session) Node(id string) (*state.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := s.st.Node(id)
	return n.Clone(), n != nil
}

// Apply applies batch and returns a copy of the new snapshot. On error the
// session state is unchanged.
func (s *Session) Apply(_ context.Context, batch []state.Mutation) (*state.State, error) {
	return s.update(func(st *state.State) (*state.State, error) {
		return s.engine.Apply(batch, st)
	})
}

// Heal resolves live contradictions, optionally rewinding to a checkpoint
// first.
func (s *Session) Heal(ctx context.Context, fromCheckpoint string) (*state.State, error) {
	return s.rewindable("self-heal from checkpoint "+fromCheckpoint, func(st *state.State) (*state.State, error) {
		return s.engine.SelfHeal(ctx, st, fromCheckpoint)
	})
}

// RollbackPlan returns the batch Rollback would apply for id.
func (s *Session) RollbackPlan(id string) ([]state.Mutation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return engine.RollbackPatches(s.st, id)
}

// Rollback marks every dependent of id blocked and dirty through the normal
// write path.
func (s *Session) Rollback(_ context.Context, id string) (*state.State, error) {
	return s.update(func(st *state.State) (*state.State, error) {
		batch, err := engine.RollbackPatches(st, id)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			return st, nil
		}
		return s.engine.Apply(batch, st)
	})
}

// Attempt runs fn through the engine's retry-then-rollback loop. On
// engine.ErrUnresolved the session keeps its pre-attempt state.
func (s *Session) Attempt(ctx context.Context, fn engine.AttemptFunc, maxAttempts int) (*state.State, error) {
	return s.update(func(st *state.State) (*state.State, error) {
		return s.engine.Attempt(ctx, st, fn, maxAttempts)
	})
}

// Checkpoint saves the current state and returns the checkpoint id.
func (s *Session) Checkpoint(ctx context.Context, label string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}

	next := s.st.Clone()
	id, err := s.engine.Save(ctx, next, label)
	if err != nil {
		return "", err
	}
	s.st = next
	return id, nil
}

// Checkpoints lists the checkpoints taken of this session, oldest first.
func (s *Session) Checkpoints() []state.CheckpointRef {
	s.mu.RLock()
	defer s.mu.RUnlock()

	refs := slices.Collect(maps.Values(s.st.Checkpoints))
	slices.SortFunc(refs, func(a, b state.CheckpointRef) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return refs
}

// Restore replaces the current state with checkpoint id. The checkpoint
// list is kept, and the storage log gets a rewind record so that replaying
// it reproduces the restored state.
func (s *Session) Restore(ctx context.Context, id string) (*state.State, error) {
	next, err := s.rewindable("restore checkpoint "+id, func(st *state.State) (*state.State, error) {
		loaded, err := s.engine.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		loaded.Checkpoints = maps.Clone(st.Checkpoints)
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("restored checkpoint", zap.String("checkpoint", id), zap.Int("history", len(next.History)))
	return next, nil
}

// CanExecute gates kind against the current state.
func (s *Session) CanExecute(kind state.Kind) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.CanExecute(kind, s.st)
}

// Context renders the current state. The session index is used when opts
// carries a query and no index of its own.
func (s *Session) Context(ctx context.Context, opts contextbuilder.Options) (string, error) {
	if opts.Index == nil && s.index != nil {
		opts.Index = s.index
	}

	s.mu.RLock()
	st := s.st
	s.mu.RUnlock()

	// st is never modified once published, so building outside the lock is safe.
	return contextbuilder.Build(ctx, st, opts)
}

// Close rejects further writes. It does not close the worker pool.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// update runs fn against the current state under the write lock, installs
// the result and enqueues the entries it added.
func (s *Session) update(fn func(st *state.State) (*state.State, error)) (*state.State, error) {
	return s.rewindable("rewind", fn)
}

// rewindable is update for writers that may cut history back, as a
// checkpoint restore does. reason labels the rewind record.
func (s *Session) rewindable(reason string, fn func(st *state.State) (*state.State, error)) (*state.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	prev := s.st
	next, err := fn(prev)
	if next == nil || err != nil {
		return next, err
	}

	s.st = next
	entries, touched := s.logEntries(prev, next, reason)
	s.enqueue(entries, touched, next)
	return next.Clone(), nil
}

// logEntries returns what must be appended to the storage log to move it
// from prev to next, and the node ids that changed. Entries past the shared
// history are appended. If prev had entries next lacks, a rewind record
// comes first, and the nodes of the dropped entries count as touched.
func (s *Session) logEntries(prev, next *state.State, reason string) ([]state.Entry, []string) {
	n := state.SharedPrefix(prev.History, next.History)
	added := slices.Clone(next.History[n:])
	if n == len(prev.History) {
		return added, TouchedIDs(added)
	}

	batch := 0
	if n > 0 {
		batch = next.History[n-1].Batch
	}
	entries := append([]state.Entry{state.NewRewindEntry(n, batch, s.engine.Now(), reason)}, added...)
	return entries, TouchedIDs(append(slices.Clone(prev.History[n:]), added...))
}

func (s *Session) enqueue(entries []state.Entry, touched []string, st *state.State) {
	if s.pool == nil || len(entries) == 0 {
		return
	}

	gate := make(map[state.Kind]bool, len(state.Kinds))
	for _, k := range state.Kinds {
		gate[k] = engine.CanExecute(k, st)
	}

	s.pool.Enqueue(worker.Job{
		Session: s.name,
		Entries: entries,
		State:   st,
		Touched: touched,
		Gate:    gate,
	})
}

// TouchedIDs returns the sorted, distinct node ids addressed by entries,
// under either path namespace.
func TouchedIDs(entries []state.Entry) []string {
	var ids []string
	for _, e := range entries {
		for _, prefix := range []string{state.RawPrefix, state.SummaryPrefix} {
			if id, ok := strings.CutPrefix(e.Path, prefix); ok {
				ids = append(ids, id)
			}
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}
