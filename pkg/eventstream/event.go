// Package eventstream carries change notifications about a memory graph to
// external consumers.
package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/memstate/pkg/state"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeBatchApplied is emitted after a mutation batch is applied.
	EventTypeBatchApplied = "memstate.batch.applied"
)

// BatchAppliedEvent is a transport-neutral event payload for one applied
// batch.
type BatchAppliedEvent struct {
	SchemaVersion int           `json:"schema_version"`
	EventType     string        `json:"event_type"`
	EventID       string        `json:"event_id"`
	EmittedAt     time.Time     `json:"emitted_at"`
	Session       string        `json:"session,omitempty"`
	Batch         int           `json:"batch"`
	Entries       []state.Entry `json:"entries"`

	// Touched lists the node ids the batch addressed, sorted.
	Touched []string `json:"touched"`

	// CanExecute is the gate outcome for each kind after the batch.
	CanExecute map[state.Kind]bool `json:"can_execute"`
}

// NewBatchAppliedEvent builds an event for entries. The batch is that of the
// last entry, since a leading rewind record carries an older one.
func NewBatchAppliedEvent(session string, entries []state.Entry, touched []string, gate map[state.Kind]bool) *BatchAppliedEvent {
	batch := 0
	if len(entries) > 0 {
		batch = entries[len(entries)-1].Batch
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}

	return &BatchAppliedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeBatchApplied,
		EventID:       id.String(),
		EmittedAt:     time.Now().UTC(),
		Session:       session,
		Batch:         batch,
		Entries:       entries,
		Touched:       touched,
		CanExecute:    gate,
	}
}
