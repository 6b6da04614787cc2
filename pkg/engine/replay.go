package engine

import (
	"fmt"

	"github.com/papercomputeco/memstate/pkg/state"
)

// Replay re-applies history onto base (an empty state when nil) and returns
// the result. Entries are regrouped by batch so reconciliation runs at the
// boundaries it originally ran at, and their recorded timestamps are reused,
// which makes the replayed Raw identical to the live one. Entries whose
// sequence number is already present in base are skipped, so replaying a
// log onto its own result is a no-op. Rewind records are resolved first, so
// a stored log replays to the history it describes.
func (e *Engine) Replay(history []state.Entry, base *state.State) (*state.State, error) {
	st := base.Clone()
	history = state.Linearize(history)

	last, _ := st.LastEntry()
	var pending []state.Entry

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		next, err := e.applyEntries(st, pending)
		if err != nil {
			return fmt.Errorf("replaying batch %d: %w", pending[0].Batch, err)
		}
		st = next
		pending = nil
		return nil
	}

	for _, en := range history {
		if en.Seq > 0 && en.Seq <= last.Seq {
			continue
		}

		if len(pending) > 0 && en.Batch != pending[0].Batch {
			if err := flush(); err != nil {
				return nil, err
			}
		}

		if en.At.IsZero() {
			prev, _ := st.LastEntry()
			if len(pending) > 0 {
				prev = pending[len(pending)-1]
			}
			en.At = e.stamp(prev.At)
		}
		if en.Seq == 0 {
			en.Seq = len(st.History) + len(pending) + 1
		}

		pending = append(pending, en)
	}

	if err := flush(); err != nil {
		return nil, err
	}
	return st, nil
}
