package state

import "time"

// OpRewind marks a log record, never a mutation. patch.Parse rejects it, so
// it cannot arrive in a batch.
const OpRewind Op = "rewind"

// NewRewindEntry records that the history was cut back to its first to
// entries. Seq carries to; batch is the batch of the last kept entry.
func NewRewindEntry(to, batch int, at time.Time, reason string) Entry {
	return Entry{
		Mutation: Mutation{Op: OpRewind, Reason: reason},
		Seq:      to,
		Batch:    batch,
		At:       at,
	}
}

// IsRewind reports whether e is a rewind record.
func (e Entry) IsRewind() bool {
	return e.Op == OpRewind
}

// Linearize resolves an append-only log into the history it describes.
// Entries are taken in order and a rewind record drops everything collected
// past its Seq.
func Linearize(log []Entry) []Entry {
	out := make([]Entry, 0, len(log))
	for _, e := range log {
		if e.IsRewind() {
			out = out[:min(max(e.Seq, 0), len(out))]
			continue
		}
		out = append(out, e)
	}
	return out
}

// SharedPrefix returns how many leading entries a and b have in common.
// Values are not compared, since a storage round trip may re-encode them.
func SharedPrefix(a, b []Entry) int {
	n := 0
	for n < len(a) && n < len(b) && sameRecord(a[n], b[n]) {
		n++
	}
	return n
}

func sameRecord(a, b Entry) bool {
	return a.Seq == b.Seq && a.Batch == b.Batch && a.At.Equal(b.At) && a.Op == b.Op && a.Path == b.Path
}
