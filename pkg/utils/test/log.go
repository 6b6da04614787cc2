package testutils

import (
	"encoding/json"
	"os"
	"time"

	. "github.com/onsi/gomega"

	"github.com/papercomputeco/memstate/pkg/engine"
	"github.com/papercomputeco/memstate/pkg/state"
)

// ApplyBatches runs each batch through a fresh engine with a stepping clock
// and returns the final state.
func ApplyBatches(batches ...[]state.Mutation) *state.State {
	eng := engine.New(engine.Config{
		Clock: SteppingClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Second),
	})

	st := state.New()
	for _, batch := range batches {
		next, err := eng.Apply(batch, st)
		Expect(err).NotTo(HaveOccurred())
		st = next
	}
	return st
}

// WriteTestLog applies batches and writes the resulting history to path as
// a JSONL mutation log, replacing any existing file.
func WriteTestLog(path string, batches ...[]state.Mutation) *state.State {
	st := ApplyBatches(batches...)
	WriteEntries(path, st.History)
	return st
}

// WriteEntries writes entries to path as JSONL, replacing any existing file.
func WriteEntries(path string, entries []state.Entry) {
	f, err := os.Create(path)
	Expect(err).NotTo(HaveOccurred())
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, e := range entries {
		Expect(enc.Encode(e)).To(Succeed())
	}
}

// UnknownNode returns an open unknown, which closes every gate.
func UnknownNode(id string) *state.Node {
	return &state.Node{ID: id, Kind: state.KindUnknown, Summary: "unknown " + id, Status: state.StatusOpen}
}
