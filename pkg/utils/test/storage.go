package testutils

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/memstate/pkg/state"
	"github.com/papercomputeco/memstate/pkg/storage"
)

// DescribeStorageDriver registers the behaviours every storage.Driver must
// share. newDriver is called once per test; the returned driver is closed
// after it.
func DescribeStorageDriver(name string, newDriver func() storage.Driver) bool {
	return Describe(name+" driver contract", func() {
		var (
			driver storage.Driver
			ctx    context.Context
		)

		BeforeEach(func() {
			ctx = context.Background()
			driver = nil
			driver = newDriver()
		})

		AfterEach(func() {
			if driver != nil {
				Expect(driver.Close()).To(Succeed())
			}
		})

		Describe("checkpoints", func() {
			It("saves and loads a state", func() {
				st := NewTestState(NewTestNode("a"), &state.Node{ID: "u", Kind: state.KindUnknown, Status: state.StatusOpen})
				st.Summary["a"] = "compact"
				st.Checkpoints = map[string]state.CheckpointRef{"old": {ID: "old"}}

				cp, err := driver.SaveCheckpoint(ctx, st, "first")
				Expect(err).NotTo(HaveOccurred())
				Expect(cp.ID).NotTo(BeEmpty())
				Expect(cp.Label).To(Equal("first"))
				Expect(cp.CreatedAt.IsZero()).To(BeFalse())

				snap, err := driver.LoadCheckpoint(ctx, cp.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(snap.ID).To(Equal(cp.ID))
				Expect(snap.Label).To(Equal("first"))
				Expect(snap.CreatedAt.Equal(cp.CreatedAt)).To(BeTrue())
				Expect(snap.State.Raw).To(HaveKey("a"))
				Expect(snap.State.Raw["a"].Summary).To(Equal("node a"))
				Expect(snap.State.Summary).To(HaveKeyWithValue("a", "compact"))
				Expect(snap.State.Unknowns).To(Equal([]string{"u"}))
				Expect(snap.State.Checkpoints).To(BeEmpty())
			})

			It("isolates the saved state from later changes", func() {
				st := NewTestState(NewTestNode("a"))
				cp, err := driver.SaveCheckpoint(ctx, st, "")
				Expect(err).NotTo(HaveOccurred())

				st.Raw["a"].Summary = "changed"
				st.Raw["b"] = NewTestNode("b")

				snap, err := driver.LoadCheckpoint(ctx, cp.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(snap.State.Raw).To(HaveLen(1))
				Expect(snap.State.Raw["a"].Summary).To(Equal("node a"))
			})

			It("returns NotFoundError for unknown ids", func() {
				_, err := driver.LoadCheckpoint(ctx, "missing")
				Expect(err).To(HaveOccurred())
				Expect(storage.IsNotFound(err)).To(BeTrue())
			})

			It("lists checkpoints oldest first", func() {
				first, err := driver.SaveCheckpoint(ctx, NewTestState(), "one")
				Expect(err).NotTo(HaveOccurred())
				second, err := driver.SaveCheckpoint(ctx, NewTestState(), "two")
				Expect(err).NotTo(HaveOccurred())

				list, err := driver.ListCheckpoints(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(list).To(HaveLen(2))
				Expect(list[0].ID).To(Equal(first.ID))
				Expect(list[1].ID).To(Equal(second.ID))
			})
		})

		Describe("log", func() {
			It("starts empty", func() {
				entries, err := driver.ReadLog(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(entries).To(BeEmpty())
			})

			It("reads entries back in append order", func() {
				entries := NewTestEntries()
				Expect(driver.AppendToLog(ctx, entries[:1])).To(Succeed())
				Expect(driver.AppendToLog(ctx, entries[1:])).To(Succeed())
				Expect(driver.AppendToLog(ctx, nil)).To(Succeed())

				got, err := driver.ReadLog(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(HaveLen(2))

				for i := range entries {
					Expect(got[i].Op).To(Equal(entries[i].Op))
					Expect(got[i].Path).To(Equal(entries[i].Path))
					Expect(got[i].Reason).To(Equal(entries[i].Reason))
					Expect(got[i].Seq).To(Equal(entries[i].Seq))
					Expect(got[i].Batch).To(Equal(entries[i].Batch))
					Expect(got[i].At.Equal(entries[i].At)).To(BeTrue())
					Expect(got[i].Value).To(MatchJSON(entries[i].Value))
				}
			})

			It("keeps rewind records after the entries they cut", func() {
				entries := NewTestEntries()
				rewind := state.NewRewindEntry(1, 1, entries[1].At.Add(time.Second), "restore checkpoint cp")
				again := entries[1]
				again.At = rewind.At.Add(time.Nanosecond)
				Expect(driver.AppendToLog(ctx, append(entries, rewind, again))).To(Succeed())

				got, err := driver.ReadLog(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(HaveLen(4))
				Expect(got[2].IsRewind()).To(BeTrue())
				Expect(got[2].Seq).To(Equal(1))
				Expect(got[2].Reason).To(Equal("restore checkpoint cp"))
				Expect(got[2].Value).To(BeEmpty())

				history := state.Linearize(got)
				Expect(history).To(HaveLen(2))
				Expect(history[1].At.Equal(again.At)).To(BeTrue())
			})
		})
	})
}
