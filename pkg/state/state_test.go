package state_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/memstate/pkg/state"
)

var _ = Describe("State", func() {
	Describe("Clone", func() {
		It("does not alias nodes, summaries or history", func() {
			s := state.New()
			s.Raw["a"] = &state.Node{ID: "a", Kind: state.KindFact, Status: state.StatusOpen, DependsOn: []string{"b"}}
			s.Summary["a"] = "alpha"
			s.History = append(s.History, state.Entry{Seq: 1, Mutation: state.Mutation{Op: state.OpAdd, Path: "/raw/a", Value: json.RawMessage(`{}`)}})

			c := s.Clone()
			c.Raw["a"].Status = state.StatusBlocked
			c.Raw["a"].DependsOn[0] = "z"
			c.Summary["a"] = "changed"
			c.History[0].Value[0] = '['

			Expect(s.Raw["a"].Status).To(Equal(state.StatusOpen))
			Expect(s.Raw["a"].DependsOn).To(Equal([]string{"b"}))
			Expect(s.Summary["a"]).To(Equal("alpha"))
			Expect(string(s.History[0].Value)).To(Equal(`{}`))
		})

		It("clones a nil state into an empty one", func() {
			var s *state.State
			c := s.Clone()
			Expect(c.Raw).To(BeEmpty())
			Expect(c.History).To(BeEmpty())
		})
	})

	Describe("RecomputeDerived", func() {
		It("lists unknowns and non-retracted assumptions in id order", func() {
			s := state.New()
			s.Raw["u2"] = &state.Node{ID: "u2", Kind: state.KindUnknown, Status: state.StatusOpen}
			s.Raw["u1"] = &state.Node{ID: "u1", Kind: state.KindUnknown, Status: state.StatusOpen}
			s.Raw["a1"] = &state.Node{ID: "a1", Kind: state.KindAssumption, Status: state.StatusOpen, AssumptionStatus: state.AssumptionValid}
			s.Raw["a2"] = &state.Node{ID: "a2", Kind: state.KindAssumption, Status: state.StatusOpen, AssumptionStatus: state.AssumptionRetracted}
			s.Raw["f"] = &state.Node{ID: "f", Kind: state.KindFact, Status: state.StatusOpen}

			s.RecomputeDerived()

			Expect(s.Unknowns).To(Equal([]string{"u1", "u2"}))
			Expect(s.Assumptions).To(Equal([]string{"a1"}))
		})

		It("skips archived nodes", func() {
			s := state.New()
			s.Raw["u"] = &state.Node{ID: "u", Kind: state.KindUnknown, Status: state.StatusArchived}

			s.RecomputeDerived()

			Expect(s.Unknowns).To(BeEmpty())
		})
	})

	Describe("Node", func() {
		It("normalizes edge sets", func() {
			n := &state.Node{DependsOn: []string{"c", "a", "c"}, Contradicts: []string{}}
			n.Normalize()
			Expect(n.DependsOn).To(Equal([]string{"a", "c"}))
			Expect(n.Contradicts).To(BeNil())
		})

		It("reads the legacy detail contradiction", func() {
			n := &state.Node{Detail: json.RawMessage(`{"contradicts":"x","note":1}`)}
			Expect(n.LegacyContradiction()).To(Equal("x"))

			n.Detail = json.RawMessage(`{"contradicts":["x"]}`)
			Expect(n.LegacyContradiction()).To(BeEmpty())
		})

		It("reports the most recent timestamp", func() {
			t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			n := &state.Node{CreatedAt: t0, UpdatedAt: t0.Add(time.Minute)}
			Expect(n.LastTouched()).To(Equal(t0.Add(time.Minute)))

			n = &state.Node{CreatedAt: t0}
			Expect(n.LastTouched()).To(Equal(t0))
		})

		It("validates enumerations", func() {
			Expect(state.KindPlanning.Valid()).To(BeTrue())
			Expect(state.Kind("goal").Valid()).To(BeFalse())
			Expect(state.StatusArchived.Valid()).To(BeTrue())
			Expect(state.Status("done").Valid()).To(BeFalse())
			Expect(state.AssumptionSuperseded.Valid()).To(BeTrue())
			Expect(state.AssumptionStatus("maybe").Valid()).To(BeFalse())
		})
	})

	Describe("NewNodeMutation", func() {
		It("strips engine managed timestamps", func() {
			n := &state.Node{ID: "a", Kind: state.KindFact, Status: state.StatusOpen, CreatedAt: time.Now(), UpdatedAt: time.Now()}

			m, err := state.NewNodeMutation(state.OpReplace, n, "test")
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Path).To(Equal("/raw/a"))

			var decoded map[string]any
			Expect(json.Unmarshal(m.Value, &decoded)).To(Succeed())
			Expect(decoded).NotTo(HaveKey("createdAt"))
			Expect(decoded).NotTo(HaveKey("updatedAt"))
		})
	})
})
