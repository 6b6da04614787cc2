package engine_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/memstate/pkg/engine"
	"github.com/papercomputeco/memstate/pkg/state"
)

var _ = Describe("Reconciliation", func() {
	var eng *engine.Engine

	BeforeEach(func() {
		eng = newEngine()
	})

	Describe("contradictions", func() {
		It("keeps the newer node open and blocks the older one", func() {
			st := mustApply(eng, state.New(), []state.Mutation{
				add("a", `{"kind":"fact"}`),
				add("b", `{"kind":"fact","contradicts":["a"]}`),
			})

			Expect(st.Raw["b"].Status).To(Equal(state.StatusOpen))
			Expect(st.Raw["b"].Dirty).To(BeFalse())
			Expect(st.Raw["a"].Status).To(Equal(state.StatusBlocked))
			Expect(st.Raw["a"].Dirty).To(BeTrue())
		})

		It("decides by timestamp regardless of processing order", func() {
			st := mustApply(eng, state.New(), []state.Mutation{
				add("b", `{"kind":"fact","contradicts":["a"]}`),
				add("a", `{"kind":"fact"}`),
			})

			Expect(st.Raw["a"].Status).To(Equal(state.StatusOpen))
			Expect(st.Raw["a"].Dirty).To(BeFalse())
			Expect(st.Raw["b"].Status).To(Equal(state.StatusBlocked))
			Expect(st.Raw["b"].Dirty).To(BeTrue())
		})

		It("breaks timestamp ties toward the greatest id", func() {
			at := t0
			st, err := eng.Replay([]state.Entry{
				{Mutation: add("a", `{"kind":"fact","contradicts":["b"]}`), Seq: 1, Batch: 1, At: at},
				{Mutation: add("b", `{"kind":"fact"}`), Seq: 2, Batch: 1, At: at},
			}, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(st.Raw["b"].Status).To(Equal(state.StatusOpen))
			Expect(st.Raw["a"].Status).To(Equal(state.StatusBlocked))
		})

		It("resolves a whole cluster to a single winner", func() {
			st := mustApply(eng, state.New(), []state.Mutation{
				add("a", `{"kind":"fact"}`),
				add("b", `{"kind":"fact","contradicts":["a"]}`),
				add("c", `{"kind":"fact","contradicts":["b"]}`),
			})

			Expect(st.Raw["c"].Status).To(Equal(state.StatusOpen))
			Expect(st.Raw["a"].Status).To(Equal(state.StatusBlocked))
			Expect(st.Raw["b"].Status).To(Equal(state.StatusBlocked))
			Expect(engine.Contradictions(st)).To(Equal([][]string{{"a", "b", "c"}}))
		})

		It("honours legacy detail contradictions", func() {
			st := mustApply(eng, state.New(), []state.Mutation{
				add("a", `{"kind":"fact"}`),
				add("b", `{"kind":"fact","detail":{"contradicts":"a"}}`),
			})

			Expect(st.Raw["a"].Status).To(Equal(state.StatusBlocked))
			Expect(st.Raw["b"].Status).To(Equal(state.StatusOpen))
		})

		It("ignores contradictions with archived or resolved nodes", func() {
			st := mustApply(eng, state.New(), []state.Mutation{
				add("a", `{"kind":"fact","status":"archived"}`),
				add("b", `{"kind":"fact","contradicts":["a"]}`),
				add("c", `{"kind":"fact","status":"resolved"}`),
				add("d", `{"kind":"fact","contradicts":["c"]}`),
			})

			Expect(engine.Contradictions(st)).To(BeEmpty())
			Expect(st.Raw["a"].Status).To(Equal(state.StatusArchived))
			Expect(st.Raw["c"].Status).To(Equal(state.StatusResolved))
			Expect(st.Raw["c"].Dirty).To(BeFalse())
		})

		DescribeTable("reopens a loser once its contradiction is gone",
			func(winner string) {
				st := mustApply(eng, state.New(), []state.Mutation{
					add("a", `{"kind":"fact"}`),
					add("b", `{"kind":"fact","contradicts":["a"]}`),
				})
				Expect(st.Raw["a"].Status).To(Equal(state.StatusBlocked))

				st = mustApply(eng, st,
					[]state.Mutation{replace("b", winner)},
					[]state.Mutation{add("c", `{"kind":"fact"}`)},
				)

				Expect(engine.Contradictions(st)).To(BeEmpty())
				Expect(st.Raw["a"].Status).To(Equal(state.StatusOpen))
				Expect(st.Raw["a"].Dirty).To(BeFalse())
				Expect(engine.CanExecute(state.KindAction, st)).To(BeTrue())
			},
			Entry("winner archived", `{"kind":"fact","status":"archived","contradicts":["a"]}`),
			Entry("winner drops the edge", `{"kind":"fact"}`),
		)

		It("blocks dependents of a losing node", func() {
			st := mustApply(eng, state.New(),
				[]state.Mutation{
					add("a", `{"kind":"fact"}`),
					add("b", `{"kind":"fact","contradicts":["a"]}`),
				},
				[]state.Mutation{add("c", `{"kind":"action","dependsOn":["a"]}`)},
			)

			Expect(st.Raw["a"].Status).To(Equal(state.StatusBlocked))
			Expect(st.Raw["c"].Status).To(Equal(state.StatusBlocked))
			Expect(st.Raw["c"].Dirty).To(BeTrue())
		})
	})

	Describe("dependency gating", func() {
		It("blocks a node whose dependency is still dirty", func() {
			st := mustApply(eng, state.New(),
				[]state.Mutation{
					add("z", `{"kind":"fact"}`),
					add("y", `{"kind":"fact","temporalBefore":["z"]}`),
				},
				[]state.Mutation{add("x", `{"kind":"action","dependsOn":["y"]}`)},
			)

			Expect(st.Raw["y"].Status).To(Equal(state.StatusBlocked))
			Expect(st.Raw["y"].Dirty).To(BeTrue())
			Expect(st.Raw["x"].Status).To(Equal(state.StatusBlocked))
			Expect(st.Raw["x"].Dirty).To(BeTrue())
			Expect(engine.CanExecute(state.KindAction, st)).To(BeFalse())
		})

		It("blocks a node whose dependency is submitted dirty", func() {
			st := mustApply(eng, state.New(), []state.Mutation{
				add("y", `{"kind":"fact","dirty":true}`),
				add("x", `{"kind":"action","dependsOn":["y"]}`),
			})

			Expect(st.Raw["y"].Dirty).To(BeTrue())
			Expect(st.Raw["y"].Status).To(Equal(state.StatusOpen))
			Expect(st.Raw["x"].Status).To(Equal(state.StatusBlocked))
		})

		It("unblocks the chain once the temporal predecessor resolves", func() {
			st := mustApply(eng, state.New(),
				[]state.Mutation{
					add("z", `{"kind":"fact"}`),
					add("y", `{"kind":"fact","temporalBefore":["z"]}`),
					add("x", `{"kind":"action","dependsOn":["y"]}`),
				},
				[]state.Mutation{replace("z", `{"kind":"fact","status":"resolved"}`)},
			)

			for _, id := range []string{"x", "y", "z"} {
				Expect(st.Raw[id].Dirty).To(BeFalse(), id)
			}
			Expect(st.Raw["x"].Status).To(Equal(state.StatusOpen))
			Expect(st.Raw["y"].Status).To(Equal(state.StatusOpen))
			Expect(engine.CanExecute(state.KindAction, st)).To(BeTrue())
		})

		It("settles a clean dependency chain in one batch", func() {
			st := mustApply(eng, state.New(), []state.Mutation{
				add("a", `{"kind":"fact"}`),
				add("b", `{"kind":"fact","dependsOn":["a"]}`),
				add("c", `{"kind":"fact","temporalAfter":["b"]}`),
				add("d", `{"kind":"action","dependsOn":["c"]}`),
			})

			for _, id := range []string{"a", "b", "c", "d"} {
				Expect(st.Raw[id].Status).To(Equal(state.StatusOpen), id)
				Expect(st.Raw[id].Dirty).To(BeFalse(), id)
			}
		})

		It("keeps a caller block only while it is pinned dirty", func() {
			st := mustApply(eng, state.New(), []state.Mutation{
				add("held", `{"kind":"fact","status":"blocked","dirty":true}`),
				add("free", `{"kind":"fact","status":"blocked"}`),
			})

			Expect(st.Raw["held"].Status).To(Equal(state.StatusBlocked))
			Expect(st.Raw["held"].Dirty).To(BeTrue())
			Expect(st.Raw["free"].Status).To(Equal(state.StatusOpen))
			Expect(st.Raw["free"].Dirty).To(BeFalse())
		})

		It("keeps nodes on a dependency cycle blocked", func() {
			st := mustApply(eng, state.New(), []state.Mutation{
				add("a", `{"kind":"fact","dependsOn":["b"]}`),
				add("b", `{"kind":"fact","dependsOn":["a"]}`),
			})

			Expect(st.Raw["a"].Status).To(Equal(state.StatusBlocked))
			Expect(st.Raw["b"].Status).To(Equal(state.StatusBlocked))
		})
	})

	Describe("dirty propagation", func() {
		It("leaves unconnected nodes alone", func() {
			st := mustApply(eng, state.New(),
				[]state.Mutation{
					add("s", `{"kind":"assumption","assumptionStatus":"valid"}`),
					add("f", `{"kind":"fact"}`),
				},
			)
			before := st.Raw["s"].UpdatedAt

			st = mustApply(eng, st, []state.Mutation{
				replace("s", `{"kind":"assumption","assumptionStatus":"retracted"}`),
			})
			Expect(st.Assumptions).To(BeEmpty())

			st = mustApply(eng, st, []state.Mutation{replace("f", `{"kind":"fact","summary":"revised"}`)})
			Expect(st.Raw["f"].Dirty).To(BeFalse())
			Expect(st.Raw["s"].Dirty).To(BeFalse())
			Expect(st.Raw["s"].UpdatedAt).To(Equal(before.Add(2 * time.Second)))
			Expect(st.Raw["s"].AssumptionStatus).To(Equal(state.AssumptionRetracted))
		})

		// Summaries are only backfilled on dirty nodes, so a parent that
		// gains one was reached by propagation from its child.
		DescribeTable("reaches neighbors over hierarchy edges",
			func(parentChildren []string, childParent string) {
				st := state.New()
				st.Raw["parent"] = &state.Node{
					ID:       "parent",
					Kind:     state.KindPlanning,
					Detail:   json.RawMessage(`{"goal":"ship"}`),
					Children: parentChildren,
					Status:   state.StatusOpen,
				}
				st.Raw["child"] = &state.Node{ID: "child", Kind: state.KindAction, ParentID: childParent, Status: state.StatusOpen}
				st.Raw["other"] = &state.Node{
					ID:     "other",
					Kind:   state.KindFact,
					Detail: json.RawMessage(`{"k":1}`),
					Status: state.StatusOpen,
				}

				child := `{"kind":"action","summary":"step one"}`
				if childParent != "" {
					child = `{"kind":"action","summary":"step one","parentId":"parent"}`
				}
				st = mustApply(eng, st, []state.Mutation{replace("child", child)})

				Expect(st.Raw["parent"].Summary).To(Equal(`{"goal":"ship"}`))
				Expect(st.Raw["parent"].Dirty).To(BeFalse())
				Expect(st.Raw["other"].Summary).To(BeEmpty())
			},
			Entry("over parentId", nil, "parent"),
			Entry("over children", []string{"child"}, ""),
		)
	})

	It("backfills missing summaries from detail", func() {
		st := mustApply(eng, state.New(), []state.Mutation{
			add("d", `{"kind":"fact","detail":{ "k" : 1 }}`),
			add("e", `{"kind":"fact","summary":"kept","detail":{"k":2}}`),
		})

		Expect(st.Raw["d"].Summary).To(Equal(`{"k":1}`))
		Expect(st.Raw["e"].Summary).To(Equal("kept"))
	})

	It("excludes archived nodes from derived lists and gating", func() {
		st := mustApply(eng, state.New(),
			[]state.Mutation{add("u", `{"kind":"unknown"}`)},
		)
		Expect(engine.CanExecute(state.KindFact, st)).To(BeFalse())

		st = mustApply(eng, st, []state.Mutation{replace("u", `{"kind":"unknown","status":"archived"}`)})
		Expect(st.Unknowns).To(BeEmpty())
		Expect(st.Raw["u"].Dirty).To(BeFalse())
		Expect(engine.CanExecute(state.KindFact, st)).To(BeTrue())
	})
})
