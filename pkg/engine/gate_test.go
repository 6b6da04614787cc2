package engine_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/papercomputeco/memstate/pkg/engine"
	"github.com/papercomputeco/memstate/pkg/metrics"
	"github.com/papercomputeco/memstate/pkg/state"
	testutils "github.com/papercomputeco/memstate/pkg/utils/test"
)

var _ = Describe("CanExecute", func() {
	assumption := func(id string, status state.AssumptionStatus) *state.Node {
		return &state.Node{ID: id, Kind: state.KindAssumption, Status: state.StatusOpen, AssumptionStatus: status}
	}

	It("allows every kind on a clean state", func() {
		st := testutils.NewTestState(testutils.NewTestNode("a"))
		for _, kind := range state.Kinds {
			Expect(engine.CanExecute(kind, st)).To(BeTrue(), string(kind))
		}
	})

	It("refuses every kind while unknowns exist", func() {
		st := testutils.NewTestState(&state.Node{ID: "u", Kind: state.KindUnknown, Status: state.StatusOpen})
		for _, kind := range state.Kinds {
			Expect(engine.CanExecute(kind, st)).To(BeFalse(), string(kind))
		}
	})

	It("refuses every kind while any node is dirty", func() {
		dirty := testutils.NewTestNode("a")
		dirty.Dirty = true
		st := testutils.NewTestState(dirty)
		for _, kind := range state.Kinds {
			Expect(engine.CanExecute(kind, st)).To(BeFalse(), string(kind))
		}
	})

	DescribeTable("assumption validity for actions",
		func(status state.AssumptionStatus, archived bool, action, fact bool) {
			n := assumption("s", status)
			if archived {
				n.Status = state.StatusArchived
			}
			st := testutils.NewTestState(n)

			Expect(engine.CanExecute(state.KindAction, st)).To(Equal(action))
			Expect(engine.CanExecute(state.KindFact, st)).To(Equal(fact))
		},
		Entry("valid", state.AssumptionValid, false, true, true),
		Entry("retracted", state.AssumptionRetracted, false, false, true),
		Entry("superseded", state.AssumptionSuperseded, false, false, true),
		Entry("unset", state.AssumptionStatus(""), false, false, true),
		Entry("archived and unset", state.AssumptionStatus(""), true, true, true),
	)

	It("does not modify the state", func() {
		st := testutils.NewTestState(assumption("s", state.AssumptionUnknown))
		before := st.Clone()
		engine.CanExecute(state.KindAction, st)
		Expect(st).To(Equal(before))
	})

	It("records outcomes when bound to an engine", func() {
		reg := prometheus.NewRegistry()
		eng := engine.New(engine.Config{Metrics: metrics.NewRecorder(reg)})

		Expect(eng.CanExecute(state.KindAction, state.New())).To(BeTrue())
		Expect(testutil.CollectAndCount(reg, "memstate_gate_checks_total")).To(Equal(1))
	})
})
