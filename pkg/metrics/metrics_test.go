package metrics_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/papercomputeco/memstate/pkg/metrics"
)

var _ = Describe("Recorder", func() {
	It("counts batches and mutations", func() {
		reg := prometheus.NewRegistry()
		r := metrics.NewRecorder(reg)

		r.ObserveBatch(3, time.Millisecond, 1)
		r.ObserveBatch(2, time.Millisecond, 0)
		r.ObserveRejected()
		r.ObserveGate("action", false)

		families, err := reg.Gather()
		Expect(err).NotTo(HaveOccurred())

		values := map[string]float64{}
		for _, mf := range families {
			for _, m := range mf.GetMetric() {
				if m.GetCounter() != nil {
					values[mf.GetName()] += m.GetCounter().GetValue()
				}
			}
		}

		Expect(values["memstate_batches_applied_total"]).To(Equal(2.0))
		Expect(values["memstate_mutations_applied_total"]).To(Equal(5.0))
		Expect(values["memstate_contradiction_clusters_resolved_total"]).To(Equal(1.0))
		Expect(values["memstate_batches_rejected_total"]).To(Equal(1.0))
		Expect(values["memstate_gate_checks_total"]).To(Equal(1.0))
		Expect(testutil.CollectAndCount(reg, "memstate_reconcile_duration_seconds")).To(Equal(1))
	})

	It("is a no-op when nil", func() {
		var r *metrics.Recorder
		Expect(func() {
			r.ObserveBatch(1, time.Second, 0)
			r.ObserveRejected()
			r.ObserveGate("fact", true)
			r.ObserveDroppedJob()
			r.ObserveLogAppendError()
		}).NotTo(Panic())
	})
})
