// Package metrics exposes prometheus instrumentation for the memstate engine
// and its write path. A nil *Recorder is valid and records nothing, so
// components can be constructed without metrics in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "memstate"

// Recorder holds the engine's collectors.
type Recorder struct {
	batches         prometheus.Counter
	mutations       prometheus.Counter
	rejected        prometheus.Counter
	contradictions  prometheus.Counter
	reconcile       prometheus.Histogram
	gateChecks      *prometheus.CounterVec
	droppedLogJobs  prometheus.Counter
	logAppendErrors prometheus.Counter
}

// NewRecorder registers the memstate collectors with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)

	return &Recorder{
		batches: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_applied_total",
			Help:      "Mutation batches applied to a state.",
		}),
		mutations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_applied_total",
			Help:      "Individual mutations applied to a state.",
		}),
		rejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_rejected_total",
			Help:      "Mutation batches rejected by validation.",
		}),
		contradictions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contradiction_clusters_resolved_total",
			Help:      "Contradiction clusters resolved by recency during reconciliation.",
		}),
		reconcile: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_duration_seconds",
			Help:      "Time spent reconciling a state after a batch.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		gateChecks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_checks_total",
			Help:      "canExecute checks by kind and outcome.",
		}, []string{"kind", "allowed"}),
		droppedLogJobs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_jobs_dropped_total",
			Help:      "Log append jobs dropped because the worker queue was full.",
		}),
		logAppendErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_append_errors_total",
			Help:      "Best-effort log appends that failed in the storage driver.",
		}),
	}
}

// ObserveBatch records an applied batch of n mutations.
func (r *Recorder) ObserveBatch(n int, reconcile time.Duration, clusters int) {
	if r == nil {
		return
	}
	r.batches.Inc()
	r.mutations.Add(float64(n))
	r.contradictions.Add(float64(clusters))
	r.reconcile.Observe(reconcile.Seconds())
}

// ObserveRejected records a batch rejected by validation.
func (r *Recorder) ObserveRejected() {
	if r == nil {
		return
	}
	r.rejected.Inc()
}

// ObserveGate records a gate check.
func (r *Recorder) ObserveGate(kind string, allowed bool) {
	if r == nil {
		return
	}
	label := "false"
	if allowed {
		label = "true"
	}
	r.gateChecks.WithLabelValues(kind, label).Inc()
}

// ObserveDroppedJob records a job dropped by a full worker queue.
func (r *Recorder) ObserveDroppedJob() {
	if r == nil {
		return
	}
	r.droppedLogJobs.Inc()
}

// ObserveLogAppendError records a failed best-effort log append.
func (r *Recorder) ObserveLogAppendError() {
	if r == nil {
		return
	}
	r.logAppendErrors.Inc()
}
