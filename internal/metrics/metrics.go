package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	reconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modsync_reconcile_total",
			Help: "Number of reconciliation runs by tenant.",
		},
		[]string{"tenant"},
	)
	reconcileFailureTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modsync_reconcile_failure_total",
			Help: "Number of reconciliation runs that did not reach the desired state, by tenant.",
		},
		[]string{"tenant"},
	)
	reconcileConnectionErrorTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modsync_reconcile_connection_error_total",
			Help: "Number of reconciliation runs aborted because the tenant runtime was unreachable.",
		},
		[]string{"tenant"},
	)
	moduleOutcomeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modsync_module_outcome_total",
			Help: "Per-module reconciliation outcomes by kind.",
		},
		[]string{"outcome"},
	)
	reconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "modsync_reconcile_duration_seconds",
			Help:    "Time taken by a full reconciliation run (discovery through validation).",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		reconcileTotal,
		reconcileFailureTotal,
		reconcileConnectionErrorTotal,
		moduleOutcomeTotal,
		reconcileDuration,
	)
}

// RecordReconcile records one completed reconciliation run.
func RecordReconcile(tenant string, success bool, elapsed time.Duration) {
	reconcileTotal.WithLabelValues(tenant).Inc()
	if !success {
		reconcileFailureTotal.WithLabelValues(tenant).Inc()
	}
	reconcileDuration.Observe(elapsed.Seconds())
}

// RecordConnectionError records a run aborted before any install attempt.
func RecordConnectionError(tenant string) {
	reconcileConnectionErrorTotal.WithLabelValues(tenant).Inc()
}

// RecordOutcomes records per-module outcome counts for a run.
func RecordOutcomes(counts map[string]int) {
	for outcome, n := range counts {
		moduleOutcomeTotal.WithLabelValues(outcome).Add(float64(n))
	}
}
