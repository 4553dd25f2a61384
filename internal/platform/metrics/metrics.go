// Package metrics holds the service's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LedgerMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examforge_ledger_mutations_total",
			Help: "Point ledger changes by question category and operation",
		},
		[]string{"category", "operation"}, // operation: add/update/remove/reconcile
	)

	LedgerDrift = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "examforge_ledger_drift_detected_total",
			Help: "Ledger checks whose stored totals disagreed with the question catalog",
		},
	)

	PublishAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examforge_exam_publish_attempts_total",
			Help: "Exam publish attempts by outcome",
		},
		[]string{"status"}, // success/already_published/points_mismatch/error
	)

	SubmissionSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examforge_submission_saves_total",
			Help: "Submission saves by category and whether the save created the record",
		},
		[]string{"category", "kind"}, // kind: created/resubmitted
	)

	EvaluationJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examforge_evaluation_jobs_total",
			Help: "Evaluation jobs processed by the worker, by final status",
		},
		[]string{"status"},
	)

	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "examforge_evaluation_duration_seconds",
			Help:    "Time spent executing and applying one evaluation job",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
