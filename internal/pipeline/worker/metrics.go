package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truetrack_worker_steps_total",
			Help: "Pipeline steps executed, by state and outcome.",
		},
		[]string{"state", "outcome"}, // outcome: success, domain_error, retryable_error
	)

	jobsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truetrack_worker_jobs_completed_total",
			Help: "Jobs reaching a terminal state, by final state.",
		},
		[]string{"state"},
	)

	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truetrack_worker_retries_total",
			Help: "Retry schedules, by failing state.",
		},
		[]string{"state"},
	)

	staleLocksReleasedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "truetrack_worker_stale_locks_released_total",
			Help: "Job locks released because their holder never finished.",
		},
	)

	stepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "truetrack_worker_step_duration_seconds",
			Help:    "Wall time per pipeline step.",
			Buckets: []float64{0.01, 0.05, 0.25, 1, 5, 15, 60, 180},
		},
		[]string{"state"},
	)
)
