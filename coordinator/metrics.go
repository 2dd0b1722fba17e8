package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RoundTotal counts finished rounds by status.
	RoundTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedcoord_round_total",
			Help: "Total number of federated rounds",
		},
		[]string{"run_id", "status"},
	)

	RoundDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fedcoord_round_duration_seconds",
			Help:    "Federated round duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		},
		[]string{"run_id"},
	)

	RoundContributors = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fedcoord_round_contributors",
			Help: "Number of workers that contributed to the last round",
		},
		[]string{"run_id"},
	)

	WorkerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedcoord_worker_failures_total",
			Help: "Total number of failed worker training requests",
		},
		[]string{"run_id", "worker_id"},
	)

	WorkerFitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fedcoord_worker_fit_duration_seconds",
			Help:    "Duration of worker training requests in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		},
		[]string{"run_id", "worker_id"},
	)

	LearningRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fedcoord_learning_rate",
			Help: "Learning rate broadcast in the next round",
		},
		[]string{"run_id"},
	)

	EvaluationAccuracy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fedcoord_evaluation_accuracy",
			Help: "Accuracy of the last evaluation per model label",
		},
		[]string{"run_id", "label"},
	)
)
