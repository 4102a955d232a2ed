package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cancellationsProcessedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cancellation",
			Name:      "records_processed_total",
			Help:      "Pending cancellations processed by the reconciler, by outcome.",
		},
		[]string{"outcome"}, // cancelled, early_cancel_denied, permanent_failure, retry, max_attempts, no_config, network_error
	)
	cancellationCallDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cancellation",
			Name:      "provider_call_duration_seconds",
			Help:      "Duration of provider cancel calls.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"server_id"},
	)
	reconcilerRunsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cancellation",
			Name:      "reconciler_runs_total",
			Help:      "Reconciler runs, by result.",
		},
		[]string{"result"}, // ok, fetch_error
	)
)
