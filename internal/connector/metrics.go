package connector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trunk_connector",
			Name:      "connects_total",
			Help:      "Connect runs by outcome (ok or error kind).",
		},
		[]string{"outcome"},
	)

	connectDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trunk_connector",
			Name:      "connect_duration_seconds",
			Help:      "Duration of connect runs, lock waits included.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	stepFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trunk_connector",
			Name:      "step_failures_total",
			Help:      "Connect runs aborted, by failing step.",
		},
		[]string{"step"},
	)

	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trunk_connector",
			Name:      "retries_total",
			Help:      "Retried calls to the carrier, media platform or store.",
		},
		[]string{"op"},
	)

	mediaResourcesDeletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trunk_connector",
			Name:      "media_resources_deleted_total",
			Help:      "Media platform resources deleted during reconciliation.",
		},
		[]string{"resource"},
	)
)
