package provider

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "converso_provider_dispatch_total",
			Help: "Total dispatch calls per provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	dispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "converso_provider_dispatch_duration_seconds",
			Help:    "Dispatch latency per provider",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	healthProbes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "converso_provider_health_probes_total",
			Help: "Health probe results per provider",
		},
		[]string{"provider", "healthy"},
	)
)
