package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "llmrelay"

var (
	// attemptsTotal counts individual provider attempts by outcome.
	attemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_attempts_total",
			Help:      "Total number of provider attempts by outcome",
		},
		[]string{"provider", "outcome"},
	)

	// retriesTotal counts scheduled retries per provider.
	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_retries_total",
			Help:      "Total number of scheduled retries per provider",
		},
		[]string{"provider"},
	)

	// fallbackDepth observes how many providers each top-level request
	// touched before resolving.
	fallbackDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fallback_chain_depth",
			Help:      "Number of providers attempted per request",
			Buckets:   []float64{1, 2, 3, 4, 5, 8},
		},
	)
)
