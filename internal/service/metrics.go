package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sagaOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_saga_outcomes_total",
			Help: "Finished checkouts by outcome",
		},
		[]string{"outcome"},
	)

	sagaDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "checkout_saga_duration_seconds",
			Help:    "Checkout duration from validation to final outcome",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)

	sagaStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "checkout_saga_step_duration_seconds",
			Help:    "Latency of each remote call made by the checkout saga",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"step", "status"},
	)

	sagaCompensations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_saga_compensations_total",
			Help: "Compensation passes by triggering failure and whether every undo call succeeded",
		},
		[]string{"reason", "result"},
	)
)
