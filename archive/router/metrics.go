package router

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hindsight",
		Name:      "router_attempts_total",
		Help:      "Total strategy attempts by source and outcome.",
	}, []string{"source", "outcome"})
	metricFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hindsight",
		Name:      "router_fallbacks_total",
		Help:      "Total times a failed source was abandoned for the next one.",
	})
	metricAttemptSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hindsight",
		Name:      "router_attempt_duration_seconds",
		Help:      "Duration of individual strategy attempts.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 12),
	}, []string{"source"})
)
