package extraction

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hindsight",
		Name:      "extraction_fetches_total",
		Help:      "Total raw content fetches by outcome.",
	}, []string{"outcome"})
	metricFetchBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hindsight",
		Name:      "extraction_fetch_bytes",
		Help:      "Size of fetched content bodies.",
		Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
	})
	metricExtractionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hindsight",
		Name:      "extraction_operations_total",
		Help:      "Total extraction operations by method and outcome.",
	}, []string{"method", "outcome"})
	metricExtractionSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hindsight",
		Name:      "extraction_duration_seconds",
		Help:      "Wall-clock time of one hybrid extraction.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"method"})
	metricQualityScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hindsight",
		Name:      "extraction_quality_score",
		Help:      "Quality score distribution of extracted content.",
		Buckets:   prometheus.LinearBuckets(0, 1, 11),
	})
)
