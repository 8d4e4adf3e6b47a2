package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hindsight",
		Name:      "orchestrator_sessions_total",
		Help:      "Scrape sessions by final status.",
	}, []string{"status"})
	metricActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "hindsight",
		Name:      "orchestrator_active_sessions",
		Help:      "Scrape sessions currently running.",
	})
	metricPages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hindsight",
		Name:      "orchestrator_pages_total",
		Help:      "Page tasks by outcome.",
	}, []string{"outcome"})
	metricRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hindsight",
		Name:      "orchestrator_page_retries_total",
		Help:      "Extraction attempts rescheduled after a recoverable error.",
	})
	metricTaskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hindsight",
		Name:      "orchestrator_task_duration_seconds",
		Help:      "Wall time of one page task, retries included.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 12),
	})
	metricIndexFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hindsight",
		Name:      "orchestrator_index_failures_total",
		Help:      "Completed pages the indexer refused. Indexing is best effort.",
	})
	metricCleanupDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hindsight",
		Name:      "orchestrator_cleanup_deleted_total",
		Help:      "Rows removed by the retention cleanup loop.",
	}, []string{"kind"})
)
