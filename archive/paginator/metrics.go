package paginator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hindsightlabs/hindsight/archive/source"
)

var (
	metricPagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hindsight",
		Name:      "paginator_pages_fetched_total",
		Help:      "Total CDX pages fetched successfully.",
	}, []string{"source"})
	metricPageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hindsight",
		Name:      "paginator_page_failures_total",
		Help:      "Total CDX page fetches that failed.",
	}, []string{"source"})
	metricRecordsFiltered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hindsight",
		Name:      "paginator_records_filtered_total",
		Help:      "Total captures dropped by the filter pipeline, by pass.",
	}, []string{"source", "pass"})
	metricRecordsKept = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hindsight",
		Name:      "paginator_records_kept_total",
		Help:      "Total captures kept after the filter pipeline.",
	}, []string{"source"})
	metricRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hindsight",
		Name:      "paginator_run_duration_seconds",
		Help:      "Duration of complete pagination runs.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 12),
	}, []string{"source"})
)

func observeRun(sourceName string, stats source.QueryStats) {
	metricPagesFetched.WithLabelValues(sourceName).Add(float64(stats.PagesFetched))
	metricRecordsKept.WithLabelValues(sourceName).Add(float64(stats.Filter.Kept))
	metricRunDuration.WithLabelValues(sourceName).Observe(stats.Duration.Seconds())

	f := stats.Filter
	metricRecordsFiltered.WithLabelValues(sourceName, "size").Add(float64(f.SizeFiltered))
	metricRecordsFiltered.WithLabelValues(sourceName, "attachment").Add(float64(f.AttachmentFiltered))
	metricRecordsFiltered.WithLabelValues(sourceName, "list_page").Add(float64(f.ListPagesFiltered))
	metricRecordsFiltered.WithLabelValues(sourceName, "duplicate").Add(float64(f.DuplicateFiltered))
}
