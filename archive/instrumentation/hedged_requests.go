package instrumentation

import (
	"github.com/cristalhq/hedgedhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hindsightlabs/hindsight/pkg/hedgedmetrics"
)

var hedgedRequestsMetrics = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "hindsight",
		Name:      "archive_hedged_roundtrips_total",
		Help:      "Total number of hedged archive provider requests.",
	},
)

// PublishHedgedMetrics flushes metrics from hedged requests every 10 seconds.
func PublishHedgedMetrics(s *hedgedhttp.Stats) {
	hedgedmetrics.Publish(s, hedgedRequestsMetrics)
}
