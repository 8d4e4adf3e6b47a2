package hedgedmetrics

import (
	"time"

	"github.com/cristalhq/hedgedhttp"
	"github.com/prometheus/client_golang/prometheus"
)

const hedgedMetricsPublishDuration = 10 * time.Second

// Publish flushes the hedged request total from the given stats to the
// counter every 10 seconds.
func Publish(s *hedgedhttp.Stats, counter prometheus.Counter) {
	ticker := time.NewTicker(hedgedMetricsPublishDuration)
	go func() {
		previous := int64(0)
		for range ticker.C {
			snap := s.Snapshot()
			hedged := int64(snap.ActualRoundTrips) - int64(snap.RequestedRoundTrips)
			if diff := hedged - previous; diff > 0 {
				counter.Add(float64(diff))
			}
			previous = hedged
		}
	}()
}
