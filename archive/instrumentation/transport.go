package instrumentation

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "hindsight",
	Name:      "archive_request_duration_seconds",
	Help:      "Time spent on archive provider HTTP requests.",
	Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
}, []string{"method", "status_code"})

type instrumentedTransport struct {
	next http.RoundTripper
}

// NewTransport wraps the round tripper with request duration instrumentation.
func NewTransport(next http.RoundTripper) http.RoundTripper {
	return instrumentedTransport{next: next}
}

func (t instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	if err == nil {
		requestDuration.WithLabelValues(req.Method, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())
	}
	return resp, err
}
