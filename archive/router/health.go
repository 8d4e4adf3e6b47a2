package router

import (
	"sync"
	"time"

	"github.com/hindsightlabs/hindsight/archive/source"
)

const (
	emaAlpha           = 0.2
	healthySuccessRate = 80.0
)

// SourceMetrics tracks one strategy's lifetime health. The router feeds it;
// hybrid ordering and the status endpoint read it.
type SourceMetrics struct {
	mtx             sync.Mutex
	totalRequests   int64
	successes       int64
	failures        int64
	avgResponseTime time.Duration // exponential moving average
	lastSuccess     time.Time
	lastFailure     time.Time
	errorKinds      map[source.ErrorKind]int64
}

func newSourceMetrics() *SourceMetrics {
	return &SourceMetrics{errorKinds: make(map[source.ErrorKind]int64)}
}

func (m *SourceMetrics) recordSuccess(d time.Duration) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.totalRequests++
	m.successes++
	m.lastSuccess = time.Now()
	m.observeLocked(d)
}

func (m *SourceMetrics) recordFailure(d time.Duration, kind source.ErrorKind) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.totalRequests++
	m.failures++
	m.lastFailure = time.Now()
	m.errorKinds[kind]++
	m.observeLocked(d)
}

func (m *SourceMetrics) observeLocked(d time.Duration) {
	if m.totalRequests == 1 {
		m.avgResponseTime = d
		return
	}
	m.avgResponseTime = time.Duration(float64(m.avgResponseTime)*(1-emaAlpha) + float64(d)*emaAlpha)
}

// SuccessRate is the lifetime success percentage. A source with no traffic
// reports 100: it has not yet disqualified itself.
func (m *SourceMetrics) SuccessRate() float64 {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.successRateLocked()
}

func (m *SourceMetrics) successRateLocked() float64 {
	if m.totalRequests == 0 {
		return 100
	}
	return float64(m.successes) / float64(m.totalRequests) * 100
}

func (m *SourceMetrics) IsHealthy() bool {
	return m.SuccessRate() >= healthySuccessRate
}

// MetricsSnapshot is a point-in-time copy for the status endpoint.
type MetricsSnapshot struct {
	Source          string                     `json:"source"`
	TotalRequests   int64                      `json:"total_requests"`
	Successes       int64                      `json:"successes"`
	Failures        int64                      `json:"failures"`
	SuccessRate     float64                    `json:"success_rate"`
	AvgResponseTime time.Duration              `json:"avg_response_time"`
	LastSuccess     *time.Time                 `json:"last_success,omitempty"`
	LastFailure     *time.Time                 `json:"last_failure,omitempty"`
	ErrorKinds      map[source.ErrorKind]int64 `json:"error_kinds,omitempty"`
	BreakerState    string                     `json:"breaker_state"`
	Healthy         bool                       `json:"healthy"`
}

func (m *SourceMetrics) snapshot(name string) MetricsSnapshot {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	snap := MetricsSnapshot{
		Source:          name,
		TotalRequests:   m.totalRequests,
		Successes:       m.successes,
		Failures:        m.failures,
		SuccessRate:     m.successRateLocked(),
		AvgResponseTime: m.avgResponseTime,
	}
	snap.Healthy = snap.SuccessRate >= healthySuccessRate

	if !m.lastSuccess.IsZero() {
		t := m.lastSuccess
		snap.LastSuccess = &t
	}
	if !m.lastFailure.IsZero() {
		t := m.lastFailure
		snap.LastFailure = &t
	}
	if len(m.errorKinds) > 0 {
		snap.ErrorKinds = make(map[source.ErrorKind]int64, len(m.errorKinds))
		for k, v := range m.errorKinds {
			snap.ErrorKinds[k] = v
		}
	}
	return snap
}

// Health grades the router as a whole.
type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthDegraded  Health = "degraded"
	HealthUnhealthy Health = "unhealthy"
)
