package circuitbreaker

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrCircuitOpen is returned by Execute while the breaker is refusing calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

var (
	metricState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "hindsight",
		Name:      "circuitbreaker_state",
		Help:      "Current state of the circuit breaker. 0=closed 1=half_open 2=open.",
	}, []string{"name"})
	metricTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hindsight",
		Name:      "circuitbreaker_transitions_total",
		Help:      "Total state transitions by target state.",
	}, []string{"name", "to"})
	metricRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hindsight",
		Name:      "circuitbreaker_rejected_total",
		Help:      "Total calls rejected without reaching the dependency.",
	}, []string{"name"})
)

// State of the breaker.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	}
	return "unknown"
}

// Status is a point-in-time snapshot of the breaker.
type Status struct {
	State         State     `json:"state"`
	FailureRatio  float64   `json:"failure_ratio"`
	NextAttemptAt time.Time `json:"next_attempt_at,omitempty"`
}

// CircuitBreaker isolates callers from an unhealthy dependency. Failures are
// tracked in a sliding window of recent outcomes; once the window crosses the
// failure threshold the breaker opens and rejects calls until the re-arm
// deadline, after which a single probe at a time is admitted.
type CircuitBreaker struct {
	name   string
	cfg    Config
	logger log.Logger
	now    func() time.Time

	mtx           sync.Mutex
	state         State
	window        []bool // ring of outcomes, true means failure
	windowIdx     int
	windowFilled  int
	halfOpenOK    int // consecutive successes while half open
	probeInFlight bool
	rearmTimeout  time.Duration
	nextAttemptAt time.Time
}

// New creates a breaker with the given name for metrics and logging.
func New(name string, cfg Config, logger log.Logger) *CircuitBreaker {
	if cfg.SlidingWindowSize <= 0 {
		cfg.SlidingWindowSize = defaultSlidingWindowSize
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = defaultSuccessThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxTimeout < cfg.Timeout {
		cfg.MaxTimeout = defaultMaxTimeout
	}

	cb := &CircuitBreaker{
		name:         name,
		cfg:          cfg,
		logger:       log.With(logger, "breaker", name),
		now:          time.Now,
		state:        StateClosed,
		window:       make([]bool, cfg.SlidingWindowSize),
		rearmTimeout: cfg.Timeout,
	}
	metricState.WithLabelValues(name).Set(float64(StateClosed))
	return cb
}

// Execute runs fn under the breaker. While the breaker is open, or while a
// half-open probe is already in flight, it returns ErrCircuitOpen without
// calling fn. fn runs outside the breaker lock.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.afterCall(err != nil)
	return err
}

// Name returns the breaker's registered name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Status reports the current state, the failure ratio over the sliding
// window, and the next re-arm instant when open.
func (cb *CircuitBreaker) Status() Status {
	cb.mtx.Lock()
	defer cb.mtx.Unlock()

	st := Status{State: cb.state, FailureRatio: cb.failureRatioLocked()}
	if cb.state == StateOpen {
		st.NextAttemptAt = cb.nextAttemptAt
	}
	return st
}

// IsOpen reports whether the breaker currently rejects calls outright.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mtx.Lock()
	defer cb.mtx.Unlock()
	return cb.state == StateOpen && cb.now().Before(cb.nextAttemptAt)
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mtx.Lock()
	defer cb.mtx.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Before(cb.nextAttemptAt) {
			metricRejected.WithLabelValues(cb.name).Inc()
			return ErrCircuitOpen
		}
		cb.transitionLocked(StateHalfOpen)
		cb.probeInFlight = true
	case StateHalfOpen:
		if cb.probeInFlight {
			metricRejected.WithLabelValues(cb.name).Inc()
			return ErrCircuitOpen
		}
		cb.probeInFlight = true
	case StateClosed:
	}
	return nil
}

func (cb *CircuitBreaker) afterCall(failed bool) {
	cb.mtx.Lock()
	defer cb.mtx.Unlock()

	cb.recordLocked(failed)

	switch cb.state {
	case StateClosed:
		if cb.windowFailuresLocked() >= cb.cfg.FailureThreshold {
			cb.openLocked()
		}
	case StateHalfOpen:
		cb.probeInFlight = false
		if failed {
			cb.openLocked()
			return
		}
		cb.halfOpenOK++
		if cb.halfOpenOK >= cb.cfg.SuccessThreshold {
			cb.rearmTimeout = cb.cfg.Timeout
			cb.resetWindowLocked()
			cb.transitionLocked(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) openLocked() {
	cb.nextAttemptAt = cb.now().Add(cb.rearmTimeout)
	if cb.cfg.ExponentialBackoff {
		cb.rearmTimeout *= 2
		if cb.rearmTimeout > cb.cfg.MaxTimeout {
			cb.rearmTimeout = cb.cfg.MaxTimeout
		}
	}
	cb.probeInFlight = false
	cb.transitionLocked(StateOpen)
}

func (cb *CircuitBreaker) transitionLocked(to State) {
	if cb.state == to {
		return
	}
	level.Warn(cb.logger).Log("msg", "circuit breaker state change", "from", cb.state, "to", to)
	cb.state = to
	cb.halfOpenOK = 0
	metricState.WithLabelValues(cb.name).Set(float64(to))
	metricTransitions.WithLabelValues(cb.name, to.String()).Inc()
}

func (cb *CircuitBreaker) recordLocked(failed bool) {
	cb.window[cb.windowIdx] = failed
	cb.windowIdx = (cb.windowIdx + 1) % len(cb.window)
	if cb.windowFilled < len(cb.window) {
		cb.windowFilled++
	}
}

func (cb *CircuitBreaker) resetWindowLocked() {
	for i := range cb.window {
		cb.window[i] = false
	}
	cb.windowIdx = 0
	cb.windowFilled = 0
}

func (cb *CircuitBreaker) windowFailuresLocked() int {
	failures := 0
	for i := 0; i < cb.windowFilled; i++ {
		if cb.window[i] {
			failures++
		}
	}
	return failures
}

func (cb *CircuitBreaker) failureRatioLocked() float64 {
	if cb.windowFilled == 0 {
		return 0
	}
	return float64(cb.windowFailuresLocked()) / float64(cb.windowFilled)
}
