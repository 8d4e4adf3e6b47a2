package circuitbreaker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/hindsightlabs/hindsight/pkg/util/test"
)

var errBoom = errors.New("boom")

func testConfig() Config {
	return Config{
		FailureThreshold:   3,
		SuccessThreshold:   2,
		Timeout:            10 * time.Second,
		MaxTimeout:         40 * time.Second,
		ExponentialBackoff: true,
		SlidingWindowSize:  5,
	}
}

func newTestBreaker(t *testing.T) (*CircuitBreaker, *time.Time) {
	t.Helper()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := New(t.Name(), testConfig(), log.NewNopLogger())
	cb.now = func() time.Time { return now }
	return cb, &now
}

func fail(context.Context) error { return errBoom }
func ok(context.Context) error   { return nil }

func TestBreakerStaysClosedOnSuccess(t *testing.T) {
	cb, _ := newTestBreaker(t)

	for i := 0; i < 20; i++ {
		require.NoError(t, cb.Execute(context.Background(), ok))
	}
	require.Equal(t, StateClosed, cb.Status().State)
	require.Equal(t, 0.0, cb.Status().FailureRatio)
}

func TestBreakerOpensAtFailureThreshold(t *testing.T) {
	cb, _ := newTestBreaker(t)

	for i := 0; i < 3; i++ {
		require.ErrorIs(t, cb.Execute(context.Background(), fail), errBoom)
	}
	require.Equal(t, StateOpen, cb.Status().State)

	// while open no calls reach the dependency
	calls := 0
	err := cb.Execute(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	require.ErrorIs(t, err, ErrCircuitOpen)
	require.Equal(t, 0, calls)

	rejected, err := test.GetCounterVecValue(metricRejected, cb.name)
	require.NoError(t, err)
	require.Equal(t, 1.0, rejected)
}

func TestBreakerHalfOpenAfterRearmDeadline(t *testing.T) {
	cb, now := newTestBreaker(t)

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), fail)
	}
	require.Equal(t, StateOpen, cb.Status().State)

	*now = now.Add(11 * time.Second)

	// first probe succeeds, breaker still half open until successThreshold
	require.NoError(t, cb.Execute(context.Background(), ok))
	require.Equal(t, StateHalfOpen, cb.Status().State)

	require.NoError(t, cb.Execute(context.Background(), ok))
	require.Equal(t, StateClosed, cb.Status().State)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	cb, now := newTestBreaker(t)

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), fail)
	}
	firstDeadline := cb.Status().NextAttemptAt

	*now = now.Add(11 * time.Second)
	require.ErrorIs(t, cb.Execute(context.Background(), fail), errBoom)
	require.Equal(t, StateOpen, cb.Status().State)

	// exponential backoff doubles the re-arm window
	secondDeadline := cb.Status().NextAttemptAt
	require.Equal(t, 20*time.Second, secondDeadline.Sub(*now))
	require.True(t, secondDeadline.After(firstDeadline))
}

func TestBreakerRearmTimeoutCapped(t *testing.T) {
	cb, now := newTestBreaker(t)

	// trip repeatedly: 10s, 20s, 40s, then capped at 40s
	expected := []time.Duration{10 * time.Second, 20 * time.Second, 40 * time.Second, 40 * time.Second}
	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), fail)
	}
	for _, want := range expected {
		require.Equal(t, want, cb.Status().NextAttemptAt.Sub(*now), "rearm window")
		*now = now.Add(want + time.Second)
		_ = cb.Execute(context.Background(), fail) // probe fails, trips again
	}
}

func TestBreakerHalfOpenAdmitsSingleProbe(t *testing.T) {
	cb, now := newTestBreaker(t)

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), fail)
	}
	*now = now.Add(11 * time.Second)

	var (
		admitted atomic.Int32
		rejected atomic.Int32
		release  = make(chan struct{})
		wg       sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = cb.Execute(context.Background(), func(context.Context) error {
			admitted.Inc()
			<-release
			return nil
		})
	}()

	// wait for the probe to occupy the half open slot
	require.Eventually(t, func() bool { return admitted.Load() == 1 }, time.Second, time.Millisecond)

	for i := 0; i < 5; i++ {
		if err := cb.Execute(context.Background(), ok); errors.Is(err, ErrCircuitOpen) {
			rejected.Inc()
		}
	}
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), admitted.Load())
	require.Equal(t, int32(5), rejected.Load())
}

func TestBreakerSuccessfulCloseResetsRearm(t *testing.T) {
	cb, now := newTestBreaker(t)

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), fail)
	}
	*now = now.Add(11 * time.Second)
	require.NoError(t, cb.Execute(context.Background(), ok))
	require.NoError(t, cb.Execute(context.Background(), ok))
	require.Equal(t, StateClosed, cb.Status().State)

	// trip again: the re-arm window starts back at the base timeout
	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), fail)
	}
	require.Equal(t, 10*time.Second, cb.Status().NextAttemptAt.Sub(*now))
}

func TestBreakerFailureRatio(t *testing.T) {
	cb, _ := newTestBreaker(t)

	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), ok)
	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), ok)

	require.InDelta(t, 0.5, cb.Status().FailureRatio, 0.001)
}
