package boundedwaitgroup

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestBoundedWaitGroupLimitsConcurrency(t *testing.T) {
	const (
		limit = 3
		jobs  = 50
	)

	bg := New(limit)

	var (
		active atomic.Int32
		peak   atomic.Int32
		mtx    sync.Mutex
	)

	for i := 0; i < jobs; i++ {
		bg.Add(1)
		go func() {
			defer bg.Done()

			n := active.Inc()
			mtx.Lock()
			if n > peak.Load() {
				peak.Store(n)
			}
			mtx.Unlock()
			active.Dec()
		}()
	}

	bg.Wait()
	require.LessOrEqual(t, peak.Load(), int32(limit))
	require.Equal(t, int32(0), active.Load())
}

func TestBoundedWaitGroupZeroCapPanics(t *testing.T) {
	require.Panics(t, func() { New(0) })
}
