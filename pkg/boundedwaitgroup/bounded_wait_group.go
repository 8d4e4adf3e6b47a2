package boundedwaitgroup

import "sync"

// BoundedWaitGroup behaves like a sync.WaitGroup but caps the number of
// members that can be active at once. Add blocks until a slot frees up.
type BoundedWaitGroup struct {
	wg sync.WaitGroup
	ch chan struct{} // buffer size limits concurrency
}

// New creates a BoundedWaitGroup with the given concurrency cap.
func New(cap uint) BoundedWaitGroup {
	if cap == 0 {
		panic("boundedwaitgroup: cap must be greater than zero")
	}
	return BoundedWaitGroup{ch: make(chan struct{}, cap)}
}

// Add acquires delta slots, blocking while the group is at capacity.
// Negative deltas release slots.
func (b *BoundedWaitGroup) Add(delta int) {
	for i := 0; i > delta; i-- {
		<-b.ch
	}
	for i := 0; i < delta; i++ {
		b.ch <- struct{}{}
	}
	b.wg.Add(delta)
}

// Done releases one slot.
func (b *BoundedWaitGroup) Done() {
	b.Add(-1)
}

// Wait blocks until the group count reaches zero.
func (b *BoundedWaitGroup) Wait() {
	b.wg.Wait()
}
