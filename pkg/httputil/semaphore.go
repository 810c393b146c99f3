package httputil

import (
	"context"
	"sync/atomic"
)

// Semaphore caps concurrent operations. The embedding backends use it to
// bound in-flight upstream calls so a burst of detect requests cannot fan
// out into hundreds of simultaneous API calls.
type Semaphore struct {
	sem     chan struct{}
	dropped atomic.Int64
}

// NewSemaphore creates a semaphore with the given capacity. Non-positive
// capacities default to 100.
func NewSemaphore(capacity int) *Semaphore {
	if capacity <= 0 {
		capacity = 100
	}
	return &Semaphore{sem: make(chan struct{}, capacity)}
}

// Acquire blocks until a slot is available or the context is cancelled.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes a slot without blocking. Returns false when at capacity;
// the drop is counted for monitoring.
func (s *Semaphore) TryAcquire() bool {
	select {
	case s.sem <- struct{}{}:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Release returns a slot. Must follow a successful Acquire or TryAcquire.
func (s *Semaphore) Release() {
	select {
	case <-s.sem:
	default:
	}
}

// InUse returns the number of slots currently held.
func (s *Semaphore) InUse() int {
	return len(s.sem)
}

// DroppedCount returns how many TryAcquire calls were rejected at capacity.
func (s *Semaphore) DroppedCount() int64 {
	return s.dropped.Load()
}
