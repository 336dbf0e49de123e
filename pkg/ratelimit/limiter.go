package ratelimit

import (
	"context"
	"sync"
	"time"
)

// admissionMargin is added to computed waits so the oldest recorded action
// has fully left the window when the caller wakes up.
const admissionMargin = 100 * time.Millisecond

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Acquire blocks until the rate limit admits another action, or the
	// context is cancelled
	Acquire(ctx context.Context) error
	// Allow reports whether an action is admitted right now without blocking
	Allow() bool
	// Reset resets the rate limiter state
	Reset()
}

// SlidingWindow implements a sliding window rate limiter: no more than
// maxRequests actions are admitted within any trailing window interval
type SlidingWindow struct {
	windowSize  time.Duration
	maxRequests int
	requests    []time.Time
	mu          sync.Mutex
	now         func() time.Time
}

// NewSlidingWindow creates a new sliding window rate limiter
func NewSlidingWindow(maxRequests int, windowSize time.Duration) *SlidingWindow {
	return &SlidingWindow{
		windowSize:  windowSize,
		maxRequests: maxRequests,
		requests:    make([]time.Time, 0, maxRequests),
		now:         time.Now,
	}
}

// Acquire blocks the caller until an action is admitted. Entries older than
// the window are pruned lazily on each call; when the window is full the
// caller sleeps until the oldest entry expires.
func (sw *SlidingWindow) Acquire(ctx context.Context) error {
	for {
		sw.mu.Lock()
		now := sw.now()
		sw.pruneOld(now)

		if len(sw.requests) < sw.maxRequests {
			sw.requests = append(sw.requests, now)
			sw.mu.Unlock()
			return nil
		}

		sleep := sw.windowSize - now.Sub(sw.requests[0]) + admissionMargin
		sw.mu.Unlock()

		if sleep <= 0 {
			continue
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Allow checks if an action can proceed without waiting
func (sw *SlidingWindow) Allow() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.now()
	sw.pruneOld(now)

	if len(sw.requests) < sw.maxRequests {
		sw.requests = append(sw.requests, now)
		return true
	}
	return false
}

// Reset clears all recorded actions
func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.requests = sw.requests[:0]
}

// pruneOld removes actions outside the sliding window. Caller holds the lock.
func (sw *SlidingWindow) pruneOld(now time.Time) {
	cutoff := now.Add(-sw.windowSize)

	i := 0
	for i < len(sw.requests) && sw.requests[i].Before(cutoff) {
		i++
	}

	if i > 0 {
		copy(sw.requests, sw.requests[i:])
		sw.requests = sw.requests[:len(sw.requests)-i]
	}
}
