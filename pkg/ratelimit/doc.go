// Package ratelimit bounds the number of externally-visible actions the
// harvester performs per rolling time window.
//
// The SlidingWindow limiter tracks the timestamps of admitted actions and
// prunes entries older than the window lazily on each access. When the
// window is full, Acquire computes how long until the oldest entry expires
// and suspends the caller for that duration before admitting.
//
// Usage:
//
//	// No more than 30 actions in any trailing minute
//	limiter := ratelimit.NewSlidingWindow(30, time.Minute)
//
//	if err := limiter.Acquire(ctx); err != nil {
//	    return err // context cancelled
//	}
//	// Proceed with the action
package ratelimit
