// Package retry provides retry logic with configurable backoff strategies.
//
// Transient failures are retried with a delay between attempts computed by a
// BackoffStrategy. The exponential strategy doubles the delay each attempt up
// to a capped exponent and adds bounded uniform jitter, matching the pacing
// used for resumable downloads.
//
// Usage:
//
//	err := retry.Do(func() error {
//	    return fetch(url)
//	}, &retry.Config{
//	    MaxAttempts: 10,
//	    Backoff:     retry.DefaultExponentialBackoff(),
//	    RetryIf:     retry.DefaultRetryIf,
//	    Context:     ctx,
//	})
package retry
