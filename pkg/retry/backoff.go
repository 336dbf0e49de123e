package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy defines the interface for different backoff strategies
type BackoffStrategy interface {
	// NextDelay returns the delay before the given attempt (1-based)
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff implements exponential backoff with additive jitter.
// The delay before attempt n is BaseDelay * Multiplier^min(n-1, MaxExponent),
// plus a uniform random value in [0, Jitter).
type ExponentialBackoff struct {
	// BaseDelay is the initial delay duration
	BaseDelay time.Duration
	// Multiplier is the factor by which delay increases
	Multiplier float64
	// MaxExponent caps the growth exponent so delays stop doubling
	MaxExponent int
	// Jitter is the upper bound of the uniform random addition
	Jitter time.Duration
}

// DefaultExponentialBackoff returns a backoff with sensible defaults:
// 1s, 2s, 4s, 8s, 16s, 32s, then flat, each plus up to one second of jitter.
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:   1 * time.Second,
		Multiplier:  2.0,
		MaxExponent: 5,
		Jitter:      1 * time.Second,
	}
}

// NextDelay calculates the delay before the given attempt
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	exponent := attempt - 1
	if eb.MaxExponent > 0 && exponent > eb.MaxExponent {
		exponent = eb.MaxExponent
	}

	delay := float64(eb.BaseDelay) * math.Pow(eb.Multiplier, float64(exponent))

	if eb.Jitter > 0 {
		delay += rand.Float64() * float64(eb.Jitter)
	}

	return time.Duration(delay)
}

// ConstantBackoff implements constant delay backoff
type ConstantBackoff struct {
	Delay time.Duration
}

// NextDelay returns a constant delay
func (cb *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return cb.Delay
}

// Wait waits for the specified duration or until the context is cancelled
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
