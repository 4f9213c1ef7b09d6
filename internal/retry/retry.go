// Package retry provides exponential backoff for operations that may fail
// transiently, such as waiting for a benchmark log file to appear or
// uploading an artifact.
//
// The backoff before attempt n (n >= 1) is InitialBackoff * 2^(n-1), capped
// at MaxBackoff and optionally extended by a jitter fraction that grows
// linearly with the attempt number. A non-zero Deadline bounds the whole
// loop by wall-clock time in addition to MaxRetries.
//
//	err := retry.Do(ctx, retry.Config{
//	    MaxRetries:     10,
//	    InitialBackoff: 50 * time.Millisecond,
//	    MaxBackoff:     time.Second,
//	    Deadline:       30 * time.Second,
//	}, openLog, nil)
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrDeadlineExceeded is returned (wrapped with the last error) when
// Config.Deadline elapses before the operation succeeds.
var ErrDeadlineExceeded = errors.New("retry deadline exceeded")

// Config defines the retry behavior for exponential backoff operations.
//
// The zero value is not usable; MaxRetries and InitialBackoff must be set.
type Config struct {
	// MaxRetries is the maximum number of attempts. Must be greater than 0.
	MaxRetries int

	// InitialBackoff is the base backoff duration. Must be greater than 0.
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff duration. Zero means no cap.
	MaxBackoff time.Duration

	// Jitter adds randomness-free linear spread to backoff (0.0 to 1.0):
	//   jitter_amount = backoff * Jitter * attempt / MaxRetries
	Jitter float64

	// Deadline bounds the total time spent in Do. Zero means unbounded.
	Deadline time.Duration
}

// ShouldRetryFunc reports whether an error should trigger another attempt.
// A nil ShouldRetryFunc retries every error.
type ShouldRetryFunc func(error) bool

// Do executes fn until it succeeds, shouldRetry rejects the error, the
// attempts are exhausted, the deadline passes or ctx is cancelled.
//
// Exhaustion wraps the last error from fn; the deadline case wraps both
// ErrDeadlineExceeded and the last error.
func Do(ctx context.Context, cfg Config, fn func() error, shouldRetry ShouldRetryFunc) error {
	var lastErr error
	start := time.Now()

	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := calculateBackoff(cfg, attempt)

			if cfg.Deadline > 0 {
				remaining := cfg.Deadline - time.Since(start)
				if remaining <= 0 {
					return fmt.Errorf("%w after %s: %w", ErrDeadlineExceeded, cfg.Deadline, lastErr)
				}
				if backoff > remaining {
					backoff = remaining
				}
			}

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err := fn()
		if err == nil {
			return nil
		}

		if shouldRetry != nil && !shouldRetry(err) {
			return err
		}

		lastErr = err
	}

	return fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
}

// calculateBackoff computes the backoff duration for a given attempt.
func calculateBackoff(cfg Config, attempt int) time.Duration {
	multiplier := math.Pow(2, float64(attempt-1))
	backoff := time.Duration(multiplier * float64(cfg.InitialBackoff))

	if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
		backoff = cfg.MaxBackoff
	}

	if cfg.Jitter > 0 {
		jitterAmount := float64(backoff) * cfg.Jitter * float64(attempt) / float64(cfg.MaxRetries)
		backoff += time.Duration(jitterAmount)
	}

	return backoff
}
