package shared

import (
	"context"
	"time"
)

const (
	// RetryAttempts bounds retries of transient read operations. State-changing
	// submissions are never routed through Retry.
	RetryAttempts = 3

	retryBaseDelay = 200 * time.Millisecond
)

// Retry runs fn up to RetryAttempts times with exponential backoff, stopping
// early when the context is cancelled. The last error is returned.
func Retry(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error

	delay := retryBaseDelay
	for attempt := 0; attempt < RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		if err = fn(ctx); err == nil {
			return nil
		}
	}

	return err
}
