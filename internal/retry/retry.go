// Package retry provides a bounded fixed-delay retry wrapper for scrape
// operations.
package retry

import (
	"context"
	"time"
)

// Do invokes fn up to attempts times, waiting delay between attempts. The
// first success short-circuits and earlier failures are discarded. If every
// attempt fails, the last error observed is returned. All errors are retried
// uniformly; fn is responsible for its own per-attempt timeout.
//
// attempts below 1 is treated as 1. The inter-attempt wait respects ctx
// cancellation, in which case the last error is returned immediately.
func Do[T any](ctx context.Context, attempts int, delay time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if attempts < 1 {
		attempts = 1
	}

	var (
		result  T
		lastErr error
	)
	for attempt := 0; attempt < attempts; attempt++ {
		result, lastErr = fn(ctx)
		if lastErr == nil {
			return result, nil
		}
		if attempt == attempts-1 || delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, lastErr
		case <-timer.C:
		}
	}
	return result, lastErr
}
