package scan

import (
	"context"
	"time"

	"caretaker/internal/services"
)

const (
	retryInitialBackoff = 500 * time.Millisecond
	retryMaxBackoff     = 8 * time.Second
)

// RetryItem runs one item-level task with bounded exponential backoff.
// Only transient and availability failures retry; anything else returns
// immediately. Exhausting attempts returns the last error so the caller can
// record a scan-error issue instead of aborting the phase.
func RetryItem(ctx context.Context, attempts int, op func() error) error {
	if attempts <= 0 {
		attempts = 1
	}
	delay := retryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !services.IsRetryable(lastErr) || attempt == attempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= retryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
