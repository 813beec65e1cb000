package orchestrator

import (
	"context"
	"time"
)

const (
	retryAttempts = 3
	retryBackoff  = time.Second
)

// withRetry retries a read-only call with exponential backoff. Writes are
// never retried here; broadcasting the same transaction twice is worse than
// failing the cycle.
func withRetry[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var err error
	backoff := retryBackoff

	for attempt := 1; attempt <= retryAttempts; attempt++ {
		var value T
		value, err = fn(ctx)
		if err == nil {
			return value, nil
		}
		if attempt == retryAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return zero, err
}
