package detector

import (
	"context"
	"fmt"
	"time"

	"slouchless/internal/telemetry"
)

// ExponentialBackoff returns base * 2^(retry-1).
func ExponentialBackoff(base time.Duration) func(int) time.Duration {
	return func(retry int) time.Duration {
		if retry < 1 {
			retry = 1
		}
		return base * time.Duration(1<<uint(retry-1))
	}
}

// SendWithRetry calls the backend, retrying transient failures with backoff.
// Fatal errors and context cancellation return immediately, including while
// sleeping between attempts.
func SendWithRetry(ctx context.Context, b Backend, img []byte, req Request, maxRetries int, backoffFn func(int) time.Duration) (string, error) {
	if backoffFn == nil {
		backoffFn = ExponentialBackoff(time.Second)
	}

	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			waitTime := backoffFn(i)
			telemetry.LogInfo("Retrying detector call", "backend", b.Name(), "retry", i, "wait", waitTime, "error", lastErr)
			select {
			case <-time.After(waitTime):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		raw, err := b.SendOnce(ctx, img, req)
		if err == nil {
			return raw, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if IsFatal(err) {
			return "", err
		}
		lastErr = err
	}

	return "", transientErr(b.Name(), fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr))
}
