package core

import (
	"context"
	"time"

	"github.com/aureo-labs/x402-go/types"
)

const (
	defaultRPCAttempts = 3
	defaultRPCBackoff  = 500 * time.Millisecond
)

// withRetry runs fn up to attempts times with doubling backoff. Exhausting
// the attempts surfaces as ChainUnavailable, distinct from a definitive
// on-chain rejection.
func withRetry[T any](ctx context.Context, attempts int, backoff time.Duration, op string, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	delay := backoff
	for attempt := 0; attempt < attempts; attempt++ {
		value, err := fn()
		if err == nil {
			return value, nil
		}
		lastErr = err

		// Stop early if this was the last attempt
		if attempt == attempts-1 {
			break
		}

		// Wait for the backoff delay or cancellation
		select {
		case <-ctx.Done():
			return zero, types.NewPaymentError(types.ErrorKindChainUnavailable, op+" cancelled", ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}

	return zero, types.NewPaymentError(types.ErrorKindChainUnavailable, "exhausted retries for "+op, lastErr)
}
