package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/x/mongo/driver/topology"
)

type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	Attempts:  3,
	BaseDelay: 100 * time.Millisecond,
	MaxDelay:  time.Second,
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay << attempt
	if d > p.MaxDelay || d <= 0 {
		return p.MaxDelay
	}
	return d
}

// do runs op until it succeeds, fails permanently or the attempts run out.
// Only errors accepted by retryable are retried.
func (p RetryPolicy) do(ctx context.Context, retryable func(error) bool, op func(context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		err = op(ctx)
		if err == nil || !retryable(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		timer := time.NewTimer(p.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", ErrTransient, ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return true
	}
	var labeled mongo.LabeledError
	if errors.As(err, &labeled) {
		return labeled.HasErrorLabel("RetryableWriteError") ||
			labeled.HasErrorLabel("TransientTransactionError")
	}
	var sse mongo.ServerError
	if errors.As(err, &sse) {
		// NotWritablePrimary, InterruptedAtShutdown, HostUnreachable, ...
		for _, code := range []int{91, 189, 6, 7, 89, 9001, 10107, 11600, 11602, 13435, 13436} {
			if sse.HasErrorCode(code) {
				return true
			}
		}
	}
	return false
}

// isUnsent accepts only failures that happen before a write reaches a server.
// Non-idempotent writes ($inc) use it so a retry can never apply twice; the
// driver's own retryable writes cover failures after sending.
func isUnsent(err error) bool {
	var sse topology.ServerSelectionError
	return errors.As(err, &sse)
}
