package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	defaultRetryBase = 100 * time.Millisecond
	maxRetryDelay    = 30 * time.Second
)

// retryPolicy describes how RPC calls against the log source are retried.
type retryPolicy struct {
	Retries int
	Base    time.Duration
}

func (p retryPolicy) backoff(attempt int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = defaultRetryBase
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

// do runs fn until it succeeds. Context errors end the loop at once and are
// returned unwrapped; other errors are wrapped with the attempt count.
func (p retryPolicy) do(ctx context.Context, fn func(context.Context) error) error {
	retries := p.Retries
	if retries < 0 {
		retries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(p.backoff(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
	}
	if retries == 0 {
		return lastErr
	}
	return fmt.Errorf("after %d attempts: %w", retries+1, lastErr)
}

func retryable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
