package ai

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const DefaultMaxAttempts = 3

// RetryPolicy bounds a retried call. Backoff is linear: attempt * BaseDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Sleep waits between attempts; nil means a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts, BaseDelay: time.Second}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// CallWithRetry runs op until it succeeds, fails with a non-retryable kind, or the
// attempts run out. Only AI_CONNECTION_FAILED is retried. The returned error is
// always an *Error carrying the last classified kind.
func CallWithRetry[T any](ctx context.Context, p RetryPolicy, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	n := p.attempts()
	var last *Error
	for attempt := 1; attempt <= n; attempt++ {
		v, err := op(ctx, attempt)
		if err == nil {
			return v, nil
		}
		last = Wrap(err).(*Error)
		if !last.Kind.Retryable() {
			return zero, last
		}
		if attempt == n {
			break
		}
		delay := time.Duration(attempt) * p.BaseDelay
		zap.L().Warn("ai call failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", n),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := p.sleep(ctx, delay); err != nil {
			return zero, last
		}
	}
	return zero, last
}
