package apperrors

import (
	"context"
	"errors"
	"time"
)

func asError(err error, target interface{}) bool {
	if err == nil {
		return false
	}
	switch t := target.(type) {
	case **ValidationError:
		return errors.As(err, t)
	case **NotFoundError:
		return errors.As(err, t)
	case **CancellationError:
		return errors.As(err, t)
	case **WorkerError:
		return errors.As(err, t)
	case **PersistenceError:
		return errors.As(err, t)
	default:
		return false
	}
}

// RetryPolicy is the small, composable resilience helper the Background
// Runner uses for §12.5's bounded-retry-on-transient-failure behavior,
// adapted from the teacher's internal/errors/retry.go + circuit_breaker.go
// pattern of keeping resilience concerns out of business logic.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy makes at most three attempts (two retries of a
// transient failure) with capped exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// Do runs fn, retrying while it returns an error classified IsRetryable,
// up to MaxAttempts. It stops immediately on a non-retryable error or on
// ctx cancellation.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) error {
	var lastErr error
	delay := p.BaseDelay
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) || attempt == p.MaxAttempts {
			return lastErr
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return lastErr
}
