package db

import (
	"context"
	"errors"
)

// RetryPolicy controls Retry.
type RetryPolicy struct {
	Attempts  int
	Retryable func(error) bool
	// OnRetry is called before every attempt after the first.
	OnRetry func(attempt int, err error)
}

// Retry runs fn until it succeeds, fails with a non-retryable error, or the
// attempts are exhausted. Attempts run back to back; the last error is returned
// unchanged.
func Retry(ctx context.Context, policy RetryPolicy, fn func(attempt int) error) error {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	if policy.Retryable == nil {
		return errors.New("retry policy requires a classifier")
	}

	var err error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		if attempt > 1 {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return err
			}
			if policy.OnRetry != nil {
				policy.OnRetry(attempt, err)
			}
		}
		err = fn(attempt)
		if err == nil || !policy.Retryable(err) {
			return err
		}
	}
	return err
}

// RetryOnConflict retries fn while it fails with a transaction conflict.
func RetryOnConflict(ctx context.Context, attempts int, onRetry func(attempt int, err error), fn func(attempt int) error) error {
	return Retry(ctx, RetryPolicy{Attempts: attempts, Retryable: IsConflict, OnRetry: onRetry}, fn)
}
