package utils

import (
	"context"
	"time"

	"github.com/bitlift/bitlift/internal/core/domain"
	"github.com/cenkalti/backoff/v4"
)

// Retry runs fn with bounded exponential backoff, retrying only transient
// failures. Any other error, and cancellation, stop the retries immediately.
func Retry(ctx context.Context, maxElapsed time.Duration, fn func(ctx context.Context) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 10 * time.Second
	policy.MaxElapsedTime = maxElapsed

	return backoff.Retry(func() error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if domain.IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(policy, ctx))
}
