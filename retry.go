package burndrop

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type retryPolicy struct {
	retries  int
	interval time.Duration
}

func (p retryPolicy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.interval
	eb.MaxInterval = 20 * p.interval
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.retries)), ctx)
}

// retryStore runs op until it succeeds, fails with anything other than
// ErrStoreUnavailable, or the retry budget is spent.
func retryStore[T any](ctx context.Context, p retryPolicy, op func() (T, error)) (T, error) {
	return backoff.RetryWithData(func() (T, error) {
		v, err := op()
		if err != nil && !errors.Is(err, ErrStoreUnavailable) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, p.backOff(ctx))
}

func retryStoreErr(ctx context.Context, p retryPolicy, op func() error) error {
	_, err := retryStore(ctx, p, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}
