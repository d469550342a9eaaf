package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"nobconsult/internal/metrics"
)

// RetryPolicy bounds the retries applied to transient store errors.
type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxTries: 4, InitialInterval: 100 * time.Millisecond, MaxInterval: time.Second}
}

func (p RetryPolicy) do(ctx context.Context, op func() error) error {
	if p.MaxTries == 0 {
		p.MaxTries = 1
	}
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := op()
		if err == nil {
			return struct{}{}, nil
		}
		if isTransient(err) {
			metrics.StoreRetries.Inc()
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(p.MaxTries))
	if err == nil {
		return nil
	}
	if isTransient(err) || ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}
