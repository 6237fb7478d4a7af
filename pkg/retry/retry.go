// Package retry wraps cenkalti/backoff with the fixed-delay bounded retry
// policy used by every outbound call in this repository.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultAttempts is the total number of tries, including the first one.
	DefaultAttempts = 3

	// DefaultDelay is the fixed pause between tries.
	DefaultDelay = 1 * time.Second
)

type Policy struct {
	Attempts uint64
	Delay    time.Duration
}

// Default returns the standard 3-attempt, 1s fixed-delay policy.
func Default() Policy {
	return Policy{Attempts: DefaultAttempts, Delay: DefaultDelay}
}

func (p Policy) backoff(ctx context.Context) backoff.BackOff {
	attempts := p.Attempts
	if attempts == 0 {
		attempts = DefaultAttempts
	}
	delay := p.Delay
	if delay == 0 {
		delay = DefaultDelay
	}
	return backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), attempts-1), ctx)
}

// Do runs op until it succeeds or the attempt budget is exhausted, pausing
// for the fixed delay between tries. The error of the last attempt is
// returned.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	return backoff.Retry(func() error {
		return op(ctx)
	}, p.backoff(ctx))
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	return backoff.RetryWithData(func() (T, error) {
		return op(ctx)
	}, p.backoff(ctx))
}
