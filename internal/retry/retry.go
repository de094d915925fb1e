// Package retry wraps outbound calls in a bounded exponential backoff loop.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ericfisherdev/prmigrate/internal/domain/port/driven"
)

// Invoker retries transient failures with exponential backoff. Definitive
// failures (not-found, plan-restricted, or anything wrapped by Permanent)
// stop immediately.
type Invoker struct {
	maxAttempts     uint64
	initialInterval time.Duration
	maxInterval     time.Duration
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithMaxAttempts caps the total number of attempts, including the first.
func WithMaxAttempts(n uint64) Option {
	return func(i *Invoker) { i.maxAttempts = n }
}

// WithIntervals sets the initial and maximum backoff intervals.
func WithIntervals(initial, max time.Duration) Option {
	return func(i *Invoker) {
		i.initialInterval = initial
		i.maxInterval = max
	}
}

// New creates an Invoker with the default policy: 5 attempts, backoff
// starting at 2s and capped at 60s.
func New(opts ...Option) *Invoker {
	inv := &Invoker{
		maxAttempts:     5,
		initialInterval: 2 * time.Second,
		maxInterval:     60 * time.Second,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Permanent marks err as non-retryable without changing its identity for
// errors.Is / errors.As.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs fn, retrying transient errors until the attempt budget is spent or
// ctx is canceled. op names the call for log attribution only.
func (i *Invoker) Do(ctx context.Context, op string, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = i.initialInterval
	policy.MaxInterval = i.maxInterval

	attempt := 0
	wrapped := func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, driven.ErrNotFound) || errors.Is(err, driven.ErrPlanRestricted) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		slog.Warn("retrying remote call",
			"op", op,
			"attempt", attempt,
			"max_attempts", i.maxAttempts,
			"next_in", next.Round(time.Millisecond),
			"error", err,
		)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, i.maxAttempts-1), ctx)
	return backoff.RetryNotify(wrapped, b, notify)
}
