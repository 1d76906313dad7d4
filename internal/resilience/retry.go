package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/spigell/grantfit/internal/metrics"
)

// Policy bounds a retried operation.
type Policy struct {
	MaxAttempts     int           `mapstructure:"max-attempts"`
	InitialInterval time.Duration `mapstructure:"initial-interval"`
	MaxInterval     time.Duration `mapstructure:"max-interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	// Jitter is the randomization factor applied to each interval (0..1).
	Jitter float64 `mapstructure:"jitter"`
	// AttemptTimeout caps a single attempt, independent of the caller's deadline.
	AttemptTimeout time.Duration `mapstructure:"attempt-timeout"`
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		Multiplier:      2,
		Jitter:          0.5,
		AttemptTimeout:  60 * time.Second,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = def.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = def.MaxInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		p.Jitter = def.Jitter
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = def.AttemptTimeout
	}
	return p
}

// Attempt describes a failed attempt that is about to be retried.
type Attempt struct {
	Op    string
	Err   *Error
	Delay time.Duration
}

type options struct {
	classify func(op string, err error) *Error
	notify   func(Attempt)
}

// Option customises Retry.
type Option func(*options)

// WithClassifier replaces the default classifier. Used by tests.
func WithClassifier(fn func(err error) *Error) Option {
	return func(o *options) {
		o.classify = func(op string, err error) *Error {
			classified := fn(err)
			if classified == nil {
				return classify(op, err)
			}
			return classified
		}
	}
}

// WithNotify registers a callback invoked before every retry.
func WithNotify(fn func(Attempt)) Option {
	return func(o *options) { o.notify = fn }
}

// Retry runs fn until it succeeds, fails with a non-retryable kind, or the
// policy's attempts are spent. Every returned error is a *Error.
func Retry[T any](ctx context.Context, op string, policy Policy, fn func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	cfg := options{classify: classify}
	for _, opt := range opts {
		opt(&cfg)
	}
	policy = policy.withDefaults()

	var last *Error
	operation := func() (T, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, policy.AttemptTimeout)
		defer cancel()

		res, err := fn(attemptCtx)
		if err == nil {
			return res, nil
		}

		last = cfg.classify(op, err)
		if !Retryable(last.Kind) {
			return res, backoff.Permanent(last)
		}
		return res, last
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.InitialInterval
	b.MaxInterval = policy.MaxInterval
	b.Multiplier = policy.Multiplier
	b.RandomizationFactor = policy.Jitter

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(policy.MaxAttempts)),
		backoff.WithNotify(func(_ error, next time.Duration) {
			if last == nil {
				return
			}
			metrics.RetryAttempts.WithLabelValues(op, string(last.Kind)).Inc()
			if cfg.notify != nil {
				cfg.notify(Attempt{Op: op, Err: last, Delay: next})
			}
		}),
	)
	if err != nil {
		return res, cfg.classify(op, err)
	}
	return res, nil
}
