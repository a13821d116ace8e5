// Package retry wraps avast/retry-go behind a small interface with functional
// options, so callers configure backoff once and pass the resulting Retry
// around as a dependency.
//
// Basic usage:
//
//	r := retry.New()
//	err := r.Execute(ctx, func() error {
//	    return someFlakyOperation()
//	})
package retry

import (
	"context"
	"time"

	retry "github.com/avast/retry-go/v4"
)

// Retry executes operations with automatic retry on failure.
type Retry interface {
	// Execute runs the given function, retrying it according to the configured
	// attempts and backoff. Cancelling the context stops further retries and
	// returns the context error. The operation must be safe to call more than
	// once. Returns nil as soon as one attempt succeeds.
	Execute(ctx context.Context, operation func() error) error
}

// config holds internal settings for the retry mechanism.
type config struct {
	attempts    uint              // maximum number of attempts, including the first
	delay       time.Duration     // base delay, grows with exponential backoff
	maxDelay    time.Duration     // cap on the backoff growth
	lastErrOnly bool              // return only the final attempt's error
	retryIf     func(error) bool  // predicate deciding if an error is retryable
}

// Option configures the retry mechanism. Options are applied in order.
type Option func(*config)

// retrier implements Retry on top of retry-go.
type retrier struct {
	cfg config
}

// Compile-time assertion that retrier implements the Retry interface.
var _ Retry = (*retrier)(nil)

// New returns a Retry configured with the provided options.
//
// Defaults: 3 attempts, 1s base delay, 5s max delay, exponential backoff,
// last error only, every error retryable.
func New(opts ...Option) Retry {
	cfg := config{
		attempts:    3,
		delay:       1 * time.Second,
		maxDelay:    5 * time.Second,
		lastErrOnly: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &retrier{
		cfg: cfg,
	}
}

// Execute implements the Retry interface.
func (r *retrier) Execute(ctx context.Context, operation func() error) error {
	options := []retry.Option{
		retry.Attempts(r.cfg.attempts),
		retry.Delay(r.cfg.delay),
		retry.MaxDelay(r.cfg.maxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(r.cfg.lastErrOnly),
		retry.Context(ctx),
	}
	if r.cfg.retryIf != nil {
		options = append(options, retry.RetryIf(r.cfg.retryIf))
	}

	return retry.Do(operation, options...)
}

// WithAttempts sets the maximum number of attempts, including the initial one.
// Default: 3.
func WithAttempts(n uint) Option {
	return func(c *config) {
		c.attempts = n
	}
}

// WithDelay sets the base delay used for the first retry. Subsequent delays
// grow exponentially. Default: 1 second.
func WithDelay(d time.Duration) Option {
	return func(c *config) {
		c.delay = d
	}
}

// WithMaxDelay caps the exponential backoff growth. Default: 5 seconds.
func WithMaxDelay(d time.Duration) Option {
	return func(c *config) {
		c.maxDelay = d
	}
}

// WithLastErrorOnly controls whether only the final attempt's error is
// returned (true, default) or all attempt errors are combined (false).
func WithLastErrorOnly(b bool) Option {
	return func(c *config) {
		c.lastErrOnly = b
	}
}

// WithRetryIf restricts retries to errors matching the predicate. Errors that
// do not match are returned immediately without further attempts. Useful when
// a call can fail with both transient transport errors and definitive domain
// answers that retrying cannot change.
func WithRetryIf(predicate func(error) bool) Option {
	return func(c *config) {
		c.retryIf = predicate
	}
}
