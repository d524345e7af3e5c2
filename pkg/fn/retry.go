package fn

import (
	"context"
	"math/rand"
	"time"
)

// Backoff selects how the wait grows between attempts.
type Backoff int

const (
	// BackoffExponential doubles the wait each attempt.
	BackoffExponential Backoff = iota
	// BackoffLinear waits InitialWait × attempt number.
	BackoffLinear
	// BackoffFixed waits InitialWait every time.
	BackoffFixed
)

// RetryOpts configures retry behavior.
type RetryOpts struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Backoff     Backoff
	Jitter      bool
}

// DefaultRetry provides sensible retry defaults.
var DefaultRetry = RetryOpts{
	MaxAttempts: 3,
	InitialWait: time.Second,
	MaxWait:     30 * time.Second,
	Backoff:     BackoffExponential,
	Jitter:      true,
}

// Retry retries f up to MaxAttempts times, sleeping between attempts
// according to the backoff policy. The context is checked before and
// during each sleep.
func Retry[T any](ctx context.Context, opts RetryOpts, f func(context.Context) Result[T]) Result[T] {
	var result Result[T]

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		result = f(ctx)
		if result.IsOk() {
			return result
		}
		if attempt == opts.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return Err[T](ctx.Err())
		default:
		}

		wait := waitFor(opts, attempt)
		if opts.Jitter {
			wait = time.Duration(float64(wait) * (0.5 + rand.Float64()))
		}
		if opts.MaxWait > 0 && wait > opts.MaxWait {
			wait = opts.MaxWait
		}

		select {
		case <-ctx.Done():
			return Err[T](ctx.Err())
		case <-time.After(wait):
		}
	}
	return result
}

func waitFor(opts RetryOpts, attempt int) time.Duration {
	switch opts.Backoff {
	case BackoffLinear:
		return opts.InitialWait * time.Duration(attempt)
	case BackoffFixed:
		return opts.InitialWait
	default:
		wait := opts.InitialWait
		for i := 1; i < attempt; i++ {
			wait *= 2
		}
		return wait
	}
}
