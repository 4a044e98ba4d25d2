package fetch

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// BackoffFunc returns the pause before retry number n (1-based): n=1 is the
// pause between the first and second attempt.
type BackoffFunc func(n int) time.Duration

// Linear returns a BackoffFunc growing by step per retry: step, 2*step, ...
func Linear(step time.Duration) BackoffFunc {
	return func(n int) time.Duration {
		return time.Duration(n) * step
	}
}

// Policy bounds a retryable operation.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int

	// Backoff computes the pause before each retry.
	Backoff BackoffFunc

	// Sleep replaces the timer wait between attempts when set.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy is three attempts with 2s and 4s pauses in between.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Backoff: Linear(2 * time.Second)}
}

func (p Policy) backoffFunc() BackoffFunc {
	if p.Backoff == nil {
		return Linear(0)
	}
	return p.Backoff
}

// backoff adapts the policy to go-retry. A fresh value is needed per call
// because it counts retries. With a Sleep func the pause is taken by Do, so
// go-retry is handed a zero delay.
func (p Policy) backoff(onRetry func(n int, d time.Duration)) retry.Backoff {
	n := 0
	next := p.backoffFunc()
	var b retry.Backoff = retry.BackoffFunc(func() (time.Duration, bool) {
		n++
		d := next(n)
		if onRetry != nil {
			onRetry(n, d)
		}
		if p.Sleep != nil {
			return 0, false
		}
		return d, false
	})

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return retry.WithMaxRetries(uint64(attempts-1), b) //nolint:gosec // attempts is positive
}

// Do runs op until it succeeds, returns an error not marked with Retryable,
// runs out of attempts, or ctx ends. onRetry, if non-nil, is called before
// each pause with the retry number and its duration.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error, onRetry func(n int, d time.Duration)) error {
	attempt := 0
	var pending time.Duration
	hook := onRetry
	if p.Sleep != nil {
		hook = func(n int, d time.Duration) {
			pending = d
			if onRetry != nil {
				onRetry(n, d)
			}
		}
	}
	return retry.Do(ctx, p.backoff(hook), func(ctx context.Context) error {
		if pending > 0 {
			d := pending
			pending = 0
			if err := p.Sleep(ctx, d); err != nil {
				return err
			}
		}
		attempt++
		return op(ctx, attempt)
	})
}

// Retryable marks err as worth another attempt.
func Retryable(err error) error {
	return retry.RetryableError(err)
}
