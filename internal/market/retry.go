package market

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/ndewijer/networth-tracker/internal/apperrors"
)

// RetryPolicy is applied once at the fetch boundary. A zero policy makes a single attempt.
type RetryPolicy struct {
	// MaxAttempts counts the first call.
	MaxAttempts int
	// BaseDelay is the first backoff delay; later delays grow exponentially.
	BaseDelay time.Duration
	// Retryable classifies errors. Nil means DefaultRetryable.
	Retryable func(error) bool
}

// DefaultRetryable retries transient failures. Throttling and cancellation are final:
// retrying a throttled provider only extends the throttle.
func DefaultRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, apperrors.ErrRateLimited),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// Do runs fn until it succeeds, returns a non-retryable error, or attempts run out.
// The last error is returned unwrapped.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = DefaultRetryable
	}

	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(base))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
