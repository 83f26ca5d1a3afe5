package resilience

import (
	"context"
	"fmt"
	"iter"
	"math"
	"math/rand/v2"
	"time"

	"github.com/agrimesh/agentmesh/core"
)

// RetryPolicy executes an operation up to MaxRetries+1 times with
// exponential backoff. Only errors approved by the Classifier are
// retried; everything else propagates immediately. Exhausting all
// attempts returns the last error wrapped with core.ErrMaxRetriesExceeded.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt
	MaxRetries int

	// BaseDelay is the delay before the first retry
	BaseDelay time.Duration

	// MaxDelay caps the computed backoff delay
	MaxDelay time.Duration

	// ExponentialBase is the backoff multiplier per attempt
	ExponentialBase float64

	// Jitter scales each delay by a uniform factor in [0.5, 1.5) to
	// desynchronize concurrent retries
	Jitter bool

	// Classifier decides which errors are worth retrying. Nil means
	// core.IsRetryable.
	Classifier func(error) bool

	// Logger for retry events
	Logger core.Logger

	// randFloat and sleep are injectable for deterministic tests
	randFloat func() float64
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewRetryPolicy returns a policy with the standard preset values
func NewRetryPolicy() *RetryPolicy {
	return StandardRetry()
}

// FastRetry suits cheap in-process operations
func FastRetry() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:      2,
		BaseDelay:       50 * time.Millisecond,
		MaxDelay:        500 * time.Millisecond,
		ExponentialBase: 2.0,
		Jitter:          true,
	}
}

// StandardRetry is the general-purpose default
func StandardRetry() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:      3,
		BaseDelay:       100 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		ExponentialBase: 2.0,
		Jitter:          true,
	}
}

// DatabaseRetry allows longer waits for connection pool recovery
func DatabaseRetry() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:      5,
		BaseDelay:       250 * time.Millisecond,
		MaxDelay:        10 * time.Second,
		ExponentialBase: 2.0,
		Jitter:          true,
	}
}

// HTTPRetry suits remote HTTP calls behind a circuit breaker
func HTTPRetry() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:      3,
		BaseDelay:       200 * time.Millisecond,
		MaxDelay:        8 * time.Second,
		ExponentialBase: 2.0,
		Jitter:          true,
	}
}

// Delay returns the backoff delay before retrying after the given
// zero-based attempt: min(BaseDelay * ExponentialBase^attempt, MaxDelay),
// optionally scaled by the jitter factor.
func (p *RetryPolicy) Delay(attempt int) time.Duration {
	backoff := float64(p.BaseDelay) * math.Pow(p.ExponentialBase, float64(attempt))
	if limit := float64(p.MaxDelay); backoff > limit {
		backoff = limit
	}
	if p.Jitter {
		backoff *= 0.5 + p.rand()
	}
	return time.Duration(backoff)
}

// Execute runs fn until it succeeds, returns a non-retryable error, the
// context is done, or MaxRetries+1 attempts are exhausted. Backoff sleeps
// honor ctx so an outer deadline can abort an in-progress retry sequence.
func (p *RetryPolicy) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	classify := p.Classifier
	if classify == nil {
		classify = core.IsRetryable
	}
	logger := p.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if !classify(lastErr) {
			// Not on the allow-list, propagate immediately
			return lastErr
		}

		if attempt == p.MaxRetries {
			break
		}

		delay := p.Delay(attempt)
		logger.Debug("Retrying after failure", map[string]interface{}{
			"operation": "retry_backoff",
			"attempt":   attempt,
			"delay_ms":  delay.Milliseconds(),
			"error":     lastErr.Error(),
		})

		if err := p.wait(ctx, delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("all %d attempts failed: %v: %w", p.MaxRetries+1, lastErr, core.ErrMaxRetriesExceeded)
}

// Wrap returns a decorated function that applies the policy on every call
func (p *RetryPolicy) Wrap(fn func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return p.Execute(ctx, fn)
	}
}

// Attempts yields attempt indices 0..MaxRetries, sleeping the backoff
// delay between yields. Callers break out of the range loop on success:
//
//	for attempt := range policy.Attempts(ctx) {
//	    if err = op(attempt); err == nil {
//	        break
//	    }
//	}
//
// The sequence stops early when ctx is done.
func (p *RetryPolicy) Attempts(ctx context.Context) iter.Seq[int] {
	return func(yield func(int) bool) {
		for attempt := 0; attempt <= p.MaxRetries; attempt++ {
			if ctx.Err() != nil {
				return
			}
			if !yield(attempt) {
				return
			}
			if attempt == p.MaxRetries {
				return
			}
			if err := p.wait(ctx, p.Delay(attempt)); err != nil {
				return
			}
		}
	}
}

func (p *RetryPolicy) rand() float64 {
	if p.randFloat != nil {
		return p.randFloat()
	}
	return rand.Float64()
}

func (p *RetryPolicy) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
