package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agrimesh/agentmesh/core"
)

func TestCreateCircuitBreakerDefaults(t *testing.T) {
	cb, err := CreateCircuitBreaker("payments", Dependencies{})
	if err != nil {
		t.Fatalf("CreateCircuitBreaker failed: %v", err)
	}
	status := cb.Status()
	if status.Name != "payments" || status.State != "closed" {
		t.Errorf("unexpected initial status: %+v", status)
	}
}

// TestRetryWithCircuitBreakerStopsOnOpen verifies a circuit rejection is
// not retried: the breaker opened precisely because the dependency is
// failing, so hammering it with retries defeats the point
func TestRetryWithCircuitBreakerStopsOnOpen(t *testing.T) {
	clock := newFakeClock()
	cb, err := NewCircuitBreaker(&CircuitBreakerConfig{
		Name:             "svc",
		FailureThreshold: 2,
		RecoveryTimeout:  time.Minute,
		SuccessThreshold: 1,
		Clock:            clock,
	})
	if err != nil {
		t.Fatalf("NewCircuitBreaker failed: %v", err)
	}

	policy := &RetryPolicy{
		MaxRetries:      5,
		BaseDelay:       time.Millisecond,
		MaxDelay:        time.Second,
		ExponentialBase: 2.0,
		Classifier:      func(error) bool { return true },
		sleep:           (&capturedSleeper{}).sleep,
	}

	attempts := 0
	err = RetryWithCircuitBreaker(context.Background(), policy, cb, func(ctx context.Context) error {
		attempts++
		return errors.New("down")
	})

	if !core.IsCircuitOpen(err) {
		t.Fatalf("expected circuit-open error, got %v", err)
	}
	// Two attempts trip the breaker; the third is rejected and not retried
	if attempts != 2 {
		t.Errorf("expected 2 reaching attempts, got %d", attempts)
	}
}
