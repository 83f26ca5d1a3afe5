package resilience

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/agrimesh/agentmesh/core"
)

// TestFallbackUnregisteredCallsPrimaryDirectly verifies the permissive
// default: an unregistered service name calls the primary unprotected
func TestFallbackUnregisteredCallsPrimaryDirectly(t *testing.T) {
	m := NewFallbackManager()

	calls := 0
	result, err := m.Execute(context.Background(), "unknown", func(ctx context.Context) (interface{}, error) {
		calls++
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 42 || calls != 1 {
		t.Errorf("expected direct primary call, got result=%v calls=%d", result, calls)
	}

	// Errors propagate untouched, no breaker bookkeeping
	boom := errors.New("boom")
	_, err = m.Execute(context.Background(), "unknown", failing(boom))
	if !errors.Is(err, boom) {
		t.Errorf("expected primary error unchanged, got %v", err)
	}
}

// TestFallbackPrimaryFailureUsesFallback verifies the fallback result is
// returned unchanged when the primary fails
func TestFallbackPrimaryFailureUsesFallback(t *testing.T) {
	m := NewFallbackManager()
	mustRegister(t, m, "yield-service", func(ctx context.Context) (interface{}, error) {
		return "fallback-estimate", nil
	})

	result, err := m.Execute(context.Background(), "yield-service", failing(errors.New("down")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "fallback-estimate" {
		t.Errorf("expected fallback result, got %v", result)
	}
}

// TestFallbackCacheServedOnTotalFailure verifies the cached primary
// result is served when both primary and fallback fail within the TTL
func TestFallbackCacheServedOnTotalFailure(t *testing.T) {
	clock := newFakeClock()
	m := NewFallbackManager(WithClock(clock), WithCacheTTL(300*time.Second))
	mustRegister(t, m, "price-feed", failing(errors.New("fallback down")))

	// Prime the cache with a successful primary call
	if _, err := m.Execute(context.Background(), "price-feed", succeeding("cached-prices")); err != nil {
		t.Fatalf("priming call failed: %v", err)
	}

	clock.Advance(299 * time.Second)
	result, err := m.Execute(context.Background(), "price-feed", failing(errors.New("primary down")))
	if err != nil {
		t.Fatalf("expected cached result, got error: %v", err)
	}
	if result != "cached-prices" {
		t.Errorf("expected cached value, got %v", result)
	}
}

// TestFallbackExpiredCacheRaisesAggregate verifies an aggregate error
// naming the service when everything fails and the cache is stale
func TestFallbackExpiredCacheRaisesAggregate(t *testing.T) {
	clock := newFakeClock()
	m := NewFallbackManager(WithClock(clock), WithCacheTTL(300*time.Second))
	mustRegister(t, m, "price-feed", failing(errors.New("fallback down")))

	if _, err := m.Execute(context.Background(), "price-feed", succeeding("cached-prices")); err != nil {
		t.Fatalf("priming call failed: %v", err)
	}

	clock.Advance(301 * time.Second)
	_, err := m.Execute(context.Background(), "price-feed", failing(errors.New("primary down")))
	if !errors.Is(err, core.ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "price-feed") {
		t.Errorf("aggregate error should name the service: %v", err)
	}
}

// TestFallbackNoFallbackNoCacheRaisesAggregate covers registration with
// a nil fallback function
func TestFallbackNoFallbackNoCacheRaisesAggregate(t *testing.T) {
	m := NewFallbackManager()
	mustRegister(t, m, "bare", nil)

	_, err := m.Execute(context.Background(), "bare", failing(errors.New("down")))
	if !errors.Is(err, core.ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
}

// TestFallbackResultsNeverCached verifies only primary successes enter
// the cache
func TestFallbackResultsNeverCached(t *testing.T) {
	clock := newFakeClock()
	m := NewFallbackManager(WithClock(clock))

	fallbackCalls := 0
	mustRegister(t, m, "svc", func(ctx context.Context) (interface{}, error) {
		fallbackCalls++
		if fallbackCalls == 1 {
			return "from-fallback", nil
		}
		return nil, errors.New("fallback down")
	})

	// First failure served by the fallback
	result, err := m.Execute(context.Background(), "svc", failing(errors.New("down")))
	if err != nil || result != "from-fallback" {
		t.Fatalf("expected fallback result, got %v / %v", result, err)
	}

	// Second failure: fallback also fails and there is no cache, because
	// fallback results are never cached
	_, err = m.Execute(context.Background(), "svc", failing(errors.New("down")))
	if !errors.Is(err, core.ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
}

// TestFallbackBreakerRejectionStillFallsBack verifies rejected calls go
// to the fallback path with the primary never invoked
func TestFallbackBreakerRejectionStillFallsBack(t *testing.T) {
	m := NewFallbackManager()
	mustRegister(t, m, "svc", succeeding("fb"))

	// Trip the breaker (threshold 2 from mustRegister)
	for i := 0; i < 2; i++ {
		_, _ = m.Execute(context.Background(), "svc", failing(errors.New("down")))
	}
	status, ok := m.CircuitStatus("svc")
	if !ok || status.State != "open" {
		t.Fatalf("expected open breaker, got %+v", status)
	}

	primaryCalls := 0
	result, err := m.Execute(context.Background(), "svc", func(ctx context.Context) (interface{}, error) {
		primaryCalls++
		return nil, errors.New("down")
	})
	if err != nil || result != "fb" {
		t.Fatalf("expected fallback on rejection, got %v / %v", result, err)
	}
	if primaryCalls != 0 {
		t.Errorf("primary invoked %d times through an open breaker", primaryCalls)
	}
}

// TestFallbackStatusOperations verifies status introspection and reset
// always succeed
func TestFallbackStatusOperations(t *testing.T) {
	m := NewFallbackManager()
	mustRegister(t, m, "a", nil)
	mustRegister(t, m, "b", nil)

	for i := 0; i < 2; i++ {
		_, _ = m.Execute(context.Background(), "a", failing(errors.New("down")))
	}

	statuses := m.AllStatuses()
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if statuses["a"].State != "open" {
		t.Errorf("expected a open, got %s", statuses["a"].State)
	}
	if statuses["b"].State != "closed" {
		t.Errorf("expected b closed, got %s", statuses["b"].State)
	}

	if !m.ResetCircuit("a") {
		t.Fatal("reset of registered service reported unknown")
	}
	status, _ := m.CircuitStatus("a")
	if status.State != "closed" || status.FailureCount != 0 {
		t.Errorf("expected closed zeroed breaker after reset, got %+v", status)
	}

	if m.ResetCircuit("unknown") {
		t.Error("reset of unknown service should report false")
	}
	if _, ok := m.CircuitStatus("unknown"); ok {
		t.Error("status of unknown service should report false")
	}
}

// TestFallbackRegisterReplaces verifies re-registration swaps breaker
// state and fallback atomically
func TestFallbackRegisterReplaces(t *testing.T) {
	m := NewFallbackManager()
	mustRegister(t, m, "svc", succeeding("old"))

	for i := 0; i < 2; i++ {
		_, _ = m.Execute(context.Background(), "svc", failing(errors.New("down")))
	}

	mustRegister(t, m, "svc", succeeding("new"))
	status, _ := m.CircuitStatus("svc")
	if status.State != "closed" {
		t.Fatalf("expected fresh breaker after replacement, got %s", status.State)
	}

	result, err := m.Execute(context.Background(), "svc", failing(errors.New("down")))
	if err != nil || result != "new" {
		t.Errorf("expected replacement fallback, got %v / %v", result, err)
	}
}

func mustRegister(t *testing.T, m *FallbackManager, name string, fallback Fn) {
	t.Helper()
	if err := m.RegisterFallback(name, fallback, 2, 30*time.Second, 1); err != nil {
		t.Fatalf("RegisterFallback(%s) failed: %v", name, err)
	}
}
