package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agrimesh/agentmesh/core"
)

// DefaultCacheTTL is how long a cached primary result may be served after
// both the primary and the fallback have failed.
const DefaultCacheTTL = 300 * time.Second

// Fn is the shape of both primary and fallback call paths
type Fn func(ctx context.Context) (interface{}, error)

// fallbackEntry pairs one dependency's circuit breaker with its fallback
// function and last-good-value cache
type fallbackEntry struct {
	breaker  *CircuitBreaker
	fallback Fn

	cacheMu  sync.Mutex
	cached   interface{}
	cachedAt time.Time
	hasCache bool
}

// FallbackManager wraps calls to named services with a circuit breaker, a
// registered fallback function and a last-good-value cache. It is the
// terminal error boundary: any combination of primary, fallback and cache
// failure collapses into one aggregate error naming the service.
type FallbackManager struct {
	mu       sync.RWMutex
	services map[string]*fallbackEntry

	cacheTTL time.Duration
	clock    core.Clock
	logger   core.Logger
	metrics  MetricsCollector
}

// FallbackOption configures a FallbackManager
type FallbackOption func(*FallbackManager)

// WithCacheTTL overrides the default 300s last-good-value TTL
func WithCacheTTL(ttl time.Duration) FallbackOption {
	return func(m *FallbackManager) { m.cacheTTL = ttl }
}

// WithClock injects a time source for deterministic tests
func WithClock(clock core.Clock) FallbackOption {
	return func(m *FallbackManager) { m.clock = clock }
}

// WithFallbackLogger sets the logger used for fallback events
func WithFallbackLogger(logger core.Logger) FallbackOption {
	return func(m *FallbackManager) { m.logger = logger }
}

// WithFallbackMetrics sets the metrics collector shared with breakers
func WithFallbackMetrics(metrics MetricsCollector) FallbackOption {
	return func(m *FallbackManager) { m.metrics = metrics }
}

// NewFallbackManager creates an empty manager. Construct one per process
// at startup and inject it; sharing a manager between unrelated tests
// hides state.
func NewFallbackManager(opts ...FallbackOption) *FallbackManager {
	m := &FallbackManager{
		services: make(map[string]*fallbackEntry),
		cacheTTL: DefaultCacheTTL,
		clock:    core.RealClock{},
		logger:   &core.NoOpLogger{},
		metrics:  &noopMetrics{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterFallback creates or replaces the breaker+fallback pair for a
// service atomically. Replacing discards the previous breaker state and
// cached value.
func (m *FallbackManager) RegisterFallback(name string, fallback Fn, failureThreshold int, recoveryTimeout time.Duration, successThreshold int) error {
	cfg := &CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: failureThreshold,
		RecoveryTimeout:  recoveryTimeout,
		SuccessThreshold: successThreshold,
		Clock:            m.clock,
		Logger:           m.logger,
		Metrics:          m.metrics,
	}
	breaker, err := NewCircuitBreaker(cfg)
	if err != nil {
		return fmt.Errorf("register fallback for %q: %w", name, err)
	}

	m.mu.Lock()
	m.services[name] = &fallbackEntry{
		breaker:  breaker,
		fallback: fallback,
	}
	m.mu.Unlock()

	m.logger.Info("Fallback registered", map[string]interface{}{
		"operation":         "fallback_registered",
		"service":           name,
		"failure_threshold": failureThreshold,
		"recovery_timeout":  recoveryTimeout.String(),
		"has_fallback":      fallback != nil,
	})
	return nil
}

// Execute calls the primary for the named service through its circuit
// breaker, falling back in order to: the registered fallback function,
// then the cached result if younger than the TTL.
//
// A service with no registered fallback entry is called directly with no
// protection at all. This permissive default is deliberate and preserved
// from the original design: unknown names pass through rather than fail,
// so wrapping a call site never breaks it before registration happens.
//
// Successful primary results overwrite the cache; fallback results are
// never cached.
func (m *FallbackManager) Execute(ctx context.Context, name string, primary Fn) (interface{}, error) {
	m.mu.RLock()
	entry, ok := m.services[name]
	m.mu.RUnlock()

	if !ok {
		return primary(ctx)
	}

	result, primaryErr := entry.breaker.Call(ctx, primary)
	if primaryErr == nil {
		entry.storeCache(result, m.clock.Now())
		return result, nil
	}

	m.logger.Warn("Primary call failed, trying fallback", map[string]interface{}{
		"operation":    "fallback_execute",
		"service":      name,
		"circuit_open": core.IsCircuitOpen(primaryErr),
		"error":        primaryErr.Error(),
	})

	var fallbackErr error
	if entry.fallback != nil {
		var fbResult interface{}
		fbResult, fallbackErr = entry.fallback(ctx)
		if fallbackErr == nil {
			return fbResult, nil
		}
	}

	if cached, ok := entry.freshCache(m.clock.Now(), m.cacheTTL); ok {
		m.logger.Warn("Serving cached result", map[string]interface{}{
			"operation": "fallback_cache_hit",
			"service":   name,
		})
		return cached, nil
	}

	return nil, &core.MeshError{
		Op:   "fallback.Execute",
		Kind: "unavailable",
		ID:   name,
		Err: fmt.Errorf("%w: service %q failed (primary: %v, fallback: %v) and no fresh cached result",
			core.ErrServiceUnavailable, name, primaryErr, fallbackErr),
	}
}

// CircuitStatus returns the breaker snapshot for one service. It always
// succeeds, even for open breakers. The boolean reports registration.
func (m *FallbackManager) CircuitStatus(name string) (CircuitStatus, bool) {
	m.mu.RLock()
	entry, ok := m.services[name]
	m.mu.RUnlock()
	if !ok {
		return CircuitStatus{}, false
	}
	return entry.breaker.Status(), true
}

// AllStatuses returns snapshots for every registered service
func (m *FallbackManager) AllStatuses() map[string]CircuitStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make(map[string]CircuitStatus, len(m.services))
	for name, entry := range m.services {
		statuses[name] = entry.breaker.Status()
	}
	return statuses
}

// ResetCircuit closes the breaker for one service and zeroes its
// counters. Returns false for unknown services.
func (m *FallbackManager) ResetCircuit(name string) bool {
	m.mu.RLock()
	entry, ok := m.services[name]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	entry.breaker.Reset()
	return true
}

func (e *fallbackEntry) storeCache(result interface{}, now time.Time) {
	e.cacheMu.Lock()
	e.cached = result
	e.cachedAt = now
	e.hasCache = true
	e.cacheMu.Unlock()
}

func (e *fallbackEntry) freshCache(now time.Time, ttl time.Duration) (interface{}, bool) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	if !e.hasCache || now.Sub(e.cachedAt) >= ttl {
		return nil, false
	}
	return e.cached, true
}
