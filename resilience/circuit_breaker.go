package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/agrimesh/agentmesh/core"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed allows all requests through
	StateClosed CircuitState = iota
	// StateOpen blocks all requests
	StateOpen
	// StateHalfOpen allows trial requests for recovery testing
	StateHalfOpen
)

// String returns the string representation of the state
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// MetricsCollector interface for circuit breaker metrics
type MetricsCollector interface {
	RecordSuccess(name string)
	RecordFailure(name string, errorType string)
	RecordStateChange(name string, from, to string)
	RecordRejection(name string)
}

// noopMetrics is a no-op metrics implementation
type noopMetrics struct{}

func (n *noopMetrics) RecordSuccess(name string)                      {}
func (n *noopMetrics) RecordFailure(name string, errorType string)    {}
func (n *noopMetrics) RecordStateChange(name string, from, to string) {}
func (n *noopMetrics) RecordRejection(name string)                    {}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	// Name identifies the circuit breaker, usually the dependency name
	Name string

	// FailureThreshold is the number of consecutive failures before opening
	FailureThreshold int

	// RecoveryTimeout is how long the circuit stays open before a trial
	// call is allowed through
	RecoveryTimeout time.Duration

	// SuccessThreshold is the number of consecutive half-open successes
	// required to close the circuit again
	SuccessThreshold int

	// Clock is the time source; defaults to the wall clock
	Clock core.Clock

	// Logger for circuit breaker events
	Logger core.Logger

	// Metrics collector for monitoring
	Metrics MetricsCollector
}

// DefaultCircuitBreakerConfig returns production-ready defaults
func DefaultCircuitBreakerConfig(name string) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		SuccessThreshold: 3,
		Clock:            core.RealClock{},
		Logger:           &core.NoOpLogger{},
		Metrics:          &noopMetrics{},
	}
}

// Validate validates the circuit breaker configuration
func (c *CircuitBreakerConfig) Validate() error {
	if c == nil {
		return errors.New("configuration cannot be nil")
	}
	if c.Name == "" {
		return errors.New("circuit breaker name is required")
	}
	if c.FailureThreshold < 1 {
		return fmt.Errorf("failure threshold must be at least 1, got %d", c.FailureThreshold)
	}
	if c.RecoveryTimeout <= 0 {
		return fmt.Errorf("recovery timeout must be positive, got %v", c.RecoveryTimeout)
	}
	if c.SuccessThreshold < 1 {
		return fmt.Errorf("success threshold must be at least 1, got %d", c.SuccessThreshold)
	}
	return nil
}

// CircuitStatus is a point-in-time snapshot of a breaker, safe to read
// while other goroutines keep calling through it
type CircuitStatus struct {
	Name             string    `json:"name"`
	State            string    `json:"state"`
	FailureCount     int       `json:"failure_count"`
	SuccessCount     int       `json:"success_count"`
	OpenedAt         time.Time `json:"opened_at,omitempty"`
	FailureThreshold int       `json:"failure_threshold"`
	RecoveryTimeout  string    `json:"recovery_timeout"`
	SuccessThreshold int       `json:"success_threshold"`
}

// CircuitBreaker tracks consecutive failures for one dependency and stops
// calling it for RecoveryTimeout once FailureThreshold is reached. The
// OPEN to HALF_OPEN transition is evaluated lazily at call time; there is
// no background timer, so an idle breaker never changes state on its own.
//
// All counter mutation is guarded by one mutex per breaker. Health checks
// and request paths may share a breaker, which makes this the one place
// concurrent-mutation safety genuinely matters.
type CircuitBreaker struct {
	config *CircuitBreakerConfig

	mu           sync.Mutex
	state        CircuitState
	failureCount int
	successCount int
	openedAt     time.Time
}

// NewCircuitBreaker creates a circuit breaker for one dependency
func NewCircuitBreaker(config *CircuitBreakerConfig) (*CircuitBreaker, error) {
	if config == nil {
		config = DefaultCircuitBreakerConfig("default")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid circuit breaker config: %w", err)
	}
	if config.Clock == nil {
		config.Clock = core.RealClock{}
	}
	if config.Logger == nil {
		config.Logger = &core.NoOpLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &noopMetrics{}
	}

	cb := &CircuitBreaker{
		config: config,
		state:  StateClosed,
	}

	config.Logger.Debug("Circuit breaker created", map[string]interface{}{
		"operation":         "circuit_breaker_created",
		"name":              config.Name,
		"failure_threshold": config.FailureThreshold,
		"recovery_timeout":  config.RecoveryTimeout.String(),
		"success_threshold": config.SuccessThreshold,
	})

	return cb, nil
}

// Call runs fn with circuit breaker protection. On success it returns
// fn's result. On failure it records the failure and returns fn's error
// unchanged. When the circuit is open it returns an error wrapping
// core.ErrCircuitOpen without invoking fn at all.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if !cb.allow() {
		cb.config.Metrics.RecordRejection(cb.config.Name)
		cb.config.Logger.Debug("Circuit breaker rejected call", map[string]interface{}{
			"operation": "circuit_breaker_reject",
			"name":      cb.config.Name,
			"state":     cb.Status().State,
		})
		return nil, fmt.Errorf("circuit breaker %q rejected call: %w", cb.config.Name, core.ErrCircuitOpen)
	}

	result, err := fn(ctx)
	if err != nil {
		cb.recordFailure(err)
		return nil, err
	}

	cb.recordSuccess()
	return result, nil
}

// Execute is a convenience wrapper for callers without a result value
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := cb.Call(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, fn(ctx)
	})
	return err
}

// allow decides whether a call may proceed, performing the lazy
// OPEN -> HALF_OPEN transition when the recovery timeout has elapsed
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if cb.config.Clock.Now().Sub(cb.openedAt) >= cb.config.RecoveryTimeout {
			cb.transition(StateHalfOpen)
			return true
		}
		return false
	default:
		return false
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.config.Metrics.RecordSuccess(cb.config.Name)

	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.transition(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) recordFailure(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.config.Metrics.RecordFailure(cb.config.Name, errorType(err))

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		// Any half-open failure reopens immediately
		cb.transition(StateOpen)
	}
}

// transition changes state; callers must hold cb.mu
func (cb *CircuitBreaker) transition(newState CircuitState) {
	oldState := cb.state
	if oldState == newState {
		return
	}

	cb.state = newState
	switch newState {
	case StateOpen:
		cb.openedAt = cb.config.Clock.Now()
		cb.successCount = 0
	case StateHalfOpen:
		cb.successCount = 0
	case StateClosed:
		cb.failureCount = 0
		cb.successCount = 0
		cb.openedAt = time.Time{}
	}

	cb.config.Logger.Info("Circuit breaker state changed", map[string]interface{}{
		"operation":     "circuit_breaker_state_change",
		"name":          cb.config.Name,
		"from":          oldState.String(),
		"to":            newState.String(),
		"failure_count": cb.failureCount,
	})
	cb.config.Metrics.RecordStateChange(cb.config.Name, oldState.String(), newState.String())
}

// State returns the current state
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Status returns a snapshot of the breaker. It always succeeds, even
// while the circuit is open, so operational tooling can poll it freely.
func (cb *CircuitBreaker) Status() CircuitStatus {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitStatus{
		Name:             cb.config.Name,
		State:            cb.state.String(),
		FailureCount:     cb.failureCount,
		SuccessCount:     cb.successCount,
		OpenedAt:         cb.openedAt,
		FailureThreshold: cb.config.FailureThreshold,
		RecoveryTimeout:  cb.config.RecoveryTimeout.String(),
		SuccessThreshold: cb.config.SuccessThreshold,
	}
}

// Reset returns the breaker to CLOSED with zeroed counters. Intended for
// operator action; a HALF_OPEN trial run is the only other way back.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	oldState := cb.state
	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.openedAt = time.Time{}

	cb.config.Logger.Info("Circuit breaker reset", map[string]interface{}{
		"operation":      "circuit_breaker_reset",
		"name":           cb.config.Name,
		"previous_state": oldState.String(),
		"action":         "manual_reset",
	})
	if oldState != StateClosed {
		cb.config.Metrics.RecordStateChange(cb.config.Name, oldState.String(), StateClosed.String())
	}
}

// errorType maps well-known errors to stable metric labels
func errorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, core.ErrTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, core.ErrConnectionFailed):
		return "connection"
	case errors.Is(err, core.ErrRequestFailed):
		return "request"
	default:
		return fmt.Sprintf("%T", err)
	}
}
