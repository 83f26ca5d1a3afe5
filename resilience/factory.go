package resilience

import (
	"context"

	"github.com/agrimesh/agentmesh/core"
)

// Dependencies holds optional collaborators injected into resilience
// components at construction time
type Dependencies struct {
	Logger  core.Logger
	Metrics MetricsCollector
	Clock   core.Clock
}

func (d *Dependencies) fill() {
	if d.Logger == nil {
		d.Logger = &core.NoOpLogger{}
	}
	if d.Metrics == nil {
		d.Metrics = &noopMetrics{}
	}
	if d.Clock == nil {
		d.Clock = core.RealClock{}
	}
}

// CreateCircuitBreaker creates a circuit breaker with default thresholds
// and the supplied dependencies
func CreateCircuitBreaker(name string, deps Dependencies) (*CircuitBreaker, error) {
	deps.fill()

	config := DefaultCircuitBreakerConfig(name)
	config.Logger = deps.Logger
	config.Metrics = deps.Metrics
	config.Clock = deps.Clock

	return NewCircuitBreaker(config)
}

// CreateFallbackManager creates a fallback manager wired with the
// supplied dependencies
func CreateFallbackManager(deps Dependencies) *FallbackManager {
	deps.fill()
	return NewFallbackManager(
		WithFallbackLogger(deps.Logger),
		WithFallbackMetrics(deps.Metrics),
		WithClock(deps.Clock),
	)
}

// RetryWithCircuitBreaker runs fn under the retry policy with every
// attempt individually protected by the circuit breaker. Rejections by
// an open circuit are not retried; they surface immediately.
func RetryWithCircuitBreaker(ctx context.Context, policy *RetryPolicy, cb *CircuitBreaker, fn func(ctx context.Context) error) error {
	classify := policy.Classifier
	if classify == nil {
		classify = core.IsRetryable
	}

	wrapped := *policy
	wrapped.Classifier = func(err error) bool {
		if core.IsCircuitOpen(err) {
			return false
		}
		return classify(err)
	}

	return wrapped.Execute(ctx, func(ctx context.Context) error {
		return cb.Execute(ctx, fn)
	})
}
