package resilience

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetricsCollector implements MetricsCollector using OpenTelemetry
type OTelMetricsCollector struct {
	calls        metric.Int64Counter
	failures     metric.Int64Counter
	rejections   metric.Int64Counter
	stateChanges metric.Int64Counter
}

// NewOTelMetricsCollector creates a collector on the global meter
// provider. Instrument creation errors fall back to no-op instruments,
// so a missing telemetry setup never breaks call paths.
func NewOTelMetricsCollector() *OTelMetricsCollector {
	meter := otel.Meter("agentmesh/resilience")

	calls, _ := meter.Int64Counter("circuit_breaker.calls",
		metric.WithDescription("Total circuit breaker calls"))
	failures, _ := meter.Int64Counter("circuit_breaker.failures",
		metric.WithDescription("Circuit breaker failures by error type"))
	rejections, _ := meter.Int64Counter("circuit_breaker.rejected",
		metric.WithDescription("Requests rejected by an open circuit"))
	stateChanges, _ := meter.Int64Counter("circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state transitions"))

	return &OTelMetricsCollector{
		calls:        calls,
		failures:     failures,
		rejections:   rejections,
		stateChanges: stateChanges,
	}
}

// RecordSuccess records a successful circuit breaker execution
func (o *OTelMetricsCollector) RecordSuccess(name string) {
	o.calls.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("circuit_breaker", name),
			attribute.String("result", "success"),
		))
}

// RecordFailure records a failed circuit breaker execution
func (o *OTelMetricsCollector) RecordFailure(name string, errorType string) {
	o.calls.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("circuit_breaker", name),
			attribute.String("result", "failure"),
		))
	o.failures.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("circuit_breaker", name),
			attribute.String("error_type", errorType),
		))
}

// RecordStateChange records a circuit breaker state transition
func (o *OTelMetricsCollector) RecordStateChange(name string, from, to string) {
	o.stateChanges.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("circuit_breaker", name),
			attribute.String("from_state", from),
			attribute.String("to_state", to),
		))
}

// RecordRejection records when the circuit breaker rejects a request
func (o *OTelMetricsCollector) RecordRejection(name string) {
	o.rejections.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("circuit_breaker", name),
		))
}
