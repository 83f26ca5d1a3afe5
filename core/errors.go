package core

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison using errors.Is().
// These are generic errors that can be wrapped with additional context.
var (
	// Agent-related errors
	ErrAgentNotFound      = errors.New("agent not found")
	ErrAgentAlreadyExists = errors.New("agent already exists")

	// Capability-related errors
	ErrCapabilityNotFound = errors.New("capability not found")

	// Validation errors
	ErrInvalidAgentID       = errors.New("invalid agent id")
	ErrInvalidVersion       = errors.New("invalid version")
	ErrInvalidAgentCard     = errors.New("invalid agent card")
	ErrMissingAuthToken     = errors.New("missing authentication token")
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// Resilience errors
	ErrCircuitOpen        = errors.New("circuit breaker is open")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
	ErrServiceUnavailable = errors.New("service unavailable")

	// HTTP/Network errors
	ErrTimeout          = errors.New("operation timeout")
	ErrConnectionFailed = errors.New("connection failed")
	ErrRequestFailed    = errors.New("request failed")
)

// MeshError provides structured error information with context.
// It implements the error interface and supports error wrapping.
type MeshError struct {
	Op      string // Operation that failed (e.g., "registry.Register")
	Kind    string // Error kind (e.g., "validation", "network", "circuit_open")
	ID      string // Optional ID of the entity involved
	Message string // Human-readable message
	Err     error  // Underlying error for wrapping
}

// Error returns the string representation of the error
func (e *MeshError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

// Unwrap returns the underlying error for use with errors.Is/As
func (e *MeshError) Unwrap() error {
	return e.Err
}

// NewMeshError creates a new MeshError
func NewMeshError(op, kind string, err error) *MeshError {
	return &MeshError{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// IsRetryable checks if an error is retryable.
// Retryable errors are typically transient network or availability issues.
// Validation errors, not-found conditions and circuit rejections never are.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrRequestFailed) ||
		errors.Is(err, ErrServiceUnavailable)
}

// IsNotFound checks if an error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAgentNotFound) ||
		errors.Is(err, ErrCapabilityNotFound)
}

// IsValidationError checks if an error is caused by bad caller input
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidAgentID) ||
		errors.Is(err, ErrInvalidVersion) ||
		errors.Is(err, ErrInvalidAgentCard) ||
		errors.Is(err, ErrMissingAuthToken) ||
		errors.Is(err, ErrInvalidConfiguration)
}

// IsCircuitOpen checks if an error is a circuit breaker rejection,
// i.e. the dependency was never actually called
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}
