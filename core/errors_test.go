package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeshErrorFormatting(t *testing.T) {
	err := &MeshError{Op: "registry.Get", ID: "disease-expert", Err: ErrAgentNotFound}
	assert.Equal(t, "registry.Get [disease-expert]: agent not found", err.Error())

	err = &MeshError{Op: "client.InvokeAgent", Err: ErrTimeout}
	assert.Equal(t, "client.InvokeAgent: operation timeout", err.Error())

	err = &MeshError{Message: "something specific"}
	assert.Equal(t, "something specific", err.Error())

	err = &MeshError{Kind: "network"}
	assert.Equal(t, "network error", err.Error())
}

func TestMeshErrorUnwrap(t *testing.T) {
	inner := fmt.Errorf("dial tcp: %w", ErrConnectionFailed)
	err := NewMeshError("client.GetAgent", "network", inner)

	assert.True(t, errors.Is(err, ErrConnectionFailed))
	var mesh *MeshError
	assert.True(t, errors.As(err, &mesh))
	assert.Equal(t, "client.GetAgent", mesh.Op)
}

func TestIsRetryable(t *testing.T) {
	retryable := []error{
		ErrTimeout,
		ErrConnectionFailed,
		ErrRequestFailed,
		ErrServiceUnavailable,
		fmt.Errorf("wrapped: %w", ErrTimeout),
	}
	for _, err := range retryable {
		assert.True(t, IsRetryable(err), "%v", err)
	}

	permanent := []error{
		nil,
		ErrAgentNotFound,
		ErrInvalidAgentCard,
		ErrCircuitOpen,
		errors.New("opaque"),
	}
	for _, err := range permanent {
		assert.False(t, IsRetryable(err), "%v", err)
	}
}

func TestErrorClassifiers(t *testing.T) {
	assert.True(t, IsNotFound(fmt.Errorf("lookup: %w", ErrAgentNotFound)))
	assert.True(t, IsNotFound(ErrCapabilityNotFound))
	assert.False(t, IsNotFound(ErrTimeout))

	assert.True(t, IsValidationError(ErrInvalidVersion))
	assert.True(t, IsValidationError(fmt.Errorf("card: %w", ErrMissingAuthToken)))
	assert.False(t, IsValidationError(ErrRequestFailed))

	assert.True(t, IsCircuitOpen(fmt.Errorf("rejected: %w", ErrCircuitOpen)))
	assert.False(t, IsCircuitOpen(ErrServiceUnavailable))
}
