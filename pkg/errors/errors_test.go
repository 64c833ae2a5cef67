package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_Creation(t *testing.T) {
	cause := errors.New("connection refused")

	err := NewResourceError("failed to connect to system bus", cause)

	assert.Equal(t, ErrorTypeResource, err.Type)
	assert.Equal(t, "failed to connect to system bus", err.Message)
	assert.Equal(t, cause, err.Cause)
	assert.NotNil(t, err.Context)
}

func TestDomainError_WithContext(t *testing.T) {
	err := NewTimeoutError("command took too long", nil)

	err = err.WithContext("command", "sleep 10")
	err = err.WithContext("timeout_ms", 100)

	assert.Equal(t, "sleep 10", err.Context["command"])
	assert.Equal(t, 100, err.Context["timeout_ms"])
}

func TestDomainError_ErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		error    *DomainError
		expected string
	}{
		{
			name:     "error without cause",
			error:    NewProtocolError("unexpected status line", nil),
			expected: "protocol: unexpected status line",
		},
		{
			name:     "error with cause",
			error:    NewIOError("failed to open audit file", errors.New("permission denied")),
			expected: "io: failed to open audit file: permission denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.error.Error())
		})
	}
}

func TestDomainError_WrappedTypeChecking(t *testing.T) {
	timeoutErr := NewTimeoutError("budget exhausted", nil)
	wrapped := fmt.Errorf("metric action: %w", timeoutErr)

	assert.True(t, IsTimeoutError(wrapped))
	assert.False(t, IsProtocolError(wrapped))
	assert.True(t, errors.Is(wrapped, &DomainError{Type: ErrorTypeTimeout}))
	assert.False(t, IsTimeoutError(errors.New("plain")))
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, ErrorTypeBus, TypeOf(NewBusError("call failed", nil)))
	assert.Equal(t, ErrorTypeInternal, TypeOf(errors.New("foreign")))
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := NewProcessError("wait failed", cause)

	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestErrorCollection(t *testing.T) {
	collection := NewErrorCollection()

	assert.False(t, collection.HasErrors())
	assert.Nil(t, collection.ToError())

	collection.Add(NewValidationError("error 1", nil))
	collection.Add(NewNotFoundError("error 2", nil))
	collection.Add(nil)

	assert.True(t, collection.HasErrors())
	assert.Len(t, collection.Errors, 2)

	err := collection.ToError()
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "2 errors occurred")
}

func TestErrorCollection_SingleError(t *testing.T) {
	collection := NewErrorCollection()
	collection.Add(NewValidationError("single error", nil))

	err := collection.ToError()
	require.NotNil(t, err)
	assert.Equal(t, "validation: single error", err.Error())
}

func TestAllErrorTypes(t *testing.T) {
	errorTypes := []struct {
		name        string
		constructor func(string, error) *DomainError
		checker     func(error) bool
		errorType   ErrorType
	}{
		{"validation", NewValidationError, IsValidationError, ErrorTypeValidation},
		{"not_found", NewNotFoundError, IsNotFoundError, ErrorTypeNotFound},
		{"resource", NewResourceError, IsResourceError, ErrorTypeResource},
		{"timeout", NewTimeoutError, IsTimeoutError, ErrorTypeTimeout},
		{"protocol", NewProtocolError, IsProtocolError, ErrorTypeProtocol},
		{"bus", NewBusError, IsBusError, ErrorTypeBus},
		{"process", NewProcessError, IsProcessError, ErrorTypeProcess},
		{"permission", NewPermissionError, IsPermissionError, ErrorTypePermission},
		{"io", NewIOError, IsIOError, ErrorTypeIO},
		{"network", NewNetworkError, IsNetworkError, ErrorTypeNetwork},
		{"internal", NewInternalError, IsInternalError, ErrorTypeInternal},
	}

	for _, tt := range errorTypes {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.constructor("test message", nil)
			assert.Equal(t, tt.errorType, err.Type)
			assert.True(t, tt.checker(err))
		})
	}
}
