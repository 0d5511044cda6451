// Package errors defines unified error types for eduagent operations.
// Vector store backends, strategies, and agents all map their failures to
// these standard error kinds so callers can branch on kind.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a standardized error from an eduagent component.
// It contains all necessary information for error handling, logging, and client response.
type Error struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Component  string `json:"component"` // backend, strategy, or agent name
	Retryable  bool   `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Component == "" {
		return fmt.Sprintf("[%s] %s", e.Type, e.Message)
	}
	return fmt.Sprintf("[%s] %s (component=%s)", e.Type, e.Message, e.Component)
}

// HTTPStatusCode returns the appropriate HTTP status code for the error.
func (e *Error) HTTPStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

// Common error types as constants for consistency.
const (
	TypeUnknownStrategy  = "unknown_strategy_error"
	TypeUnknownBackend   = "unknown_backend_error"
	TypeConnection       = "connection_error"
	TypeIndex            = "index_error"
	TypeQuery            = "query_error"
	TypeNotFound         = "not_found_error"
	TypeInvalidRequest   = "invalid_request_error"
	TypeUnsupportedInput = "unsupported_input_error"
	TypeAgent            = "agent_error"
	TypeInternal         = "internal_error"
)

// NewUnknownStrategyError reports a strategy type that no factory recognizes.
func NewUnknownStrategyError(strategyType string) *Error {
	return &Error{
		StatusCode: http.StatusBadRequest,
		Message:    fmt.Sprintf("unknown strategy: %s", strategyType),
		Type:       TypeUnknownStrategy,
		Component:  strategyType,
		Retryable:  false,
	}
}

// NewUnknownBackendError reports a vector store backend that is not registered.
func NewUnknownBackendError(backend string, available []string) *Error {
	return &Error{
		StatusCode: http.StatusBadRequest,
		Message:    fmt.Sprintf("unsupported vector store backend: %s (available: %v)", backend, available),
		Type:       TypeUnknownBackend,
		Component:  backend,
		Retryable:  false,
	}
}

// NewConnectionError creates a connection error (503).
func NewConnectionError(component, message string) *Error {
	return &Error{
		StatusCode: http.StatusServiceUnavailable,
		Message:    message,
		Type:       TypeConnection,
		Component:  component,
		Retryable:  true,
	}
}

// NewIndexError creates an index error (500).
func NewIndexError(component, message string) *Error {
	return &Error{
		StatusCode: http.StatusInternalServerError,
		Message:    message,
		Type:       TypeIndex,
		Component:  component,
		Retryable:  false,
	}
}

// NewQueryError creates a query error (500).
func NewQueryError(component, message string) *Error {
	return &Error{
		StatusCode: http.StatusInternalServerError,
		Message:    message,
		Type:       TypeQuery,
		Component:  component,
		Retryable:  true,
	}
}

// NewNotFoundError creates a not found error (404).
func NewNotFoundError(component, message string) *Error {
	return &Error{
		StatusCode: http.StatusNotFound,
		Message:    message,
		Type:       TypeNotFound,
		Component:  component,
		Retryable:  false,
	}
}

// NewInvalidRequestError creates an invalid request error (400).
func NewInvalidRequestError(component, message string) *Error {
	return &Error{
		StatusCode: http.StatusBadRequest,
		Message:    message,
		Type:       TypeInvalidRequest,
		Component:  component,
		Retryable:  false,
	}
}

// NewUnsupportedInputError reports input a strategy cannot process.
// Strategies must return this instead of a silent empty result so the
// ingestion pipeline can distinguish "nothing found" from "cannot process".
func NewUnsupportedInputError(component, message string) *Error {
	return &Error{
		StatusCode: http.StatusUnprocessableEntity,
		Message:    message,
		Type:       TypeUnsupportedInput,
		Component:  component,
		Retryable:  false,
	}
}

// NewAgentError wraps an agent processing failure.
func NewAgentError(agentID, message string) *Error {
	return &Error{
		StatusCode: http.StatusInternalServerError,
		Message:    message,
		Type:       TypeAgent,
		Component:  agentID,
		Retryable:  true,
	}
}

// NewInternalError creates an internal server error (500).
func NewInternalError(component, message string) *Error {
	return &Error{
		StatusCode: http.StatusInternalServerError,
		Message:    message,
		Type:       TypeInternal,
		Component:  component,
		Retryable:  false,
	}
}

// IsKind reports whether err is an *Error of the given type.
func IsKind(err error, kind string) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == kind
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return IsKind(err, TypeNotFound) }

// IsConnection reports whether err is a connection error.
func IsConnection(err error) bool { return IsKind(err, TypeConnection) }

// IsUnsupportedInput reports whether err is an unsupported-input error.
func IsUnsupportedInput(err error) bool { return IsKind(err, TypeUnsupportedInput) }
