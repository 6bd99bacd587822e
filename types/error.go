package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Workflow error codes
const (
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrInvalidState      ErrorCode = "INVALID_STATE"
	ErrConflict          ErrorCode = "CONFLICT"
	ErrValidation        ErrorCode = "VALIDATION"
	ErrRetrievalFailure  ErrorCode = "RETRIEVAL_FAILURE"
	ErrGenerationFailure ErrorCode = "GENERATION_FAILURE"
)

// Ambient error codes
const (
	ErrInternal    ErrorCode = "INTERNAL"
	ErrUnavailable ErrorCode = "UNAVAILABLE"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Thread     string    `json:"thread_id,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithThread tags the error with the thread it belongs to.
func (e *Error) WithThread(threadID string) *Error {
	e.Thread = threadID
	return e
}

// NewNotFoundError reports an unknown thread identifier.
func NewNotFoundError(threadID string) *Error {
	return NewError(ErrNotFound, "thread not found").
		WithThread(threadID).
		WithHTTPStatus(http.StatusNotFound)
}

// NewInvalidStateError reports a resume against a thread that is not
// suspended at a resumable node.
func NewInvalidStateError(threadID, message string) *Error {
	return NewError(ErrInvalidState, message).
		WithThread(threadID).
		WithHTTPStatus(http.StatusConflict)
}

// NewConflictError reports a lost optimistic-concurrency race. The caller
// may retry; the engine never does.
func NewConflictError(threadID, message string) *Error {
	return NewError(ErrConflict, message).
		WithThread(threadID).
		WithHTTPStatus(http.StatusConflict).
		WithRetryable(true)
}

// NewValidationError reports a malformed request payload.
func NewValidationError(message string) *Error {
	return NewError(ErrValidation, message).
		WithHTTPStatus(http.StatusUnprocessableEntity)
}

// NewRetrievalFailure wraps a retriever capability failure.
func NewRetrievalFailure(cause error) *Error {
	return NewError(ErrRetrievalFailure, "retrieval failed").
		WithCause(cause).
		WithHTTPStatus(http.StatusBadGateway)
}

// NewGenerationFailure wraps a generator capability failure.
func NewGenerationFailure(threadID string, cause error) *Error {
	return NewError(ErrGenerationFailure, "generation failed").
		WithThread(threadID).
		WithCause(cause).
		WithHTTPStatus(http.StatusBadGateway)
}

// AsError extracts the typed error from an error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// IsNotFound reports an unknown-thread error.
func IsNotFound(err error) bool { return IsErrorCode(err, ErrNotFound) }

// IsInvalidState reports a resume-on-wrong-state error.
func IsInvalidState(err error) bool { return IsErrorCode(err, ErrInvalidState) }

// IsConflict reports a concurrent-write error.
func IsConflict(err error) bool { return IsErrorCode(err, ErrConflict) }

// IsValidation reports a malformed-payload error.
func IsValidation(err error) bool { return IsErrorCode(err, ErrValidation) }
