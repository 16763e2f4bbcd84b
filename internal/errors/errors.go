// Package errors provides coded application errors and their HTTP mapping.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned by services and repositories.
const (
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodeInvalidState   = "INVALID_STATE"
	ErrCodeAlreadyDecided = "ALREADY_DECIDED"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeInternal       = "INTERNAL"
)

// Error is a coded error carrying an application error code, a
// human-readable message and an optional wrapped cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a coded error.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code, message string) *Error {
	return &Error{Code: code, Message: message, Cause: err}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// InvalidInput reports a missing or malformed request field.
func InvalidInput(field, message string) *Error {
	return &Error{
		Code:    ErrCodeInvalidInput,
		Message: fmt.Sprintf("%s: %s", field, message),
	}
}

// Unauthorized reports a caller acting outside their bindings.
func Unauthorized(message string) *Error {
	return &Error{Code: ErrCodeUnauthorized, Message: message}
}

// InvalidState reports an action attempted outside its precondition state.
func InvalidState(message string) *Error {
	return &Error{Code: ErrCodeInvalidState, Message: message}
}

// AlreadyDecided reports a duplicate action on an already-decided slot.
func AlreadyDecided(message string) *Error {
	return &Error{Code: ErrCodeAlreadyDecided, Message: message}
}

// Code extracts the application error code from err, or ErrCodeInternal
// when err carries no code.
func Code(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// Message extracts the human-readable message from err.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// HTTPStatus maps an error to the status code served at the HTTP boundary.
func HTTPStatus(err error) int {
	switch Code(err) {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusForbidden
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeInvalidState, ErrCodeAlreadyDecided, ErrCodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
