// Package errors provides typed errors for the local API.
package errors

import (
	"errors"
	"net/http"
)

// Error types. Each maps to one HTTP status.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized") // brokerage session not logged in
	ErrValidation   = errors.New("validation error")

	// ErrConflict means the request does not fit the session state, e.g. a
	// code submitted when none was requested.
	ErrConflict = errors.New("conflict")

	ErrUpstream = errors.New("upstream error")   // site did not produce what was expected
	ErrTimeout  = errors.New("upstream timeout") // site did not respond in time
	ErrInternal = errors.New("internal error")
)

// AppError carries an error type, a message safe to show API clients, and
// the underlying cause.
type AppError struct {
	Type    error
	Message string
	Details map[string]any
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap exposes both the type and the cause to errors.Is.
func (e *AppError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Type, e.Cause}
	}
	return []error{e.Type}
}

// New creates an AppError of errType.
func New(errType error, message string) *AppError {
	return Wrap(errType, message, nil)
}

// Wrap creates an AppError of errType around cause.
func Wrap(errType error, message string, cause error) *AppError {
	return &AppError{Type: errType, Message: message, Cause: cause}
}

func NotFound(resource string) *AppError {
	return New(ErrNotFound, resource+" not found")
}

// Unauthorized defaults to "login required".
func Unauthorized(message string) *AppError {
	if message == "" {
		message = "login required"
	}
	return New(ErrUnauthorized, message)
}

func Validation(message string) *AppError {
	return New(ErrValidation, message)
}

// ValidationField names the offending field in Details.
func ValidationField(field, message string) *AppError {
	e := Validation(message)
	e.Details = map[string]any{"field": field}
	return e
}

func Internal(message string, cause error) *AppError {
	return Wrap(ErrInternal, message, cause)
}

var statuses = []struct {
	typ    error
	status int
}{
	{ErrNotFound, http.StatusNotFound},
	{ErrUnauthorized, http.StatusUnauthorized},
	{ErrValidation, http.StatusBadRequest},
	{ErrConflict, http.StatusConflict},
	{ErrUpstream, http.StatusBadGateway},
	{ErrTimeout, http.StatusGatewayTimeout},
}

// HTTPStatus returns the status for err's type, 500 when it has none.
func HTTPStatus(err error) int {
	for _, s := range statuses {
		if errors.Is(err, s.typ) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

// Message returns the user-facing message of err. Errors that are not an
// AppError get a generic message so internals do not leak.
func Message(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal server error"
}
