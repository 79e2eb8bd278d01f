// Package domainerrors provides coded domain errors. Services create or wrap
// errors with a Code; the transport layer translates codes to HTTP statuses
// so policy decisions surface their exact reason while infrastructure
// failures stay opaque.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error for propagation and transport mapping.
type Code string

const (
	// CodeInvalidInput marks malformed or missing caller input.
	CodeInvalidInput Code = "invalid_input"
	// CodeBadRequest marks a structurally valid but unacceptable request.
	CodeBadRequest Code = "bad_request"
	// CodeNotFound marks a missing entity.
	CodeNotFound Code = "not_found"
	// CodeForbidden marks a policy rejection (role, guard, transition).
	CodeForbidden Code = "forbidden"
	// CodeConflict marks a lost race or uniqueness violation.
	CodeConflict Code = "conflict"
	// CodeTimeout marks a deadline or cancellation.
	CodeTimeout Code = "timeout"
	// CodeInvariantViolation marks a broken hard invariant. These are
	// treated as security incidents, never retried.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeInternal marks everything else.
	CodeInternal Code = "internal"
)

// Error is a coded domain error. Message is safe to surface to callers.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error with a caller-safe message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted caller-safe message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and caller-safe message to an underlying error.
// Returns nil if err is nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is a readability alias for HasCode used at transport edges.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the caller-safe message from err. Non-coded errors
// yield a generic message so internals never leak.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

// ToHTTPStatus maps a code to its HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput, CodeBadRequest:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeConflict:
		return http.StatusConflict
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeInvariantViolation, CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
