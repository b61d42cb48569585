// Package domainerrors defines coded errors shared by all verticals.
//
// Services and models return these so that transport layers can translate a
// failure into a precise status and message without string matching. Stores
// return pkg/platform/sentinel errors instead; services translate them here.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error for transport mapping and retry decisions.
type Code string

const (
	// CodeValidation marks malformed or missing payload fields. The message
	// names the offending field.
	CodeValidation Code = "validation_error"

	// CodeInvalidInput marks a value that failed parsing at a trust boundary
	// (ids, enums).
	CodeInvalidInput Code = "invalid_input"

	// CodeBadRequest marks a structurally broken request (no body, bad JSON).
	CodeBadRequest Code = "bad_request"

	// CodeNotFound marks an unknown entity id.
	CodeNotFound Code = "not_found"

	// CodeConflict marks a write that lost an optimistic concurrency race.
	// Callers may retry; the engine never retries on its own.
	CodeConflict Code = "conflict"

	// CodeInvalidTransition marks a stage or status change requested from a
	// state that does not permit it. The entity is left unchanged.
	CodeInvalidTransition Code = "invalid_transition"

	// CodeInvalidState marks an operation whose precondition is not met
	// (e.g. verifying effectiveness on a non-completed action).
	CodeInvalidState Code = "invalid_state"

	// CodeInvariantViolation marks a broken model invariant detected at
	// construction or mutation time.
	CodeInvariantViolation Code = "invariant_violation"

	// CodeUnauthorized marks a request without an acting identity.
	CodeUnauthorized Code = "unauthorized"

	// CodeForbidden marks a request whose actor may not perform the operation.
	CodeForbidden Code = "forbidden"

	// CodeInternal marks infrastructure failures. Details are logged, not
	// returned to callers.
	CodeInternal Code = "internal_error"
)

// Error carries a code and a caller-safe message, optionally wrapping a cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

// New builds a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause. The cause stays
// reachable through errors.Is/As for logging; the message is what callers see.
func Wrap(cause error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// HasCode reports whether err (or anything it wraps) is a domain error with
// the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal so unexpected
// failures never leak detail to callers.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the caller-safe message from err. Internal errors return
// an empty message.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Code != CodeInternal {
		return de.Message
	}
	return ""
}
