// Package errors defines Flow Core's stable error taxonomy: every
// failure surfaced across a component boundary is one of the codes
// below, never a bare Go error or a leaked internal type.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code is a stable identifier surfaced to callers, per §7.
type Code string

const (
	CodeValidationError  Code = "VALIDATION_ERROR"
	CodeGraphNotFound    Code = "GRAPH_NOT_FOUND"
	CodeTraceNotFound    Code = "TRACE_NOT_FOUND"
	CodeQueueFull        Code = "QUEUE_FULL"
	CodeInvalidReference Code = "INVALID_REFERENCE"
	CodeMergeConflict    Code = "MERGE_CONFLICT"
	CodeMergeInvalid     Code = "MERGE_INVALID"
	CodeUnavailable      Code = "UNAVAILABLE"
	CodeInternal         Code = "INTERNAL"
)

// Error is a typed error carrying a stable code and a submitter-safe
// message. The underlying cause, if any, is available via Unwrap but is
// never rendered into Message — callers outside the process see only
// the code and Message.
type Error struct {
	code    Code
	message string
	cause   error
}

// New constructs an Error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap constructs an Error that carries cause for internal logging
// while keeping the submitter-facing message independent of it.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{code: code, message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error { return e.cause }

// Code returns the stable taxonomy code.
func (e *Error) Code() Code { return e.code }

// Message returns the submitter-safe description, with no cause detail.
func (e *Error) Message() string { return e.message }

// ValidationError reports a malformed payload, unknown enum, or missing
// required field.
func ValidationError(message string) *Error { return New(CodeValidationError, message) }

// GraphNotFound reports that graphID has no entry in the graph store.
func GraphNotFound(graphID string) *Error {
	return New(CodeGraphNotFound, fmt.Sprintf("graph %q not found", graphID))
}

// TraceNotFound reports that traceID is unknown or has been evicted.
func TraceNotFound(traceID string) *Error {
	return New(CodeTraceNotFound, fmt.Sprintf("trace %q not found", traceID))
}

// QueueFull reports that enqueue returned false within its timeout.
func QueueFull() *Error { return New(CodeQueueFull, "ingest queue is full") }

// InvalidReference reports that an edge referenced a missing endpoint.
func InvalidReference(message string) *Error { return New(CodeInvalidReference, message) }

// MergeConflict reports that the optimistic-retry budget was exhausted.
func MergeConflict(graphID string) *Error {
	return New(CodeMergeConflict, fmt.Sprintf("merge retry budget exhausted for graph %q", graphID))
}

// MergeInvalid reports that the post-merge validator rejected the
// result.
func MergeInvalid(message string) *Error { return New(CodeMergeInvalid, message) }

// Unavailable reports that an external analytics store is unreachable.
func Unavailable(message string) *Error { return New(CodeUnavailable, message) }

// Internal wraps an otherwise-uncategorized failure. cause is retained
// for server-side logging only.
func Internal(message string, cause error) *Error { return Wrap(CodeInternal, message, cause) }

// CodeOf extracts the taxonomy code from err, defaulting to
// CodeInternal for any error not constructed by this package.
func CodeOf(err error) Code {
	var fe *Error
	if stderrors.As(err, &fe) {
		return fe.code
	}
	return CodeInternal
}
