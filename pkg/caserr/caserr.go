// Package caserr defines the stable error taxonomy shared by every layer of the
// CAS engine, from the commit admitter down to the HTTP adapter.
package caserr

import (
	"errors"
	"fmt"
)

// Kind is a stable wire identifier for a class of CAS error.
type Kind string

const (
	KindUnauthorized  Kind = "unauthorized"
	KindForbidden     Kind = "forbidden"
	KindNotFound      Kind = "not_found"
	KindGone          Kind = "gone"
	KindConflict      Kind = "conflict"
	KindHashMismatch  Kind = "hash_mismatch"
	KindInvalidNode   Kind = "invalid_node"
	KindQuotaExceeded Kind = "quota_exceeded"
	KindInvalidReq    Kind = "invalid_request"
	KindInternal      Kind = "internal"
)

// httpStatus maps each Kind to its HTTP status code per the wire contract.
var httpStatus = map[Kind]int{
	KindUnauthorized:  401,
	KindForbidden:     403,
	KindNotFound:      404,
	KindGone:          410,
	KindConflict:      409,
	KindHashMismatch:  400,
	KindInvalidNode:   400,
	KindQuotaExceeded: 400,
	KindInvalidReq:    400,
	KindInternal:      500,
}

// Error is the single tagged error type used across the engine.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.As/errors.Is.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the HTTP status code associated with e's Kind.
func (e *Error) HTTPStatus() int {
	if status, ok := httpStatus[e.Kind]; ok {
		return status
	}
	return 500
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsNotFound reports whether err is a not_found error.
func IsNotFound(err error) bool { return Is(err, KindNotFound) }

// IsForbidden reports whether err is a forbidden error.
func IsForbidden(err error) bool { return Is(err, KindForbidden) }

// IsConflict reports whether err is a conflict error. missing_nodes is not
// one: it travels as a cas.Outcome, not as a *caserr.Error.
func IsConflict(err error) bool { return Is(err, KindConflict) }

// Unauthorized, Forbidden, NotFound, ... are convenience constructors mirroring
// the teacher's ErrXxx constructor convention.

func Unauthorized(message string) *Error  { return New(KindUnauthorized, message) }
func Forbidden(message string) *Error     { return New(KindForbidden, message) }
func NotFound(message string) *Error      { return New(KindNotFound, message) }
func Gone(message string) *Error          { return New(KindGone, message) }
func Conflict(message string) *Error      { return New(KindConflict, message) }
func QuotaExceeded(message string) *Error { return New(KindQuotaExceeded, message) }
func InvalidRequest(message string) *Error {
	return New(KindInvalidReq, message)
}
func Internal(message string, cause error) *Error {
	return Wrap(KindInternal, message, cause)
}

// HashMismatch reports an uploaded-bytes digest mismatch.
type HashMismatch struct {
	Expected string
	Actual   string
}

func (h *HashMismatch) Error() string {
	return fmt.Sprintf("hash_mismatch: expected %s, got %s", h.Expected, h.Actual)
}

// AsHashMismatch wraps a HashMismatch into the tagged Error type.
func AsHashMismatch(expected, actual string) *Error {
	return Wrap(KindHashMismatch, "uploaded bytes do not match expected key", &HashMismatch{
		Expected: expected,
		Actual:   actual,
	})
}

// InvalidNode reports a declared node key that does not match its canonical digest.
func InvalidNode(message string) *Error {
	return New(KindInvalidNode, message)
}

// MissingNodes is the payload carried by a commit rejection; it is not itself
// surfaced as an *Error kind because the admitter returns it as a distinct
// success-shaped response, not a terminal failure (see pkg/cas).
type MissingNodes struct {
	Missing []string
}

func (m *MissingNodes) Error() string {
	return fmt.Sprintf("missing_nodes: %d referenced keys not present", len(m.Missing))
}
