// Package errs provides the unified error type used across the DAC gateway.
//
// Every subsystem (database, upstream, filestore, …) wraps its native errors
// into *errs.Error before returning them to callers. Callers use the Is*
// predicates to branch without importing driver- or transport-specific
// packages.
//
// Usage:
//
//	// In a driver, wrap native errors:
//	return errs.Wrap(errs.ErrKindTimeout, "catalog query timed out", pgErr)
//
//	// In a handler, check the error kind:
//	if errs.IsUpstreamUnavailable(err) {
//	    // fall back to the local aggregation
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing subsystem-specific codes.
type ErrKind int

const (
	ErrKindUnknown             ErrKind = iota
	ErrKindNotFound                    // no rows, no object, no bucket
	ErrKindConnectionFailed            // cannot reach the backend
	ErrKindTimeout                     // context deadline / cancellation
	ErrKindQueryFailed                 // SQL or storage operation error
	ErrKindInvalidInput                // bad arguments or configuration
	ErrKindPermissionDenied            // access denied / auth failure
	ErrKindUpstreamUnavailable         // backend API unreachable or non-2xx
	ErrKindDecodeFailed                // a response could not be interpreted
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindPermissionDenied:
		return "permission_denied"
	case ErrKindUpstreamUnavailable:
		return "upstream_unavailable"
	case ErrKindDecodeFailed:
		return "decode_failed"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all gateway subsystems.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// --- Predicates ---

// IsNotFound reports whether err represents a "not found" result.
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool {
	return KindOf(err) == ErrKindConnectionFailed
}

// IsQueryFailed reports whether err is a backend operation failure.
func IsQueryFailed(err error) bool {
	return KindOf(err) == ErrKindQueryFailed
}

// IsInvalidInput reports whether err was caused by bad input or configuration.
func IsInvalidInput(err error) bool {
	return KindOf(err) == ErrKindInvalidInput
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return KindOf(err) == ErrKindPermissionDenied
}

// IsUpstreamUnavailable reports whether err means the backend API could not
// produce a usable answer.
func IsUpstreamUnavailable(err error) bool {
	return KindOf(err) == ErrKindUpstreamUnavailable
}

// IsDecodeFailed reports whether err is a malformed-payload failure.
func IsDecodeFailed(err error) bool {
	return KindOf(err) == ErrKindDecodeFailed
}

// KindOf extracts the ErrKind from the first *Error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
