// Package errs provides the unified error type returned by every connector
// in jobqueue.
//
// Connectors (postgres, mysql) wrap their native driver errors into
// *errs.Error before returning them. Callers such as the job manager use the
// Is* predicates to decide what to do (retry, alert, give up) without
// importing driver packages.
//
// Usage:
//
//	// In a connector — wrap native errors:
//	return errs.Wrap(errs.ErrKindAuthFailed, "connect failed", pgErr)
//
//	// In a caller — check error kind:
//	if errs.IsTimeout(err) {
//	    // back off and retry later
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing driver-specific codes.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindConnectionFailed         // host unreachable, refused, reset
	ErrKindAuthFailed               // server rejected the credentials
	ErrKindTimeout                  // acquire timeout / context deadline
	ErrKindInvalidInput             // malformed connection parameters
	ErrKindCanceled                 // caller canceled the context
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindAuthFailed:
		return "auth_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all jobqueue connectors.
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

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// --- Predicates ---

// IsConnectionFailed reports whether err is a network-level failure.
func IsConnectionFailed(err error) bool {
	return KindOf(err) == ErrKindConnectionFailed
}

// IsAuthFailed reports whether the server rejected the credentials.
func IsAuthFailed(err error) bool {
	return KindOf(err) == ErrKindAuthFailed
}

// IsTimeout reports whether err was caused by an expired deadline.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// IsCanceled reports whether the caller gave up by canceling the context.
func IsCanceled(err error) bool {
	return KindOf(err) == ErrKindCanceled
}

// IsInvalidInput reports whether err was caused by malformed parameters.
func IsInvalidInput(err error) bool {
	return KindOf(err) == ErrKindInvalidInput
}

// KindOf extracts the ErrKind from any error in the chain.
// Errors that are not *Error report ErrKindUnknown.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
