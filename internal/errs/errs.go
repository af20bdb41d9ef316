// Package errs defines the error kinds that cross component boundaries.
//
// Components wrap their failures in an *Error carrying one of a small set of
// kinds. Transport layers (HTTP, MCP) map kinds to status codes; the session
// handler uses them to decide whether a step may advance.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind string

const (
	// KindNotFound means a session, equipment record or issue does not exist.
	KindNotFound Kind = "not_found"
	// KindAdapterUnavailable means the AI backend timed out or failed.
	KindAdapterUnavailable Kind = "adapter_unavailable"
	// KindValidationFailed means the input was rejected before any mutation.
	KindValidationFailed Kind = "validation_failed"
	// KindPersistenceFailed means a store write failed and was rolled back.
	KindPersistenceFailed Kind = "persistence_failed"
	// KindInternal is everything else.
	KindInternal Kind = "internal"
)

// Error is a classified error with the operation that produced it.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error.
func New(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// NotFound wraps err as KindNotFound.
func NotFound(op string, err error) *Error {
	return New(KindNotFound, op, "", err)
}

// Validation creates a KindValidationFailed error with a user-facing message.
func Validation(op, message string) *Error {
	return New(KindValidationFailed, op, message, nil)
}

// Persistence wraps err as KindPersistenceFailed.
func Persistence(op string, err error) *Error {
	return New(KindPersistenceFailed, op, "", err)
}

// Unavailable wraps err as KindAdapterUnavailable.
func Unavailable(op string, err error) *Error {
	return New(KindAdapterUnavailable, op, "", err)
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
// A nil error has no kind and returns the empty string.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
