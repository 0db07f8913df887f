package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation policy: what the caller may do
// with it and how the HTTP boundary renders it.
type Kind int

const (
	// KindInternal is an unexpected condition; logged in full, reported
	// to the caller with a generic message.
	KindInternal Kind = iota
	// KindValidation is malformed or out-of-range input; not retryable
	// as-is.
	KindValidation
	// KindNotFound covers unknown entities and cross-tenant access
	// attempts alike, so existence never leaks across tenants.
	KindNotFound
	// KindConflict is a duplicate unique identifier.
	KindConflict
	// KindUnavailable means the durable store or queue is unreachable;
	// retryable with backoff.
	KindUnavailable
	// KindTimeout is a deadline expiry.
	KindTimeout
)

// String returns the taxonomy name of the kind.
func (kind Kind) String() string {
	switch kind {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "unavailable"
	case KindTimeout:
		return "timeout"
	default:
		return "internal"
	}
}

// Error is a classified error; Cause may be nil for leaf errors.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether the caller may retry with backoff.
func (e *Error) Retryable() bool {
	return e.Kind == KindUnavailable || e.Kind == KindTimeout
}

// New builds a classified error with no cause.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap classifies an existing error; a nil cause yields nil.
func Wrap(kind Kind, msg string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// Validationf builds a validation error from a format string.
func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// NotFound builds a not-found error for the named entity.
func NotFound(entity string) error {
	return &Error{Kind: KindNotFound, Msg: entity + " not found"}
}

// KindOf extracts the taxonomy kind from any error chain; unclassified
// errors are Internal.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
