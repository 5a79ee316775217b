package core

import (
	"errors"
	"fmt"
)

// Kind classifies failures for the transport layer.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindNotFound
	KindUpstreamUnavailable
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	case KindConflict:
		return "conflict"
	default:
		return "internal_error"
	}
}

// Error is the error type returned by every service in this package.
// Message is safe to show to clients; Err is for logs only.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewValidationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NewUnauthorizedError uses one message for every authentication failure so
// callers cannot tell which check failed.
func NewUnauthorizedError(err error) *Error {
	return &Error{Kind: KindUnauthorized, Message: "invalid or missing credentials", Err: err}
}

func NewNotFoundError(resource string) *Error {
	return &Error{Kind: KindNotFound, Message: resource + " not found"}
}

func NewUpstreamUnavailableError(err error) *Error {
	return &Error{Kind: KindUpstreamUnavailable, Message: "the assistant is temporarily unavailable", Err: err}
}

func NewConflictError(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// KindOf returns the Kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
