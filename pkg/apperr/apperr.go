// Package apperr classifies failures into the small set of kinds every
// service exposes to its callers.
package apperr

import (
	"errors"
	"net/http"
)

type Kind string

const (
	InvalidInput        Kind = "invalid_input"
	Unauthorized        Kind = "unauthorized"
	Forbidden           Kind = "forbidden"
	NotFound            Kind = "not_found"
	Conflict            Kind = "conflict"
	InsufficientStock   Kind = "insufficient_stock"
	InvalidState        Kind = "invalid_state"
	AlreadyCancelled    Kind = "already_cancelled"
	AlreadyCompleted    Kind = "already_completed"
	UpstreamUnavailable Kind = "upstream_unavailable"
	Internal            Kind = "internal"
)

func (k Kind) String() string {
	return string(k)
}

// Error carries a kind and a message that is safe to show to the caller.
// Err holds the underlying cause, which is only ever logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a kind and public message to cause.
func Wrap(cause error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets a wrapped copy match the bare sentinel it was built from.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Err != nil {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// KindOf returns the kind of the first *Error in the chain, or Internal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Internal
}

// Message returns the public message of the first *Error in the chain.
// Unclassified errors never leak their text.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal server error"
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case InvalidInput:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict, InvalidState, AlreadyCancelled, AlreadyCompleted:
		return http.StatusConflict
	case InsufficientStock:
		return http.StatusUnprocessableEntity
	case UpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
