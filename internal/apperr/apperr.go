// Package apperr provides the error taxonomy shared by the room coordinator,
// the game rules and the transport layer.
package apperr

import (
	"context"
	"errors"
	"net/http"
)

// Kind is the coarse failure class surfaced to clients.
type Kind string

const (
	KindNotFound               Kind = "not_found"
	KindConflict               Kind = "conflict"
	KindInvalidInput           Kind = "invalid_input"
	KindIllegalAction          Kind = "illegal_action"
	KindPersistenceUnavailable Kind = "persistence_unavailable"
	KindInternal               Kind = "internal"
)

// HTTPStatus maps a kind to the status code used by the REST surface.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindIllegalAction:
		return http.StatusUnprocessableEntity
	case KindPersistenceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is the domain error type. Two errors are equal under errors.Is when
// their codes match, so the package-level sentinels can be compared against
// errors that carry a more specific message.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Kind returns the failure class of the error's code.
func (e *Error) Kind() Kind {
	return e.Code.Kind()
}

// New creates an error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an error that keeps the underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// KindOf classifies any error. Context deadlines count as persistence
// failures because every deadline in the room pipeline guards a store call
// or the per-room lock.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindPersistenceUnavailable
	}
	return KindInternal
}

// From converts any error into an *Error suitable for a client reply.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if KindOf(err) == KindPersistenceUnavailable {
		return Wrap(CodePersistenceUnavailable, "storage unavailable", err)
	}
	return Wrap(CodeInternal, "internal error", err)
}
