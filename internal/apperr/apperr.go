// Package apperr defines the error kinds surfaced by the API and the single
// translator that turns store, token and validation failures into them.
// Services return *Error values; the HTTP error handler renders whatever
// Translate produces.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the client.
type Kind int

const (
	Internal Kind = iota
	Validation
	NotFound
	Conflict
	Unauthenticated
	Forbidden
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// Status maps the kind to its HTTP status code.
func (k Kind) Status() int {
	switch k {
	case Validation:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case Unauthenticated:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified error with a client-safe message.  Err keeps the
// underlying cause for logging; it is never rendered.
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

func (e *Error) Unwrap() error { return e.Err }

// Status returns the HTTP status code of the error.
func (e *Error) Status() int { return e.Kind.Status() }

func newf(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

func Invalid(format string, args ...any) *Error      { return newf(Validation, format, args...) }
func NotFoundf(format string, args ...any) *Error    { return newf(NotFound, format, args...) }
func Conflictf(format string, args ...any) *Error    { return newf(Conflict, format, args...) }
func Unauthorized(format string, args ...any) *Error { return newf(Unauthenticated, format, args...) }
func Forbiddenf(format string, args ...any) *Error   { return newf(Forbidden, format, args...) }

// Wrap marks err as an unexpected failure.  The message stays generic.
func Wrap(err error, op string) *Error {
	return &Error{Kind: Internal, Message: op, Err: err}
}

// KindOf returns the kind of err, or Internal when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err is classified as kind k.
func Is(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}
