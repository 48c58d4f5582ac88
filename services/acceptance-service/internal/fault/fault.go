// Package fault defines the error taxonomy of the acceptance engine and
// its mapping onto HTTP status codes.
package fault

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNotAuthorized
	KindInvalidState
	KindValidation
	KindNotFound
	KindDependency
)

type Error struct {
	Kind    Kind
	Message string
	wrapped error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.wrapped
}

// Is lets errors.Is match any fault of the same kind.
func (e *Error) Is(target error) bool {
	var fe *Error
	if errors.As(target, &fe) {
		return fe.Kind == e.Kind
	}
	return false
}

func NotAuthorized(format string, args ...any) *Error {
	return &Error{Kind: KindNotAuthorized, Message: fmt.Sprintf(format, args...)}
}

func InvalidState(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Dependency(err error, format string, args ...any) *Error {
	return &Error{Kind: KindDependency, Message: fmt.Sprintf(format, args...), wrapped: err}
}

// Transition builds the InvalidState error every rejected lifecycle
// move reports: it names the status the record is in and the status
// the operation requires.
func Transition(operation, current, required string) *Error {
	return InvalidState("%s requires status %s, current status is %s", operation, required, current)
}

// HTTPStatus maps a fault kind onto the transport status code.
// Unrecognized errors map to 500.
func HTTPStatus(err error) int {
	var fe *Error
	if !errors.As(err, &fe) {
		return http.StatusInternalServerError
	}
	switch fe.Kind {
	case KindNotAuthorized:
		return http.StatusForbidden
	case KindInvalidState:
		return http.StatusConflict
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindDependency:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
