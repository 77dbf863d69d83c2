package domain

import (
	"errors"
	"fmt"
)

// Error kinds surfaced to callers. Anything that does not wrap one of these is an internal failure.
var (
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidState   = errors.New("invalid state")
	ErrConflict       = errors.New("conflict")
)

// Error is a domain failure with a caller-facing message.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return newError(ErrNotFound, format, args...)
}

func Forbidden(format string, args ...any) error {
	return newError(ErrForbidden, format, args...)
}

func InvalidRequest(format string, args ...any) error {
	return newError(ErrInvalidRequest, format, args...)
}

func InvalidState(format string, args ...any) error {
	return newError(ErrInvalidState, format, args...)
}

func Conflict(format string, args ...any) error {
	return newError(ErrConflict, format, args...)
}

// IsDomain reports whether err carries one of the known kinds.
func IsDomain(err error) bool {
	for _, kind := range []error{ErrNotFound, ErrForbidden, ErrInvalidRequest, ErrInvalidState, ErrConflict} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
