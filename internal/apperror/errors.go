// Package apperror holds the error taxonomy shared by the middleware and the
// resource handlers, and its mapping onto HTTP status codes.
package apperror

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindNotFound
	KindConflict
)

// Error is a classified error whose Message is safe to show to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches two *Error values of the same kind and message, so a wrapped
// copy created by Wrap still satisfies errors.Is against the sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap returns a copy of sentinel carrying err as its cause.
func Wrap(sentinel *Error, err error) *Error {
	return &Error{Kind: sentinel.Kind, Message: sentinel.Message, Err: err}
}

var (
	ErrMissingToken       = New(KindAuth, "Please authenticate")
	ErrInvalidToken       = New(KindAuth, "Invalid token")
	ErrUserNotFound       = New(KindAuth, "User no longer exists")
	ErrInvalidCredentials = New(KindValidation, "Unable to login")
	ErrInvalidUpdate      = New(KindValidation, "Invalid updates")
	ErrInvalidTask        = New(KindValidation, "Invalid task")
	ErrInvalidUser        = New(KindValidation, "Invalid user")
	ErrInvalidAvatar      = New(KindValidation, "Invalid avatar")
	ErrNotFound           = New(KindNotFound, "Not found")
	ErrDuplicateEmail     = New(KindConflict, "Email is already registered")
)

// Status maps err onto an HTTP status code. Unclassified errors are 500.
func Status(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation, KindConflict:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the client-facing message for err. Internal details never
// leave the process.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "Internal server error"
}
