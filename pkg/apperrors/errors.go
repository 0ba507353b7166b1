package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrForbidden          = errors.New("forbidden")
	ErrValidation         = errors.New("validation failed")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveUser       = errors.New("user account is inactive")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrTaskImmutable      = errors.New("completed tasks cannot be modified")
)

// messageError carries a caller-facing message while still matching its sentinel
// through errors.Is.
type messageError struct {
	kind error
	msg  string
}

func (e *messageError) Error() string { return e.msg }

func (e *messageError) Unwrap() error { return e.kind }

// Validation returns an error matching ErrValidation with the given message.
func Validation(format string, args ...any) error {
	return &messageError{kind: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

// NotFound returns an error matching ErrNotFound with the given message.
func NotFound(format string, args ...any) error {
	return &messageError{kind: ErrNotFound, msg: fmt.Sprintf(format, args...)}
}

// Forbidden returns an error matching ErrForbidden with the given message.
func Forbidden(format string, args ...any) error {
	return &messageError{kind: ErrForbidden, msg: fmt.Sprintf(format, args...)}
}

// Conflict returns an error matching ErrConflict with the given message.
func Conflict(format string, args ...any) error {
	return &messageError{kind: ErrConflict, msg: fmt.Sprintf(format, args...)}
}

// Unauthorized returns an error matching ErrUnauthorized with the given message.
func Unauthorized(format string, args ...any) error {
	return &messageError{kind: ErrUnauthorized, msg: fmt.Sprintf(format, args...)}
}

// Message returns the caller-facing message of err if it was built by one of the
// helpers above, and fallback otherwise.
func Message(err error, fallback string) string {
	var me *messageError
	if errors.As(err, &me) {
		return me.msg
	}
	return fallback
}
