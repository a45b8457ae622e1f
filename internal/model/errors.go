package model

import (
	"errors"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalid      = errors.New("invalid request")
	ErrUnavailable  = errors.New("service unavailable")
)

// ValidationError carries one or more field-level problems. It unwraps to
// ErrInvalid so callers can map it with errors.Is.
type ValidationError struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings,omitempty"`
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Errors, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// Invalid builds a ValidationError from messages.
func Invalid(msgs ...string) *ValidationError {
	return &ValidationError{Errors: msgs}
}

// Error is a sentinel kind with a user-facing message.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

// E builds an Error of the given kind.
func E(kind error, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}
