// Package apperr holds the error kinds shared by the lifecycle services.
// Domain sentinels wrap exactly one kind so callers can branch on either.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrConflict       = errors.New("conflict")
	ErrUnavailable    = errors.New("unavailable")
	ErrIllegalState   = errors.New("illegal state")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

// New returns a sentinel with its own message that still matches kind under errors.Is.
func New(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// Invalid builds a one-off InvalidRequest error.
func Invalid(format string, args ...any) error {
	return &kindError{kind: ErrInvalidRequest, msg: fmt.Sprintf(format, args...)}
}

// Unavailable wraps a downstream failure so it reports as ErrUnavailable
// while keeping the cause reachable through errors.Is / errors.As.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, &wrapped{kind: ErrUnavailable, cause: err})
}

type wrapped struct {
	kind  error
	cause error
}

func (w *wrapped) Error() string   { return w.cause.Error() }
func (w *wrapped) Unwrap() []error { return []error{w.kind, w.cause} }

// Kind reports which of the five kinds err belongs to, or nil.
func Kind(err error) error {
	for _, k := range []error{ErrNotFound, ErrInvalidRequest, ErrConflict, ErrIllegalState, ErrUnavailable} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
