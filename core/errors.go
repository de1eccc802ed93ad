package core

import (
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// ErrorKind classifies domain failures so transports can map them to their own codes.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindNotFound
	KindForbidden
	KindBadRequest
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindForbidden:
		return "FORBIDDEN"
	case KindBadRequest:
		return "BAD_REQUEST"
	case KindConflict:
		return "CONFLICT"
	default:
		return "INTERNAL"
	}
}

// Error is a typed, user-facing domain error.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (err *Error) Error() string { return err.Message }

func NewNotFoundError(msg string) error   { return &Error{Kind: KindNotFound, Message: msg} }
func NewForbiddenError(msg string) error  { return &Error{Kind: KindForbidden, Message: msg} }
func NewBadRequestError(msg string) error { return &Error{Kind: KindBadRequest, Message: msg} }
func NewConflictError(msg string) error   { return &Error{Kind: KindConflict, Message: msg} }

// KindOf returns the ErrorKind of the root cause of err; KindInternal for anything untyped.
func KindOf(err error) ErrorKind {
	switch e := errors.Cause(err).(type) {
	case *Error:
		return e.Kind
	case *ValidationError, validator.ValidationErrors:
		return KindBadRequest
	default:
		return KindInternal
	}
}

// ErrConflict is returned by repositories when a write hits a uniqueness constraint
// or a conditional update finds the row in an unexpected state.
var ErrConflict = NewConflictError("conflicting write")

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}
