// Package apperrors defines the error kinds returned by core operations.
package apperrors

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is against these to classify a failure.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrValidation      = errors.New("validation failed")
	ErrAlreadyRecorded = errors.New("already recorded")
)

// Error carries a kind plus a human-readable message and optional details.
type Error struct {
	Kind    error
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.Error()
}

// Unwrap returns the kind so errors.Is matches it.
func (e *Error) Unwrap() error {
	return e.Kind
}

// WithDetails attaches context details to the error.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

func newf(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports an unknown exam, student or cohort.
func NotFound(format string, args ...any) *Error { return newf(ErrNotFound, format, args...) }

// Conflict reports a state clash such as a second ACTIVE exam for a cohort.
func Conflict(format string, args ...any) *Error { return newf(ErrConflict, format, args...) }

// Forbidden reports a non-owner action or an operation on a wrong-status exam.
func Forbidden(format string, args ...any) *Error { return newf(ErrForbidden, format, args...) }

// Validation reports malformed input rows.
func Validation(format string, args ...any) *Error { return newf(ErrValidation, format, args...) }

// AlreadyRecorded reports a duplicate submission. It is not a failure.
func AlreadyRecorded(format string, args ...any) *Error {
	return newf(ErrAlreadyRecorded, format, args...)
}

// Is reports whether err matches target or any of others.
func Is(err, target error, others ...error) bool {
	if errors.Is(err, target) {
		return true
	}
	for _, e := range others {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

// Details returns the details map of the first *Error in err's chain.
func Details(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}
