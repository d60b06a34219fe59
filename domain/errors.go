package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned for absent boards and users, and for boards the
// actor is not allowed to see.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional write loses against a concurrent
// writer, or a unique key is already taken.
var ErrConflict = errors.New("conflict")

// ErrUnknownOperation is returned when an operation tag is not part of the catalog.
var ErrUnknownOperation = errors.New("unknown operation")

// ValidationError reports a malformed request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
