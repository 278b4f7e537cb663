package reminder

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every *ValidationError via errors.Is.
	ErrValidation = errors.New("reminder validation failed")
	ErrNotFound   = errors.New("reminder not found")
	ErrDuplicate  = errors.New("reminder id already present")
)

// ValidationError reports a constructor or mutator input that is out of range.
// Inputs are never clamped silently; the only intentional clamp is the
// day-of-month correction applied while computing monthly fire instants.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field string, value any, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}
