package clinic

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrPersistence = errors.New("persistence failure")

	// ErrInvalidFilter is returned for a month/year filter that is out of
	// range or only half present. It is also an ErrValidation.
	ErrInvalidFilter = fmt.Errorf("%w: invalid month/year filter", ErrValidation)
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// notFound wraps ErrNotFound with the kind of record that was missing.
func notFound(kind string) error {
	return fmt.Errorf("%s %w", kind, ErrNotFound)
}

// persistence wraps a store driver error.
func persistence(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
