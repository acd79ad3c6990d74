package system

import (
	"errors"
	"fmt"
)

// ErrValidation is matched by every ValidationError.
var ErrValidation = errors.New("invalid parameter")

// ValidationError reports a setter input outside its documented domain.
// The body is left unchanged when one is returned.
type ValidationError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %g: %s", e.Field, e.Value, e.Reason)
}

// Is reports ErrValidation as a match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field string, v float64, reason string) error {
	return &ValidationError{Field: field, Value: v, Reason: reason}
}
