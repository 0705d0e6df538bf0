package cutlist

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed input rejected before any mutation:
// an out-of-range sheet index, a non-positive quantity, or an unknown
// status value.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// validationf builds a ValidationError from a format string.
func validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// ConflictError reports an illegal job status transition.
type ConflictError struct {
	From   JobStatus
	Action string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: cannot %s a job in status %q", e.Action, e.From)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}
