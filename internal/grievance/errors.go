package grievance

import (
	"errors"
	"fmt"
)

// Draft lifecycle errors.
var (
	// ErrInvalidTransition indicates a status change that would move backward.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrAlreadySubmitted indicates a mutation of a frozen draft.
	ErrAlreadySubmitted = errors.New("grievance already submitted")
)

// ValidationError reports a draft that cannot be submitted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("grievance invalid: %s: %s", e.Field, e.Reason)
}
