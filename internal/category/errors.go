package category

import "errors"

// Edit loop errors. All of them are user input errors: the caller
// re-prompts and the set is left unchanged.
var (
	// ErrEditInProgress indicates an action that needs the idle mode.
	ErrEditInProgress = errors.New("a category edit is in progress")

	// ErrEditLimitReached indicates the configured edit cap was hit.
	ErrEditLimitReached = errors.New("category edit limit reached")

	// ErrUnknownCategory indicates a tag that is not in the current set.
	ErrUnknownCategory = errors.New("category not in the current set")

	// ErrEmptyTag indicates a blank category name.
	ErrEmptyTag = errors.New("category name cannot be empty")

	// ErrInvalidAction indicates an action name the loop does not know.
	ErrInvalidAction = errors.New("invalid category action")
)
