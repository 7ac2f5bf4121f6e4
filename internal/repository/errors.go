package repository

import "errors"

var (
	// ErrNotFound indicates an entity was not located.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a uniqueness or compare-and-swap violation.
	ErrConflict = errors.New("repository: conflict")
	// ErrInvalidArgument indicates malformed input rejected by the store.
	ErrInvalidArgument = errors.New("repository: invalid argument")
)
