package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrEmptyContent = errors.New("review content is empty")
	ErrInvalidUser  = errors.New("invalid user")
	// ErrConflict reports a unique constraint violation, such as a taken
	// username.
	ErrConflict = errors.New("already exists")
)
