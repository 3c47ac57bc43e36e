package types

import "errors"

// Domain errors for type validation
var (
	ErrInvalidSongID  = errors.New("invalid song ID")
	ErrInvalidRank    = errors.New("rank must be >= 1")
	ErrInvalidScore   = errors.New("score must be between 0 and 1")
	ErrEmptyTitle     = errors.New("title cannot be empty")
	ErrMissingReasons = errors.New("at least one match reason is required")
)
