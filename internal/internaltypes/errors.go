package internaltypes

import "errors"

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	// ErrConfig marks a missing or malformed configuration value; runs abort on it.
	ErrConfig = errors.New("configuration error")
)
