package store

import "errors"

var (
	// ErrNotInCache is returned for a path outside the cache directory.
	ErrNotInCache = errors.New("path is not inside the cache directory")

	// ErrInvalidObject is returned when an object file fails validation.
	ErrInvalidObject = errors.New("invalid object file")
)
