package memhost

import "errors"

var (
	// ErrNotFound is returned when a mutation names an entity that does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrExists is returned when creating an entity whose name or address is taken.
	ErrExists = errors.New("entity already exists")

	// ErrOverlap is returned when a new range overlaps an existing one.
	ErrOverlap = errors.New("range overlaps an existing entity")

	// ErrInvalidRange is returned for empty or inverted ranges.
	ErrInvalidRange = errors.New("invalid address range")
)
