package admission

import "errors"

var (
	// ErrInvalidRate indicates a non-positive admission rate.
	ErrInvalidRate = errors.New("rate must be greater than 0")

	// ErrInvalidCapacity indicates a non-positive gate capacity.
	ErrInvalidCapacity = errors.New("capacity must be greater than 0")
)
