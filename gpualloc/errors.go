package gpualloc

import "github.com/cockroachdb/errors"

// ErrOutOfMemory is returned when an allocation does not fit even after every collectable allocation
// that could make room has been reclaimed
var ErrOutOfMemory = errors.New("out of chip memory")

// ErrInvalidHandle is returned by operations that need a live allocation when the handle is invalid, freed
// or reclaimed
var ErrInvalidHandle = errors.New("invalid allocation handle")
