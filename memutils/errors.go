package memutils

import "github.com/pkg/errors"

// ErrNotPowerOfTwo is returned by CheckPow2 for alignments and granularities that are not powers of two
var ErrNotPowerOfTwo = errors.New("not a power of two")

// Validator is anything with an internal consistency check, such as block metadata or an allocator
type Validator interface {
	Validate() error
}
