package memutils

import (
	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"
)

// Number is any integer type that can be used as a size, offset or alignment
type Number interface {
	constraints.Integer
}

// CheckPow2 returns ErrNotPowerOfTwo, wrapped with the name of the value, if number
// is not a power of two. Zero is rejected as well.
func CheckPow2[T Number](number T, name string) error {
	if number == 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(ErrNotPowerOfTwo, "%s is %d", name, number)
	}
	return nil
}

// AlignUp rounds value up to the next multiple of alignment, which must be a power of two
func AlignUp(value int, alignment uint) int {
	return (value + int(alignment) - 1) & int(^(alignment - 1))
}

// AlignDown rounds value down to the previous multiple of alignment, which must be a power of two
func AlignDown(value int, alignment uint) int {
	return value & int(^(alignment - 1))
}
