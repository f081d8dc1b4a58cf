package gpualloc

import (
	"strings"

	"github.com/evekit/ramg/eve"
	"github.com/evekit/ramg/memutils/metadata"
)

// AllocationFlags exposes options for allocation behavior
type AllocationFlags int32

const (
	// AllocateCollectable marks an allocation that the allocator may reclaim without an explicit Free,
	// either when it sits unused across a frame boundary or when another allocation needs its space.
	// Only use it for data the caller can reproduce.
	AllocateCollectable AllocationFlags = 1 << iota
)

var allocationFlagsMapping = map[AllocationFlags]string{
	AllocateCollectable: "AllocateCollectable",
}

func (f AllocationFlags) String() string {
	return flagsToString(f, allocationFlagsMapping)
}

// CreateFlags indicate specific allocator behaviors to activate or deactivate
type CreateFlags int32

const (
	// CreateExternallySynchronized ensures that this allocator will not be synchronized internally. The
	// consumer must guarantee it is used from only one goroutine at a time or is synchronized by some
	// other mechanism.
	CreateExternallySynchronized CreateFlags = 1 << iota
)

var createFlagsMapping = map[CreateFlags]string{
	CreateExternallySynchronized: "CreateExternallySynchronized",
}

func (f CreateFlags) String() string {
	return flagsToString(f, createFlagsMapping)
}

func flagsToString[T ~int32](flags T, mapping map[T]string) string {
	if flags == 0 {
		return "None"
	}

	var names []string
	for bit := T(1); bit != 0 && bit <= flags; bit <<= 1 {
		if flags&bit == 0 {
			continue
		}

		name, ok := mapping[bit]
		if !ok {
			name = "Unknown"
		}
		names = append(names, name)
	}

	return strings.Join(names, "|")
}

const (
	defaultAlignment     uint = 4
	defaultMaxIdleFrames      = 1
)

// CreateOptions contains optional settings when creating an allocator. Zero values select defaults.
type CreateOptions struct {
	// Flags indicates specific allocator behaviors to activate or deactivate
	Flags CreateFlags
	// Base is the chip address of the first byte of the managed region
	Base eve.Address
	// Size is the number of bytes in the managed region. It is required.
	Size int
	// Alignment is the granularity of allocation sizes and offsets. It must be a power of two and
	// defaults to 4, which is what the chip's addressing requires.
	Alignment uint
	// Strategy selects free ranges for new allocations. The default is AllocationStrategyMinMemory.
	Strategy metadata.AllocationStrategy
	// MaxIdleFrames is the number of whole frames a collectable allocation can go unused before Collect
	// reclaims it. The default is 1.
	MaxIdleFrames int
}
