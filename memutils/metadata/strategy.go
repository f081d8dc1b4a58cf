package metadata

// AllocationStrategy selects how CreateAllocationRequest picks among free segments that fit. Zero picks a
// balance between speed and packing.
type AllocationStrategy uint32

const (
	// AllocationStrategyMinMemory takes the smallest free segment that fits, keeping large segments intact
	// for large requests
	AllocationStrategyMinMemory AllocationStrategy = 1 << iota
	// AllocationStrategyMinTime takes the first segment from a size class that is sure to fit
	AllocationStrategyMinTime
	// AllocationStrategyMinOffset takes the lowest segment that fits. Compaction uses it to move
	// allocations down.
	AllocationStrategyMinOffset
)

var allocationStrategyMapping = map[AllocationStrategy]string{
	AllocationStrategyMinMemory: "MinMemory",
	AllocationStrategyMinTime:   "MinTime",
	AllocationStrategyMinOffset: "MinOffset",
}

func (s AllocationStrategy) String() string {
	if s == 0 {
		return "Balanced"
	}
	return allocationStrategyMapping[s]
}
