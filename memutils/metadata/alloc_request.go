package metadata

import "math"

// BlockAllocationHandle names one segment of a region, taken or free. A metadata never hands out the same
// handle twice.
type BlockAllocationHandle uint64

// NoAllocation is returned by the allocation walk once it runs past the last allocation
const NoAllocation BlockAllocationHandle = math.MaxUint64

// AllocationRequest is a placement proposed by BlockMetadata.CreateAllocationRequest. Nothing changes until
// it is passed to BlockMetadata.Alloc, so a caller may inspect the offset and drop the request.
type AllocationRequest struct {
	// BlockAllocationHandle names the free segment the allocation is carved from. After Alloc, it names
	// the allocation.
	BlockAllocationHandle BlockAllocationHandle
	Size                  int
	Offset                int
	// Strategy is the strategy the free segment was found with
	Strategy AllocationStrategy
}
