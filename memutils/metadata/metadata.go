package metadata

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/evekit/ramg/memutils"
)

// BlockMetadata tracks the layout of a single contiguous region of memory. It manages
// suballocations within the region, allowing them to be requested, freed, enumerated and queried.
// It never touches the memory itself: offsets are all it knows about.
type BlockMetadata interface {
	// Init must be called before the BlockMetadata is used. size is the size in bytes of the
	// region being managed.
	Init(size int)
	// Size retrieves the size in bytes that the block was initialized with
	Size() int

	// Validate performs internal consistency checks on the metadata. These checks may be expensive.
	Validate() error
	// AllocationCount returns the number of suballocations currently live
	AllocationCount() int
	// FreeRegionsCount returns the number of distinct free ranges in the block. Adjacent free ranges
	// are always merged, so they are counted once.
	FreeRegionsCount() int
	// SumFreeSize returns the number of free bytes of memory in the block.
	SumFreeSize() int
	// MayHaveFreeBlock is a fast heuristic indicating whether an allocation of the provided size could
	// possibly succeed. It may produce false positives, never false negatives.
	MayHaveFreeBlock(size int) bool
	// IsEmpty will return true if this block has no live suballocations
	IsEmpty() bool

	// VisitAllRegions calls the provided callback once for each allocation and free range in the block,
	// in ascending offset order. Iteration stops at the first error returned by the callback.
	VisitAllRegions(handleBlock func(handle BlockAllocationHandle, offset int, size int, userData any, free bool) error) error
	// AllocationListBegin retrieves the handle of the live allocation with the lowest offset, or NoAllocation
	AllocationListBegin() (BlockAllocationHandle, error)
	// FindNextAllocation accepts the handle of a live allocation and returns the handle of the next live
	// allocation by offset, or NoAllocation.
	FindNextAllocation(allocHandle BlockAllocationHandle) (BlockAllocationHandle, error)

	// AllocationOffset returns the offset in bytes of a live region (allocated or free)
	AllocationOffset(allocHandle BlockAllocationHandle) (int, error)
	// AllocationSize returns the size in bytes of a live region (allocated or free)
	AllocationSize(allocHandle BlockAllocationHandle) (int, error)
	// AllocationUserData returns the userData value provided by the consumer for a live allocation
	AllocationUserData(allocHandle BlockAllocationHandle) (any, error)
	// SetAllocationUserData replaces the userData value of a live allocation
	SetAllocationUserData(allocHandle BlockAllocationHandle, userData any) error

	// AddDetailedStatistics sums this block's statistics into the provided memutils.DetailedStatistics
	AddDetailedStatistics(stats *memutils.DetailedStatistics)
	// AddStatistics sums this block's statistics into the provided memutils.Statistics
	AddStatistics(stats *memutils.Statistics)

	// Clear instantly frees all allocations
	Clear()
	// BlockJsonData populates a json object with information about this block
	BlockJsonData(json *jwriter.ObjectState)

	// CreateAllocationRequest retrieves an AllocationRequest indicating where the implementation would
	// place the requested memory. The request can be passed to Alloc to commit the allocation.
	//
	// allocSize - the size in bytes of the requested allocation
	// allocAlignment - the minimum alignment of the requested allocation; must be a power of two
	// strategy - whether to prioritize memory usage, memory offset, or allocation speed
	// maxOffset - usually math.MaxInt. The request fails if the allocation cannot start before maxOffset.
	// Compaction uses this to only accept moves toward the start of the block.
	CreateAllocationRequest(
		allocSize int, allocAlignment uint,
		strategy AllocationStrategy,
		maxOffset int,
	) (bool, AllocationRequest, error)
	// Alloc commits an AllocationRequest. After a successful call, the request's BlockAllocationHandle
	// names the new allocation. An error is returned if the request no longer matches the block.
	Alloc(request AllocationRequest, userData any) error

	// Free frees a suballocation within the block, causing it to become a free range once again.
	Free(allocHandle BlockAllocationHandle) error
}

// BlockMetadataBase provides a few shared utilities for BlockMetadata implementations
type BlockMetadataBase struct {
	size int
}

// Init prepares this structure for allocations and sizes the block in bytes based on the parameter size.
func (m *BlockMetadataBase) Init(size int) {
	m.size = size
}

// Size returns the size of the block in bytes
func (m *BlockMetadataBase) Size() int { return m.size }

func (m *BlockMetadataBase) writeJsonHeader(json *jwriter.ObjectState, unusedBytes, allocationCount, unusedRangeCount int) {
	json.Name("TotalBytes").Int(m.Size())
	json.Name("UnusedBytes").Int(unusedBytes)
	json.Name("Allocations").Int(allocationCount)
	json.Name("UnusedRanges").Int(unusedRangeCount)
}
