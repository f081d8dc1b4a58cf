package memutils

import "math"

// Statistics holds totals for a managed memory region
type Statistics struct {
	// RegionBytes is the size of the managed region
	RegionBytes int
	// AllocationCount is the number of live allocations
	AllocationCount int
	// AllocationBytes is the number of bytes held by live allocations
	AllocationBytes int
	// CollectableCount is the number of live allocations the owner may reclaim without an explicit free
	CollectableCount int
	// CollectableBytes is the number of bytes held by collectable allocations
	CollectableBytes int
}

func (s *Statistics) Clear() {
	s.RegionBytes = 0
	s.AllocationCount = 0
	s.AllocationBytes = 0
	s.CollectableCount = 0
	s.CollectableBytes = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.RegionBytes += other.RegionBytes
	s.AllocationCount += other.AllocationCount
	s.AllocationBytes += other.AllocationBytes
	s.CollectableCount += other.CollectableCount
	s.CollectableBytes += other.CollectableBytes
}

// FreeBytes is the number of bytes in the region that no allocation holds
func (s *Statistics) FreeBytes() int {
	return s.RegionBytes - s.AllocationBytes
}

// DetailedStatistics extends Statistics with the shape of the free space, which is
// what decides whether a request fits
type DetailedStatistics struct {
	Statistics
	UnusedRangeCount   int
	AllocationSizeMin  int
	AllocationSizeMax  int
	UnusedRangeSizeMin int
	UnusedRangeSizeMax int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.UnusedRangeCount = 0
	s.AllocationSizeMin = math.MaxInt
	s.AllocationSizeMax = 0
	s.UnusedRangeSizeMin = math.MaxInt
	s.UnusedRangeSizeMax = 0
}

func (s *DetailedStatistics) AddUnusedRange(size int) {
	s.UnusedRangeCount++

	if size < s.UnusedRangeSizeMin {
		s.UnusedRangeSizeMin = size
	}

	if size > s.UnusedRangeSizeMax {
		s.UnusedRangeSizeMax = size
	}
}

func (s *DetailedStatistics) AddAllocation(size int) {
	s.AllocationCount++
	s.AllocationBytes += size

	if size < s.AllocationSizeMin {
		s.AllocationSizeMin = size
	}

	if size > s.AllocationSizeMax {
		s.AllocationSizeMax = size
	}
}

// AddCollectable records that size bytes of the already-counted allocation bytes are collectable
func (s *DetailedStatistics) AddCollectable(size int) {
	s.CollectableCount++
	s.CollectableBytes += size
}
