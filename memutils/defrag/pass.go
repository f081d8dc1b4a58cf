package defrag

// maxSkippedMoves is the number of consecutive allocations a pass may pass over for being too large for the
// remaining byte budget before it gives up
const maxSkippedMoves = 16

// PassContext carries the budget and running totals of a single compaction pass
type PassContext struct {
	// MaxPassBytes bounds the bytes relocated by the pass
	MaxPassBytes int
	// MaxPassAllocations bounds the allocations relocated by the pass
	MaxPassAllocations int
	Stats              DefragmentationStats

	skipped int
}

// checkCounters decides whether an allocation of the given size still fits the pass's byte budget
func (p *PassContext) checkCounters(bytes int) defragCounterStatus {
	if p.Stats.BytesMoved+bytes <= p.MaxPassBytes {
		p.skipped = 0
		return defragCounterPass
	}

	p.skipped++
	if p.skipped < maxSkippedMoves {
		return defragCounterIgnore
	}
	return defragCounterEnd
}

// incrementCounters records a planned move and reports whether the pass budget is spent
func (p *PassContext) incrementCounters(bytes int) bool {
	p.Stats.BytesMoved += bytes
	p.Stats.AllocationsMoved++

	return p.Stats.AllocationsMoved >= p.MaxPassAllocations || p.Stats.BytesMoved >= p.MaxPassBytes
}
