package defrag

// DefragmentationInfo bounds the work done by each compaction pass. Zero values mean unbounded.
type DefragmentationInfo struct {
	// MaxBytesPerPass is the maximum number of bytes to relocate in a single pass
	MaxBytesPerPass int
	// MaxAllocationsPerPass is the maximum number of allocations to relocate in a single pass
	MaxAllocationsPerPass int
}

type defragCounterStatus uint32

const (
	defragCounterPass defragCounterStatus = iota
	defragCounterIgnore
	defragCounterEnd
)

var defragCounterStatusMapping = map[defragCounterStatus]string{
	defragCounterPass:   "defragCounterPass",
	defragCounterIgnore: "defragCounterIgnore",
	defragCounterEnd:    "defragCounterEnd",
}

func (s defragCounterStatus) String() string {
	return defragCounterStatusMapping[s]
}
