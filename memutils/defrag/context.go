package defrag

import (
	"errors"
	"fmt"

	"github.com/evekit/ramg/memutils/metadata"
)

// DefragmentationStats contains basic metrics for defragmentation over time
type DefragmentationStats struct {
	// BytesMoved is the number of bytes that have been successfully relocated
	BytesMoved int
	// AllocationsMoved is the number of successful relocations
	AllocationsMoved int
	// BytesFreed is the number of bytes released by moves that dropped their allocation
	BytesFreed int
	// AllocationsFreed is the number of allocations dropped instead of moved
	AllocationsFreed int
}

func (s *DefragmentationStats) Add(stats DefragmentationStats) {
	s.BytesMoved += stats.BytesMoved
	s.AllocationsMoved += stats.AllocationsMoved
	s.BytesFreed += stats.BytesFreed
	s.AllocationsFreed += stats.AllocationsFreed
}

// MetadataDefragContext compacts a single Region by relocating allocations toward offset 0. A run consists of
// multiple passes: CollectMoves plans a pass's worth of relocations, the consumer copies the bytes, and
// CompletePass commits them.
type MetadataDefragContext[T any] struct {
	// Handler is called to complete each relocation as part of CompletePass
	Handler DefragmentOperationHandler[T]
	// Region is the memory object this context exists to compact
	Region Region[T]
	// Alignment is the alignment destination offsets must honor
	Alignment uint

	moves []DefragmentationMove[T]
}

// Init sets up this MetadataDefragContext to be used in a fresh run
func (c *MetadataDefragContext[T]) Init() {
	if c.Region == nil {
		panic("attempted to init defragmentation context without a region")
	}
	if c.Handler == nil {
		panic("attempted to init defragmentation context without a handler")
	}

	if c.Alignment == 0 {
		c.Alignment = 1
	}

	c.moves = c.moves[:0]
}

// Moves returns the list of relocation operations most recently collected with CollectMoves. Consumers
// may change MoveOperation on the entries before calling CompletePass.
func (c *MetadataDefragContext[T]) Moves() []DefragmentationMove[T] {
	return c.moves
}

// CollectMoves plans a single pass's worth of relocations, walking live allocations from the lowest
// offset up and reserving a lower destination for each one that has somewhere to go. It returns
// true if the pass budget was exhausted before the walk completed.
func (c *MetadataDefragContext[T]) CollectMoves(pass *PassContext) bool {
	mtdata := c.Region.Metadata()

	for handle := c.mustBeginAllocationList(mtdata); handle != metadata.NoAllocation; handle = c.mustFindNextAllocation(mtdata, handle) {
		userData, err := mtdata.AllocationUserData(handle)
		if err != nil {
			panic(fmt.Sprintf("unexpected error when retrieving allocation user data: %+v", err))
		}

		if userData == c {
			continue
		}

		alloc, movable := c.Region.MoveDataForUserData(userData)
		if !movable {
			continue
		}

		size, err := mtdata.AllocationSize(handle)
		if err != nil {
			panic(fmt.Sprintf("unexpected error when getting allocation size: %+v", err))
		}

		counter := pass.checkCounters(size)
		switch counter {
		case defragCounterIgnore:
			continue
		case defragCounterEnd:
			return true
		case defragCounterPass:
		default:
			panic(fmt.Sprintf("unexpected defrag counter status: %s", counter.String()))
		}

		offset := c.mustFindOffset(mtdata, handle)
		if offset == 0 || !mtdata.MayHaveFreeBlock(size) {
			continue
		}

		move := DefragmentationMove[T]{
			Size:          size,
			SrcAllocation: alloc,
			SrcHandle:     handle,
			SrcOffset:     offset,
		}
		if c.allocIfLowerOffset(mtdata, &move) && pass.incrementCounters(size) {
			return true
		}
	}

	return false
}

func (c *MetadataDefragContext[T]) allocIfLowerOffset(mtdata metadata.BlockMetadata, move *DefragmentationMove[T]) bool {
	success, allocRequest, err := mtdata.CreateAllocationRequest(
		move.Size,
		c.Alignment,
		metadata.AllocationStrategyMinOffset,
		move.SrcOffset,
	)
	if err != nil {
		panic(fmt.Sprintf("unexpected error when populating allocation request for defrag: %+v", err))
	}

	if !success || allocRequest.Offset >= move.SrcOffset {
		return false
	}

	err = mtdata.Alloc(allocRequest, c)
	if err != nil {
		panic(fmt.Sprintf("unexpected error when committing allocation request for defrag: %+v", err))
	}

	move.DstTmpAllocation = allocRequest.BlockAllocationHandle
	move.DstOffset = allocRequest.Offset
	c.moves = append(c.moves, *move)
	return true
}

// CompletePass should be called after the bytes for every collected move have been copied, and the
// MoveOperation of any move that could not be performed has been changed. It calls Handler for each
// move, adjusts the pass statistics accordingly and clears the move list. Errors returned from the
// Handler are combined with errors.Join.
func (c *MetadataDefragContext[T]) CompletePass(pass *PassContext) error {
	var allErrors []error

	for i := 0; i < len(c.moves); i++ {
		move := c.moves[i]

		err := c.Handler(move)
		if err != nil {
			allErrors = append(allErrors, err)
			continue
		}

		switch move.MoveOperation {
		case DefragmentationMoveIgnore:
			pass.Stats.BytesMoved -= move.Size
			pass.Stats.AllocationsMoved--
		case DefragmentationMoveDestroy:
			pass.Stats.BytesMoved -= move.Size
			pass.Stats.AllocationsMoved--
			pass.Stats.BytesFreed += move.Size
			pass.Stats.AllocationsFreed++
		}
	}

	c.moves = c.moves[:0]

	if len(allErrors) == 1 {
		return allErrors[0]
	}

	return errors.Join(allErrors...)
}

func (c *MetadataDefragContext[T]) mustBeginAllocationList(mtdata metadata.BlockMetadata) metadata.BlockAllocationHandle {
	handle, err := mtdata.AllocationListBegin()
	if err != nil {
		panic(fmt.Sprintf("unexpected error when getting first allocation: %+v", err))
	}

	return handle
}

func (c *MetadataDefragContext[T]) mustFindNextAllocation(mtdata metadata.BlockMetadata, handle metadata.BlockAllocationHandle) metadata.BlockAllocationHandle {
	handle, err := mtdata.FindNextAllocation(handle)
	if err != nil {
		panic(fmt.Sprintf("unexpected error when getting next allocation: %+v", err))
	}

	return handle
}

func (c *MetadataDefragContext[T]) mustFindOffset(mtdata metadata.BlockMetadata, handle metadata.BlockAllocationHandle) int {
	offset, err := mtdata.AllocationOffset(handle)
	if err != nil {
		panic(fmt.Sprintf("unexpected error when getting allocation offset: %+v", err))
	}

	return offset
}
