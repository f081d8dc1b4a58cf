package gpualloc

import (
	"context"
	"fmt"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/evekit/ramg/eve"
	"github.com/evekit/ramg/memutils"
	"github.com/evekit/ramg/memutils/defrag"
	"github.com/evekit/ramg/memutils/metadata"
	"golang.org/x/exp/slog"
)

// Move is a single relocation planned by Defragment. The destination range never overlaps the source range
// of any move in the same pass.
type Move struct {
	Handle Handle
	Src    eve.Address
	Dst    eve.Address
	Size   int
}

// Mover copies the bytes of relocated allocations chip side. Move must return only once the copies are
// complete; if it returns an error, every move in the pass is abandoned and the allocations stay where
// they were.
type Mover interface {
	Move(ctx context.Context, moves []Move) error
}

// CoprocessorMover relocates allocations with CMD_MEMCPY
type CoprocessorMover struct {
	Cmd eve.Coprocessor
}

var _ Mover = CoprocessorMover{}

func (m CoprocessorMover) Move(ctx context.Context, moves []Move) error {
	for _, move := range moves {
		for _, word := range []uint32{eve.CmdMemCpy, uint32(move.Dst), uint32(move.Src), uint32(move.Size)} {
			err := m.Cmd.Wr32(ctx, word)
			if err != nil {
				return err
			}
		}
	}

	return m.Cmd.WaitFlush(ctx)
}

// allocatorRegion exposes an Allocator's metadata to a defragmentation context. TLSF user data is the
// slot index of each allocation. Non-collectable allocations are pinned.
type allocatorRegion struct {
	allocator *Allocator
}

func (r allocatorRegion) Metadata() metadata.BlockMetadata {
	return r.allocator.metadata
}

func (r allocatorRegion) MoveDataForUserData(userData any) (uint32, bool) {
	id, ok := userData.(uint32)
	if !ok || int(id) >= len(r.allocator.slots) {
		return 0, false
	}

	slot := &r.allocator.slots[id]
	return id, slot.live() && slot.collectable
}

// completeMove rebinds a slot to the destination of a finished relocation
func (a *Allocator) completeMove(move defrag.DefragmentationMove[uint32]) error {
	slot := &a.slots[move.SrcAllocation]

	switch move.MoveOperation {
	case defrag.DefragmentationMoveCopy:
		err := a.metadata.Free(move.SrcHandle)
		if err != nil {
			return errors.Wrapf(err, "freeing relocated allocation %d", move.SrcAllocation)
		}

		err = a.metadata.SetAllocationUserData(move.DstTmpAllocation, move.SrcAllocation)
		if err != nil {
			return errors.Wrapf(err, "binding relocated allocation %d", move.SrcAllocation)
		}
		slot.block = move.DstTmpAllocation
	case defrag.DefragmentationMoveIgnore:
		err := a.metadata.Free(move.DstTmpAllocation)
		if err != nil {
			return errors.Wrapf(err, "abandoning relocation of allocation %d", move.SrcAllocation)
		}
	case defrag.DefragmentationMoveDestroy:
		err := a.metadata.Free(move.DstTmpAllocation)
		if err != nil {
			return errors.Wrapf(err, "abandoning relocation of allocation %d", move.SrcAllocation)
		}
		a.release(move.SrcAllocation)
	default:
		panic(fmt.Sprintf("unexpected move operation: %s", move.MoveOperation))
	}

	return nil
}

// Defragment compacts the region at a frame boundary by moving collectable allocations toward the start of
// the region, one pass at a time, until a pass finds nothing left to move. Handles stay valid; the addresses
// moved allocations resolve to change. Non-collectable allocations never move. b must be the Boundary most recently returned by EndFrame; passing any other value
// panics.
func (a *Allocator) Defragment(ctx context.Context, b Boundary, mover Mover, info defrag.DefragmentationInfo) (defrag.DefragmentationStats, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.checkBoundary(b, "Defragment")

	maxBytes := info.MaxBytesPerPass
	if maxBytes <= 0 {
		maxBytes = a.size
	}
	maxAllocations := info.MaxAllocationsPerPass
	if maxAllocations <= 0 {
		maxAllocations = math.MaxInt32
	}

	defragCtx := defrag.MetadataDefragContext[uint32]{
		Handler:   a.completeMove,
		Region:    allocatorRegion{allocator: a},
		Alignment: a.alignment,
	}
	defragCtx.Init()

	var stats defrag.DefragmentationStats
	for passIndex := 0; ; passIndex++ {
		pass := defrag.PassContext{
			MaxPassBytes:       maxBytes,
			MaxPassAllocations: maxAllocations,
		}
		defragCtx.CollectMoves(&pass)

		moves := defragCtx.Moves()
		if len(moves) == 0 {
			break
		}

		a.logger.Debug("Allocator::Defragment pass", slog.Int("Pass", passIndex), slog.Int("Moves", len(moves)))

		chipMoves := make([]Move, 0, len(moves))
		for _, move := range moves {
			chipMoves = append(chipMoves, Move{
				Handle: Handle{id: move.SrcAllocation, seq: a.slots[move.SrcAllocation].seq},
				Src:    a.base + eve.Address(move.SrcOffset),
				Dst:    a.base + eve.Address(move.DstOffset),
				Size:   move.Size,
			})
		}

		moveErr := mover.Move(ctx, chipMoves)
		if moveErr != nil {
			for i := range moves {
				moves[i].MoveOperation = defrag.DefragmentationMoveIgnore
			}
		}

		err := defragCtx.CompletePass(&pass)
		stats.Add(pass.Stats)
		memutils.DebugValidate(a.metadata)

		if moveErr != nil || err != nil {
			return stats, errors.Wrap(errors.CombineErrors(moveErr, err), "defragmenting chip memory")
		}
	}

	return stats, nil
}
