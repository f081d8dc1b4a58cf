package defrag

import "github.com/evekit/ramg/memutils/metadata"

// DefragmentationMoveOperation tells MetadataDefragContext.CompletePass how a collected move was resolved
type DefragmentationMoveOperation uint32

const (
	// DefragmentationMoveCopy means the bytes were copied to the destination and the allocation should be
	// rebound to it. This is the operation every move starts with.
	DefragmentationMoveCopy DefragmentationMoveOperation = iota
	// DefragmentationMoveIgnore means the move did not happen: the destination must be released and the
	// allocation stays where it is
	DefragmentationMoveIgnore
	// DefragmentationMoveDestroy means the allocation was dropped instead of moved: both the source and
	// the destination must be released
	DefragmentationMoveDestroy
)

var defragmentationMoveOperationMapping = map[DefragmentationMoveOperation]string{
	DefragmentationMoveCopy:    "DefragmentationMoveCopy",
	DefragmentationMoveIgnore:  "DefragmentationMoveIgnore",
	DefragmentationMoveDestroy: "DefragmentationMoveDestroy",
}

func (o DefragmentationMoveOperation) String() string {
	return defragmentationMoveOperationMapping[o]
}

// DefragmentOperationHandler is called once per collected move by CompletePass. It is responsible for
// freeing whichever of the source and destination regions the move's operation leaves unused and for
// rebinding the allocation to its destination on DefragmentationMoveCopy.
type DefragmentOperationHandler[T any] func(move DefragmentationMove[T]) error

// DefragmentationMove is a single planned relocation of an allocation to a lower offset
type DefragmentationMove[T any] struct {
	MoveOperation DefragmentationMoveOperation

	Size          int
	SrcAllocation T
	SrcHandle     metadata.BlockAllocationHandle
	SrcOffset     int

	// DstTmpAllocation is a placeholder allocation reserving the destination range until the pass completes
	DstTmpAllocation metadata.BlockAllocationHandle
	DstOffset        int
}
