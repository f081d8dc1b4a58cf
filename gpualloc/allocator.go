package gpualloc

import (
	"fmt"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/evekit/ramg/eve"
	"github.com/evekit/ramg/internal/utils"
	"github.com/evekit/ramg/memutils"
	"github.com/evekit/ramg/memutils/metadata"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
)

// allocation is the slot a Handle points at. A slot is reused once its allocation is freed or reclaimed,
// with a new sequence number so that old handles no longer match it.
type allocation struct {
	seq         uint32
	block       metadata.BlockAllocationHandle
	size        int
	collectable bool
	// lastUsed is the frame in which the allocation was last created or resolved
	lastUsed uint64
	// order is the position of the allocation in creation order across the whole allocator
	order uint64
	name  string
}

func (a *allocation) live() bool {
	return a.block != metadata.NoAllocation
}

// Allocator is a handle-indirected arena allocator over one contiguous region of chip memory. Callers
// hold Handle values and resolve them to an address whenever they need one: addresses of collectable
// allocations are not stable, as they can be reclaimed and Defragment relocates them. A non-collectable
// allocation keeps its address until it is freed.
type Allocator struct {
	logger *slog.Logger
	mutex  utils.OptionalRWMutex

	base          eve.Address
	size          int
	alignment     uint
	strategy      metadata.AllocationStrategy
	maxIdleFrames uint64

	metadata  *metadata.TLSFBlockMetadata
	slots     []allocation
	freeSlots []uint32

	frame    uint64
	boundary uint64
	order    uint64
}

// New creates an Allocator managing options.Size bytes of chip memory starting at options.Base
func New(logger *slog.Logger, options CreateOptions) (*Allocator, error) {
	if options.Size <= 0 {
		return nil, errors.Newf("region size must be positive, got %d", options.Size)
	}

	alignment := options.Alignment
	if alignment == 0 {
		alignment = defaultAlignment
	}
	err := memutils.CheckPow2(alignment, "alignment")
	if err != nil {
		return nil, err
	}
	if uint(options.Base)%alignment != 0 {
		return nil, errors.Newf("region base 0x%06x is not aligned to %d", uint32(options.Base), alignment)
	}

	strategy := options.Strategy
	if strategy == 0 {
		strategy = metadata.AllocationStrategyMinMemory
	}

	maxIdleFrames := options.MaxIdleFrames
	if maxIdleFrames < 0 {
		return nil, errors.Newf("max idle frames cannot be negative, got %d", maxIdleFrames)
	} else if maxIdleFrames == 0 {
		maxIdleFrames = defaultMaxIdleFrames
	}

	size := memutils.AlignDown(options.Size, alignment)
	if size == 0 {
		return nil, errors.Newf("region of %d bytes holds no aligned allocations", options.Size)
	}

	logger.Debug("Allocator::New",
		slog.String("Flags", options.Flags.String()),
		slog.Int("Base", int(options.Base)),
		slog.Int("Size", size),
		slog.String("Strategy", strategy.String()),
	)

	a := &Allocator{
		logger: logger,
		mutex: utils.OptionalRWMutex{
			UseMutex: options.Flags&CreateExternallySynchronized == 0,
		},
		base:          options.Base,
		size:          size,
		alignment:     alignment,
		strategy:      strategy,
		maxIdleFrames: uint64(maxIdleFrames),
		metadata:      metadata.NewTLSFBlockMetadata(),
	}
	a.metadata.Init(size)

	return a, nil
}

// Base is the chip address of the start of the managed region
func (a *Allocator) Base() eve.Address {
	return a.base
}

// RegionSize is the number of bytes in the managed region
func (a *Allocator) RegionSize() int {
	return a.size
}

func (a *Allocator) lookup(h Handle) *allocation {
	if !h.IsValid() || int(h.id) >= len(a.slots) {
		return nil
	}

	slot := &a.slots[h.id]
	if slot.seq != h.seq || !slot.live() {
		return nil
	}

	return slot
}

func (a *Allocator) acquireSlot() uint32 {
	if len(a.freeSlots) > 0 {
		id := a.freeSlots[len(a.freeSlots)-1]
		a.freeSlots = a.freeSlots[:len(a.freeSlots)-1]
		return id
	}

	if uint64(len(a.slots)) >= math.MaxUint32 {
		panic("allocation slot table is full")
	}

	a.slots = append(a.slots, allocation{seq: 1, block: metadata.NoAllocation})
	return uint32(len(a.slots) - 1)
}

// release returns the block backing a slot to the region and retires every handle pointing at the slot
func (a *Allocator) release(id uint32) {
	slot := &a.slots[id]

	err := a.metadata.Free(slot.block)
	if err != nil {
		panic(fmt.Sprintf("unexpected error when freeing allocation %d: %+v", id, err))
	}

	slot.block = metadata.NoAllocation
	slot.name = ""
	slot.seq++
	if slot.seq == 0 {
		slot.seq = 1
	}
	a.freeSlots = append(a.freeSlots, id)
}

func (a *Allocator) offset(slot *allocation) int {
	offset, err := a.metadata.AllocationOffset(slot.block)
	if err != nil {
		panic(fmt.Sprintf("unexpected error when getting allocation offset: %+v", err))
	}
	return offset
}

// Allocate reserves at least size bytes of chip memory. The size is rounded up to the allocator's
// alignment. If the region has no room, collectable allocations are reclaimed one by one until the
// request fits: allocations not used this frame go before allocations used this frame, then the least
// recently used go first, then the oldest. Non-collectable allocations are never reclaimed, and only
// collectables inside a contiguous range that could hold the request are candidates, so a request that
// cannot fit leaves every allocation in place.
//
// When the request cannot be satisfied, ErrOutOfMemory is returned along with InvalidHandle.
func (a *Allocator) Allocate(size int, flags AllocationFlags) (Handle, error) {
	a.logger.Debug("Allocator::Allocate", slog.Int("Size", size), slog.String("Flags", flags.String()))

	if size <= 0 {
		return InvalidHandle, errors.Newf("allocation size must be positive, got %d", size)
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	size = memutils.AlignUp(size, a.alignment)
	request, err := a.reserve(size)
	if err != nil {
		return InvalidHandle, err
	}

	id := a.acquireSlot()
	err = a.metadata.Alloc(request, id)
	if err != nil {
		a.freeSlots = append(a.freeSlots, id)
		return InvalidHandle, errors.Wrap(err, "committing allocation request")
	}

	a.order++
	slot := &a.slots[id]
	slot.block = request.BlockAllocationHandle
	slot.size = size
	slot.collectable = flags&AllocateCollectable != 0
	slot.lastUsed = a.frame
	slot.order = a.order

	memutils.DebugValidate(a.metadata)

	return Handle{id: id, seq: slot.seq}, nil
}

func (a *Allocator) createRequest(size int) (bool, metadata.AllocationRequest, error) {
	success, request, err := a.metadata.CreateAllocationRequest(size, a.alignment, a.strategy, math.MaxInt)
	if err != nil {
		return false, request, errors.Wrap(err, "creating allocation request")
	}
	return success, request, nil
}

func (a *Allocator) reserve(size int) (metadata.AllocationRequest, error) {
	success, request, err := a.createRequest(size)
	if err != nil || success {
		return request, err
	}

	candidates := a.reclaimOrder(size)

	// Nothing is reclaimed unless releasing collectables can open a contiguous range for the request
	if len(candidates) == 0 {
		return request, errors.Wrapf(ErrOutOfMemory, "%d bytes requested, %d free, no collectable range fits", size, a.metadata.SumFreeSize())
	}

	for _, id := range candidates {
		victim := &a.slots[id]
		if victim.lastUsed == a.frame {
			a.logger.Warn("Allocator::Allocate reclaiming an allocation used this frame",
				slog.String("Name", victim.name),
				slog.Int("Size", victim.size),
			)
		} else {
			a.logger.Debug("  Allocator::Allocate reclaiming",
				slog.String("Name", victim.name),
				slog.Int("Size", victim.size),
			)
		}
		a.release(id)

		success, request, err = a.createRequest(size)
		if err != nil || success {
			return request, err
		}
	}

	return request, errors.Wrapf(ErrOutOfMemory, "%d bytes requested, free space too fragmented", size)
}

// reclaimOrder lists the live collectable allocations whose release can help fit a size byte request, in
// the order they should be reclaimed under pressure
func (a *Allocator) reclaimOrder(size int) []uint32 {
	inRuns := a.metadata.ReclaimableInRuns(size, a.alignment, func(userData any) bool {
		id, ok := userData.(uint32)
		return ok && int(id) < len(a.slots) && a.slots[id].collectable
	})

	ids := make([]uint32, 0, len(inRuns))
	for _, userData := range inRuns {
		ids = append(ids, userData.(uint32))
	}

	slices.SortFunc(ids, func(left, right uint32) bool {
		l, r := &a.slots[left], &a.slots[right]
		if l.lastUsed != r.lastUsed {
			return l.lastUsed < r.lastUsed
		}
		return l.order < r.order
	})

	return ids
}

// Resolve returns the current address of the allocation h refers to and marks it used this frame. It returns
// eve.InvalidAddress for InvalidHandle and for handles whose allocation was freed or reclaimed. Resolve never
// reclaims anything.
func (a *Allocator) Resolve(h Handle) eve.Address {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	slot := a.lookup(h)
	if slot == nil {
		return eve.InvalidAddress
	}

	slot.lastUsed = a.frame
	return a.base + eve.Address(a.offset(slot))
}

// Free releases the allocation h refers to. It is a no-op for handles that are invalid, freed or reclaimed.
func (a *Allocator) Free(h Handle) {
	a.logger.Debug("Allocator::Free", slog.String("Handle", h.String()))

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.lookup(h) == nil {
		return
	}

	a.release(h.id)
	memutils.DebugValidate(a.metadata)
}

// Size returns the rounded size of the allocation h refers to, or 0 if it is not live
func (a *Allocator) Size(h Handle) int {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	slot := a.lookup(h)
	if slot == nil {
		return 0
	}
	return slot.size
}

// SetName attaches a diagnostic name to a live allocation. It appears in log messages and in
// BuildStatsString.
func (a *Allocator) SetName(h Handle, name string) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	slot := a.lookup(h)
	if slot == nil {
		return errors.Wrapf(ErrInvalidHandle, "naming %s", h)
	}

	slot.name = name
	return nil
}

func (a *Allocator) Name(h Handle) string {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	slot := a.lookup(h)
	if slot == nil {
		return ""
	}
	return slot.name
}
