package gpualloc

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/evekit/ramg/eve"
	"github.com/stretchr/testify/require"
)

func TestPressureReclaimsOldestCollectable(t *testing.T) {
	allocator := newTestAllocator(t, CreateOptions{Size: 1024})

	var handles []Handle
	for i := 0; i < 4; i++ {
		handles = append(handles, mustAllocate(t, allocator, 256, AllocateCollectable))
	}

	extra := mustAllocate(t, allocator, 256, AllocateCollectable)

	require.Equal(t, eve.InvalidAddress, allocator.Resolve(handles[0]))
	for _, handle := range handles[1:] {
		require.True(t, allocator.Resolve(handle).IsValid())
	}
	require.True(t, allocator.Resolve(extra).IsValid())
	require.NoError(t, allocator.Validate())
}

func TestPressurePrefersAllocationsNotUsedThisFrame(t *testing.T) {
	allocator := newTestAllocator(t, CreateOptions{Size: 1024})

	var handles []Handle
	for i := 0; i < 4; i++ {
		handles = append(handles, mustAllocate(t, allocator, 256, AllocateCollectable))
	}

	allocator.EndFrame()
	// The oldest allocation is drawn in the new frame, the second oldest is not
	require.True(t, allocator.Resolve(handles[0]).IsValid())
	require.True(t, allocator.Resolve(handles[3]).IsValid())

	// Size does not count as a use, so checking liveness leaves the reclaim order alone
	mustAllocate(t, allocator, 256, 0)
	require.NotZero(t, allocator.Size(handles[0]))
	require.Zero(t, allocator.Size(handles[1]))
	require.NotZero(t, allocator.Size(handles[2]))

	mustAllocate(t, allocator, 256, 0)
	require.Zero(t, allocator.Size(handles[2]))
	require.NotZero(t, allocator.Size(handles[0]))

	// Only allocations used this frame are left, oldest first
	mustAllocate(t, allocator, 256, 0)
	require.Zero(t, allocator.Size(handles[0]))
	require.NotZero(t, allocator.Size(handles[3]))
}

func TestPressureNeverTouchesPersistent(t *testing.T) {
	allocator := newTestAllocator(t, CreateOptions{Size: 1024})

	persistent := mustAllocate(t, allocator, 512, 0)
	persistentAddr := allocator.Resolve(persistent)
	first := mustAllocate(t, allocator, 256, AllocateCollectable)
	second := mustAllocate(t, allocator, 256, AllocateCollectable)

	replacement := mustAllocate(t, allocator, 512, 0)
	require.Equal(t, eve.InvalidAddress, allocator.Resolve(first))
	require.Equal(t, eve.InvalidAddress, allocator.Resolve(second))
	require.Equal(t, persistentAddr, allocator.Resolve(persistent))

	handle, err := allocator.Allocate(4, AllocateCollectable)
	require.ErrorIs(t, err, ErrOutOfMemory)
	require.Equal(t, InvalidHandle, handle)
	require.Equal(t, persistentAddr, allocator.Resolve(persistent))
	require.True(t, allocator.Resolve(replacement).IsValid())
}

func TestHopelessRequestReclaimsNothing(t *testing.T) {
	allocator := newTestAllocator(t, CreateOptions{Size: 1024})

	persistent := mustAllocate(t, allocator, 512, 0)
	collectable := mustAllocate(t, allocator, 256, AllocateCollectable)

	_, err := allocator.Allocate(2048, 0)
	require.True(t, errors.Is(err, ErrOutOfMemory))

	_, err = allocator.Allocate(1024, 0)
	require.True(t, errors.Is(err, ErrOutOfMemory))

	require.True(t, allocator.Resolve(persistent).IsValid())
	require.True(t, allocator.Resolve(collectable).IsValid())
}

func TestFragmentedRequestReclaimsNothing(t *testing.T) {
	allocator := newTestAllocator(t, CreateOptions{Size: 1024})

	first := mustAllocate(t, allocator, 256, AllocateCollectable)
	pinnedLow := mustAllocate(t, allocator, 256, 0)
	second := mustAllocate(t, allocator, 256, AllocateCollectable)
	pinnedHigh := mustAllocate(t, allocator, 256, 0)

	// Every collectable range is 256 bytes long
	_, err := allocator.Allocate(512, 0)
	require.True(t, errors.Is(err, ErrOutOfMemory))
	require.NotZero(t, allocator.Size(first))
	require.NotZero(t, allocator.Size(second))
	require.Equal(t, 4, allocator.Statistics().AllocationCount)

	// With the top freed, only the second collectable borders a range wide enough
	allocator.Free(pinnedHigh)
	handle := mustAllocate(t, allocator, 512, 0)
	require.Equal(t, eve.Address(512), allocator.Resolve(handle))
	require.Zero(t, allocator.Size(second))
	require.NotZero(t, allocator.Size(first))
	require.NotZero(t, allocator.Size(pinnedLow))
	require.NoError(t, allocator.Validate())
}

func TestCollectReclaimsIdleAllocations(t *testing.T) {
	allocator := newTestAllocator(t, CreateOptions{Size: 1024})

	drawn := mustAllocate(t, allocator, 100, AllocateCollectable)
	idle := mustAllocate(t, allocator, 200, AllocateCollectable)
	persistent := mustAllocate(t, allocator, 100, 0)

	stats := allocator.Collect(allocator.EndFrame())
	require.Equal(t, CollectStats{}, stats)

	// Frame 1 only draws one of the collectable allocations
	require.True(t, allocator.Resolve(drawn).IsValid())

	stats = allocator.Collect(allocator.EndFrame())
	require.Equal(t, CollectStats{AllocationsReclaimed: 1, BytesReclaimed: 200}, stats)
	require.True(t, allocator.Resolve(drawn).IsValid())
	require.Equal(t, eve.InvalidAddress, allocator.Resolve(idle))

	// Persistent allocations are never collected, however long they sit idle
	for i := 0; i < 3; i++ {
		allocator.Collect(allocator.EndFrame())
	}
	require.Equal(t, eve.InvalidAddress, allocator.Resolve(drawn))
	require.True(t, allocator.Resolve(persistent).IsValid())
	require.Equal(t, uint64(5), allocator.Frame())
	require.NoError(t, allocator.Validate())
}

func TestCollectHonorsMaxIdleFrames(t *testing.T) {
	allocator := newTestAllocator(t, CreateOptions{Size: 1024, MaxIdleFrames: 3})

	handle := mustAllocate(t, allocator, 64, AllocateCollectable)
	for i := 0; i < 3; i++ {
		allocator.Collect(allocator.EndFrame())
		require.True(t, allocator.Resolve(handle).IsValid())
	}

	for i := 0; i < 3; i++ {
		allocator.Collect(allocator.EndFrame())
	}
	require.True(t, allocator.Resolve(handle).IsValid())

	for i := 0; i < 4; i++ {
		allocator.Collect(allocator.EndFrame())
	}
	require.Equal(t, eve.InvalidAddress, allocator.Resolve(handle))
}

func TestStaleBoundaryPanics(t *testing.T) {
	allocator := newTestAllocator(t, CreateOptions{Size: 1024})
	other := newTestAllocator(t, CreateOptions{Size: 1024})

	stale := allocator.EndFrame()
	current := allocator.EndFrame()

	require.Panics(t, func() { allocator.Collect(stale) })
	require.Panics(t, func() { allocator.Collect(Boundary{}) })
	require.Panics(t, func() { other.Collect(current) })
	require.NotPanics(t, func() { allocator.Collect(current) })
}
