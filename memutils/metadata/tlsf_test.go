package metadata_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/evekit/ramg/memutils"
	"github.com/evekit/ramg/memutils/metadata"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/stretchr/testify/require"
)

func allocate(t *testing.T, tlsf *metadata.TLSFBlockMetadata, size int, alignment uint, strategy metadata.AllocationStrategy, userData any) metadata.AllocationRequest {
	success, req, err := tlsf.CreateAllocationRequest(size, alignment, strategy, math.MaxInt)
	require.NoError(t, err)
	require.True(t, success)

	err = tlsf.Alloc(req, userData)
	require.NoError(t, err)
	require.NoError(t, tlsf.Validate())

	return req
}

func detailedStats(tlsf *metadata.TLSFBlockMetadata) memutils.DetailedStatistics {
	var stats memutils.DetailedStatistics
	stats.Clear()
	tlsf.AddDetailedStatistics(&stats)
	return stats
}

func emptyStats(size int) memutils.DetailedStatistics {
	return memutils.DetailedStatistics{
		Statistics: memutils.Statistics{
			RegionBytes: size,
		},
		UnusedRangeCount:   1,
		AllocationSizeMin:  math.MaxInt,
		AllocationSizeMax:  0,
		UnusedRangeSizeMin: size,
		UnusedRangeSizeMax: size,
	}
}

func TestTLSFBasicAlloc(t *testing.T) {
	tlsf := metadata.NewTLSFBlockMetadata()
	tlsf.Init(1000)

	require.Equal(t, emptyStats(1000), detailedStats(tlsf))
	require.True(t, tlsf.IsEmpty())

	req := allocate(t, tlsf, 100, 1, metadata.AllocationStrategyMinMemory, nil)
	require.Equal(t, 0, req.Offset)
	require.False(t, tlsf.IsEmpty())

	require.Equal(t, memutils.DetailedStatistics{
		Statistics: memutils.Statistics{
			RegionBytes:     1000,
			AllocationCount: 1,
			AllocationBytes: 100,
		},
		UnusedRangeCount:   1,
		AllocationSizeMin:  100,
		AllocationSizeMax:  100,
		UnusedRangeSizeMin: 900,
		UnusedRangeSizeMax: 900,
	}, detailedStats(tlsf))

	require.NoError(t, tlsf.Free(req.BlockAllocationHandle))
	require.NoError(t, tlsf.Validate())
	require.Equal(t, emptyStats(1000), detailedStats(tlsf))
	require.True(t, tlsf.IsEmpty())
}

func TestTLSFCoalesceOnFree(t *testing.T) {
	tlsf := metadata.NewTLSFBlockMetadata()
	tlsf.Init(10000)

	alloc1 := allocate(t, tlsf, 100, 1, metadata.AllocationStrategyMinMemory, nil)
	alloc2 := allocate(t, tlsf, 100, 1, metadata.AllocationStrategyMinMemory, nil)
	alloc3 := allocate(t, tlsf, 100, 1, metadata.AllocationStrategyMinMemory, nil)
	alloc4 := allocate(t, tlsf, 100, 1, metadata.AllocationStrategyMinMemory, nil)

	require.Equal(t, []int{0, 100, 200, 300}, []int{alloc1.Offset, alloc2.Offset, alloc3.Offset, alloc4.Offset})
	require.Equal(t, 4, tlsf.AllocationCount())
	require.Equal(t, 9600, tlsf.SumFreeSize())
	require.Equal(t, 1, tlsf.FreeRegionsCount())

	require.NoError(t, tlsf.Free(alloc1.BlockAllocationHandle))
	require.NoError(t, tlsf.Free(alloc3.BlockAllocationHandle))
	require.NoError(t, tlsf.Validate())
	require.Equal(t, 3, tlsf.FreeRegionsCount())

	require.NoError(t, tlsf.Free(alloc2.BlockAllocationHandle))
	require.NoError(t, tlsf.Validate())
	require.Equal(t, 2, tlsf.FreeRegionsCount())

	require.NoError(t, tlsf.Free(alloc4.BlockAllocationHandle))
	require.NoError(t, tlsf.Validate())
	require.Equal(t, 1, tlsf.FreeRegionsCount())
	require.Equal(t, emptyStats(10000), detailedStats(tlsf))
}

func TestTLSFReuseFreedRange(t *testing.T) {
	tlsf := metadata.NewTLSFBlockMetadata()
	tlsf.Init(1000)

	allocate(t, tlsf, 100, 1, metadata.AllocationStrategyMinMemory, nil)
	middle := allocate(t, tlsf, 200, 1, metadata.AllocationStrategyMinMemory, nil)
	allocate(t, tlsf, 100, 1, metadata.AllocationStrategyMinMemory, nil)

	require.NoError(t, tlsf.Free(middle.BlockAllocationHandle))

	reuse := allocate(t, tlsf, 50, 1, metadata.AllocationStrategyMinMemory, nil)
	require.Equal(t, 100, reuse.Offset)
	require.Equal(t, 250, tlsf.Size()-tlsf.SumFreeSize())
}

func TestTLSFAlignment(t *testing.T) {
	tlsf := metadata.NewTLSFBlockMetadata()
	tlsf.Init(1000)

	allocate(t, tlsf, 10, 1, metadata.AllocationStrategyMinMemory, nil)
	aligned := allocate(t, tlsf, 16, 64, metadata.AllocationStrategyMinMemory, nil)

	require.Equal(t, 64, aligned.Offset)
	require.Equal(t, 2, tlsf.FreeRegionsCount())
	require.Equal(t, 1000-26, tlsf.SumFreeSize())

	require.NoError(t, tlsf.Free(aligned.BlockAllocationHandle))
	require.NoError(t, tlsf.Validate())
	require.Equal(t, 1, tlsf.FreeRegionsCount())
	require.Equal(t, 990, tlsf.SumFreeSize())
}

func TestTLSFMaxOffset(t *testing.T) {
	tlsf := metadata.NewTLSFBlockMetadata()
	tlsf.Init(1000)

	first := allocate(t, tlsf, 100, 1, metadata.AllocationStrategyMinOffset, nil)
	allocate(t, tlsf, 100, 1, metadata.AllocationStrategyMinOffset, nil)
	allocate(t, tlsf, 100, 1, metadata.AllocationStrategyMinOffset, nil)

	success, _, err := tlsf.CreateAllocationRequest(100, 1, metadata.AllocationStrategyMinOffset, 300)
	require.NoError(t, err)
	require.False(t, success)

	require.NoError(t, tlsf.Free(first.BlockAllocationHandle))

	success, _, err = tlsf.CreateAllocationRequest(100, 1, metadata.AllocationStrategyMinOffset, 0)
	require.NoError(t, err)
	require.False(t, success)

	success, req, err := tlsf.CreateAllocationRequest(100, 1, metadata.AllocationStrategyMinOffset, 200)
	require.NoError(t, err)
	require.True(t, success)
	require.Equal(t, 0, req.Offset)
	require.NoError(t, tlsf.Alloc(req, nil))
	require.NoError(t, tlsf.Validate())
}

func TestTLSFExhaustion(t *testing.T) {
	tlsf := metadata.NewTLSFBlockMetadata()
	tlsf.Init(256)

	all := allocate(t, tlsf, 256, 4, metadata.AllocationStrategyMinTime, nil)
	require.Equal(t, 0, tlsf.SumFreeSize())
	require.Equal(t, 0, tlsf.FreeRegionsCount())
	require.False(t, tlsf.MayHaveFreeBlock(4))

	success, _, err := tlsf.CreateAllocationRequest(4, 4, metadata.AllocationStrategyMinTime, math.MaxInt)
	require.NoError(t, err)
	require.False(t, success)

	require.NoError(t, tlsf.Free(all.BlockAllocationHandle))
	require.True(t, tlsf.MayHaveFreeBlock(4))
	allocate(t, tlsf, 4, 4, metadata.AllocationStrategyMinTime, nil)
}

func TestTLSFInvalidRequests(t *testing.T) {
	tlsf := metadata.NewTLSFBlockMetadata()
	tlsf.Init(1000)

	_, _, err := tlsf.CreateAllocationRequest(0, 1, metadata.AllocationStrategyMinMemory, math.MaxInt)
	require.Error(t, err)

	req := allocate(t, tlsf, 100, 1, metadata.AllocationStrategyMinMemory, nil)
	require.NoError(t, tlsf.Free(req.BlockAllocationHandle))
	require.Error(t, tlsf.Free(req.BlockAllocationHandle))
	require.Error(t, tlsf.Free(metadata.BlockAllocationHandle(9999)))

	_, err = tlsf.AllocationUserData(metadata.BlockAllocationHandle(9999))
	require.Error(t, err)
}

func TestTLSFUserDataAndIteration(t *testing.T) {
	tlsf := metadata.NewTLSFBlockMetadata()
	tlsf.Init(1000)

	a := allocate(t, tlsf, 100, 1, metadata.AllocationStrategyMinMemory, "a")
	b := allocate(t, tlsf, 100, 1, metadata.AllocationStrategyMinMemory, "b")
	c := allocate(t, tlsf, 100, 1, metadata.AllocationStrategyMinMemory, "c")
	require.NoError(t, tlsf.Free(b.BlockAllocationHandle))

	require.NoError(t, tlsf.SetAllocationUserData(c.BlockAllocationHandle, "c2"))
	userData, err := tlsf.AllocationUserData(c.BlockAllocationHandle)
	require.NoError(t, err)
	require.Equal(t, "c2", userData)

	handle, err := tlsf.AllocationListBegin()
	require.NoError(t, err)
	require.Equal(t, a.BlockAllocationHandle, handle)

	handle, err = tlsf.FindNextAllocation(handle)
	require.NoError(t, err)
	require.Equal(t, c.BlockAllocationHandle, handle)

	size, err := tlsf.AllocationSize(handle)
	require.NoError(t, err)
	require.Equal(t, 100, size)

	handle, err = tlsf.FindNextAllocation(handle)
	require.NoError(t, err)
	require.Equal(t, metadata.NoAllocation, handle)

	type region struct {
		offset, size int
		free         bool
	}
	var regions []region
	err = tlsf.VisitAllRegions(func(handle metadata.BlockAllocationHandle, offset int, size int, userData any, free bool) error {
		regions = append(regions, region{offset, size, free})
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []region{
		{0, 100, false},
		{100, 100, true},
		{200, 100, false},
		{300, 700, true},
	}, regions)
}

func TestTLSFClear(t *testing.T) {
	tlsf := metadata.NewTLSFBlockMetadata()
	tlsf.Init(4096)

	for i := 0; i < 10; i++ {
		allocate(t, tlsf, 64, 4, metadata.AllocationStrategyMinTime, nil)
	}

	tlsf.Clear()
	require.NoError(t, tlsf.Validate())
	require.True(t, tlsf.IsEmpty())
	require.Equal(t, emptyStats(4096), detailedStats(tlsf))

	allocate(t, tlsf, 4096, 4, metadata.AllocationStrategyMinTime, nil)
}

func TestTLSFBlockJsonData(t *testing.T) {
	tlsf := metadata.NewTLSFBlockMetadata()
	tlsf.Init(1000)
	allocate(t, tlsf, 100, 1, metadata.AllocationStrategyMinMemory, nil)

	writer := jwriter.NewWriter()
	obj := writer.Object()
	tlsf.BlockJsonData(&obj)
	obj.End()

	require.JSONEq(t, `{"TotalBytes":1000,"UnusedBytes":900,"Allocations":1,"UnusedRanges":1}`, string(writer.Bytes()))
}

func TestTLSFRandomNoOverlap(t *testing.T) {
	strategies := []metadata.AllocationStrategy{
		0,
		metadata.AllocationStrategyMinMemory,
		metadata.AllocationStrategyMinTime,
		metadata.AllocationStrategyMinOffset,
	}

	for _, strategy := range strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			rng := rand.New(rand.NewSource(42))
			tlsf := metadata.NewTLSFBlockMetadata()
			tlsf.Init(16384)

			var live []metadata.BlockAllocationHandle
			for i := 0; i < 2000; i++ {
				if len(live) > 0 && rng.Intn(3) == 0 {
					index := rng.Intn(len(live))
					require.NoError(t, tlsf.Free(live[index]))
					live = append(live[:index], live[index+1:]...)
				} else {
					size := (rng.Intn(128) + 1) * 4
					alignment := uint(4) << rng.Intn(3)
					success, req, err := tlsf.CreateAllocationRequest(size, alignment, strategy, math.MaxInt)
					require.NoError(t, err)
					if success {
						require.Zero(t, req.Offset%int(alignment))
						require.NoError(t, tlsf.Alloc(req, nil))
						live = append(live, req.BlockAllocationHandle)
					}
				}

				require.NoError(t, tlsf.Validate())
			}

			end := 0
			err := tlsf.VisitAllRegions(func(handle metadata.BlockAllocationHandle, offset int, size int, userData any, free bool) error {
				require.GreaterOrEqual(t, offset, end)
				end = offset + size
				return nil
			})
			require.NoError(t, err)
			require.LessOrEqual(t, end, 16384)
			require.Equal(t, len(live), tlsf.AllocationCount())
		})
	}
}

func TestTLSFReclaimableInRuns(t *testing.T) {
	tlsf := metadata.NewTLSFBlockMetadata()
	tlsf.Init(1000)

	allocate(t, tlsf, 100, 1, metadata.AllocationStrategyMinMemory, "a")
	allocate(t, tlsf, 100, 1, metadata.AllocationStrategyMinMemory, "pinned")
	allocate(t, tlsf, 100, 1, metadata.AllocationStrategyMinMemory, "b")
	allocate(t, tlsf, 100, 1, metadata.AllocationStrategyMinMemory, "c")

	reclaimable := func(userData any) bool {
		return userData != "pinned"
	}

	require.Equal(t, []any{"a", "b", "c"}, tlsf.ReclaimableInRuns(100, 1, reclaimable))
	require.Equal(t, []any{"b", "c"}, tlsf.ReclaimableInRuns(101, 1, reclaimable))
	require.Equal(t, []any{"b", "c"}, tlsf.ReclaimableInRuns(800, 1, reclaimable))
	require.Empty(t, tlsf.ReclaimableInRuns(801, 1, reclaimable))

	// The run above the pinned allocation starts at 200, which aligns up to 256
	require.Equal(t, []any{"b", "c"}, tlsf.ReclaimableInRuns(744, 256, reclaimable))
	require.Empty(t, tlsf.ReclaimableInRuns(745, 256, reclaimable))

	require.Empty(t, tlsf.ReclaimableInRuns(100, 1, func(any) bool { return false }))
}
