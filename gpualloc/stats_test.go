package gpualloc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatistics(t *testing.T) {
	allocator := newTestAllocator(t, CreateOptions{Size: 1024})

	mustAllocate(t, allocator, 100, AllocateCollectable)
	mustAllocate(t, allocator, 200, 0)

	stats := allocator.Statistics()
	require.Equal(t, 1024, stats.RegionBytes)
	require.Equal(t, 2, stats.AllocationCount)
	require.Equal(t, 300, stats.AllocationBytes)
	require.Equal(t, 1, stats.CollectableCount)
	require.Equal(t, 100, stats.CollectableBytes)
	require.Equal(t, 724, stats.FreeBytes())
	require.Equal(t, 1, stats.UnusedRangeCount)
}

func TestBuildStatsString(t *testing.T) {
	allocator := newTestAllocator(t, CreateOptions{Base: 0x100, Size: 1024})

	font := mustAllocate(t, allocator, 100, AllocateCollectable)
	require.NoError(t, allocator.SetName(font, "font"))
	mustAllocate(t, allocator, 200, 0)

	require.JSONEq(t, `{
		"Base": 256,
		"Frame": 0,
		"Strategy": "MinMemory",
		"Total": {
			"RegionBytes": 1024,
			"AllocationCount": 2,
			"AllocationBytes": 300,
			"CollectableCount": 1,
			"CollectableBytes": 100,
			"UnusedRangeCount": 1,
			"AllocationSizeMin": 100,
			"AllocationSizeMax": 200,
			"UnusedRangeSizeMin": 724,
			"UnusedRangeSizeMax": 724
		}
	}`, allocator.BuildStatsString(false))

	require.JSONEq(t, `{
		"Base": 256,
		"Frame": 0,
		"Strategy": "MinMemory",
		"Total": {
			"RegionBytes": 1024,
			"AllocationCount": 2,
			"AllocationBytes": 300,
			"CollectableCount": 1,
			"CollectableBytes": 100,
			"UnusedRangeCount": 1,
			"AllocationSizeMin": 100,
			"AllocationSizeMax": 200,
			"UnusedRangeSizeMin": 724,
			"UnusedRangeSizeMax": 724
		},
		"Region": {
			"TotalBytes": 1024,
			"UnusedBytes": 724,
			"Allocations": 2,
			"UnusedRanges": 1,
			"Suballocations": [
				{"Offset": 0, "Size": 100, "Type": "Collectable", "LastUsedFrame": 0, "Name": "font"},
				{"Offset": 100, "Size": 200, "Type": "Allocation", "LastUsedFrame": 0},
				{"Offset": 300, "Size": 724, "Type": "Free"}
			]
		}
	}`, allocator.BuildStatsString(true))
}
