package gpualloc

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/evekit/ramg/memutils"
	"github.com/evekit/ramg/memutils/metadata"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"golang.org/x/exp/slog"
)

// Statistics returns totals for the managed region, including the shape of its free space
func (a *Allocator) Statistics() memutils.DetailedStatistics {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	var stats memutils.DetailedStatistics
	stats.Clear()
	a.metadata.AddDetailedStatistics(&stats)

	for id := range a.slots {
		slot := &a.slots[id]
		if slot.live() && slot.collectable {
			stats.AddCollectable(slot.size)
		}
	}

	return stats
}

// BuildStatsString returns a JSON description of the allocator. When detailed is true, every allocation and
// free range of the region is listed in address order.
func (a *Allocator) BuildStatsString(detailed bool) string {
	stats := a.Statistics()

	a.mutex.RLock()
	defer a.mutex.RUnlock()

	writer := jwriter.NewWriter()
	objState := writer.Object()

	objState.Name("Base").Int(int(a.base))
	objState.Name("Frame").Int(int(a.frame))
	objState.Name("Strategy").String(a.strategy.String())

	totalObj := objState.Name("Total").Object()
	totalObj.Name("RegionBytes").Int(stats.RegionBytes)
	totalObj.Name("AllocationCount").Int(stats.AllocationCount)
	totalObj.Name("AllocationBytes").Int(stats.AllocationBytes)
	totalObj.Name("CollectableCount").Int(stats.CollectableCount)
	totalObj.Name("CollectableBytes").Int(stats.CollectableBytes)
	totalObj.Name("UnusedRangeCount").Int(stats.UnusedRangeCount)
	if stats.AllocationCount > 0 {
		totalObj.Name("AllocationSizeMin").Int(stats.AllocationSizeMin)
		totalObj.Name("AllocationSizeMax").Int(stats.AllocationSizeMax)
	}
	if stats.UnusedRangeCount > 0 {
		totalObj.Name("UnusedRangeSizeMin").Int(stats.UnusedRangeSizeMin)
		totalObj.Name("UnusedRangeSizeMax").Int(stats.UnusedRangeSizeMax)
	}
	totalObj.End()

	if detailed {
		regionObj := objState.Name("Region").Object()
		a.metadata.BlockJsonData(&regionObj)
		a.printDetailedMap(&regionObj)
		regionObj.End()
	}

	objState.End()

	return string(writer.Bytes())
}

func (a *Allocator) printDetailedMap(json *jwriter.ObjectState) {
	arrayState := json.Name("Suballocations").Array()
	defer arrayState.End()

	// VisitAllRegions only fails with an error from the callback, and this callback always returns nil
	_ = a.metadata.VisitAllRegions(
		func(handle metadata.BlockAllocationHandle, offset int, size int, userData any, free bool) error {
			obj := arrayState.Object()
			defer obj.End()

			obj.Name("Offset").Int(offset)
			obj.Name("Size").Int(size)

			if free {
				obj.Name("Type").String("Free")
				return nil
			}

			id, isSlot := userData.(uint32)
			if !isSlot {
				obj.Name("CustomData").String(fmt.Sprintf("%+v", userData))
				return nil
			}

			slot := &a.slots[id]
			if slot.collectable {
				obj.Name("Type").String("Collectable")
			} else {
				obj.Name("Type").String("Allocation")
			}
			obj.Name("LastUsedFrame").Int(int(slot.lastUsed))
			if slot.name != "" {
				obj.Name("Name").String(slot.name)
			}

			return nil
		})
}

// Validate checks the consistency of the allocator's bookkeeping and returns an error describing the first
// problem found
func (a *Allocator) Validate() error {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	err := a.metadata.Validate()
	if err != nil {
		return err
	}

	liveCount := 0
	for id := range a.slots {
		slot := &a.slots[id]
		if !slot.live() {
			continue
		}
		liveCount++

		userData, err := a.metadata.AllocationUserData(slot.block)
		if err != nil {
			return errors.Wrapf(err, "allocation %d", id)
		}
		if userData != uint32(id) {
			return errors.Newf("allocation %d is bound to a block owned by %+v", id, userData)
		}

		size, err := a.metadata.AllocationSize(slot.block)
		if err != nil {
			return errors.Wrapf(err, "allocation %d", id)
		}
		if size != slot.size {
			return errors.Newf("allocation %d has size %d, but its block has size %d", id, slot.size, size)
		}
	}

	if liveCount != a.metadata.AllocationCount() {
		return errors.Newf("the allocator has %d live allocations, but the region has %d", liveCount, a.metadata.AllocationCount())
	}

	for _, id := range a.freeSlots {
		if a.slots[id].live() {
			return errors.Newf("allocation %d is live but listed as a free slot", id)
		}
	}

	return nil
}

// DebugLogAllAllocations logs every live allocation at debug level, in address order
func (a *Allocator) DebugLogAllAllocations() {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	a.metadata.DebugLogAllAllocations(a.logger, func(log *slog.Logger, offset int, size int, userData any) {
		id, _ := userData.(uint32)
		slot := &a.slots[id]
		log.Debug("Allocator::DebugLogAllAllocations",
			slog.Int("Offset", offset),
			slog.Int("Size", size),
			slog.Bool("Collectable", slot.collectable),
			slog.String("Name", slot.name),
		)
	})
}
