package gpualloc

import (
	"fmt"

	"golang.org/x/exp/slog"
)

// Boundary is a token for the point between two frames. EndFrame is the only way to obtain one, and only the
// most recently issued Boundary is accepted by the operations that may move or reclaim memory. This keeps
// them from running in the middle of a frame, when draws already queued may still reference the memory.
type Boundary struct {
	allocator *Allocator
	id        uint64
}

// CollectStats reports the work done by Collect
type CollectStats struct {
	AllocationsReclaimed int
	BytesReclaimed       int
}

// EndFrame closes the current frame and returns the token for the boundary that follows it. Any
// previously issued Boundary becomes stale.
func (a *Allocator) EndFrame() Boundary {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.frame++
	a.boundary++
	a.logger.Debug("Allocator::EndFrame", slog.Int("Frame", int(a.frame)))

	return Boundary{allocator: a, id: a.boundary}
}

// Frame is the index of the current frame, starting at 0
func (a *Allocator) Frame() uint64 {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	return a.frame
}

func (a *Allocator) checkBoundary(b Boundary, operation string) {
	if b.allocator != a || b.id == 0 || b.id != a.boundary {
		panic(fmt.Sprintf("Allocator::%s called with a stale frame boundary", operation))
	}
}

// Collect reclaims every collectable allocation that went unused for at least MaxIdleFrames whole frames.
// b must be the Boundary most recently returned by EndFrame; passing any other value panics.
func (a *Allocator) Collect(b Boundary) CollectStats {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.checkBoundary(b, "Collect")

	var stats CollectStats
	for id := range a.slots {
		slot := &a.slots[id]
		if !slot.live() || !slot.collectable {
			continue
		}

		if slot.lastUsed+a.maxIdleFrames >= a.frame {
			continue
		}

		stats.AllocationsReclaimed++
		stats.BytesReclaimed += slot.size
		a.release(uint32(id))
	}

	a.logger.Debug("Allocator::Collect",
		slog.Int("AllocationsReclaimed", stats.AllocationsReclaimed),
		slog.Int("BytesReclaimed", stats.BytesReclaimed),
	)

	return stats
}
