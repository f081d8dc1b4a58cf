package esd

import (
	"context"
	goerrors "errors"
	"io/fs"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/evekit/ramg/eve"
	"github.com/evekit/ramg/gpualloc"
	"github.com/evekit/ramg/memutils/defrag"
	"golang.org/x/exp/slog"
)

const (
	defaultChunkSize    = 512
	defaultResetTimeout = time.Second
)

// CacheOptions contains optional settings for a Cache. Zero values select defaults.
type CacheOptions struct {
	// Storage is the filesystem FileSource paths are opened from
	Storage fs.FS
	// ChunkSize is the number of bytes streamed to the chip per transfer. It is rounded up to a multiple
	// of 4 and defaults to 512.
	ChunkSize int
	// FlushTimeout bounds each load's wait for the coprocessor, on top of the caller's context. Zero leaves
	// the wait to the caller's context and the host's stall timeout.
	FlushTimeout time.Duration
	// CompactEachFrame makes Update defragment chip memory at every frame boundary, after collection
	CompactEachFrame bool
}

// CacheStats counts the outcomes of Load calls
type CacheStats struct {
	// Loads is the number of loads that had to stream a resource to the chip, successfully or not
	Loads int
	// Hits is the number of loads satisfied by memory already holding the resource
	Hits int
	// Failures is the number of loads that returned an error
	Failures int
	// LastCollect is the result of the collection run by the most recent Update
	LastCollect gpualloc.CollectStats
	// LastCompact is the result of the compaction run by the most recent Update
	LastCompact defrag.DefragmentationStats
}

// Cache keeps resources resident in RAM_G. It loads a resource whenever its allocation is missing, either
// because it was never loaded or because the allocator reclaimed it.
//
// A Cache is not safe for concurrent use: its operations combine several allocator and bus operations that
// must not interleave with others.
type Cache struct {
	logger *slog.Logger
	alloc  *gpualloc.Allocator
	bus    eve.Bus
	cmd    eve.Coprocessor

	storage          fs.FS
	chunkSize        int
	flushTimeout     time.Duration
	resetTimeout     time.Duration
	compactEachFrame bool

	buffer []byte
	stats  CacheStats
}

// NewCache creates a Cache that allocates from alloc, writes RAM_G through bus and streams compressed
// resources through cmd
func NewCache(logger *slog.Logger, alloc *gpualloc.Allocator, bus eve.Bus, cmd eve.Coprocessor, options CacheOptions) *Cache {
	chunkSize := options.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	chunkSize = (chunkSize + 3) &^ 3

	resetTimeout := options.FlushTimeout
	if resetTimeout <= 0 {
		resetTimeout = defaultResetTimeout
	}

	return &Cache{
		logger:           logger,
		alloc:            alloc,
		bus:              bus,
		cmd:              cmd,
		storage:          options.Storage,
		chunkSize:        chunkSize,
		flushTimeout:     options.FlushTimeout,
		resetTimeout:     resetTimeout,
		compactEachFrame: options.CompactEachFrame,
		buffer:           make([]byte, chunkSize),
	}
}

func (c *Cache) Stats() CacheStats {
	return c.stats
}

// Load makes sure info is resident and returns its address, encoded the way BITMAP_SOURCE expects it. For
// image resources the bitmap format chosen by the coprocessor is returned as well.
//
// When info's allocation is live, Load returns immediately without any bus traffic. Otherwise the resource is
// allocated and streamed to the chip, and Load returns once the chip has consumed the stream. On failure
// info.Handle is left invalid and nothing stays allocated; the error matches gpualloc.ErrOutOfMemory,
// ErrSourceUnavailable or ErrStreamFailure.
func (c *Cache) Load(ctx context.Context, info *ResourceInfo) (uint32, uint32, error) {
	err := info.validate()
	if err != nil {
		c.stats.Failures++
		return uint32(eve.InvalidAddress), 0, err
	}

	if info.isDirect() {
		c.stats.Hits++
		return eve.FlashSource(info.Source.(DirectFlashSource).Address), 0, nil
	}

	model := c.bus.Model()
	addr := c.alloc.Resolve(info.Handle)
	if addr.IsValid() {
		c.stats.Hits++
		return eve.RAMGSource(model, addr), info.ImageFormat, nil
	}

	c.logger.Debug("Cache::Load", slog.String("Resource", info.String()))
	c.stats.Loads++
	info.Handle = gpualloc.InvalidHandle

	var flags gpualloc.AllocationFlags
	if !info.Persistent {
		flags |= gpualloc.AllocateCollectable
	}

	handle, err := c.alloc.Allocate(info.RawSize, flags)
	if err != nil {
		c.stats.Failures++
		c.logger.Warn("Cache::Load allocation failed", slog.String("Resource", info.String()), slog.String("Error", err.Error()))
		return uint32(eve.InvalidAddress), 0, errors.Wrapf(err, "loading %s", info)
	}
	addr = c.alloc.Resolve(handle)

	if c.flushTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.flushTimeout)
		defer cancel()
	}

	format, err := c.ingest(ctx, info, uint32(addr))
	if err != nil {
		c.alloc.Free(handle)
		c.stats.Failures++
		c.logger.Warn("Cache::Load failed", slog.String("Resource", info.String()), slog.String("Error", err.Error()))
		return uint32(eve.InvalidAddress), 0, errors.Wrapf(err, "loading %s", info)
	}

	info.Handle = handle
	info.ImageFormat = format
	return eve.RAMGSource(model, addr), format, nil
}

// Free releases the memory held by info, forcing the next Load to reload it. It is safe to call on
// resources that are not loaded.
func (c *Cache) Free(info *ResourceInfo) {
	c.alloc.Free(info.Handle)
	info.Handle = gpualloc.InvalidHandle
}

// Persist loads info if the allocator reclaimed it. Call it for resources that must stay resident, ahead
// of rendering each frame, so that reloads do not stall in the middle of the frame.
func (c *Cache) Persist(ctx context.Context, info *ResourceInfo) error {
	_, _, err := c.Load(ctx, info)
	return err
}

// Update drives the cache across a frame boundary: it ends the allocator's frame, collects idle
// allocations, optionally compacts chip memory, then persists every listed resource. Failures are logged and
// returned together; they never stop the remaining resources from being persisted.
func (c *Cache) Update(ctx context.Context, persistent ...*ResourceInfo) error {
	boundary := c.alloc.EndFrame()
	c.stats.LastCollect = c.alloc.Collect(boundary)

	var allErrors []error
	if c.compactEachFrame {
		stats, err := c.alloc.Defragment(ctx, boundary, gpualloc.CoprocessorMover{Cmd: c.cmd}, defrag.DefragmentationInfo{})
		c.stats.LastCompact = stats
		if err != nil {
			c.logger.Warn("Cache::Update compaction failed", slog.String("Error", err.Error()))
			allErrors = append(allErrors, err)
			c.resetCoprocessor(ctx)
		}
	}

	for _, info := range persistent {
		err := c.Persist(ctx, info)
		if err != nil {
			allErrors = append(allErrors, err)
		}
	}

	return goerrors.Join(allErrors...)
}
