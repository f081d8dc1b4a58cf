// Package gradient produces four-corner gradient bitmaps in chip memory. Each gradient is a 2x2 bitmap
// that the graphics engine stretches with bilinear filtering.
package gradient

import (
	"context"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/evekit/ramg/esd/bitmap"
	"github.com/evekit/ramg/eve"
	"github.com/evekit/ramg/gpualloc"
	"golang.org/x/exp/slog"
)

const (
	// CellCount is the number of gradients held in chip memory at once. Cells are reused round robin, so
	// a frame may draw up to CellCount gradients before the first one is overwritten.
	CellCount = 64
	// CellSize is the size of a single 2x2 cell with 16 bits per texel
	CellSize = 8
	// Stride is the size of one row of a cell
	Stride = 4
)

// ARGB is a colour with 8 bits per channel, alpha in the top byte
type ARGB uint32

func (c ARGB) opaque() bool {
	return c >= 0xFF000000
}

func (c ARGB) argb4() uint16 {
	return uint16(c>>28)<<12 | uint16(c>>20&0xF)<<8 | uint16(c>>12&0xF)<<4 | uint16(c>>4&0xF)
}

func (c ARGB) rgb565() uint16 {
	return uint16(c>>19&0x1F)<<11 | uint16(c>>10&0x3F)<<5 | uint16(c>>3&0x1F)
}

// Cell is a gradient ready to be drawn
type Cell struct {
	// Index is the position of the cell in the ring
	Index int
	// Address is where the cell's texels live in RAM_G
	Address eve.Address
	// Source is Address encoded for BITMAP_SOURCE
	Source uint32
	// Format is the bitmap format of the texels, eve.FormatARGB4 or eve.FormatRGB565
	Format uint32
	// Handle is the bitmap handle to draw the cell with
	Handle bitmap.Handle
}

// MultiGradient writes gradients into a ring of cells held by one collectable allocation. The allocation
// is only kept alive while gradients are drawn; once the allocator reclaims it, the next Write allocates
// a fresh ring.
type MultiGradient struct {
	logger *slog.Logger
	alloc  *gpualloc.Allocator
	cmd    eve.Coprocessor
	model  eve.Model

	handle gpualloc.Handle
	cell   int
	texels [CellSize]byte
}

func New(logger *slog.Logger, alloc *gpualloc.Allocator, cmd eve.Coprocessor, model eve.Model) *MultiGradient {
	return &MultiGradient{
		logger: logger,
		alloc:  alloc,
		cmd:    cmd,
		model:  model,
	}
}

func (g *MultiGradient) ring() (eve.Address, error) {
	addr := g.alloc.Resolve(g.handle)
	if addr.IsValid() {
		return addr, nil
	}

	handle, err := g.alloc.Allocate(CellCount*CellSize, gpualloc.AllocateCollectable)
	if err != nil {
		g.logger.Warn("MultiGradient::ring unable to allocate gradient cells", slog.String("Error", err.Error()))
		return eve.InvalidAddress, errors.Wrap(err, "allocating gradient cells")
	}

	g.logger.Debug("MultiGradient::ring", slog.String("Handle", handle.String()))
	g.handle = handle
	g.cell = 0
	return g.alloc.Resolve(handle), nil
}

// Write stores a gradient in the next cell of the ring and returns it. The texels are written with
// CMD_MEMWRITE, so they land in chip memory in order with the commands that draw them.
func (g *MultiGradient) Write(ctx context.Context, topLeft, topRight, bottomLeft, bottomRight ARGB) (Cell, error) {
	base, err := g.ring()
	if err != nil {
		return Cell{}, err
	}

	colors := [4]ARGB{topLeft, topRight, bottomLeft, bottomRight}
	format := eve.FormatRGB565
	for _, color := range colors {
		if !color.opaque() {
			format = eve.FormatARGB4
			break
		}
	}

	for i, color := range colors {
		texel := color.rgb565()
		if format == eve.FormatARGB4 {
			texel = color.argb4()
		}
		binary.LittleEndian.PutUint16(g.texels[i*2:], texel)
	}

	cell := Cell{
		Index:   g.cell,
		Address: base + eve.Address(g.cell*CellSize),
		Format:  format,
		Handle:  bitmap.Scratch,
	}
	cell.Source = eve.RAMGSource(g.model, cell.Address)

	for _, word := range []uint32{eve.CmdMemWrite, uint32(cell.Address), CellSize} {
		err = g.cmd.Wr32(ctx, word)
		if err != nil {
			return Cell{}, errors.Wrap(err, "writing gradient")
		}
	}
	err = g.cmd.WrMem(ctx, g.texels[:])
	if err != nil {
		return Cell{}, errors.Wrap(err, "writing gradient")
	}

	g.cell = (g.cell + 1) & (CellCount - 1)
	return cell, nil
}
