// Package sim is a simulated chip behind the eve.HAL interface. It models RAM_G, an attached flash chip,
// the registers the coprocessor channel uses, and enough of the coprocessor to run the memory, inflate,
// image and flash commands.
package sim

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/evekit/ramg/eve"
	"golang.org/x/exp/slog"
)

// Options configures a simulated Chip
type Options struct {
	// Flash is the initial content of the attached flash chip. It is ignored for models without flash support.
	Flash []byte
}

// Counters tallies bus activity so tests can tell whether an operation reached the chip
type Counters struct {
	// RAMWrites is the number of write transactions that landed in RAM_G
	RAMWrites int
	// RAMBytes is the number of bytes those transactions wrote
	RAMBytes int
	// CommandBytes is the number of bytes written to REG_CMDB_WRITE
	CommandBytes int
	// Commands is the number of coprocessor commands executed
	Commands int
	// HostCommands is the number of host commands received
	HostCommands int
}

// Chip is a simulated chip. It is not safe for concurrent use, matching the single transaction rule
// of eve.HAL.
type Chip struct {
	logger *slog.Logger
	model  eve.Model

	ram   []byte
	flash []byte
	regs  map[uint32]uint32

	transfer eve.Transfer
	addr     uint32
	txErr    error

	pending     []byte
	stream      streamCommand
	flashSource uint32
	fault       bool

	counters     Counters
	hostCommands []uint32
}

var _ eve.HAL = &Chip{}

// New creates a simulated chip of the provided model, with cleared RAM_G and an idle coprocessor
func New(logger *slog.Logger, model eve.Model, options Options) *Chip {
	c := &Chip{
		logger: logger,
		model:  model,
		ram:    make([]byte, model.RAMGSize()),
		regs: map[uint32]uint32{
			eve.RegID: uint32(eve.RegIDValue),
		},
	}

	if model.HasFlash() && len(options.Flash) > 0 {
		c.flash = make([]byte, len(options.Flash))
		copy(c.flash, options.Flash)
	}

	return c
}

func (c *Chip) Model() eve.Model {
	return c.model
}

// Counters returns the bus activity recorded so far
func (c *Chip) Counters() Counters {
	return c.counters
}

// Faulted reports whether the coprocessor is stopped on a fault
func (c *Chip) Faulted() bool {
	return c.fault
}

// HostCommands returns every host command received, in order. Three byte commands are recorded as sent.
func (c *Chip) HostCommands() []uint32 {
	return c.hostCommands
}

// RAM returns a copy of size bytes of RAM_G starting at addr
func (c *Chip) RAM(addr uint32, size int) []byte {
	out := make([]byte, size)
	copy(out, c.ram[addr:])
	return out
}

func (c *Chip) StartTransfer(rw eve.Transfer, addr uint32) {
	if c.transfer != eve.TransferNone {
		c.txErr = errors.AssertionFailedf("transfer to 0x%06x started inside a %s at 0x%06x", addr, c.transfer, c.addr)
		return
	}

	c.transfer = rw
	c.addr = addr
	c.txErr = nil
}

func (c *Chip) EndTransfer() error {
	if c.transfer == eve.TransferNone && c.txErr == nil {
		return errors.AssertionFailedf("transfer ended without being started")
	}

	err := c.txErr
	c.transfer = eve.TransferNone
	c.txErr = nil
	return err
}

func (c *Chip) Transfer8(value uint8) uint8 {
	var buf [1]byte
	if c.transfer == eve.TransferRead {
		c.readBytes(buf[:])
		return buf[0]
	}

	buf[0] = value
	c.writeBytes(buf[:])
	return 0
}

func (c *Chip) Transfer16(value uint16) uint16 {
	var buf [2]byte
	if c.transfer == eve.TransferRead {
		c.readBytes(buf[:])
		return binary.LittleEndian.Uint16(buf[:])
	}

	binary.LittleEndian.PutUint16(buf[:], value)
	c.writeBytes(buf[:])
	return 0
}

func (c *Chip) Transfer32(value uint32) uint32 {
	var buf [4]byte
	if c.transfer == eve.TransferRead {
		c.readBytes(buf[:])
		return binary.LittleEndian.Uint32(buf[:])
	}

	binary.LittleEndian.PutUint32(buf[:], value)
	c.writeBytes(buf[:])
	return 0
}

func (c *Chip) TransferMem(result []byte, buffer []byte) {
	if c.transfer == eve.TransferRead {
		c.readBytes(result)
		return
	}

	c.writeBytes(buffer)
}

func (c *Chip) TransferString(str string, index, size, padMask uint32) uint32 {
	if c.transfer != eve.TransferWrite {
		c.txErr = errors.AssertionFailedf("string transfer outside of a write transaction")
		return 0
	}

	var out []byte
	if int(index) < len(str) {
		out = []byte(str[index:])
	}
	if size > 0 && uint32(len(out)) > size-1 {
		out = out[:size-1]
	}
	out = append(out, 0)
	for uint32(len(out))&padMask != 0 {
		out = append(out, 0)
	}

	c.writeBytes(out)
	return uint32(len(out))
}

func (c *Chip) HostCommand(cmd uint8) error {
	c.counters.HostCommands++
	c.hostCommands = append(c.hostCommands, uint32(cmd))
	return nil
}

func (c *Chip) HostCommandExt3(cmd uint32) error {
	c.counters.HostCommands++
	c.hostCommands = append(c.hostCommands, cmd)
	return nil
}

func (c *Chip) inRAM(addr uint32, size int) bool {
	return uint64(addr)+uint64(size) <= uint64(len(c.ram))
}

func (c *Chip) readBytes(out []byte) {
	if c.transfer != eve.TransferRead {
		c.txErr = errors.AssertionFailedf("read outside of a read transaction at 0x%06x", c.addr)
		return
	}

	if c.addr < uint32(len(c.ram)) {
		if !c.inRAM(c.addr, len(out)) {
			c.txErr = errors.Newf("read of %d bytes at 0x%06x runs past the end of RAM_G", len(out), c.addr)
			return
		}
		copy(out, c.ram[c.addr:])
		c.addr += uint32(len(out))
		return
	}

	for i := range out {
		word := c.readReg((c.addr + uint32(i)) &^ 3)
		out[i] = byte(word >> (8 * ((c.addr + uint32(i)) & 3)))
	}
	c.addr += uint32(len(out))
}

func (c *Chip) writeBytes(buffer []byte) {
	if c.transfer != eve.TransferWrite {
		c.txErr = errors.AssertionFailedf("write outside of a write transaction at 0x%06x", c.addr)
		return
	}

	switch {
	case c.addr == eve.RegCmdBWrite:
		c.counters.CommandBytes += len(buffer)
		if !c.fault {
			c.pending = append(c.pending, buffer...)
		}
	case c.addr < uint32(len(c.ram)):
		if !c.inRAM(c.addr, len(buffer)) {
			c.txErr = errors.Newf("write of %d bytes at 0x%06x runs past the end of RAM_G", len(buffer), c.addr)
			return
		}
		copy(c.ram[c.addr:], buffer)
		c.addr += uint32(len(buffer))
		c.counters.RAMWrites++
		c.counters.RAMBytes += len(buffer)
	default:
		for i := 0; i < len(buffer); i += 4 {
			var word [4]byte
			copy(word[:], buffer[i:])
			c.writeReg(c.addr+uint32(i), binary.LittleEndian.Uint32(word[:]))
		}
		c.addr += uint32(len(buffer))
	}
}

func (c *Chip) readReg(addr uint32) uint32 {
	switch addr {
	case eve.RegCmdBSpace:
		c.process()
		if c.fault {
			return eve.CmdFaultValue
		}
		return uint32(eve.CmdFIFOSpaceEmpty - len(c.pending))
	case eve.RegCmdRead:
		if c.fault {
			return eve.CmdFaultValue
		}
	}

	return c.regs[addr]
}

func (c *Chip) writeReg(addr uint32, value uint32) {
	c.regs[addr] = value

	if addr == eve.RegCPUReset && value&1 != 0 {
		c.logger.Debug("Chip::writeReg coprocessor reset", slog.Bool("fault", c.fault))
		c.fault = false
		c.pending = nil
		c.stream = nil
	}
}
