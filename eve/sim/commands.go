package sim

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/evekit/ramg/eve"
	"golang.org/x/exp/slog"
)

// streamCommand is a command that consumes data following its arguments in the command stream.
// feed is handed every byte received since the previous call and returns how many it consumed, and
// whether the command is complete.
type streamCommand interface {
	feed(c *Chip, data []byte) (consumed int, done bool, err error)
}

var commandArgs = map[uint32]int{
	eve.CmdMemWrite:    2,
	eve.CmdMemSet:      3,
	eve.CmdMemZero:     2,
	eve.CmdMemCpy:      3,
	eve.CmdInflate:     1,
	eve.CmdLoadImage:   2,
	eve.CmdFlashRead:   3,
	eve.CmdFlashSource: 1,
	eve.CmdInflate2:    2,
}

func (c *Chip) setFault(err error) {
	c.logger.Warn("Chip::process coprocessor fault", slog.String("error", err.Error()))
	c.fault = true
	c.pending = nil
	c.stream = nil
}

// process runs every complete command waiting in the command stream
func (c *Chip) process() {
	for !c.fault {
		if c.stream != nil {
			if len(c.pending) == 0 {
				return
			}

			consumed, done, err := c.stream.feed(c, c.pending)
			if err != nil {
				c.setFault(err)
				return
			}
			c.pending = c.pending[consumed:]
			if !done {
				return
			}
			c.stream = nil
			continue
		}

		if len(c.pending) < 4 {
			return
		}

		cmd := binary.LittleEndian.Uint32(c.pending)
		if cmd&eve.CmdPrefix != eve.CmdPrefix {
			// Display list words are not modeled
			c.pending = c.pending[4:]
			continue
		}

		argCount, known := commandArgs[cmd]
		if !known {
			c.setFault(errors.Newf("unknown coprocessor command 0x%08x", cmd))
			return
		}
		if len(c.pending) < 4+4*argCount {
			return
		}

		args := make([]uint32, argCount)
		for i := range args {
			args[i] = binary.LittleEndian.Uint32(c.pending[4+4*i:])
		}
		c.pending = c.pending[4+4*argCount:]
		c.counters.Commands++

		err := c.execute(cmd, args)
		if err != nil {
			c.setFault(err)
			return
		}
	}
}

func (c *Chip) execute(cmd uint32, args []uint32) error {
	switch cmd {
	case eve.CmdMemWrite:
		if !c.inRAM(args[0], int(args[1])) {
			return errors.Newf("CMD_MEMWRITE of %d bytes at 0x%06x is outside RAM_G", args[1], args[0])
		}
		c.stream = &memWriteStream{addr: args[0], remaining: int(args[1]), padded: int(args[1]+3) &^ 3}
	case eve.CmdMemSet:
		if !c.inRAM(args[0], int(args[2])) {
			return errors.Newf("CMD_MEMSET of %d bytes at 0x%06x is outside RAM_G", args[2], args[0])
		}
		region := c.ram[args[0] : args[0]+args[2]]
		for i := range region {
			region[i] = byte(args[1])
		}
	case eve.CmdMemZero:
		if !c.inRAM(args[0], int(args[1])) {
			return errors.Newf("CMD_MEMZERO of %d bytes at 0x%06x is outside RAM_G", args[1], args[0])
		}
		clear(c.ram[args[0] : args[0]+args[1]])
	case eve.CmdMemCpy:
		if !c.inRAM(args[0], int(args[2])) || !c.inRAM(args[1], int(args[2])) {
			return errors.Newf("CMD_MEMCPY of %d bytes from 0x%06x to 0x%06x is outside RAM_G", args[2], args[1], args[0])
		}
		copy(c.ram[args[0]:args[0]+args[2]], c.ram[args[1]:args[1]+args[2]])
	case eve.CmdInflate:
		c.stream = &inflateStream{dst: args[0]}
	case eve.CmdInflate2:
		return c.inflate2(args[0], args[1])
	case eve.CmdLoadImage:
		return c.loadImage(args[0], args[1])
	case eve.CmdFlashSource:
		if !c.model.HasFlash() {
			return errors.Newf("%s does not support CMD_FLASHSOURCE", c.model)
		}
		if args[0]%64 != 0 {
			return errors.Newf("flash source 0x%x is not 64 byte aligned", args[0])
		}
		c.flashSource = args[0]
	case eve.CmdFlashRead:
		return c.flashRead(args[0], args[1], args[2])
	}

	return nil
}

func (c *Chip) flashData(addr uint32) ([]byte, error) {
	if !c.model.HasFlash() {
		return nil, errors.Newf("%s has no flash", c.model)
	}
	if addr >= uint32(len(c.flash)) {
		return nil, errors.Newf("flash address 0x%x is past the end of a %d byte flash", addr, len(c.flash))
	}
	return c.flash[addr:], nil
}

func (c *Chip) flashRead(dst, src, num uint32) error {
	if dst%4 != 0 || src%64 != 0 || num%4 != 0 {
		return errors.Newf("misaligned CMD_FLASHREAD dst 0x%06x src 0x%x num %d", dst, src, num)
	}

	data, err := c.flashData(src)
	if err != nil {
		return err
	}
	if uint32(len(data)) < num {
		return errors.Newf("CMD_FLASHREAD of %d bytes at 0x%x runs past the end of flash", num, src)
	}
	if !c.inRAM(dst, int(num)) {
		return errors.Newf("CMD_FLASHREAD of %d bytes to 0x%06x is outside RAM_G", num, dst)
	}

	copy(c.ram[dst:], data[:num])
	return nil
}

func (c *Chip) inflate2(dst, options uint32) error {
	if options&eve.OptMediaFIFO != 0 {
		return errors.New("media FIFO is not supported")
	}
	if options&eve.OptFlash == 0 {
		c.stream = &inflateStream{dst: dst}
		return nil
	}

	data, err := c.flashData(c.flashSource)
	if err != nil {
		return err
	}

	out, _, err := inflate(data)
	if err != nil {
		return errors.Wrap(err, "inflating from flash")
	}
	return c.writeOutput("CMD_INFLATE2", dst, out)
}

func (c *Chip) loadImage(dst, options uint32) error {
	if options&eve.OptMediaFIFO != 0 {
		return errors.New("media FIFO is not supported")
	}
	if options&eve.OptFlash == 0 {
		c.stream = &imageStream{dst: dst}
		return nil
	}

	data, err := c.flashData(c.flashSource)
	if err != nil {
		return err
	}

	end, err := imageEnd(data)
	if err != nil {
		return err
	}
	if end < 0 {
		return errors.Newf("image at flash address 0x%x is truncated", c.flashSource)
	}
	return c.decodeImage(dst, data[:end])
}

func (c *Chip) writeOutput(command string, dst uint32, out []byte) error {
	if !c.inRAM(dst, len(out)) {
		return errors.Newf("%s output of %d bytes at 0x%06x is outside RAM_G", command, len(out), dst)
	}
	copy(c.ram[dst:], out)
	return nil
}

type memWriteStream struct {
	addr      uint32
	remaining int
	padded    int
}

func (s *memWriteStream) feed(c *Chip, data []byte) (int, bool, error) {
	consumed := min(len(data), s.padded)
	copied := min(consumed, s.remaining)

	copy(c.ram[s.addr:], data[:copied])
	s.addr += uint32(copied)
	s.remaining -= copied
	s.padded -= consumed

	return consumed, s.padded == 0, nil
}

// inflateStream accumulates a zlib stream until it decompresses completely. The stream is padded to a
// multiple of 4 bytes; whatever follows the padding belongs to the next command.
type inflateStream struct {
	dst uint32
	acc []byte
}

func (s *inflateStream) feed(c *Chip, data []byte) (int, bool, error) {
	base := len(s.acc)
	s.acc = append(s.acc, data...)

	out, used, err := inflate(s.acc)
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return len(data), false, nil
	} else if err != nil {
		return 0, false, errors.Wrap(err, "CMD_INFLATE")
	}

	used = (used + 3) &^ 3
	if used > len(s.acc) {
		// Padding has not arrived yet
		return len(data), false, nil
	}

	err = c.writeOutput("CMD_INFLATE", s.dst, out)
	if err != nil {
		return 0, false, err
	}
	return used - base, true, nil
}

// inflate decompresses a zlib stream from the start of data, and reports how many bytes of data
// the stream occupied
func inflate(data []byte) ([]byte, int, error) {
	reader := bytes.NewReader(data)

	zr, err := zlib.NewReader(reader)
	if err != nil {
		return nil, 0, err
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, 0, err
	}

	return out, len(data) - reader.Len(), nil
}
