package eve

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jpillora/backoff"
	"golang.org/x/exp/slog"
)

// ErrCoprocessorFault is returned when the coprocessor has stopped on an invalid command or data stream.
// The channel stays faulted until Reset is called.
var ErrCoprocessorFault = errors.New("coprocessor fault")

// ErrCoprocessorStall is returned when the coprocessor frees no command space for longer than the host's
// stall timeout
var ErrCoprocessorStall = errors.New("coprocessor stalled")

// Coprocessor is the command channel of a chip
type Coprocessor interface {
	// Wr32 appends a single command word
	Wr32(ctx context.Context, value uint32) error
	// WrMem appends buffer to the command stream, zero padded to a multiple of 4 bytes
	WrMem(ctx context.Context, buffer []byte) error
	// WaitFlush blocks until the coprocessor has consumed every word written so far
	WaitFlush(ctx context.Context) error
	// Reset clears a coprocessor fault and discards any unconsumed commands
	Reset(ctx context.Context) error
}

// CommandBuffer streams commands through REG_CMDB_WRITE, using REG_CMDB_SPACE for backpressure
type CommandBuffer struct {
	host    *Host
	pollMin time.Duration
	pollMax time.Duration
	timeout time.Duration

	space   uint32
	scratch [4]byte
}

var _ Coprocessor = &CommandBuffer{}

func (c *CommandBuffer) readSpace() (uint32, error) {
	space, err := c.host.Rd32(RegCmdBSpace)
	if err != nil {
		return 0, err
	}

	if space&CmdFaultMask != 0 {
		c.space = 0
		return 0, ErrCoprocessorFault
	}

	c.space = space
	return space, nil
}

// waitSpace polls REG_CMDB_SPACE until at least minSpace bytes are free. The wait fails with
// ErrCoprocessorStall once the free space has not grown for the stall timeout.
func (c *CommandBuffer) waitSpace(ctx context.Context, minSpace uint32) error {
	if c.space >= minSpace {
		return nil
	}

	b := &backoff.Backoff{
		Min:    c.pollMin,
		Max:    c.pollMax,
		Factor: 2,
	}

	var lastSpace uint32
	deadline := time.Now().Add(c.timeout)
	for {
		space, err := c.readSpace()
		if err != nil {
			return err
		}

		if space >= minSpace {
			return nil
		}

		now := time.Now()
		if space > lastSpace {
			lastSpace = space
			deadline = now.Add(c.timeout)
		} else if now.After(deadline) {
			return errors.Wrapf(ErrCoprocessorStall, "no progress for %s waiting for %d bytes of coprocessor space, %d free", c.timeout, minSpace, space)
		}

		timer := time.NewTimer(b.Duration())
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrapf(ctx.Err(), "waiting for %d bytes of coprocessor space, %d free", minSpace, space)
		case <-timer.C:
		}
	}
}

func (c *CommandBuffer) Wr32(ctx context.Context, value uint32) error {
	if !c.host.model.HasCommandBuffer() {
		return errors.Newf("%s has no command buffer register", c.host.model)
	}

	err := c.waitSpace(ctx, 4)
	if err != nil {
		return err
	}

	binary.LittleEndian.PutUint32(c.scratch[:], value)
	err = c.host.WrMem(RegCmdBWrite, c.scratch[:])
	if err != nil {
		return err
	}

	c.space -= 4
	return nil
}

func (c *CommandBuffer) WrMem(ctx context.Context, buffer []byte) error {
	if !c.host.model.HasCommandBuffer() {
		return errors.Newf("%s has no command buffer register", c.host.model)
	}

	remaining := buffer
	for len(remaining) >= 4 {
		err := c.waitSpace(ctx, 4)
		if err != nil {
			return err
		}

		chunk := int(c.space)
		if chunk > len(remaining) {
			chunk = len(remaining)
		}
		chunk &^= 3

		err = c.host.WrMem(RegCmdBWrite, remaining[:chunk])
		if err != nil {
			return err
		}

		c.space -= uint32(chunk)
		remaining = remaining[chunk:]
	}

	if len(remaining) > 0 {
		var tail [4]byte
		copy(tail[:], remaining)
		return c.Wr32(ctx, binary.LittleEndian.Uint32(tail[:]))
	}

	return nil
}

func (c *CommandBuffer) WaitFlush(ctx context.Context) error {
	c.space = 0
	err := c.waitSpace(ctx, CmdFIFOSpaceEmpty)
	if err != nil {
		return errors.Wrap(err, "waiting for coprocessor flush")
	}
	return nil
}

// Reset clears a coprocessor fault the way the chip's recovery sequence requires: hold the coprocessor
// in reset, rewind the FIFO pointers, then release it.
func (c *CommandBuffer) Reset(ctx context.Context) error {
	c.host.logger.Warn("CommandBuffer::Reset", slog.String("model", c.host.model.String()))

	steps := []struct {
		addr  uint32
		value uint32
	}{
		{RegCPUReset, 1},
		{RegCmdRead, 0},
		{RegCmdWrite, 0},
		{RegCmdDL, 0},
		{RegCPUReset, 0},
	}
	for _, step := range steps {
		err := c.host.Wr32(step.addr, step.value)
		if err != nil {
			return errors.Wrap(err, "resetting coprocessor")
		}
	}

	c.space = 0
	return c.WaitFlush(ctx)
}
