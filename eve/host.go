package eve

import (
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"
)

// PLLSource selects the chip's clock source
type PLLSource uint8

const (
	ClockInternal PLLSource = 0x48
	ClockExternal PLLSource = 0x44
)

// PowerMode is a chip power state
type PowerMode uint8

const (
	PowerActive    PowerMode = 0x00
	PowerStandby   PowerMode = 0x41
	PowerSleep     PowerMode = 0x42
	PowerDown      PowerMode = 0x50
	hostCoreReset  uint8     = 0x68
	hostSysClkBase uint32    = 0x61
)

// HostOptions configures the polling policy of a Host's coprocessor channel. Zero values mean defaults.
type HostOptions struct {
	// PollMin is the first delay between reads of REG_CMDB_SPACE while waiting for the coprocessor
	PollMin time.Duration
	// PollMax caps the delay between reads of REG_CMDB_SPACE
	PollMax time.Duration
	// StallTimeout is how long the coprocessor may go without freeing command space before a wait fails
	// with ErrCoprocessorStall. Defaults to one second.
	StallTimeout time.Duration
}

// Host wraps a HAL with single-transaction transfer helpers and owns the coprocessor command channel
type Host struct {
	logger *slog.Logger
	hal    HAL
	model  Model

	cmd *CommandBuffer
}

// NewHost creates a Host talking to a chip of the provided model through hal
func NewHost(logger *slog.Logger, hal HAL, model Model, options HostOptions) *Host {
	if options.PollMin <= 0 {
		options.PollMin = 50 * time.Microsecond
	}
	if options.PollMax <= 0 {
		options.PollMax = 10 * time.Millisecond
	}
	if options.StallTimeout <= 0 {
		options.StallTimeout = time.Second
	}

	h := &Host{
		logger: logger,
		hal:    hal,
		model:  model,
	}
	h.cmd = &CommandBuffer{
		host:    h,
		pollMin: options.PollMin,
		pollMax: options.PollMax,
		timeout: options.StallTimeout,
	}
	return h
}

func (h *Host) Model() Model {
	return h.model
}

// Coprocessor returns the command channel of this host
func (h *Host) Coprocessor() *CommandBuffer {
	return h.cmd
}

func (h *Host) endTransfer(op string, addr uint32) error {
	err := h.hal.EndTransfer()
	if err != nil {
		return errors.Wrapf(err, "%s at 0x%06x", op, addr)
	}
	return nil
}

func (h *Host) Rd8(addr uint32) (uint8, error) {
	h.hal.StartTransfer(TransferRead, addr)
	value := h.hal.Transfer8(0)
	return value, h.endTransfer("rd8", addr)
}

func (h *Host) Rd16(addr uint32) (uint16, error) {
	h.hal.StartTransfer(TransferRead, addr)
	value := h.hal.Transfer16(0)
	return value, h.endTransfer("rd16", addr)
}

func (h *Host) Rd32(addr uint32) (uint32, error) {
	h.hal.StartTransfer(TransferRead, addr)
	value := h.hal.Transfer32(0)
	return value, h.endTransfer("rd32", addr)
}

// RdMem reads len(result) bytes starting at addr
func (h *Host) RdMem(addr uint32, result []byte) error {
	h.hal.StartTransfer(TransferRead, addr)
	h.hal.TransferMem(result, nil)
	return h.endTransfer("rdMem", addr)
}

func (h *Host) Wr8(addr uint32, value uint8) error {
	h.hal.StartTransfer(TransferWrite, addr)
	h.hal.Transfer8(value)
	return h.endTransfer("wr8", addr)
}

func (h *Host) Wr16(addr uint32, value uint16) error {
	h.hal.StartTransfer(TransferWrite, addr)
	h.hal.Transfer16(value)
	return h.endTransfer("wr16", addr)
}

func (h *Host) Wr32(addr uint32, value uint32) error {
	h.hal.StartTransfer(TransferWrite, addr)
	h.hal.Transfer32(value)
	return h.endTransfer("wr32", addr)
}

func (h *Host) WrMem(addr uint32, buffer []byte) error {
	h.hal.StartTransfer(TransferWrite, addr)
	h.hal.TransferMem(nil, buffer)
	return h.endTransfer("wrMem", addr)
}

// WrProgMem writes an embedded buffer. The chip only accepts these in whole words, so the length
// of buffer must be a multiple of 4.
func (h *Host) WrProgMem(addr uint32, buffer []byte) error {
	if len(buffer)&3 != 0 {
		return errors.AssertionFailedf("embedded buffer of %d bytes is not a multiple of 4", len(buffer))
	}
	return h.WrMem(addr, buffer)
}

// WrString writes str[index:] as a zero terminated string of at most size bytes, padded with zeros
// according to padMask. It returns the number of bytes written.
func (h *Host) WrString(addr uint32, str string, index, size, padMask uint32) (uint32, error) {
	h.hal.StartTransfer(TransferWrite, addr)
	written := h.hal.TransferString(str, index, size, padMask)
	return written, h.endTransfer("wrString", addr)
}

func (h *Host) CoreReset() error {
	h.logger.Debug("Host::CoreReset")
	return h.hal.HostCommand(hostCoreReset)
}

func (h *Host) ClockSelect(source PLLSource) error {
	h.logger.Debug("Host::ClockSelect", slog.Int("source", int(source)))
	return h.hal.HostCommand(uint8(source))
}

func (h *Host) PowerModeSwitch(mode PowerMode) error {
	h.logger.Debug("Host::PowerModeSwitch", slog.Int("mode", int(mode)))
	return h.hal.HostCommand(uint8(mode))
}

// SelectSysClk sets the system clock multiplier on FT81x and later chips. mult is the multiple of the
// 12MHz reference clock; 0 restores the default.
func (h *Host) SelectSysClk(mult uint8) error {
	if !h.model.AtLeast(ModelFT810) {
		return errors.Newf("%s does not support system clock selection", h.model)
	}

	cmd := hostSysClkBase | uint32(mult)<<8
	if mult >= 4 {
		// High multipliers need the PLL range bit
		cmd |= 0x40 << 8
	}
	return h.hal.HostCommandExt3(cmd)
}
