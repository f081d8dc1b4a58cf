package eve

// Address is an address in the chip's memory map
type Address uint32

const (
	// InvalidAddress is returned wherever an address is requested for memory that is not currently backed
	InvalidAddress Address = 0xFFFFFFFF
	// FlashAddressInvalid marks a flash address that has not been configured
	FlashAddressInvalid uint32 = 0

	ramgMaskFT80x = 0xFFFFF
	ramgMask      = 0x3FFFFF

	flashSourceFlag = 0x800000
	// FlashBlockSize is the alignment the chip requires for flash addresses used as bitmap sources
	FlashBlockSize = 32
)

// IsValid is false for InvalidAddress
func (a Address) IsValid() bool {
	return a != InvalidAddress
}

// RAMGSource encodes a RAM_G address the way BITMAP_SOURCE expects it
func RAMGSource(model Model, addr Address) uint32 {
	if model.AtLeast(ModelFT810) {
		return uint32(addr) & ramgMask
	}
	return uint32(addr) & ramgMaskFT80x
}

// FlashSource encodes a flash byte address the way BITMAP_SOURCE expects it. The address must be a
// multiple of FlashBlockSize.
func FlashSource(flashAddr uint32) uint32 {
	return (flashAddr >> 5) | flashSourceFlag
}

// IsFlashSource reports whether an encoded BITMAP_SOURCE value refers to flash
func IsFlashSource(source uint32) bool {
	return source&flashSourceFlag != 0
}
