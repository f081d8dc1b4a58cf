package eve

// Memory map and registers of FT81x and later chips
const (
	RAMG uint32 = 0x000000

	RegID             uint32 = 0x302000
	RegCPUReset       uint32 = 0x302020
	RegCmdRead        uint32 = 0x3020F8
	RegCmdWrite       uint32 = 0x3020FC
	RegCmdDL          uint32 = 0x302100
	RegCmdBSpace      uint32 = 0x302574
	RegCmdBWrite      uint32 = 0x302578
	RegLoadImageFmt   uint32 = 0x3097E8
	RAMCmd            uint32 = 0x308000
	RegIDValue        uint8  = 0x7C
	CmdFIFOSize              = 4096
	CmdFIFOSpaceEmpty        = CmdFIFOSize - 4

	// CmdFaultMask is the set of low bits that are only ever set in REG_CMDB_SPACE or REG_CMD_READ after a fault
	CmdFaultMask uint32 = 0x3
	// CmdFaultValue is the value REG_CMD_READ holds after a fault
	CmdFaultValue uint32 = 0xFFF
)

// Coprocessor commands
const (
	CmdMemWrite    uint32 = 0xFFFFFF1A
	CmdMemSet      uint32 = 0xFFFFFF1B
	CmdMemZero     uint32 = 0xFFFFFF1C
	CmdMemCpy      uint32 = 0xFFFFFF1D
	CmdInflate     uint32 = 0xFFFFFF22
	CmdLoadImage   uint32 = 0xFFFFFF24
	CmdFlashRead   uint32 = 0xFFFFFF46
	CmdFlashSource uint32 = 0xFFFFFF4E
	CmdInflate2    uint32 = 0xFFFFFF50

	// CmdPrefix marks a coprocessor command word. Words without it are display list commands.
	CmdPrefix uint32 = 0xFFFFFF00
)

// Coprocessor command options
const (
	OptNoDL       uint32 = 2
	OptFlash      uint32 = 64
	OptMediaFIFO  uint32 = 16
	OptFullScreen uint32 = 8
)

// Bitmap formats
const (
	FormatARGB1555 uint32 = 0
	FormatL1       uint32 = 1
	FormatL4       uint32 = 2
	FormatL8       uint32 = 3
	FormatRGB332   uint32 = 4
	FormatARGB2    uint32 = 5
	FormatARGB4    uint32 = 6
	FormatRGB565   uint32 = 7
	FormatPaletted uint32 = 8
)

// IsASTCFormat reports whether a bitmap format reported by the chip is one of the ASTC block formats
func IsASTCFormat(format uint32) bool {
	return format&0xFFF0 == 0x93B0
}
