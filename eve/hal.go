package eve

// Transfer is the direction of a bracketed bus transaction
type Transfer uint8

const (
	TransferNone Transfer = iota
	TransferRead
	TransferWrite
)

var transferMapping = map[Transfer]string{
	TransferNone:  "TransferNone",
	TransferRead:  "TransferRead",
	TransferWrite: "TransferWrite",
}

func (t Transfer) String() string {
	return transferMapping[t]
}

// HAL is the bus transfer layer a platform provides. Every transfer call must happen between a
// StartTransfer and its EndTransfer, and only one transaction may be in flight at a time. Failures
// that happen inside a transaction are reported by EndTransfer.
type HAL interface {
	StartTransfer(rw Transfer, addr uint32)
	EndTransfer() error

	// Transfer8 writes value during a write transaction and returns the byte read during a read transaction.
	// Transfer16 and Transfer32 are little endian.
	Transfer8(value uint8) uint8
	Transfer16(value uint16) uint16
	Transfer32(value uint32) uint32
	// TransferMem reads len(result) bytes into result during a read transaction, or writes buffer during a
	// write transaction
	TransferMem(result []byte, buffer []byte)
	// TransferString writes at most size-1 bytes of str starting at index, followed by a terminating
	// zero, then zero padding until the number of bytes written has no bits of padMask set. It returns the
	// number of bytes written.
	TransferString(str string, index, size, padMask uint32) uint32

	HostCommand(cmd uint8) error
	HostCommandExt3(cmd uint32) error
}
