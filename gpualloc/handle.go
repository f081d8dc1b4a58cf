package gpualloc

import "fmt"

// Handle is a caller-held reference to an allocation. Unlike the address it resolves to, a Handle stays
// meaningful for as long as the caller holds it: once the allocation is freed or reclaimed, it resolves to
// eve.InvalidAddress forever.
//
// The zero value is InvalidHandle.
type Handle struct {
	id  uint32
	seq uint32
}

// InvalidHandle never resolves to an allocation
var InvalidHandle Handle

// IsValid is false for InvalidHandle. A valid handle may still be stale.
func (h Handle) IsValid() bool {
	return h.seq != 0
}

func (h Handle) String() string {
	if !h.IsValid() {
		return "InvalidHandle"
	}
	return fmt.Sprintf("%d:%d", h.id, h.seq)
}
