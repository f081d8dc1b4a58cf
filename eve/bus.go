package eve

//go:generate mockgen -source hal.go -destination mocks/hal.go -package mock_eve
//go:generate mockgen -source coprocessor.go -destination mocks/coprocessor.go -package mock_eve
//go:generate mockgen -source bus.go -destination mocks/bus.go -package mock_eve

// Bus is the direct memory access a resource loader needs from a Host
type Bus interface {
	Model() Model
	Rd32(addr uint32) (uint32, error)
	WrMem(addr uint32, buffer []byte) error
}

var _ Bus = &Host{}
