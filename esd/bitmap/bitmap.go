// Package bitmap describes the bitmap handles of a chip's graphics engine
package bitmap

import "github.com/evekit/ramg/eve"

type Handle uint8

const (
	// Invalid marks a resource that has no bitmap handle assigned
	Invalid Handle = 0x3F
	// Scratch is the handle the coprocessor uses for its own widgets. Assets that are drawn immediately,
	// like gradient cells, use it rather than holding on to a handle of their own.
	Scratch Handle = 15
)

// Count is the number of bitmap handles the chip's graphics engine has
func Count(model eve.Model) int {
	if model.AtLeast(eve.ModelFT810) {
		return 32
	}
	return 16
}

// Valid reports whether h names a handle the chip has
func Valid(model eve.Model, h Handle) bool {
	return int(h) < Count(model)
}

// Assignable reports whether h may be assigned to a resource for longer than a single draw
func Assignable(model eve.Model, h Handle) bool {
	return Valid(model, h) && h != Scratch
}
