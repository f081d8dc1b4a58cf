package esd

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/evekit/ramg/eve"
	"github.com/evekit/ramg/gpualloc"
)

// SourceType is the storage a resource is loaded from. Both flash types have the SourceFlash bit set.
type SourceType uint8

const (
	SourceFile        SourceType = 0
	SourceProgMem     SourceType = 1
	SourceFlash       SourceType = 2
	SourceDirectFlash SourceType = 3
)

var sourceTypeMapping = map[SourceType]string{
	SourceFile:        "File",
	SourceProgMem:     "ProgMem",
	SourceFlash:       "Flash",
	SourceDirectFlash: "DirectFlash",
}

func (t SourceType) String() string {
	return sourceTypeMapping[t]
}

// IsFlash reports whether the resource lives in the flash chip attached to the coprocessor
func (t SourceType) IsFlash() bool {
	return t&SourceFlash == SourceFlash
}

// Source locates the stored bytes of a resource. It is one of FileSource, ProgMemSource, FlashSource or
// DirectFlashSource.
type Source interface {
	Type() SourceType
}

// FileSource is a file in the cache's storage filesystem
type FileSource struct {
	Path string
}

func (s FileSource) Type() SourceType { return SourceFile }
func (s FileSource) String() string   { return fmt.Sprintf("file %q", s.Path) }

// ProgMemSource is data embedded in the host program
type ProgMemSource struct {
	Data []byte
}

func (s ProgMemSource) Type() SourceType { return SourceProgMem }
func (s ProgMemSource) String() string   { return fmt.Sprintf("progmem (%d bytes)", len(s.Data)) }

// FlashSource is data at a byte address of the flash chip, copied into RAM_G when loaded
type FlashSource struct {
	Address uint32
}

func (s FlashSource) Type() SourceType { return SourceFlash }
func (s FlashSource) String() string   { return fmt.Sprintf("flash 0x%x", s.Address) }

// DirectFlashSource is data the chip reads straight out of flash. Raw data never occupies RAM_G; compressed
// data is decompressed into RAM_G like a FlashSource. The address must be a non-zero multiple of
// eve.FlashBlockSize.
type DirectFlashSource struct {
	Address uint32
}

func (s DirectFlashSource) Type() SourceType { return SourceDirectFlash }
func (s DirectFlashSource) String() string   { return fmt.Sprintf("direct flash 0x%x", s.Address) }

// Compression is the encoding of a resource in storage
type Compression uint8

const (
	CompressionRaw Compression = iota
	// CompressionDeflate is a zlib stream decompressed by the coprocessor
	CompressionDeflate
	// CompressionImage is a PNG or JPEG file decoded by the coprocessor
	CompressionImage
)

var compressionMapping = map[Compression]string{
	CompressionRaw:     "Raw",
	CompressionDeflate: "Deflate",
	CompressionImage:   "Image",
}

func (c Compression) String() string {
	name, ok := compressionMapping[c]
	if !ok {
		return fmt.Sprintf("Compression(%d)", uint8(c))
	}
	return name
}

// ResourceInfo describes a resource and carries its load state. Handle and ImageFormat are maintained by
// the Cache.
type ResourceInfo struct {
	Source Source
	// StorageSize is the number of bytes of the resource in storage
	StorageSize int
	// RawSize is the number of bytes the resource occupies in RAM_G once loaded
	RawSize     int
	Compression Compression
	// Persistent resources are loaded without the collectable flag, so the allocator only releases them on
	// an explicit Free
	Persistent bool

	// Handle is the allocation holding the loaded resource, InvalidHandle until the first load
	Handle gpualloc.Handle
	// ImageFormat is the bitmap format the coprocessor reported for the last image load
	ImageFormat uint32
}

// StorageWords is the size of the resource in storage in 32-bit words, rounded up
func (r *ResourceInfo) StorageWords() int {
	return (r.StorageSize + 3) >> 2
}

func (r *ResourceInfo) String() string {
	return fmt.Sprintf("%v (%s, %d bytes)", r.Source, r.Compression, r.RawSize)
}

// isDirect reports whether the resource is used in place, without the allocator
func (r *ResourceInfo) isDirect() bool {
	_, direct := r.Source.(DirectFlashSource)
	return direct && r.Compression == CompressionRaw
}

// validate reports descriptors that can never load as assertion failures
func (r *ResourceInfo) validate() error {
	if r.Source == nil {
		return errors.AssertionFailedf("resource has no source")
	}

	if _, known := compressionMapping[r.Compression]; !known {
		return errors.AssertionFailedf("resource %v has unknown compression %d", r.Source, uint8(r.Compression))
	}

	switch source := r.Source.(type) {
	case DirectFlashSource:
		if source.Address == eve.FlashAddressInvalid || source.Address%eve.FlashBlockSize != 0 {
			return errors.AssertionFailedf("direct flash address 0x%x must be a non-zero multiple of %d", source.Address, eve.FlashBlockSize)
		}
		if r.isDirect() {
			return nil
		}
	case ProgMemSource:
		if r.StorageSize > len(source.Data) {
			return errors.AssertionFailedf("resource claims %d bytes of storage, but its data has %d", r.StorageSize, len(source.Data))
		}
	case FileSource, FlashSource:
	default:
		return errors.AssertionFailedf("resource has unknown source type %T", r.Source)
	}

	if r.StorageSize <= 0 || r.RawSize <= 0 {
		return errors.AssertionFailedf("resource %v has storage size %d and raw size %d", r.Source, r.StorageSize, r.RawSize)
	}
	if r.Compression == CompressionRaw && r.StorageSize > r.RawSize {
		return errors.AssertionFailedf("raw resource %v has %d bytes of storage but only %d bytes of RAM_G", r.Source, r.StorageSize, r.RawSize)
	}

	return nil
}
