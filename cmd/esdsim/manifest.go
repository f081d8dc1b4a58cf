package main

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/evekit/ramg/esd"
	"github.com/evekit/ramg/eve"
	"github.com/evekit/ramg/gpualloc"
	"github.com/evekit/ramg/memutils/metadata"
)

// Manifest describes a simulation run: the chip, the allocator settings and the resources an
// application loads each frame
type Manifest struct {
	Model     string            `toml:"model"`
	Frames    int               `toml:"frames"`
	Flash     string            `toml:"flash"`
	Allocator AllocatorManifest `toml:"allocator"`
	Cache     CacheManifest     `toml:"cache"`
	Resources []ResourceEntry   `toml:"resource"`

	dir string
}

type AllocatorManifest struct {
	Base          uint32 `toml:"base"`
	Size          int    `toml:"size"`
	Strategy      string `toml:"strategy"`
	MaxIdleFrames int    `toml:"max_idle_frames"`
}

type CacheManifest struct {
	ChunkSize        int           `toml:"chunk_size"`
	FlushTimeout     time.Duration `toml:"flush_timeout"`
	CompactEachFrame bool          `toml:"compact_each_frame"`
}

// ResourceEntry is a resource in the manifest. Exactly one of File, Flash and DirectFlash is set.
type ResourceEntry struct {
	Name        string  `toml:"name"`
	File        string  `toml:"file"`
	Flash       *uint32 `toml:"flash"`
	DirectFlash *uint32 `toml:"direct_flash"`
	StorageSize int     `toml:"storage_size"`
	RawSize     int     `toml:"raw_size"`
	Compression string  `toml:"compression"`
	Persistent  bool    `toml:"persistent"`
	// Every is the frame interval the resource is drawn at, 1 meaning every frame
	Every int `toml:"every"`
}

var strategyNames = map[string]metadata.AllocationStrategy{
	"":           0,
	"min-memory": metadata.AllocationStrategyMinMemory,
	"min-time":   metadata.AllocationStrategyMinTime,
	"min-offset": metadata.AllocationStrategyMinOffset,
}

var compressionNames = map[string]esd.Compression{
	"":        esd.CompressionRaw,
	"raw":     esd.CompressionRaw,
	"deflate": esd.CompressionDeflate,
	"image":   esd.CompressionImage,
}

// LoadManifest decodes a manifest file. Relative paths inside it are resolved against the manifest's
// directory.
func LoadManifest(path string) (*Manifest, error) {
	var manifest Manifest
	meta, err := toml.DecodeFile(path, &manifest)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding manifest %s", path)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, errors.Newf("manifest %s has unknown key %s", path, undecoded[0])
	}

	manifest.dir = filepath.Dir(path)
	if manifest.Model == "" {
		manifest.Model = eve.ModelBT815.String()
	}
	if manifest.Frames <= 0 {
		manifest.Frames = 1
	}

	return &manifest, nil
}

func (m *Manifest) ChipModel() (eve.Model, error) {
	model, ok := eve.ParseModel(m.Model)
	if !ok {
		return 0, errors.Newf("unknown chip model %q", m.Model)
	}
	return model, nil
}

// Storage is the filesystem file resources are read from
func (m *Manifest) Storage() fs.FS {
	return os.DirFS(m.dir)
}

func (m *Manifest) FlashImage() ([]byte, error) {
	if m.Flash == "" {
		return nil, nil
	}

	data, err := os.ReadFile(filepath.Join(m.dir, m.Flash))
	if err != nil {
		return nil, errors.Wrap(err, "reading flash image")
	}
	return data, nil
}

func (m *Manifest) AllocatorOptions(model eve.Model) (gpualloc.CreateOptions, error) {
	strategy, ok := strategyNames[m.Allocator.Strategy]
	if !ok {
		return gpualloc.CreateOptions{}, errors.Newf("unknown allocation strategy %q", m.Allocator.Strategy)
	}

	size := m.Allocator.Size
	if size == 0 {
		size = model.RAMGSize() - int(m.Allocator.Base)
	}

	return gpualloc.CreateOptions{
		Base:          eve.Address(m.Allocator.Base),
		Size:          size,
		Strategy:      strategy,
		MaxIdleFrames: m.Allocator.MaxIdleFrames,
	}, nil
}

func (m *Manifest) CacheOptions() esd.CacheOptions {
	return esd.CacheOptions{
		Storage:          m.Storage(),
		ChunkSize:        m.Cache.ChunkSize,
		FlushTimeout:     m.Cache.FlushTimeout,
		CompactEachFrame: m.Cache.CompactEachFrame,
	}
}

// Resource builds the descriptor for an entry. File resources without a storage size take the size of the
// file.
func (e *ResourceEntry) Resource(storage fs.FS) (*esd.ResourceInfo, error) {
	compression, ok := compressionNames[e.Compression]
	if !ok {
		return nil, errors.Newf("resource %s has unknown compression %q", e.Name, e.Compression)
	}

	info := &esd.ResourceInfo{
		StorageSize: e.StorageSize,
		RawSize:     e.RawSize,
		Compression: compression,
		Persistent:  e.Persistent,
	}

	switch {
	case e.File != "" && e.Flash == nil && e.DirectFlash == nil:
		info.Source = esd.FileSource{Path: e.File}
		if info.StorageSize == 0 {
			stat, err := fs.Stat(storage, e.File)
			if err != nil {
				return nil, errors.Wrapf(err, "resource %s", e.Name)
			}
			info.StorageSize = int(stat.Size())
		}
	case e.File == "" && e.Flash != nil && e.DirectFlash == nil:
		info.Source = esd.FlashSource{Address: *e.Flash}
	case e.File == "" && e.Flash == nil && e.DirectFlash != nil:
		info.Source = esd.DirectFlashSource{Address: *e.DirectFlash}
	default:
		return nil, errors.Newf("resource %s must set exactly one of file, flash and direct_flash", e.Name)
	}

	if info.RawSize == 0 && compression == esd.CompressionRaw {
		info.RawSize = info.StorageSize
	}

	return info, nil
}

func (e *ResourceEntry) DrawnIn(frame int) bool {
	if e.Every <= 1 {
		return true
	}
	return frame%e.Every == 0
}
