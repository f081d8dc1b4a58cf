package esd

import (
	"bytes"
	"context"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/evekit/ramg/eve"
	"golang.org/x/exp/slog"
)

// ingest streams info into RAM_G at dst and returns the bitmap format the coprocessor chose for image
// resources
func (c *Cache) ingest(ctx context.Context, info *ResourceInfo, dst uint32) (uint32, error) {
	if info.Source.Type().IsFlash() {
		return c.ingestFlash(ctx, info, dst)
	}

	reader, err := c.open(info)
	if err != nil {
		return 0, err
	}
	defer reader.Close()

	switch info.Compression {
	case CompressionRaw:
		return 0, c.copyRaw(reader, info.StorageSize, dst)
	case CompressionDeflate:
		return 0, c.stream(ctx, reader, info.StorageSize, eve.CmdInflate, dst)
	default:
		err = c.stream(ctx, reader, info.StorageSize, eve.CmdLoadImage, dst, eve.OptNoDL)
		if err != nil {
			return 0, err
		}
		return c.imageFormat()
	}
}

func (c *Cache) open(info *ResourceInfo) (io.ReadCloser, error) {
	switch source := info.Source.(type) {
	case ProgMemSource:
		return io.NopCloser(bytes.NewReader(source.Data[:info.StorageSize])), nil
	case FileSource:
		if c.storage == nil {
			return nil, errors.Wrapf(ErrSourceUnavailable, "no storage to open %q from", source.Path)
		}
		file, err := c.storage.Open(source.Path)
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "opening %q", source.Path), ErrSourceUnavailable)
		}
		return file, nil
	}

	return nil, errors.AssertionFailedf("resource %v cannot be opened from the host", info.Source)
}

// readChunk fills the cache buffer from reader, at most remaining bytes. Storage that ends before the
// resource does is reported as unavailable.
func (c *Cache) readChunk(reader io.Reader, remaining int) ([]byte, error) {
	size := len(c.buffer)
	if size > remaining {
		size = remaining
	}

	n, err := io.ReadFull(reader, c.buffer[:size])
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "read %d of %d bytes", n, size), ErrSourceUnavailable)
	}

	return c.buffer[:n], nil
}

func (c *Cache) copyRaw(reader io.Reader, size int, dst uint32) error {
	for written := 0; written < size; {
		chunk, err := c.readChunk(reader, size-written)
		if err != nil {
			return err
		}

		err = c.bus.WrMem(dst+uint32(written), chunk)
		if err != nil {
			return errors.Mark(err, ErrStreamFailure)
		}
		written += len(chunk)
	}

	return nil
}

// stream issues a coprocessor command followed by the resource's bytes as its inline data stream, and
// waits until the coprocessor has consumed all of it
func (c *Cache) stream(ctx context.Context, reader io.Reader, size int, command uint32, args ...uint32) error {
	err := c.command(ctx, command, args...)
	if err != nil {
		return err
	}

	for written := 0; written < size; {
		chunk, err := c.readChunk(reader, size-written)
		if err != nil {
			// The coprocessor is left waiting on the rest of the stream
			c.resetCoprocessor(ctx)
			return err
		}

		err = c.cmd.WrMem(ctx, chunk)
		if err != nil {
			return c.streamFailure(ctx, err)
		}
		written += len(chunk)
	}

	return c.flush(ctx)
}

func (c *Cache) ingestFlash(ctx context.Context, info *ResourceInfo, dst uint32) (uint32, error) {
	model := c.bus.Model()
	if !model.HasFlash() {
		return 0, errors.Wrapf(ErrSourceUnavailable, "%s has no flash", model)
	}

	var src uint32
	switch source := info.Source.(type) {
	case FlashSource:
		src = source.Address
	case DirectFlashSource:
		src = source.Address
	}

	var err error
	switch info.Compression {
	case CompressionRaw:
		err = c.command(ctx, eve.CmdFlashRead, dst, src, uint32(info.StorageWords()*4))
	case CompressionDeflate:
		err = c.command(ctx, eve.CmdFlashSource, src)
		if err == nil {
			err = c.command(ctx, eve.CmdInflate2, dst, eve.OptFlash)
		}
	default:
		err = c.command(ctx, eve.CmdFlashSource, src)
		if err == nil {
			err = c.command(ctx, eve.CmdLoadImage, dst, eve.OptNoDL|eve.OptFlash)
		}
	}
	if err != nil {
		return 0, err
	}

	err = c.flush(ctx)
	if err != nil {
		return 0, err
	}

	if info.Compression == CompressionImage {
		return c.imageFormat()
	}
	return 0, nil
}

func (c *Cache) command(ctx context.Context, command uint32, args ...uint32) error {
	err := c.cmd.Wr32(ctx, command)
	if err != nil {
		return c.streamFailure(ctx, err)
	}

	for _, arg := range args {
		err = c.cmd.Wr32(ctx, arg)
		if err != nil {
			return c.streamFailure(ctx, err)
		}
	}

	return nil
}

func (c *Cache) flush(ctx context.Context) error {
	err := c.cmd.WaitFlush(ctx)
	if err != nil {
		return c.streamFailure(ctx, err)
	}
	return nil
}

func (c *Cache) imageFormat() (uint32, error) {
	format, err := c.bus.Rd32(eve.RegLoadImageFmt)
	if err != nil {
		return 0, errors.Mark(errors.Wrap(err, "reading image format"), ErrStreamFailure)
	}
	return format, nil
}

// streamFailure resets the coprocessor so the next command starts from a clean channel, and marks err
// as a stream failure
func (c *Cache) streamFailure(ctx context.Context, err error) error {
	c.resetCoprocessor(ctx)
	return errors.Mark(err, ErrStreamFailure)
}

func (c *Cache) resetCoprocessor(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.resetTimeout)
	defer cancel()

	err := c.cmd.Reset(ctx)
	if err != nil {
		c.logger.Error("Cache::resetCoprocessor failed", slog.String("Error", err.Error()))
	}
}
