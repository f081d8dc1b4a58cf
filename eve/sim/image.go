package sim

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/cockroachdb/errors"
	"github.com/evekit/ramg/eve"
	"golang.org/x/image/draw"
)

var (
	pngSignature = []byte("\x89PNG\r\n\x1a\n")
	jpegSOI      = []byte{0xFF, 0xD8}
)

// imageStream accumulates a PNG or JPEG file from the command stream. The end of the file is found
// from its own framing, so the file does not need to be decoded until it has fully arrived.
type imageStream struct {
	dst uint32
	acc []byte
}

func (s *imageStream) feed(c *Chip, data []byte) (int, bool, error) {
	base := len(s.acc)
	s.acc = append(s.acc, data...)

	end, err := imageEnd(s.acc)
	if err != nil {
		return 0, false, err
	}
	if end < 0 {
		return len(data), false, nil
	}

	padded := (end + 3) &^ 3
	if padded > len(s.acc) {
		return len(data), false, nil
	}

	err = c.decodeImage(s.dst, s.acc[:end])
	if err != nil {
		return 0, false, err
	}
	return padded - base, true, nil
}

// imageEnd returns the length of the image file at the start of data, or -1 if data holds only
// part of it
func imageEnd(data []byte) (int, error) {
	switch {
	case len(data) < len(pngSignature):
		return -1, nil
	case bytes.HasPrefix(data, pngSignature):
		return pngEnd(data), nil
	case bytes.HasPrefix(data, jpegSOI):
		return jpegEnd(data), nil
	}

	return 0, errors.New("CMD_LOADIMAGE data is neither PNG nor JPEG")
}

func pngEnd(data []byte) int {
	offset := len(pngSignature)
	for offset+8 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[offset:]))
		chunkType := string(data[offset+4 : offset+8])
		offset += 12 + length
		if chunkType == "IEND" {
			if offset > len(data) {
				return -1
			}
			return offset
		}
	}

	return -1
}

func jpegEnd(data []byte) int {
	offset := len(jpegSOI)
	for offset+4 <= len(data) {
		if data[offset] != 0xFF {
			return -1
		}

		marker := data[offset+1]
		switch {
		case marker == 0xFF:
			// Fill byte
			offset++
			continue
		case marker == 0xD9:
			return offset + 2
		case marker >= 0xD0 && marker <= 0xD7:
			offset += 2
			continue
		}

		offset += 2 + int(binary.BigEndian.Uint16(data[offset+2:]))
		if marker != 0xDA {
			continue
		}

		// Entropy coded data runs until the next marker that is neither stuffing nor a restart
		for offset+1 < len(data) {
			if data[offset] == 0xFF {
				next := data[offset+1]
				if next != 0x00 && (next < 0xD0 || next > 0xD7) {
					break
				}
			}
			offset++
		}
	}

	if offset+2 <= len(data) && data[offset] == 0xFF && data[offset+1] == 0xD9 {
		return offset + 2
	}
	return -1
}

// decodeImage decodes a complete image file, converts it to the bitmap format the chip would choose and
// writes the pixels at dst. The format is reported in REG_LOADIMAGE_FORMAT.
func (c *Chip) decodeImage(dst uint32, data []byte) error {
	var img image.Image
	var err error
	isPNG := bytes.HasPrefix(data, pngSignature)
	if isPNG {
		img, err = png.Decode(bytes.NewReader(data))
	} else {
		img, err = jpeg.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return errors.Wrap(err, "CMD_LOADIMAGE")
	}

	bounds := img.Bounds()
	converted := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(converted, converted.Bounds(), img, bounds.Min, draw.Src)

	format := eve.FormatRGB565
	_, gray := img.(*image.Gray)
	if gray {
		format = eve.FormatL8
	} else if isPNG && !converted.Opaque() {
		format = eve.FormatARGB4
	}

	out := encodePixels(converted, format)
	if !c.inRAM(dst, len(out)) {
		return errors.Newf("CMD_LOADIMAGE output of %d bytes at 0x%06x is outside RAM_G", len(out), dst)
	}

	copy(c.ram[dst:], out)
	c.regs[eve.RegLoadImageFmt] = format
	return nil
}

func encodePixels(img *image.NRGBA, format uint32) []byte {
	bounds := img.Bounds()
	bpp := 2
	if format == eve.FormatL8 {
		bpp = 1
	}

	out := make([]byte, 0, bounds.Dx()*bounds.Dy()*bpp)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			px := img.NRGBAAt(x, y)
			switch format {
			case eve.FormatL8:
				out = append(out, px.R)
			case eve.FormatARGB4:
				out = binary.LittleEndian.AppendUint16(out, uint16(px.A>>4)<<12|uint16(px.R>>4)<<8|uint16(px.G>>4)<<4|uint16(px.B>>4))
			default:
				out = binary.LittleEndian.AppendUint16(out, uint16(px.R>>3)<<11|uint16(px.G>>2)<<5|uint16(px.B>>3))
			}
		}
	}

	return out
}
