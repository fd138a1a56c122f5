// Package texel packs clear values into the texel layouts of render
// targets and depth buffers. Color is given in linear space and encoded
// to sRGB for the sRGB formats; alpha is never encoded.
package texel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
)

// ErrUnsupportedFormat is returned for formats with no packer.
var ErrUnsupportedFormat = errors.New("texel: unsupported texel format")

// Pack returns the bytes of one texel of format f holding c.
func Pack(f gputypes.TextureFormat, c gputypes.Color) ([]byte, error) {
	r, g, b, a := float32(c.R), float32(c.G), float32(c.B), float32(c.A)
	switch f {
	case gputypes.TextureFormatRGBA8Unorm:
		return []byte{Unorm8(r), Unorm8(g), Unorm8(b), Unorm8(a)}, nil
	case gputypes.TextureFormatRGBA8UnormSrgb:
		return []byte{LinearToSRGB(r), LinearToSRGB(g), LinearToSRGB(b), Unorm8(a)}, nil
	case gputypes.TextureFormatBGRA8Unorm:
		return []byte{Unorm8(b), Unorm8(g), Unorm8(r), Unorm8(a)}, nil
	case gputypes.TextureFormatBGRA8UnormSrgb:
		return []byte{LinearToSRGB(b), LinearToSRGB(g), LinearToSRGB(r), Unorm8(a)}, nil
	case gputypes.TextureFormatR8Unorm:
		return []byte{Unorm8(r)}, nil
	case gputypes.TextureFormatRG8Unorm:
		return []byte{Unorm8(r), Unorm8(g)}, nil
	case gputypes.TextureFormatR32Float:
		return binary.LittleEndian.AppendUint32(nil, math.Float32bits(r)), nil
	case gputypes.TextureFormatRGBA32Float:
		var px []byte
		for _, v := range [4]float32{r, g, b, a} {
			px = binary.LittleEndian.AppendUint32(px, math.Float32bits(v))
		}
		return px, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, f)
}

// PackDepth returns one texel of depth format f and a mask of the bits to
// preserve. Components not selected by writeDepth and writeStencil are
// masked. A nil texel means there is nothing to write.
func PackDepth(f gputypes.TextureFormat, depth float32, stencil uint8, writeDepth, writeStencil bool) (px, keep []byte, err error) {
	z := min(max(depth, 0), 1)
	switch f {
	case gputypes.TextureFormatDepth32Float:
		if !writeDepth {
			return nil, nil, nil
		}
		return binary.LittleEndian.AppendUint32(nil, math.Float32bits(z)), nil, nil
	case gputypes.TextureFormatDepth16Unorm:
		if !writeDepth {
			return nil, nil, nil
		}
		return binary.LittleEndian.AppendUint16(nil, uint16(math.Round(float64(z)*0xffff))), nil, nil
	case gputypes.TextureFormatDepth24Plus, gputypes.TextureFormatDepth24PlusStencil8:
		hasStencil := f == gputypes.TextureFormatDepth24PlusStencil8
		if !writeDepth && !(writeStencil && hasStencil) {
			return nil, nil, nil
		}
		v := uint32(math.Round(float64(z)*0xffffff)) | uint32(stencil)<<24
		var k uint32
		if !writeDepth {
			k |= 0xffffff
		}
		if !writeStencil || !hasStencil {
			k |= 0xff << 24
		}
		return binary.LittleEndian.AppendUint32(nil, v), binary.LittleEndian.AppendUint32(nil, k), nil
	}
	return nil, nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, f)
}
