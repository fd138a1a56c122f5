package layout

import "github.com/gogpu/gputypes"

// Block describes the storage unit of a texture format: BW x BH texels
// packed into Bytes bytes.
type Block struct {
	Bytes uint32
	BW    uint32
	BH    uint32
}

// Compressed reports whether the block covers more than one texel.
func (b Block) Compressed() bool { return b.BW > 1 || b.BH > 1 }

// BlockOf returns the block description of f.
func BlockOf(f gputypes.TextureFormat) (Block, bool) {
	switch f {
	case gputypes.TextureFormatR8Unorm, gputypes.TextureFormatR8Snorm,
		gputypes.TextureFormatR8Uint, gputypes.TextureFormatStencil8:
		return Block{1, 1, 1}, true
	case gputypes.TextureFormatR16Unorm, gputypes.TextureFormatR16Float,
		gputypes.TextureFormatRG8Unorm, gputypes.TextureFormatDepth16Unorm:
		return Block{2, 1, 1}, true
	case gputypes.TextureFormatR32Float, gputypes.TextureFormatR32Uint,
		gputypes.TextureFormatRG16Float, gputypes.TextureFormatRG16Unorm,
		gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb,
		gputypes.TextureFormatRGBA8Snorm, gputypes.TextureFormatBGRA8Unorm,
		gputypes.TextureFormatBGRA8UnormSrgb, gputypes.TextureFormatRGB10A2Unorm,
		gputypes.TextureFormatDepth24Plus, gputypes.TextureFormatDepth24PlusStencil8,
		gputypes.TextureFormatDepth32Float:
		return Block{4, 1, 1}, true
	case gputypes.TextureFormatRG32Float, gputypes.TextureFormatRGBA16Float,
		gputypes.TextureFormatRGBA16Unorm:
		return Block{8, 1, 1}, true
	case gputypes.TextureFormatRGBA32Float, gputypes.TextureFormatRGBA32Uint:
		return Block{16, 1, 1}, true
	case gputypes.TextureFormatBC1RGBAUnorm, gputypes.TextureFormatBC1RGBAUnormSrgb:
		return Block{8, 4, 4}, true
	case gputypes.TextureFormatBC2RGBAUnorm, gputypes.TextureFormatBC3RGBAUnorm:
		return Block{16, 4, 4}, true
	}
	return Block{}, false
}
