package brw

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/math/fixed"
)

// record is a hardware state record under construction.
type record []uint32

func (r record) bytes() []byte {
	b := make([]byte, 0, len(r)*4)
	for _, v := range r {
		b = binary.LittleEndian.AppendUint32(b, v)
	}
	return b
}

// field places v in bits [lo, lo+width) after masking it to width bits.
func field(v uint32, lo, width uint) uint32 {
	return (v & (1<<width - 1)) << lo
}

func flag(b bool, bit uint) uint32 {
	if b {
		return 1 << bit
	}
	return 0
}

func fbits(f float32) uint32 { return math.Float32bits(f) }

// ufixed converts v to an unsigned fixed-point value with frac fractional
// bits, truncated and saturated to width bits. NaN converts to 0.
func ufixed(v float32, frac, width uint) uint32 {
	lim := uint64(1)<<width - 1
	x := float64(v) * float64(uint64(1)<<frac)
	switch {
	case !(x > 0):
		return 0
	case x >= float64(lim):
		return uint32(lim)
	}
	// x < 2^16 here, so 52.12 holds it with room to spare.
	return uint32(fixed.Int52_12(x * 4096).Floor())
}

// sfixed converts v to a two's complement S.6 value in width bits,
// saturated to the field's range. NaN converts to 0.
func sfixed(v float32, width uint) uint32 {
	hi := fixed.I(1<<(width-7)) - 1
	lo := -fixed.I(1<<(width-7))
	var x fixed.Int26_6
	switch f := float64(v) * 64; {
	case math.IsNaN(f):
	case f >= float64(hi):
		x = hi
	case f <= float64(lo):
		x = lo
	default:
		x = fixed.Int26_6(f)
	}
	return uint32(int32(x)) & (1<<width - 1)
}

// Hardware compare functions.
const (
	hwCompareAlways = iota
	hwCompareNever
	hwCompareLess
	hwCompareEqual
	hwCompareLEqual
	hwCompareGreater
	hwCompareNotEqual
	hwCompareGEqual
)

func compareFunc(f gputypes.CompareFunction) uint32 {
	switch f {
	case gputypes.CompareFunctionNever:
		return hwCompareNever
	case gputypes.CompareFunctionLess:
		return hwCompareLess
	case gputypes.CompareFunctionEqual:
		return hwCompareEqual
	case gputypes.CompareFunctionLessEqual:
		return hwCompareLEqual
	case gputypes.CompareFunctionGreater:
		return hwCompareGreater
	case gputypes.CompareFunctionNotEqual:
		return hwCompareNotEqual
	case gputypes.CompareFunctionGreaterEqual:
		return hwCompareGEqual
	default:
		return hwCompareAlways
	}
}

func stencilOp(op gputypes.StencilOperation) uint32 {
	switch op {
	case gputypes.StencilOperationZero:
		return 1
	case gputypes.StencilOperationReplace:
		return 2
	case gputypes.StencilOperationIncrementClamp:
		return 3
	case gputypes.StencilOperationDecrementClamp:
		return 4
	case gputypes.StencilOperationIncrementWrap:
		return 5
	case gputypes.StencilOperationDecrementWrap:
		return 6
	case gputypes.StencilOperationInvert:
		return 7
	default:
		return 0
	}
}

func blendFactor(f gputypes.BlendFactor) uint32 {
	switch f {
	case gputypes.BlendFactorOne:
		return 0x01
	case gputypes.BlendFactorSrc:
		return 0x02
	case gputypes.BlendFactorSrcAlpha:
		return 0x03
	case gputypes.BlendFactorDstAlpha:
		return 0x04
	case gputypes.BlendFactorDst:
		return 0x05
	case gputypes.BlendFactorSrcAlphaSaturated:
		return 0x06
	case gputypes.BlendFactorConstant:
		return 0x07
	case gputypes.BlendFactorOneMinusSrc:
		return 0x12
	case gputypes.BlendFactorOneMinusSrcAlpha:
		return 0x13
	case gputypes.BlendFactorOneMinusDstAlpha:
		return 0x14
	case gputypes.BlendFactorOneMinusDst:
		return 0x15
	case gputypes.BlendFactorOneMinusConstant:
		return 0x17
	default:
		return 0x11 // zero
	}
}

func blendFunc(op gputypes.BlendOperation) uint32 {
	switch op {
	case gputypes.BlendOperationSubtract:
		return 1
	case gputypes.BlendOperationReverseSubtract:
		return 2
	case gputypes.BlendOperationMin:
		return 3
	case gputypes.BlendOperationMax:
		return 4
	default:
		return 0
	}
}

// Cull modes and winding.
const (
	hwCullNone  = 1
	hwCullFront = 2
	hwCullBack  = 3

	hwWindingCW  = 0
	hwWindingCCW = 1
)

func cullMode(m gputypes.CullMode) uint32 {
	switch m {
	case gputypes.CullModeFront:
		return hwCullFront
	case gputypes.CullModeBack:
		return hwCullBack
	default:
		return hwCullNone
	}
}

// Sampler filters and wrap modes.
const (
	hwMapFilterNearest = 0
	hwMapFilterLinear  = 1

	hwMipFilterNone    = 0
	hwMipFilterNearest = 1
	hwMipFilterLinear  = 3

	hwWrapRepeat = 0
	hwWrapMirror = 1
	hwWrapClamp  = 2
)

func mapFilter(f gputypes.FilterMode) uint32 {
	if f == gputypes.FilterModeLinear {
		return hwMapFilterLinear
	}
	return hwMapFilterNearest
}

func mipFilter(f gputypes.MipmapFilterMode) uint32 {
	switch f {
	case gputypes.MipmapFilterModeNearest:
		return hwMipFilterNearest
	case gputypes.MipmapFilterModeLinear:
		return hwMipFilterLinear
	default:
		return hwMipFilterNone
	}
}

func wrapMode(m gputypes.AddressMode) uint32 {
	switch m {
	case gputypes.AddressModeRepeat:
		return hwWrapRepeat
	case gputypes.AddressModeMirrorRepeat:
		return hwWrapMirror
	default:
		return hwWrapClamp
	}
}

// Surface types.
const (
	hwSurface1D   = 0
	hwSurface2D   = 1
	hwSurface3D   = 2
	hwSurfaceCube = 3
	hwSurfaceNull = 7
)

func surfaceType(d gputypes.TextureViewDimension) uint32 {
	switch d {
	case gputypes.TextureViewDimension1D:
		return hwSurface1D
	case gputypes.TextureViewDimension3D:
		return hwSurface3D
	case gputypes.TextureViewDimensionCube:
		return hwSurfaceCube
	default:
		return hwSurface2D
	}
}

// Surface formats.
const (
	hwFormatR32G32B32A32Float = 0x000
	hwFormatR32G32B32A32Uint  = 0x002
	hwFormatR32G32B32Float    = 0x040
	hwFormatR16G16B16A16Unorm = 0x080
	hwFormatR16G16B16A16Float = 0x084
	hwFormatR32G32Float       = 0x085
	hwFormatB8G8R8A8Unorm     = 0x0c0
	hwFormatB8G8R8A8UnormSRGB = 0x0c1
	hwFormatR10G10B10A2Unorm  = 0x0c2
	hwFormatR8G8B8A8Unorm     = 0x0c7
	hwFormatR8G8B8A8UnormSRGB = 0x0c8
	hwFormatR8G8B8A8Snorm     = 0x0c9
	hwFormatR16G16Unorm       = 0x0cc
	hwFormatR16G16Float       = 0x0d0
	hwFormatR32Uint           = 0x0d7
	hwFormatR32Float          = 0x0d8
	hwFormatR24UnormX8        = 0x0d9
	hwFormatR8G8Unorm         = 0x106
	hwFormatR16Unorm          = 0x10a
	hwFormatR16Float          = 0x10e
	hwFormatR8Unorm           = 0x140
	hwFormatR8Snorm           = 0x141
	hwFormatR8Uint            = 0x143
	hwFormatDXT1RGBA          = 0x186
	hwFormatDXT3              = 0x187
	hwFormatDXT5              = 0x188
	hwFormatDXT1RGBASRGB      = 0x18b
	hwFormatR8G8B8A8Uint      = 0x0ce
	hwFormatR8G8B8A8Sint      = 0x0cf
	hwFormatR16G16B16A16Sint  = 0x083
	hwFormatR16G16B16A16Uint  = 0x088
	hwFormatR32G32B32Uint     = 0x042
	hwFormatR32G32Uint        = 0x087
	hwFormatR32G32B32A32Sint  = 0x001
	hwFormatR32Sint           = 0x0d6
	hwFormatR32G32Sint        = 0x086
	hwFormatR32G32B32Sint     = 0x041
	hwFormatR16G16B16A16Snorm = 0x081
	hwFormatR16G16Snorm       = 0x0cd
	hwFormatR8G8Snorm         = 0x107
	hwFormatR16G16Sint        = 0x0cb
	hwFormatR16G16Uint        = 0x0ca
	hwFormatR8G8Sint          = 0x109
	hwFormatR8G8Uint          = 0x108
)

// surfaceFormat returns the sampler/render format of f.
func surfaceFormat(f gputypes.TextureFormat) (uint32, bool) {
	switch f {
	case gputypes.TextureFormatRGBA32Float:
		return hwFormatR32G32B32A32Float, true
	case gputypes.TextureFormatRGBA32Uint:
		return hwFormatR32G32B32A32Uint, true
	case gputypes.TextureFormatRGBA16Float:
		return hwFormatR16G16B16A16Float, true
	case gputypes.TextureFormatRGBA16Unorm:
		return hwFormatR16G16B16A16Unorm, true
	case gputypes.TextureFormatRG32Float:
		return hwFormatR32G32Float, true
	case gputypes.TextureFormatBGRA8Unorm:
		return hwFormatB8G8R8A8Unorm, true
	case gputypes.TextureFormatBGRA8UnormSrgb:
		return hwFormatB8G8R8A8UnormSRGB, true
	case gputypes.TextureFormatRGB10A2Unorm:
		return hwFormatR10G10B10A2Unorm, true
	case gputypes.TextureFormatRGBA8Unorm:
		return hwFormatR8G8B8A8Unorm, true
	case gputypes.TextureFormatRGBA8UnormSrgb:
		return hwFormatR8G8B8A8UnormSRGB, true
	case gputypes.TextureFormatRGBA8Snorm:
		return hwFormatR8G8B8A8Snorm, true
	case gputypes.TextureFormatRG16Unorm:
		return hwFormatR16G16Unorm, true
	case gputypes.TextureFormatRG16Float:
		return hwFormatR16G16Float, true
	case gputypes.TextureFormatR32Uint:
		return hwFormatR32Uint, true
	case gputypes.TextureFormatR32Float, gputypes.TextureFormatDepth32Float:
		return hwFormatR32Float, true
	case gputypes.TextureFormatDepth24Plus, gputypes.TextureFormatDepth24PlusStencil8:
		return hwFormatR24UnormX8, true
	case gputypes.TextureFormatRG8Unorm:
		return hwFormatR8G8Unorm, true
	case gputypes.TextureFormatR16Unorm, gputypes.TextureFormatDepth16Unorm:
		return hwFormatR16Unorm, true
	case gputypes.TextureFormatR16Float:
		return hwFormatR16Float, true
	case gputypes.TextureFormatR8Unorm:
		return hwFormatR8Unorm, true
	case gputypes.TextureFormatR8Snorm:
		return hwFormatR8Snorm, true
	case gputypes.TextureFormatR8Uint, gputypes.TextureFormatStencil8:
		return hwFormatR8Uint, true
	case gputypes.TextureFormatBC1RGBAUnorm:
		return hwFormatDXT1RGBA, true
	case gputypes.TextureFormatBC1RGBAUnormSrgb:
		return hwFormatDXT1RGBASRGB, true
	case gputypes.TextureFormatBC2RGBAUnorm:
		return hwFormatDXT3, true
	case gputypes.TextureFormatBC3RGBAUnorm:
		return hwFormatDXT5, true
	}
	return 0, false
}

// Depth buffer formats.
const (
	hwDepthD32FloatS8X24 = 0
	hwDepthD32Float      = 1
	hwDepthD24S8         = 2
	hwDepthD24X8         = 3
	hwDepthD16           = 5
)

func depthFormat(f gputypes.TextureFormat) (uint32, bool) {
	switch f {
	case gputypes.TextureFormatDepth32Float:
		return hwDepthD32Float, true
	case gputypes.TextureFormatDepth24PlusStencil8:
		return hwDepthD24S8, true
	case gputypes.TextureFormatDepth24Plus:
		return hwDepthD24X8, true
	case gputypes.TextureFormatDepth16Unorm:
		return hwDepthD16, true
	}
	return 0, false
}

// Vertex element component controls.
const (
	vfcNoStore   = 0
	vfcStoreSrc  = 1
	vfcStore0    = 2
	vfcStore1Flt = 3
	vfcStore1Int = 4
)

// vertexFormat returns the fetch format of f and its component count.
func vertexFormat(f gputypes.VertexFormat) (format uint32, comps int, integer, ok bool) {
	switch f {
	case gputypes.VertexFormatFloat32:
		return hwFormatR32Float, 1, false, true
	case gputypes.VertexFormatFloat32x2:
		return hwFormatR32G32Float, 2, false, true
	case gputypes.VertexFormatFloat32x3:
		return hwFormatR32G32B32Float, 3, false, true
	case gputypes.VertexFormatFloat32x4:
		return hwFormatR32G32B32A32Float, 4, false, true
	case gputypes.VertexFormatFloat16x2:
		return hwFormatR16G16Float, 2, false, true
	case gputypes.VertexFormatFloat16x4:
		return hwFormatR16G16B16A16Float, 4, false, true
	case gputypes.VertexFormatUnorm8x2:
		return hwFormatR8G8Unorm, 2, false, true
	case gputypes.VertexFormatUnorm8x4:
		return hwFormatR8G8B8A8Unorm, 4, false, true
	case gputypes.VertexFormatSnorm8x2:
		return hwFormatR8G8Snorm, 2, false, true
	case gputypes.VertexFormatSnorm8x4:
		return hwFormatR8G8B8A8Snorm, 4, false, true
	case gputypes.VertexFormatUnorm16x2:
		return hwFormatR16G16Unorm, 2, false, true
	case gputypes.VertexFormatUnorm16x4:
		return hwFormatR16G16B16A16Unorm, 4, false, true
	case gputypes.VertexFormatSnorm16x2:
		return hwFormatR16G16Snorm, 2, false, true
	case gputypes.VertexFormatSnorm16x4:
		return hwFormatR16G16B16A16Snorm, 4, false, true
	case gputypes.VertexFormatUint8x2:
		return hwFormatR8G8Uint, 2, true, true
	case gputypes.VertexFormatUint8x4:
		return hwFormatR8G8B8A8Uint, 4, true, true
	case gputypes.VertexFormatSint8x2:
		return hwFormatR8G8Sint, 2, true, true
	case gputypes.VertexFormatSint8x4:
		return hwFormatR8G8B8A8Sint, 4, true, true
	case gputypes.VertexFormatUint16x2:
		return hwFormatR16G16Uint, 2, true, true
	case gputypes.VertexFormatUint16x4:
		return hwFormatR16G16B16A16Uint, 4, true, true
	case gputypes.VertexFormatSint16x2:
		return hwFormatR16G16Sint, 2, true, true
	case gputypes.VertexFormatSint16x4:
		return hwFormatR16G16B16A16Sint, 4, true, true
	case gputypes.VertexFormatUint32:
		return hwFormatR32Uint, 1, true, true
	case gputypes.VertexFormatUint32x2:
		return hwFormatR32G32Uint, 2, true, true
	case gputypes.VertexFormatUint32x3:
		return hwFormatR32G32B32Uint, 3, true, true
	case gputypes.VertexFormatUint32x4:
		return hwFormatR32G32B32A32Uint, 4, true, true
	case gputypes.VertexFormatSint32:
		return hwFormatR32Sint, 1, true, true
	case gputypes.VertexFormatSint32x2:
		return hwFormatR32G32Sint, 2, true, true
	case gputypes.VertexFormatSint32x3:
		return hwFormatR32G32B32Sint, 3, true, true
	case gputypes.VertexFormatSint32x4:
		return hwFormatR32G32B32A32Sint, 4, true, true
	case gputypes.VertexFormatUnorm1010102:
		return hwFormatR10G10B10A2Unorm, 4, false, true
	}
	return 0, 0, false, false
}
