package brw

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/i965/internal/pipe"
	"github.com/gogpu/i965/internal/pool"
)

// Record alignments in the general state pool.
const (
	kernelAlign = 64
	unitAlign   = 32
)

// threadState is the dispatch description shared by every unit that runs
// a kernel: the first four dwords of the unit record.
type threadState struct {
	kernel      uint32
	grf         int
	bindings    int
	singleFlow  bool
	dispatchGRF int

	urbReadOffset   int
	urbReadLength   int
	constReadOffset int
	constReadLength int
}

func (t threadState) pack() (d0, d1, d2, d3 uint32) {
	blocks := pool.DivRoundUp(uint32(max(t.grf, 1)), 16)
	d0 = t.kernel&^(kernelAlign-1) | field(blocks-1, 1, 3)
	d1 = flag(t.singleFlow, 31) | field(uint32(t.bindings), 18, 8)
	d3 = field(uint32(t.dispatchGRF), 0, 4) |
		field(uint32(t.urbReadOffset), 4, 6) |
		field(uint32(t.urbReadLength), 11, 6) |
		field(uint32(t.constReadOffset), 18, 6) |
		field(uint32(t.constReadLength), 25, 6)
	return d0, d1, 0, d3
}

// urbAlloc is the URB share of a fixed-function unit.
type urbAlloc struct {
	entries    int
	size       int
	maxThreads int
}

func (u urbAlloc) pack() uint32 {
	return flag(true, 10) |
		field(uint32(u.entries), 11, 7) |
		field(uint32(max(u.size, 1)-1), 19, 5) |
		field(uint32(max(u.maxThreads, 1)-1), 25, 6)
}

func packCCViewport(minDepth, maxDepth float32) record {
	return record{fbits(minDepth), fbits(maxDepth)}
}

// packSFViewport packs the viewport transform and the scissor rectangle.
// The rectangle is inclusive.
func packSFViewport(vp pipe.Viewport, sc pipe.Scissor) record {
	r := make(record, 8)
	r[0] = fbits(vp.Scale[0])
	r[1] = fbits(vp.Scale[1])
	r[2] = fbits(vp.Scale[2])
	r[3] = fbits(vp.Translate[0])
	r[4] = fbits(vp.Translate[1])
	r[5] = fbits(vp.Translate[2])
	r[6] = field(sc.MinX, 0, 16) | field(sc.MinY, 16, 16)
	r[7] = field(max(sc.MaxX, 1)-1, 0, 16) | field(max(sc.MaxY, 1)-1, 16, 16)
	return r
}

func packClipViewport() record {
	return record{fbits(-1), fbits(1), fbits(-1), fbits(1)}
}

func packCCUnit(b pipe.BlendState, d pipe.DepthStencilAlphaState, ccVP uint32) record {
	r := make(record, 8)
	front, back := d.Stencil[0], d.Stencil[1]
	if front.Enabled {
		r[0] = flag(true, 31) |
			field(compareFunc(front.Face.Compare), 28, 3) |
			field(stencilOp(front.Face.FailOp), 25, 3) |
			field(stencilOp(front.Face.DepthFailOp), 22, 3) |
			field(stencilOp(front.Face.PassOp), 19, 3) |
			flag(front.WriteMask != 0, 18)
		r[1] = field(uint32(front.Ref), 24, 8) |
			field(uint32(front.WriteMask), 16, 8) |
			field(uint32(front.ValueMask), 8, 8)
		if back.Enabled {
			r[0] |= flag(true, 15) |
				field(compareFunc(back.Face.Compare), 12, 3) |
				field(stencilOp(back.Face.FailOp), 9, 3) |
				field(stencilOp(back.Face.DepthFailOp), 6, 3) |
				field(stencilOp(back.Face.PassOp), 3, 3)
			r[1] |= field(uint32(back.Ref), 0, 8)
			r[2] = field(uint32(back.WriteMask), 16, 8) | field(uint32(back.ValueMask), 24, 8)
		}
	}
	if d.DepthEnabled {
		r[2] |= flag(true, 15) | field(compareFunc(d.DepthCompare), 12, 3) | flag(d.DepthWrite, 11)
	}

	independent := b.Enabled && b.Alpha != b.Color
	r[3] = flag(d.AlphaEnabled, 11) | field(compareFunc(d.AlphaCompare), 8, 3) |
		flag(b.Enabled, 12) | flag(independent, 13) | flag(true, 15)
	r[4] = ccVP &^ 31
	r[5] = flag(b.Dither, 30) | flag(true, 20)
	if independent {
		r[5] |= field(blendFunc(b.Alpha.Operation), 17, 3) |
			field(blendFactor(b.Alpha.SrcFactor), 12, 5) |
			field(blendFactor(b.Alpha.DstFactor), 7, 5)
	}
	r[6] = field(blendFunc(b.Color.Operation), 29, 3) |
		field(blendFactor(b.Color.SrcFactor), 24, 5) |
		field(blendFactor(b.Color.DstFactor), 19, 5)
	r[7] = fbits(d.AlphaRef)
	return r
}

// SF fixed-point fields.
const (
	sfLineWidthFrac  = 1
	sfLineWidthBits  = 4
	sfPointSizeFrac  = 3
	sfPointSizeBits  = 11
	stippleInvFrac   = 13
	stippleInvBits   = 16
	stippleRepeatMax = 0x1ff
)

func packSFUnit(t threadState, u urbAlloc, rs pipe.RasterizerState, sfVP uint32) record {
	r := make(record, 8)
	r[0], r[1], r[2], r[3] = t.pack()
	r[4] = u.pack()

	winding := uint32(hwWindingCCW)
	if rs.FrontFace == gputypes.FrontFaceCW {
		winding = hwWindingCW
	}
	r[5] = field(winding, 0, 1) | flag(true, 1) | sfVP&^31

	r[6] = field(8, 9, 4) | field(8, 13, 4) |
		flag(rs.Scissor, 17) |
		field(ufixed(rs.LineWidth, sfLineWidthFrac, sfLineWidthBits), 24, 4) |
		field(cullMode(rs.CullMode), 29, 2) |
		flag(rs.LineSmooth, 31)

	r[7] = field(ufixed(rs.PointSize, sfPointSizeFrac, sfPointSizeBits), 0, 11) |
		flag(!rs.PointSizePerVertex, 11) | flag(true, 31)
	if !rs.ProvokingFirst {
		// Last vertex provokes: index 2 of triangles, 1 of lines.
		r[7] |= field(2, 25, 2) | field(1, 27, 2) | field(2, 29, 2)
	}
	return r
}

// Clip modes.
const (
	clipModeNormal    = 0
	clipModeAcceptAll = 4
)

func packClipUnit(t threadState, u urbAlloc, nrUserClip int, bypass bool, clipVP uint32) record {
	r := make(record, 11)
	r[0], r[1], r[2], r[3] = t.pack()
	r[4] = u.pack()
	mode := uint32(clipModeNormal)
	if bypass {
		mode = clipModeAcceptAll
	}
	r[5] = field(mode, 13, 3) |
		field(uint32(1)<<nrUserClip-1, 16, 8) |
		flag(true, 26) | flag(true, 27) | flag(true, 28)
	r[6] = clipVP &^ 31
	r[7], r[8], r[9], r[10] = fbits(-1), fbits(1), fbits(-1), fbits(1)
	return r
}

func packGSUnit(t threadState, u urbAlloc, enabled bool) record {
	r := make(record, 7)
	if enabled {
		r[0], r[1], r[2], r[3] = t.pack()
	}
	r[4] = u.pack()
	r[6] = flag(enabled, 30)
	return r
}

func packVSUnit(t threadState, u urbAlloc) record {
	r := make(record, 7)
	r[0], r[1], r[2], r[3] = t.pack()
	r[4] = u.pack()
	r[6] = flag(true, 0)
	return r
}

// wmUnit is the WM record input that does not fit threadState.
type wmUnit struct {
	samplers       int
	samplerOffset  uint32
	maxThreads     int
	polygonStipple bool
	lineStipple    bool
	depthOffset    bool
	offsetUnits    float32
	offsetScale    float32
}

func packWMUnit(t threadState, w wmUnit) record {
	r := make(record, 8)
	r[0], r[1], r[2], r[3] = t.pack()
	r[4] = flag(true, 0) |
		field(uint32(pool.DivRoundUp(w.samplers, 4)), 2, 3) |
		w.samplerOffset&^31
	r[5] = flag(true, 0) |
		flag(w.lineStipple, 11) |
		flag(w.depthOffset, 12) |
		flag(w.polygonStipple, 13) |
		flag(true, 18) | flag(true, 19) |
		field(uint32(max(w.maxThreads, 1)-1), 25, 7)
	r[6] = fbits(w.offsetUnits)
	r[7] = fbits(w.offsetScale)
	return r
}

func packDefaultColor(c gputypes.Color) record {
	return record{fbits(float32(c.R)), fbits(float32(c.G)), fbits(float32(c.B)), fbits(float32(c.A))}
}

// packSampler packs one SAMPLER_STATE. LOD values are U4.6, the bias S4.6.
func packSampler(s pipe.Sampler, levels int, defaultColor uint32) record {
	r := make(record, 4)
	maxLod := s.LodMaxClamp
	if top := float32(max(levels, 1) - 1); maxLod > top || maxLod == 0 {
		maxLod = top
	}
	r[0] = field(sfixed(s.LodBias, 11), 3, 11) |
		field(mapFilter(s.MinFilter), 14, 3) |
		field(mapFilter(s.MagFilter), 17, 3) |
		field(mipFilter(s.MipmapFilter), 20, 2) |
		flag(true, 28)
	if s.Compare != gputypes.CompareFunctionUndefined {
		r[0] |= field(compareFunc(s.Compare), 0, 3)
	}
	r[1] = field(wrapMode(s.AddressModeW), 0, 3) |
		field(wrapMode(s.AddressModeV), 3, 3) |
		field(wrapMode(s.AddressModeU), 6, 3) |
		field(ufixed(maxLod, 6, 10), 12, 10) |
		field(ufixed(s.LodMinClamp, 6, 10), 22, 10)
	r[2] = defaultColor &^ 31
	if s.MaxAnisotropy > 1 {
		r[3] = field(uint32(min(s.MaxAnisotropy, 16)/2-1), 19, 3)
	}
	return r
}

// surface is the SURFACE_STATE input.
type surface struct {
	kind       uint32
	format     uint32
	addr       uint32
	width      uint32
	height     uint32
	depth      uint32
	pitch      uint32
	levels     uint32
	tiled      bool
	blend      bool
	writeMask  gputypes.ColorWriteMask
	renderable bool
}

func packSurface(s surface) record {
	r := make(record, 5)
	if s.kind == hwSurfaceNull {
		r[0] = field(hwSurfaceNull, 29, 3) | field(hwFormatB8G8R8A8Unorm, 18, 9)
		return r
	}
	r[0] = field(s.kind, 29, 3) | field(s.format, 18, 9)
	if s.kind == hwSurfaceCube {
		r[0] |= 0x3f
	}
	if s.renderable {
		r[0] |= flag(s.blend, 13) |
			flag(s.writeMask&gputypes.ColorWriteMaskBlue == 0, 14) |
			flag(s.writeMask&gputypes.ColorWriteMaskGreen == 0, 15) |
			flag(s.writeMask&gputypes.ColorWriteMaskRed == 0, 16) |
			flag(s.writeMask&gputypes.ColorWriteMaskAlpha == 0, 17)
	}
	r[1] = s.addr
	r[2] = field(max(s.levels, 1)-1, 2, 4) |
		field(max(s.width, 1)-1, 6, 13) |
		field(max(s.height, 1)-1, 19, 13)
	r[3] = flag(s.tiled, 1) |
		field(max(s.pitch, 1)-1, 3, 18) |
		field(max(s.depth, 1)-1, 21, 11)
	return r
}
