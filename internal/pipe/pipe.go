// Package pipe defines the API-level pipeline state bound on a driver
// context. The descriptors are plain values built on gputypes enums; the
// driver turns them into hardware state during validation.
package pipe

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/i965/internal/layout"
	"github.com/gogpu/i965/internal/winsys"
)

// Hardware limits exposed through the descriptors.
const (
	MaxSamplers       = 16
	MaxVertexBuffers  = 16
	MaxVertexElements = 16
	MaxClipPlanes     = 6
	MaxConstants      = 256
)

// Stage selects a programmable stage.
type Stage uint8

// Programmable stages.
const (
	StageVertex Stage = iota
	StageFragment
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	default:
		return "unknown"
	}
}

// BlendState is the color blend and write-mask state of the single render
// target.
type BlendState struct {
	Enabled   bool
	Color     gputypes.BlendComponent
	Alpha     gputypes.BlendComponent
	WriteMask gputypes.ColorWriteMask
	Dither    bool
}

// DefaultBlendState returns blending disabled with all channels written.
func DefaultBlendState() BlendState {
	rep := gputypes.BlendStateReplace()
	return BlendState{Color: rep.Color, Alpha: rep.Alpha, WriteMask: gputypes.ColorWriteMaskAll}
}

// StencilFace is the stencil test of one face.
type StencilFace struct {
	Enabled   bool
	Face      gputypes.StencilFaceState
	Ref       uint8
	ValueMask uint8
	WriteMask uint8
}

// DepthStencilAlphaState holds the per-fragment tests.
type DepthStencilAlphaState struct {
	DepthEnabled bool
	DepthWrite   bool
	DepthCompare gputypes.CompareFunction

	// Stencil[1] is used for back faces when enabled.
	Stencil [2]StencilFace

	AlphaEnabled bool
	AlphaCompare gputypes.CompareFunction
	AlphaRef     float32
}

// DefaultDepthStencilAlphaState returns all tests disabled.
func DefaultDepthStencilAlphaState() DepthStencilAlphaState {
	face := StencilFace{Face: gputypes.DefaultStencilFaceState(), ValueMask: 0xff, WriteMask: 0xff}
	return DepthStencilAlphaState{
		DepthCompare: gputypes.CompareFunctionLess,
		Stencil:      [2]StencilFace{face, face},
		AlphaCompare: gputypes.CompareFunctionAlways,
	}
}

// RasterizerState controls primitive setup.
type RasterizerState struct {
	FrontFace gputypes.FrontFace
	CullMode  gputypes.CullMode

	// FlatShade uses the provoking vertex color for the whole primitive.
	FlatShade      bool
	ProvokingFirst bool
	LightTwoSide   bool

	Scissor bool

	LineWidth  float32
	LineSmooth bool

	LineStipple        bool
	LineStippleFactor  uint32
	LineStipplePattern uint16

	PointSize          float32
	PointSizePerVertex bool

	PolygonStipple bool

	OffsetTriangles bool
	OffsetUnits     float32
	OffsetScale     float32

	// BypassClip skips the clipper when the caller guarantees geometry is
	// inside the viewport.
	BypassClip bool
}

// DefaultRasterizerState returns back-face culling off and unit widths.
func DefaultRasterizerState() RasterizerState {
	return RasterizerState{
		FrontFace:         gputypes.FrontFaceCCW,
		CullMode:          gputypes.CullModeNone,
		LineWidth:         1,
		PointSize:         1,
		LineStippleFactor: 1,
	}
}

// Texture is a laid-out image in a winsys buffer.
type Texture struct {
	Buffer winsys.Buffer
	Tree   *layout.Miptree
}

// NewTexture lays out desc and creates its backing buffer.
func NewTexture(ws winsys.Winsys, label string, desc layout.Desc, usage winsys.Usage) (*Texture, error) {
	mt, err := layout.Compute(desc)
	if err != nil {
		return nil, err
	}
	buf, err := ws.BufferCreate(label, uint64(mt.Size()), usage)
	if err != nil {
		return nil, err
	}
	return &Texture{Buffer: buf, Tree: mt}, nil
}

// Format returns the texture format.
func (t *Texture) Format() gputypes.TextureFormat { return t.Tree.Desc.Format }

// Surface is one level and layer of a texture used as a render target or
// depth buffer.
type Surface struct {
	Texture *Texture
	Level   int
	Layer   int
}

// Width returns the surface width in texels.
func (s *Surface) Width() uint32 { return s.Texture.Tree.Level(s.Level).Width }

// Height returns the surface height in texels.
func (s *Surface) Height() uint32 { return s.Texture.Tree.Level(s.Level).Height }

// Offset returns the byte offset of the surface in its buffer.
func (s *Surface) Offset() uint32 { return s.Texture.Tree.ImageOffset(s.Level, s.Layer) }

// Framebuffer binds the render target and depth buffer.
type Framebuffer struct {
	Width  uint32
	Height uint32
	Color  *Surface
	Depth  *Surface
}

// Viewport maps NDC to window coordinates: win = ndc*Scale + Translate.
type Viewport struct {
	Scale     [4]float32
	Translate [4]float32
}

// ViewportFor returns the viewport covering a w x h window with depth
// range [0, 1].
func ViewportFor(w, h uint32) Viewport {
	return Viewport{
		Scale:     [4]float32{float32(w) / 2, -float32(h) / 2, 0.5, 1},
		Translate: [4]float32{float32(w) / 2, float32(h) / 2, 0.5, 0},
	}
}

// Scissor is an inclusive-exclusive window rectangle.
type Scissor struct {
	MinX, MinY uint32
	MaxX, MaxY uint32
}

// Sampler is the filtering state of one texture unit.
type Sampler struct {
	gputypes.SamplerDescriptor

	LodBias     float32
	BorderColor gputypes.Color
}

// DefaultSampler returns nearest filtering with edge clamping.
func DefaultSampler() Sampler {
	return Sampler{SamplerDescriptor: gputypes.DefaultSamplerDescriptor()}
}

// VertexBuffer is one bound vertex stream.
type VertexBuffer struct {
	Buffer   winsys.Buffer
	Stride   uint32
	Offset   uint32
	MaxIndex uint32
}

// VertexElement fetches one attribute from a vertex buffer.
type VertexElement struct {
	BufferIndex uint32
	Offset      uint32
	Format      gputypes.VertexFormat
}

// IndexBuffer is the bound element buffer.
type IndexBuffer struct {
	Buffer winsys.Buffer
	Format gputypes.IndexFormat
	Offset uint32
}

// IndexSize returns the size of one index in bytes.
func (ib IndexBuffer) IndexSize() uint32 {
	if ib.Format == gputypes.IndexFormatUint32 {
		return 4
	}
	return 2
}

// PolygonStipple is a 32x32 bit pattern, one word per row.
type PolygonStipple [32]uint32

// ClipPlane is a user clip plane in clip space: dot(plane, pos) >= 0 is
// inside.
type ClipPlane [4]float32

// FlushFlags select caches to flush before submission.
type FlushFlags uint8

// Flush flags.
const (
	FlushRenderCache FlushFlags = 1 << iota
	FlushTextureCache
	FlushWait
)

// ClearFlags select the buffers Clear writes.
type ClearFlags uint8

// Clear flags.
const (
	ClearColor ClearFlags = 1 << iota
	ClearDepth
	ClearStencil
)
