package i965

import (
	"github.com/gogpu/i965/internal/brw"
	"github.com/gogpu/i965/internal/layout"
	"github.com/gogpu/i965/internal/pipe"
	"github.com/gogpu/i965/internal/shader"
	"github.com/gogpu/i965/internal/winsys"
)

// Pipeline state descriptors.
type (
	BlendState             = pipe.BlendState
	StencilFace            = pipe.StencilFace
	DepthStencilAlphaState = pipe.DepthStencilAlphaState
	RasterizerState        = pipe.RasterizerState
	Texture                = pipe.Texture
	TextureDesc            = layout.Desc
	Surface                = pipe.Surface
	Framebuffer            = pipe.Framebuffer
	Viewport               = pipe.Viewport
	Scissor                = pipe.Scissor
	Sampler                = pipe.Sampler
	VertexBuffer           = pipe.VertexBuffer
	VertexElement          = pipe.VertexElement
	IndexBuffer            = pipe.IndexBuffer
	PolygonStipple         = pipe.PolygonStipple
	ClipPlane              = pipe.ClipPlane
	Primitive              = pipe.Primitive
	Stage                  = pipe.Stage
	FlushFlags             = pipe.FlushFlags
	ClearFlags             = pipe.ClearFlags
)

// Shader programs.
type (
	// Program is a shader in the register IR accepted by the compilers.
	Program = shader.Program

	// Shader is a program created on a Context.
	Shader = brw.Shader
)

// Winsys types.
type (
	Winsys = winsys.Winsys
	Buffer = winsys.Buffer
	Usage  = winsys.Usage
)

// Stages.
const (
	StageVertex   = pipe.StageVertex
	StageFragment = pipe.StageFragment
)

// Primitive kinds.
const (
	PrimPoints        = pipe.PrimPoints
	PrimLines         = pipe.PrimLines
	PrimLineLoop      = pipe.PrimLineLoop
	PrimLineStrip     = pipe.PrimLineStrip
	PrimTriangles     = pipe.PrimTriangles
	PrimTriangleStrip = pipe.PrimTriangleStrip
	PrimTriangleFan   = pipe.PrimTriangleFan
	PrimQuads         = pipe.PrimQuads
	PrimQuadStrip     = pipe.PrimQuadStrip
	PrimPolygon       = pipe.PrimPolygon
)

// Flush and clear flags.
const (
	FlushRenderCache  = pipe.FlushRenderCache
	FlushTextureCache = pipe.FlushTextureCache
	FlushWait         = pipe.FlushWait

	ClearColor   = pipe.ClearColor
	ClearDepth   = pipe.ClearDepth
	ClearStencil = pipe.ClearStencil
)

// Buffer usages.
const (
	UsageVertex       = winsys.UsageVertex
	UsageIndex        = winsys.UsageIndex
	UsageTexture      = winsys.UsageTexture
	UsageRenderTarget = winsys.UsageRenderTarget
	UsageDepth        = winsys.UsageDepth
)

// Descriptor defaults.
var (
	DefaultBlendState             = pipe.DefaultBlendState
	DefaultDepthStencilAlphaState = pipe.DefaultDepthStencilAlphaState
	DefaultRasterizerState        = pipe.DefaultRasterizerState
	DefaultSampler                = pipe.DefaultSampler
	ViewportFor                   = pipe.ViewportFor
	ParsePrimitive                = pipe.ParsePrimitive
)
