// Package brw is the GEN4 driver context: it holds the bound pipeline
// state, turns it into hardware state through a table of dependency
// ordered atoms, and records command packets into a batch.
//
// Hardware state records and kernels live in two pools. The general state
// pool holds unit records, viewports, samplers, kernels and the constant
// buffer; the surface state pool holds surface records and the binding
// table. Both are indexed by one content cache, so a pipeline that
// toggles between a few states uploads each of them once per pool epoch.
//
// # Validation
//
// Setters only record state and raise a dirty category. Validate walks
// the atom table; each atom whose mask intersects the accumulated flags
// recomputes its piece of hardware state and may raise further flags for
// the atoms after it. A cache lookup that resolves to a different offset
// raises that cache id's flag, which is how the command-packet atoms learn
// that a unit record moved.
//
// After every flushed batch the hardware has lost its non-pipelined
// state, so the context raises DirtyContext and the next validation emits
// every packet again.
package brw

import (
	"fmt"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/i965/internal/cache"
	"github.com/gogpu/i965/internal/ffprog"
	"github.com/gogpu/i965/internal/pipe"
	"github.com/gogpu/i965/internal/pool"
	"github.com/gogpu/i965/internal/shader"
	"github.com/gogpu/i965/internal/state"
	"github.com/gogpu/i965/internal/vs"
	"github.com/gogpu/i965/internal/winsys"
	"github.com/gogpu/i965/internal/wm"
)

// Context errors.
var (
	// ErrFatal marks a validation that failed again after the pools were
	// reset. The context cannot make progress with the current state.
	ErrFatal = errors.New("brw: fatal validation failure")

	// ErrNoVertexShader is returned when drawing without a vertex shader.
	ErrNoVertexShader = errors.New("brw: no vertex shader bound")

	// ErrURBLayout is returned when the URB entries cannot be partitioned.
	ErrURBLayout = errors.New("brw: URB layout does not fit")

	// ErrInvalidState is returned by setters for descriptors the hardware
	// cannot represent.
	ErrInvalidState = errors.New("brw: invalid state")

	// ErrDestroyed is returned after Destroy.
	ErrDestroyed = errors.New("brw: context destroyed")
)

// Config holds the context parameters. Zero values select defaults.
type Config struct {
	// OrderCheck asserts after every atom that it raised no flag an
	// earlier atom depends on.
	OrderCheck bool

	GeneralPoolSize uint32
	SurfacePoolSize uint32

	// BatchDwords is the batch capacity.
	BatchDwords int

	// EmitStateAlways re-emits every command packet on each validation.
	EmitStateAlways bool
}

// Stats contains context counters.
type Stats struct {
	Validations  uint64
	Draws        uint64
	Flushes      uint64
	Scenes       uint64
	Retries      uint64
	CurbeUploads uint64
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("Context[%d validations, %d draws, %d flushes, %d scenes, %d retries, %d curbe uploads]",
		s.Validations, s.Draws, s.Flushes, s.Scenes, s.Retries, s.CurbeUploads)
}

// Shader is a shader program created on a context.
type Shader struct {
	Program *shader.Program

	id   uint32
	info *shader.Info
}

// Stage returns the shader stage.
func (s *Shader) Stage() pipe.Stage { return s.Program.Stage }

// Context is a single-threaded GEN4 rendering context.
type Context struct {
	ws     winsys.Winsys
	cfg    Config
	batch  *winsys.Batch
	gsPool *pool.Pool
	ssPool *pool.Pool
	cache  *cache.Cache
	engine *state.Engine[*Context]
	dirty  state.Flags

	// Bound API state.
	blend      pipe.BlendState
	dsa        pipe.DepthStencilAlphaState
	rast       pipe.RasterizerState
	fb         pipe.Framebuffer
	viewport   pipe.Viewport
	scissor    pipe.Scissor
	vs, fs     *Shader
	samplers   []pipe.Sampler
	textures   []*pipe.Texture
	vbufs      []pipe.VertexBuffer
	velems     []pipe.VertexElement
	ib         *pipe.IndexBuffer
	constants  [2][]float32
	planes     []pipe.ClipPlane
	stipple    pipe.PolygonStipple
	blendColor gputypes.Color
	prim       pipe.Primitive
	reduced    pipe.Primitive

	// Derived state.
	vsProg   *vs.Program
	wmProg   *wm.Program
	sfProg   *ffprog.Kernel
	clipProg *ffprog.Kernel
	gsProg   *ffprog.Kernel
	kernels  [numKernels]uint32

	urb   URBLayout
	curbe curbe

	ccVP, sfVP, clipVP uint32
	units              [numUnits]uint32
	samplerOffset      uint32
	bindingTable       uint32

	fence      winsys.Fence
	nextShader uint32
	stats      Stats
	destroyed  bool
}

// Kernel slots.
const (
	kernelVS = iota
	kernelGS
	kernelClip
	kernelSF
	kernelWM
	numKernels
)

// Unit record slots, in PIPELINED_STATE_POINTERS order.
const (
	unitVS = iota
	unitGS
	unitClip
	unitSF
	unitWM
	unitCC
	numUnits
)

// New creates a context over ws.
func New(ws winsys.Winsys, cfg Config) (*Context, error) {
	if cfg.GeneralPoolSize == 0 {
		cfg.GeneralPoolSize = pool.DefaultGeneralSize
	}
	if cfg.SurfacePoolSize == 0 {
		cfg.SurfacePoolSize = pool.DefaultSurfaceSize
	}

	c := &Context{
		ws:       ws,
		cfg:      cfg,
		blend:    pipe.DefaultBlendState(),
		dsa:      pipe.DefaultDepthStencilAlphaState(),
		rast:     pipe.DefaultRasterizerState(),
		prim:     pipe.PrimTriangles,
		reduced:  pipe.PrimTriangles,
		viewport: pipe.ViewportFor(1, 1),
	}

	var err error
	if c.gsPool, err = pool.New(ws, "general state", cfg.GeneralPoolSize, winsys.UsageState); err != nil {
		return nil, err
	}
	if c.ssPool, err = pool.New(ws, "surface state", cfg.SurfacePoolSize, winsys.UsageSurfaceState); err != nil {
		c.gsPool.Destroy()
		return nil, err
	}
	if c.batch, err = winsys.NewBatch(ws, cfg.BatchDwords, 0); err != nil {
		c.gsPool.Destroy()
		c.ssPool.Destroy()
		return nil, err
	}

	c.cache = cache.New(func(id cache.ID) { c.dirty.Cache |= 1 << id })
	for id := range numCacheIDs {
		p, align := c.gsPool, uint32(unitAlign)
		switch id {
		case CacheVSProg, CacheGSProg, CacheClipProg, CacheSFProg, CacheWMProg:
			align = kernelAlign
		case CacheSurface, CacheSurfaceBind:
			p = c.ssPool
		}
		c.cache.Register(id, cacheNames[id], p, align)
	}

	c.engine, err = state.NewEngine(atoms(), state.WithOrderCheck(cfg.OrderCheck), state.WithLogger(slogger()))
	if err != nil {
		c.Destroy()
		return nil, err
	}

	c.dirty = state.All
	c.dirty.Pipeline &^= 1 << DirtyScene
	slogger().Info("brw: context created",
		"general_pool", cfg.GeneralPoolSize, "surface_pool", cfg.SurfacePoolSize, "atoms", len(c.engine.Names()))
	return c, nil
}

func (c *Context) raise(ds ...Dirty) {
	c.dirty.Or(dirty(ds...))
}

// Dirty returns the accumulated dirty flags.
func (c *Context) Dirty() state.Flags { return c.dirty }

// Stats returns the context counters.
func (c *Context) Stats() Stats { return c.stats }

// CacheStats returns the state cache counters.
func (c *Context) CacheStats() cache.Stats { return c.cache.Stats() }

// PoolStats returns the general and surface state pool usage.
func (c *Context) PoolStats() (general, surface pool.Stats) {
	return c.gsPool.Stats(), c.ssPool.Stats()
}

// Batch returns the command batch.
func (c *Context) Batch() *winsys.Batch { return c.batch }

// AtomNames returns the atom table in run order.
func (c *Context) AtomNames() []string { return c.engine.Names() }

// AtomRuns returns how many times the named atom has run.
func (c *Context) AtomRuns(name string) uint64 { return c.engine.Runs(name) }

// ResetAtomRuns zeroes the atom run counters.
func (c *Context) ResetAtomRuns() { c.engine.ResetRuns() }

// URB returns the current URB partition.
func (c *Context) URB() URBLayout { return c.urb }

// Curbe returns the current constant buffer layout.
func (c *Context) Curbe() CurbeLayout { return c.curbe.layout }

// SetBlendState binds the blend state.
func (c *Context) SetBlendState(b pipe.BlendState) {
	c.blend = b
	c.raise(DirtyBlend)
}

// SetDepthStencilAlphaState binds the depth, stencil and alpha tests.
func (c *Context) SetDepthStencilAlphaState(d pipe.DepthStencilAlphaState) {
	c.dsa = d
	c.raise(DirtyDepthStencil)
}

// SetRasterizerState binds the rasterizer state.
func (c *Context) SetRasterizerState(r pipe.RasterizerState) {
	c.rast = r
	c.raise(DirtyRasterizer)
}

// SetFramebuffer binds the render target and depth buffer.
func (c *Context) SetFramebuffer(fb pipe.Framebuffer) error {
	if fb.Color != nil {
		if _, ok := surfaceFormat(fb.Color.Texture.Format()); !ok {
			return fmt.Errorf("%w: color format %v", ErrInvalidState, fb.Color.Texture.Format())
		}
	}
	if fb.Depth != nil {
		if _, ok := depthFormat(fb.Depth.Texture.Format()); !ok {
			return fmt.Errorf("%w: depth format %v", ErrInvalidState, fb.Depth.Texture.Format())
		}
	}
	c.fb = fb
	c.raise(DirtyFramebuffer)
	return nil
}

// SetViewport binds the viewport transform.
func (c *Context) SetViewport(vp pipe.Viewport) {
	c.viewport = vp
	c.raise(DirtyViewport)
}

// SetScissor binds the scissor rectangle.
func (c *Context) SetScissor(s pipe.Scissor) {
	c.scissor = s
	c.raise(DirtyScissor)
}

// CreateShader checks prog and compiles it once with a default key, so
// that programs the compilers reject fail here rather than at draw time.
func (c *Context) CreateShader(prog *shader.Program) (*Shader, error) {
	if err := prog.Validate(); err != nil {
		return nil, err
	}
	c.nextShader++
	s := &Shader{Program: prog, id: c.nextShader, info: shader.Scan(prog)}
	var err error
	switch prog.Stage {
	case pipe.StageVertex:
		_, err = vs.Compile(prog, vs.Key{ProgramID: s.id})
	case pipe.StageFragment:
		_, err = wm.Compile(prog, wm.Key{ProgramID: s.id})
	default:
		err = fmt.Errorf("%w: stage %s", ErrInvalidState, prog.Stage)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// SetVertexShader binds the vertex shader.
func (c *Context) SetVertexShader(s *Shader) error {
	if s != nil && s.Stage() != pipe.StageVertex {
		return fmt.Errorf("%w: %s shader bound as vertex shader", ErrInvalidState, s.Stage())
	}
	c.vs = s
	c.raise(DirtyVertexProgram)
	return nil
}

// SetFragmentShader binds the fragment shader. Nil selects the built-in
// kernel that writes the first color input.
func (c *Context) SetFragmentShader(s *Shader) error {
	if s != nil && s.Stage() != pipe.StageFragment {
		return fmt.Errorf("%w: %s shader bound as fragment shader", ErrInvalidState, s.Stage())
	}
	c.fs = s
	c.raise(DirtyFragmentProgram)
	return nil
}

// SetSamplers binds the fragment samplers.
func (c *Context) SetSamplers(s []pipe.Sampler) error {
	if len(s) > pipe.MaxSamplers {
		return fmt.Errorf("%w: %d samplers", ErrInvalidState, len(s))
	}
	c.samplers = slices.Clone(s)
	c.raise(DirtySamplers)
	return nil
}

// SetTextures binds the fragment textures; texture i is sampled through
// sampler i.
func (c *Context) SetTextures(t []*pipe.Texture) error {
	if len(t) > pipe.MaxSamplers {
		return fmt.Errorf("%w: %d textures", ErrInvalidState, len(t))
	}
	for i, tex := range t {
		if tex == nil {
			continue
		}
		if _, ok := surfaceFormat(tex.Format()); !ok {
			return fmt.Errorf("%w: texture %d format %v", ErrInvalidState, i, tex.Format())
		}
	}
	c.textures = slices.Clone(t)
	c.raise(DirtyTextures)
	return nil
}

// SetVertexBuffers binds the vertex streams.
func (c *Context) SetVertexBuffers(vb []pipe.VertexBuffer) error {
	if len(vb) > pipe.MaxVertexBuffers {
		return fmt.Errorf("%w: %d vertex buffers", ErrInvalidState, len(vb))
	}
	c.vbufs = slices.Clone(vb)
	c.raise(DirtyVertexBuffers)
	return nil
}

// SetVertexElements binds the vertex fetch layout; element i feeds IN[i].
func (c *Context) SetVertexElements(ve []pipe.VertexElement) error {
	if len(ve) > pipe.MaxVertexElements {
		return fmt.Errorf("%w: %d vertex elements", ErrInvalidState, len(ve))
	}
	for i, e := range ve {
		if _, _, _, ok := vertexFormat(e.Format); !ok {
			return fmt.Errorf("%w: vertex element %d format %v", ErrInvalidState, i, e.Format)
		}
	}
	c.velems = slices.Clone(ve)
	c.raise(DirtyVertexElements)
	return nil
}

// SetIndexBuffer binds the element buffer. Nil unbinds it.
func (c *Context) SetIndexBuffer(ib *pipe.IndexBuffer) {
	if ib != nil {
		v := *ib
		ib = &v
	}
	c.ib = ib
	c.raise(DirtyIndexBuffer)
}

// SetConstantBuffer sets the constants of a stage, four floats per
// CONST register.
func (c *Context) SetConstantBuffer(stage pipe.Stage, data []float32) error {
	if stage > pipe.StageFragment {
		return fmt.Errorf("%w: stage %s", ErrInvalidState, stage)
	}
	if len(data) > pipe.MaxConstants*4 {
		return fmt.Errorf("%w: %d constants", ErrInvalidState, len(data)/4)
	}
	c.constants[stage] = slices.Clone(data)
	c.raise(DirtyConstants)
	return nil
}

// SetClipPlanes sets the user clip planes.
func (c *Context) SetClipPlanes(planes []pipe.ClipPlane) error {
	if len(planes) > pipe.MaxClipPlanes {
		return fmt.Errorf("%w: %d clip planes", ErrInvalidState, len(planes))
	}
	c.planes = slices.Clone(planes)
	c.raise(DirtyClipPlanes)
	return nil
}

// SetPolygonStipple sets the polygon stipple pattern.
func (c *Context) SetPolygonStipple(p pipe.PolygonStipple) {
	c.stipple = p
	c.raise(DirtyPolygonStipple)
}

// SetBlendColor sets the constant blend color.
func (c *Context) SetBlendColor(col gputypes.Color) {
	c.blendColor = col
	c.raise(DirtyBlendColor)
}

// Destroy releases the batch and both pools.
func (c *Context) Destroy() {
	if c.destroyed {
		return
	}
	c.destroyed = true
	if c.batch != nil {
		c.batch.Destroy()
	}
	if c.gsPool != nil {
		c.gsPool.Destroy()
	}
	if c.ssPool != nil {
		c.ssPool.Destroy()
	}
}
