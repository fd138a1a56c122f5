package i965

import (
	"context"
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/i965/internal/brw"
	"github.com/gogpu/i965/internal/cache"
	"github.com/gogpu/i965/internal/pipe"
	"github.com/gogpu/i965/internal/pool"
	"github.com/gogpu/i965/internal/shader"
	"github.com/gogpu/i965/internal/shader/wgsl"
	"github.com/gogpu/i965/internal/winsys"
)

// Errors returned by Context methods. Driver errors are wrapped, so test
// them with errors.Is.
var (
	// ErrNilWinsys is returned by NewContext without a winsys.
	ErrNilWinsys = errors.New("i965: nil winsys")

	// ErrStageMismatch is returned when a program is created for the
	// wrong stage.
	ErrStageMismatch = errors.New("i965: program stage mismatch")

	// ErrFatal marks a validation that failed again after the state pools
	// were reset.
	ErrFatal = brw.ErrFatal

	// ErrNoVertexShader is returned when drawing without a vertex shader.
	ErrNoVertexShader = brw.ErrNoVertexShader

	// ErrInvalidState is returned for descriptors the hardware cannot
	// represent.
	ErrInvalidState = brw.ErrInvalidState

	// ErrDestroyed is returned after Destroy.
	ErrDestroyed = brw.ErrDestroyed

	// ErrPoolExhausted is wrapped by errors from a state pool that ran
	// out of space.
	ErrPoolExhausted = pool.ErrPoolExhausted
)

// Context is a GEN4 rendering context. It is not safe for concurrent use;
// drive each Context from a single goroutine.
type Context struct {
	ws  winsys.Winsys
	drv *brw.Context
}

// NewContext creates a context that allocates its buffers and submits its
// batches through ws.
//
// Example:
//
//	ctx, err := i965.NewContext(ws, i965.WithEmitStateAlways(true))
func NewContext(ws Winsys, opts ...ContextOption) (*Context, error) {
	if ws == nil {
		return nil, ErrNilWinsys
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	drv, err := brw.New(ws, o.cfg)
	if err != nil {
		return nil, fmt.Errorf("i965: create context: %w", err)
	}
	Logger().Info("i965: context created",
		"orderCheck", o.cfg.OrderCheck,
		"emitStateAlways", o.cfg.EmitStateAlways)
	return &Context{ws: ws, drv: drv}, nil
}

// Stats is a snapshot of the context counters.
type Stats struct {
	Context     brw.Stats
	Cache       cache.Stats
	GeneralPool pool.Stats
	SurfacePool pool.Stats
}

// String returns a multi-line summary.
func (s Stats) String() string {
	return fmt.Sprintf("%s\n%s\ngeneral %s\nsurface %s", s.Context, s.Cache, s.GeneralPool, s.SurfacePool)
}

// Stats returns the current counters.
func (c *Context) Stats() Stats {
	gs, ss := c.drv.PoolStats()
	return Stats{
		Context:     c.drv.Stats(),
		Cache:       c.drv.CacheStats(),
		GeneralPool: gs,
		SurfacePool: ss,
	}
}

// Commands returns the dwords recorded since the last submission. The
// slice is only valid until the next draw or flush.
func (c *Context) Commands() []uint32 { return c.drv.Batch().Words() }

// CreateTexture lays out desc and allocates its backing buffer.
func (c *Context) CreateTexture(label string, desc TextureDesc, usage Usage) (*Texture, error) {
	return pipe.NewTexture(c.ws, label, desc, usage)
}

// CreateBuffer allocates a buffer and fills it with data.
func (c *Context) CreateBuffer(label string, data []byte, usage Usage) (Buffer, error) {
	buf, err := c.ws.BufferCreate(label, uint64(len(data)), usage)
	if err != nil {
		return nil, err
	}
	if err := c.ws.BufferSubdata(buf, 0, data); err != nil {
		c.ws.BufferDestroy(buf)
		return nil, err
	}
	return buf, nil
}

// DestroyBuffer releases a buffer created with CreateBuffer or backing a
// texture. It must not be bound when the next batch is flushed.
func (c *Context) DestroyBuffer(buf Buffer) { c.ws.BufferDestroy(buf) }

// ParseShader parses the textual form of the register IR.
func ParseShader(text string) (*Program, error) {
	return shader.Parse(text)
}

// TranslateWGSL lowers the first entry point of stage in a WGSL module.
func TranslateWGSL(source string, stage Stage) (*Program, error) {
	return wgsl.Translate(source, stage)
}

// CreateVertexShader compiles prog as a vertex shader.
func (c *Context) CreateVertexShader(prog *Program) (*Shader, error) {
	return c.createShader(prog, StageVertex)
}

// CreateFragmentShader compiles prog as a fragment shader.
func (c *Context) CreateFragmentShader(prog *Program) (*Shader, error) {
	return c.createShader(prog, StageFragment)
}

func (c *Context) createShader(prog *Program, stage Stage) (*Shader, error) {
	if prog == nil {
		return nil, fmt.Errorf("%w: nil program", ErrInvalidState)
	}
	if prog.Stage != stage {
		return nil, fmt.Errorf("%w: %s program, want %s", ErrStageMismatch, prog.Stage, stage)
	}
	return c.drv.CreateShader(prog)
}

// SetBlendState sets the color blend state.
func (c *Context) SetBlendState(b BlendState) { c.drv.SetBlendState(b) }

// SetDepthStencilAlphaState sets the depth, stencil and alpha test state.
func (c *Context) SetDepthStencilAlphaState(d DepthStencilAlphaState) {
	c.drv.SetDepthStencilAlphaState(d)
}

// SetRasterizerState sets the rasterizer state.
func (c *Context) SetRasterizerState(r RasterizerState) { c.drv.SetRasterizerState(r) }

// SetFramebuffer binds the render target and depth buffer.
func (c *Context) SetFramebuffer(fb Framebuffer) error { return c.drv.SetFramebuffer(fb) }

// SetViewport sets the viewport transform.
func (c *Context) SetViewport(vp Viewport) { c.drv.SetViewport(vp) }

// SetScissor sets the scissor rectangle. It applies when the rasterizer
// state enables scissoring.
func (c *Context) SetScissor(s Scissor) { c.drv.SetScissor(s) }

// SetVertexShader binds a vertex shader.
func (c *Context) SetVertexShader(s *Shader) error { return c.drv.SetVertexShader(s) }

// SetFragmentShader binds a fragment shader. Nil selects a built-in
// shader that passes the first color input through.
func (c *Context) SetFragmentShader(s *Shader) error { return c.drv.SetFragmentShader(s) }

// SetSamplers binds the fragment samplers.
func (c *Context) SetSamplers(s []Sampler) error { return c.drv.SetSamplers(s) }

// SetTextures binds the fragment textures.
func (c *Context) SetTextures(t []*Texture) error { return c.drv.SetTextures(t) }

// SetVertexBuffers binds the vertex streams.
func (c *Context) SetVertexBuffers(vb []VertexBuffer) error { return c.drv.SetVertexBuffers(vb) }

// SetVertexElements binds the vertex fetch layout.
func (c *Context) SetVertexElements(ve []VertexElement) error {
	return c.drv.SetVertexElements(ve)
}

// SetIndexBuffer binds the index buffer. Nil unbinds it.
func (c *Context) SetIndexBuffer(ib *IndexBuffer) { c.drv.SetIndexBuffer(ib) }

// SetConstantBuffer sets the constants of a stage, four floats per
// register.
func (c *Context) SetConstantBuffer(stage Stage, data []float32) error {
	return c.drv.SetConstantBuffer(stage, data)
}

// SetClipPlanes sets the user clip planes.
func (c *Context) SetClipPlanes(planes []ClipPlane) error { return c.drv.SetClipPlanes(planes) }

// SetPolygonStipple sets the polygon stipple pattern.
func (c *Context) SetPolygonStipple(p PolygonStipple) { c.drv.SetPolygonStipple(p) }

// SetBlendColor sets the constant blend color.
func (c *Context) SetBlendColor(col gputypes.Color) { c.drv.SetBlendColor(col) }

// Draw records count vertices of prim starting at start. Indexed draws
// read indices from the bound index buffer.
func (c *Context) Draw(prim Primitive, start, count uint32, indexed bool) error {
	return c.drv.Draw(prim, start, count, indexed)
}

// Clear fills the bound color and depth surfaces. It waits for pending
// rendering first.
func (c *Context) Clear(ctx context.Context, flags ClearFlags, color gputypes.Color, depth float32, stencil uint8) error {
	return c.drv.Clear(ctx, flags, color, depth, stencil)
}

// Flush submits the recorded commands. With FlushWait it blocks until the
// GPU has finished them or ctx is done.
func (c *Context) Flush(ctx context.Context, flags FlushFlags) error {
	return c.drv.Flush(ctx, flags)
}

// Destroy releases the context's batch and state pools. Textures and
// buffers created through the context stay with the winsys.
func (c *Context) Destroy() { c.drv.Destroy() }
