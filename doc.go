// Package i965 is a driver core for Intel GEN4 (965-class) integrated
// graphics.
//
// # Overview
//
// A Context receives pipeline state through setters, translates it into
// the fixed-function unit records, kernels and command packets the GEN4
// 3D pipeline consumes, and records them into a batch buffer submitted
// through a winsys. Only what changed since the previous draw is
// recomputed: every setter raises a dirty category, and validation runs
// the state atoms that depend on the raised categories in a fixed order.
//
// # Quick Start
//
//	ws, err := halws.Open(noop.API{})
//	ctx, err := i965.NewContext(ws)
//	defer ctx.Destroy()
//
//	rt, err := ctx.CreateTexture("rt", i965.TextureDesc{...}, i965.UsageRenderTarget)
//	ctx.SetFramebuffer(i965.Framebuffer{Width: 64, Height: 64, Color: &i965.Surface{Texture: rt}})
//	ctx.SetViewport(i965.ViewportFor(64, 64))
//
//	prog, err := i965.TranslateWGSL(src, i965.StageVertex)
//	vs, err := ctx.CreateVertexShader(prog)
//	ctx.SetVertexShader(vs)
//
//	err = ctx.Draw(i965.PrimTriangles, 0, 3, false)
//	err = ctx.Flush(context.Background(), i965.FlushWait)
//
// # Architecture
//
// The library is organized into:
//   - Public API: Context, state descriptors, shader helpers
//   - Driver: internal/brw (state atoms, command packets, validation)
//   - Compilers: internal/vs and internal/wm for programmable stages,
//     internal/ffprog for the GS, clip and SF kernels, internal/eu for
//     the instruction encoding
//   - Memory: internal/pool (state pools), internal/cache (content cache),
//     internal/layout (miptree layout), internal/winsys (buffers, batches)
//   - Shaders: internal/shader (register IR) and internal/shader/wgsl
//
// # Logging
//
// The driver is silent by default. See SetLogger.
package i965
