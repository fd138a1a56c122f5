// Command i965dump records a draw on a GEN4 context backed by the noop HAL
// device and prints the decoded command batch.
package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"os"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/i965"
	"github.com/gogpu/i965/internal/brw"
	"github.com/gogpu/i965/internal/shader/wgsl"
	"github.com/gogpu/i965/internal/winsys/halws"
)

const defaultWGSL = `
struct Uniforms {
    mvp: mat4x4<f32>,
}

@group(0) @binding(0) var<uniform> u: Uniforms;

struct VSOut {
    @builtin(position) pos: vec4<f32>,
    @location(0) color: vec4<f32>,
}

@vertex
fn vs_main(@location(0) position: vec4<f32>, @location(1) color: vec4<f32>) -> VSOut {
    var out: VSOut;
    out.pos = u.mvp * position;
    out.color = color;
    return out;
}
`

const size = 64

func main() {
	var (
		primName = flag.String("prim", "triangles", "primitive kind")
		count    = flag.Uint("count", 3, "vertex count")
		wgslPath = flag.String("wgsl", "", "WGSL file with a vertex and an optional fragment entry point")
		verbose  = flag.Bool("v", false, "log driver activity to stderr")
	)
	flag.Parse()

	if *verbose {
		i965.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	prim, ok := i965.ParsePrimitive(*primName)
	if !ok {
		log.Fatalf("unknown primitive %q", *primName)
	}
	src := defaultWGSL
	if *wgslPath != "" {
		b, err := os.ReadFile(*wgslPath)
		if err != nil {
			log.Fatal(err)
		}
		src = string(b)
	}

	if err := run(prim, uint32(*count), src); err != nil {
		log.Fatal(err)
	}
}

func run(prim i965.Primitive, count uint32, src string) error {
	ws, err := halws.Open(noop.API{})
	if err != nil {
		return err
	}
	defer ws.Destroy()

	ctx, err := i965.NewContext(ws, i965.WithOrderCheck(true))
	if err != nil {
		return err
	}
	defer ctx.Destroy()

	if err := setupTarget(ctx); err != nil {
		return err
	}
	if err := setupVertices(ctx, max(count, 1)); err != nil {
		return err
	}
	if err := setupShaders(ctx, src); err != nil {
		return err
	}

	if err := ctx.Draw(prim, 0, count, false); err != nil {
		return fmt.Errorf("draw: %w", err)
	}
	pkts, err := brw.DecodeBatch(ctx.Commands())
	if err != nil {
		return err
	}
	for _, p := range pkts {
		fmt.Println(p)
	}
	if err := ctx.Flush(context.Background(), i965.FlushRenderCache|i965.FlushWait); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	fmt.Println(ctx.Stats())
	fmt.Println(ws.Stats())
	return nil
}

func setupTarget(ctx *i965.Context) error {
	rt, err := ctx.CreateTexture("rt", i965.TextureDesc{
		Target: gputypes.TextureViewDimension2D,
		Format: gputypes.TextureFormatBGRA8Unorm,
		Width:  size,
		Height: size,
		Depth:  1,
		Levels: 1,
	}, i965.UsageRenderTarget)
	if err != nil {
		return err
	}
	if err := ctx.SetFramebuffer(i965.Framebuffer{
		Width:  size,
		Height: size,
		Color:  &i965.Surface{Texture: rt},
	}); err != nil {
		return err
	}
	ctx.SetViewport(i965.ViewportFor(size, size))
	return nil
}

// setupVertices places n vertices on a circle, each with its own color.
func setupVertices(ctx *i965.Context, n uint32) error {
	data := make([]byte, 0, n*32)
	for i := range n {
		a := 2 * math.Pi * float64(i) / float64(n)
		for _, v := range []float64{
			0.8 * math.Cos(a), 0.8 * math.Sin(a), 0, 1,
			float64(i%3) / 2, float64((i+1)%3) / 2, float64((i+2)%3) / 2, 1,
		} {
			data = binary.LittleEndian.AppendUint32(data, math.Float32bits(float32(v)))
		}
	}
	vb, err := ctx.CreateBuffer("vertices", data, i965.UsageVertex)
	if err != nil {
		return err
	}
	if err := ctx.SetVertexBuffers([]i965.VertexBuffer{{Buffer: vb, Stride: 32, MaxIndex: n - 1}}); err != nil {
		return err
	}
	return ctx.SetVertexElements([]i965.VertexElement{
		{Offset: 0, Format: gputypes.VertexFormatFloat32x4},
		{Offset: 16, Format: gputypes.VertexFormatFloat32x4},
	})
}

func setupShaders(ctx *i965.Context, src string) error {
	prog, err := i965.TranslateWGSL(src, i965.StageVertex)
	if err != nil {
		return err
	}
	vs, err := ctx.CreateVertexShader(prog)
	if err != nil {
		return err
	}
	if err := ctx.SetVertexShader(vs); err != nil {
		return err
	}

	prog, err = i965.TranslateWGSL(src, i965.StageFragment)
	switch {
	case errors.Is(err, wgsl.ErrNoEntryPoint):
		// The built-in fragment shader passes the color through.
	case err != nil:
		return err
	default:
		fs, err := ctx.CreateFragmentShader(prog)
		if err != nil {
			return err
		}
		if err := ctx.SetFragmentShader(fs); err != nil {
			return err
		}
	}

	identity := []float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
	return ctx.SetConstantBuffer(i965.StageVertex, identity)
}
