package i965

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/i965/internal/brw"
	"github.com/gogpu/i965/internal/winsys/wstest"
)

const passVS = `VERT
DCL IN[0], POSITION
DCL IN[1], COLOR
DCL OUT[0], POSITION
DCL OUT[1], COLOR
MOV OUT[0], IN[0]
MOV OUT[1], IN[1]
END
`

const transformWGSL = `
struct Uniforms {
    mvp: mat4x4<f32>,
    tint: vec4<f32>,
}

@group(0) @binding(0) var<uniform> u: Uniforms;

struct VSOut {
    @builtin(position) pos: vec4<f32>,
    @location(0) color: vec4<f32>,
}

@vertex
fn vs_main(@location(0) position: vec3<f32>, @location(1) color: vec4<f32>) -> VSOut {
    var out: VSOut;
    out.pos = u.mvp * vec4<f32>(position, 1.0);
    out.color = color * u.tint;
    return out;
}

@fragment
fn fs_main(@location(0) color: vec4<f32>) -> @location(0) vec4<f32> {
    return clamp(color, vec4<f32>(0.0), vec4<f32>(1.0));
}
`

type testContext struct {
	ctx *Context
	ws  *wstest.Winsys
	rt  *Texture
}

func newTestContext(t *testing.T, opts ...ContextOption) *testContext {
	t.Helper()
	ws := wstest.New()
	ctx, err := NewContext(ws, append([]ContextOption{WithOrderCheck(true)}, opts...)...)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	t.Cleanup(ctx.Destroy)

	rt, err := ctx.CreateTexture("rt", TextureDesc{
		Target: gputypes.TextureViewDimension2D,
		Format: gputypes.TextureFormatRGBA8Unorm,
		Width:  32,
		Height: 32,
		Depth:  1,
		Levels: 1,
	}, UsageRenderTarget)
	if err != nil {
		t.Fatalf("CreateTexture: %v", err)
	}
	if err := ctx.SetFramebuffer(Framebuffer{Width: 32, Height: 32, Color: &Surface{Texture: rt}}); err != nil {
		t.Fatalf("SetFramebuffer: %v", err)
	}
	ctx.SetViewport(ViewportFor(32, 32))

	vb, err := ctx.CreateBuffer("vb", make([]byte, 3*32), UsageVertex)
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	if err := ctx.SetVertexBuffers([]VertexBuffer{{Buffer: vb, Stride: 32, MaxIndex: 2}}); err != nil {
		t.Fatalf("SetVertexBuffers: %v", err)
	}
	if err := ctx.SetVertexElements([]VertexElement{
		{Offset: 0, Format: gputypes.VertexFormatFloat32x4},
		{Offset: 16, Format: gputypes.VertexFormatFloat32x4},
	}); err != nil {
		t.Fatalf("SetVertexElements: %v", err)
	}

	prog, err := ParseShader(passVS)
	if err != nil {
		t.Fatalf("ParseShader: %v", err)
	}
	vs, err := ctx.CreateVertexShader(prog)
	if err != nil {
		t.Fatalf("CreateVertexShader: %v", err)
	}
	if err := ctx.SetVertexShader(vs); err != nil {
		t.Fatalf("SetVertexShader: %v", err)
	}
	return &testContext{ctx: ctx, ws: ws, rt: rt}
}

func (tc *testContext) draw(t *testing.T, prim Primitive) {
	t.Helper()
	if err := tc.ctx.Draw(prim, 0, 3, false); err != nil {
		t.Fatalf("Draw(%s): %v", prim, err)
	}
}

func packetNames(t *testing.T, words []uint32) []string {
	t.Helper()
	pkts, err := brw.DecodeBatch(words)
	if err != nil {
		t.Fatalf("DecodeBatch: %v", err)
	}
	names := make([]string, len(pkts))
	for i, p := range pkts {
		names[i] = p.Name
	}
	return names
}

func TestNewContextNilWinsys(t *testing.T) {
	if _, err := NewContext(nil); !errors.Is(err, ErrNilWinsys) {
		t.Errorf("NewContext(nil) = %v, want ErrNilWinsys", err)
	}
}

func TestDrawRecordsPrimitive(t *testing.T) {
	tc := newTestContext(t)
	tc.draw(t, PrimTriangles)

	names := packetNames(t, tc.ctx.Commands())
	if len(names) == 0 || names[len(names)-1] != "3DPRIMITIVE" {
		t.Errorf("last packet = %v, want 3DPRIMITIVE", names)
	}
	if got := tc.ctx.Stats().Context.Draws; got != 1 {
		t.Errorf("Draws = %d, want 1", got)
	}
}

func TestFlushSubmits(t *testing.T) {
	tc := newTestContext(t)
	tc.draw(t, PrimTriangles)
	if err := tc.ctx.Flush(context.Background(), FlushRenderCache|FlushWait); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(tc.ws.Submissions) != 1 {
		t.Fatalf("submissions = %d, want 1", len(tc.ws.Submissions))
	}
	names := packetNames(t, tc.ws.Last().Cmds)
	if got := names[len(names)-1]; got != "MI_BATCH_BUFFER_END" {
		t.Errorf("batch ends with %s", got)
	}
	if len(tc.ctx.Commands()) != 0 {
		t.Errorf("commands after flush = %d dwords", len(tc.ctx.Commands()))
	}
}

func TestEmitStateAlwaysOption(t *testing.T) {
	tc := newTestContext(t, WithEmitStateAlways(true))
	tc.draw(t, PrimTriangles)
	first := len(tc.ctx.Commands())
	tc.draw(t, PrimTriangles)
	if second := len(tc.ctx.Commands()) - first; second < first/2 {
		t.Errorf("second draw recorded %d dwords, first %d", second, first)
	}
}

func TestCreateShaderStageMismatch(t *testing.T) {
	tc := newTestContext(t)
	prog, err := ParseShader(passVS)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tc.ctx.CreateFragmentShader(prog); !errors.Is(err, ErrStageMismatch) {
		t.Errorf("CreateFragmentShader(vertex program) = %v, want ErrStageMismatch", err)
	}
	if _, err := tc.ctx.CreateVertexShader(nil); !errors.Is(err, ErrInvalidState) {
		t.Errorf("CreateVertexShader(nil) = %v, want ErrInvalidState", err)
	}
}

func TestWGSLPipeline(t *testing.T) {
	tc := newTestContext(t)

	vsProg, err := TranslateWGSL(transformWGSL, StageVertex)
	if err != nil {
		t.Fatalf("TranslateWGSL(vertex): %v", err)
	}
	fsProg, err := TranslateWGSL(transformWGSL, StageFragment)
	if err != nil {
		t.Fatalf("TranslateWGSL(fragment): %v", err)
	}
	vs, err := tc.ctx.CreateVertexShader(vsProg)
	if err != nil {
		t.Fatalf("CreateVertexShader: %v", err)
	}
	fs, err := tc.ctx.CreateFragmentShader(fsProg)
	if err != nil {
		t.Fatalf("CreateFragmentShader: %v", err)
	}
	if err := tc.ctx.SetVertexShader(vs); err != nil {
		t.Fatal(err)
	}
	if err := tc.ctx.SetFragmentShader(fs); err != nil {
		t.Fatal(err)
	}
	if err := tc.ctx.SetVertexElements([]VertexElement{
		{Offset: 0, Format: gputypes.VertexFormatFloat32x3},
		{Offset: 16, Format: gputypes.VertexFormatFloat32x4},
	}); err != nil {
		t.Fatal(err)
	}
	consts := []float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
		1, 1, 1, 1,
	}
	if err := tc.ctx.SetConstantBuffer(StageVertex, consts); err != nil {
		t.Fatal(err)
	}
	tc.draw(t, PrimTriangles)

	names := packetNames(t, tc.ctx.Commands())
	if !strings.Contains(strings.Join(names, " "), "CONSTANT_BUFFER") {
		t.Errorf("no CONSTANT_BUFFER in %v", names)
	}
}

func TestClearColor(t *testing.T) {
	tc := newTestContext(t)
	err := tc.ctx.Clear(context.Background(), ClearColor, gputypes.Color{R: 0, G: 0, B: 1, A: 1}, 0, 0)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	data := tc.ws.Find("rt").Data
	pitch := int(tc.rt.Tree.Pitch)
	want := []byte{0, 0, 255, 255}
	if got := data[31*pitch+31*4:][:4]; string(got) != string(want) {
		t.Errorf("last texel = %v, want %v", got, want)
	}
}

func TestDrawErrors(t *testing.T) {
	tests := []struct {
		name    string
		prim    Primitive
		indexed bool
		want    error
	}{
		{"unknown primitive", Primitive(42), false, ErrInvalidState},
		{"indexed without index buffer", PrimTriangles, true, ErrInvalidState},
	}
	tc := newTestContext(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tc.ctx.Draw(tt.prim, 0, 3, tt.indexed); !errors.Is(err, tt.want) {
				t.Errorf("Draw = %v, want %v", err, tt.want)
			}
		})
	}

	tc.ctx.Destroy()
	if err := tc.ctx.Draw(PrimTriangles, 0, 3, false); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Draw after Destroy = %v, want ErrDestroyed", err)
	}
}

func TestStatsString(t *testing.T) {
	tc := newTestContext(t)
	tc.draw(t, PrimTriangles)
	s := tc.ctx.Stats()
	if s.Cache.Uploads == 0 {
		t.Error("no cache uploads after a draw")
	}
	if s.GeneralPool.Offset == 0 {
		t.Error("general pool unused after a draw")
	}
	if !strings.Contains(s.String(), "1 draws") {
		t.Errorf("String() = %q", s.String())
	}
}
