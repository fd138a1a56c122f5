package brw

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/i965/internal/layout"
	"github.com/gogpu/i965/internal/pipe"
	"github.com/gogpu/i965/internal/pool"
	"github.com/gogpu/i965/internal/shader"
	"github.com/gogpu/i965/internal/winsys"
	"github.com/gogpu/i965/internal/winsys/wstest"
)

const colorVS = `VERT
DCL IN[0], POSITION
DCL IN[1], COLOR
DCL OUT[0], POSITION
DCL OUT[1], COLOR
MOV OUT[0], IN[0]
MOV OUT[1], IN[1]
END
`

const transformVS = `VERT
DCL IN[0], POSITION
DCL IN[1], COLOR
DCL OUT[0], POSITION
DCL OUT[1], COLOR
DCL CONST[0..3]
DP4 OUT[0].x, IN[0], CONST[0]
DP4 OUT[0].y, IN[0], CONST[1]
DP4 OUT[0].z, IN[0], CONST[2]
DP4 OUT[0].w, IN[0], CONST[3]
MOV OUT[1], IN[1]
END
`

var identity = []float32{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 1, 0,
	0, 0, 0, 1,
}

type fixture struct {
	c  *Context
	ws *wstest.Winsys
	rt *pipe.Texture
}

func newFixture(t *testing.T, cfg Config, vsText string) *fixture {
	t.Helper()
	cfg.OrderCheck = true
	ws := wstest.New()
	c, err := New(ws, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Destroy)

	rt, err := pipe.NewTexture(ws, "rt", layout.Desc{
		Target: gputypes.TextureViewDimension2D,
		Format: gputypes.TextureFormatRGBA8Unorm,
		Width:  16,
		Height: 16,
		Depth:  1,
		Levels: 1,
	}, winsys.UsageRenderTarget)
	if err != nil {
		t.Fatalf("NewTexture: %v", err)
	}
	if err := c.SetFramebuffer(pipe.Framebuffer{Width: 16, Height: 16, Color: &pipe.Surface{Texture: rt}}); err != nil {
		t.Fatalf("SetFramebuffer: %v", err)
	}
	c.SetViewport(pipe.ViewportFor(16, 16))

	vb, err := ws.BufferCreate("vb", 3*32, winsys.UsageVertex)
	if err != nil {
		t.Fatalf("BufferCreate: %v", err)
	}
	if err := c.SetVertexBuffers([]pipe.VertexBuffer{{Buffer: vb, Stride: 32, MaxIndex: 2}}); err != nil {
		t.Fatalf("SetVertexBuffers: %v", err)
	}
	if err := c.SetVertexElements([]pipe.VertexElement{
		{BufferIndex: 0, Offset: 0, Format: gputypes.VertexFormatFloat32x4},
		{BufferIndex: 0, Offset: 16, Format: gputypes.VertexFormatFloat32x4},
	}); err != nil {
		t.Fatalf("SetVertexElements: %v", err)
	}

	prog, err := shader.Parse(vsText)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	s, err := c.CreateShader(prog)
	if err != nil {
		t.Fatalf("CreateShader: %v", err)
	}
	if err := c.SetVertexShader(s); err != nil {
		t.Fatalf("SetVertexShader: %v", err)
	}
	return &fixture{c: c, ws: ws, rt: rt}
}

func (f *fixture) draw(t *testing.T, prim pipe.Primitive) {
	t.Helper()
	if err := f.c.Draw(prim, 0, 3, false); err != nil {
		t.Fatalf("Draw(%s): %v", prim, err)
	}
}

func TestFirstDrawRunsEveryAtom(t *testing.T) {
	f := newFixture(t, Config{}, colorVS)
	f.draw(t, pipe.PrimTriangles)
	for _, name := range f.c.AtomNames() {
		if got := f.c.AtomRuns(name); got != 1 {
			t.Errorf("atom %s ran %d times, want 1", name, got)
		}
	}
	if !f.c.Dirty().Empty() {
		t.Errorf("dirty after validate = %s", f.c.Dirty())
	}
}

func TestSecondValidateIsNoop(t *testing.T) {
	f := newFixture(t, Config{}, colorVS)
	f.draw(t, pipe.PrimTriangles)
	f.c.ResetAtomRuns()
	words := f.c.Batch().Len()
	misses := f.c.CacheStats().Misses

	if err := f.c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	for _, name := range f.c.AtomNames() {
		if got := f.c.AtomRuns(name); got != 0 {
			t.Errorf("atom %s ran %d times", name, got)
		}
	}
	if got := f.c.Batch().Len(); got != words {
		t.Errorf("batch grew from %d to %d dwords", words, got)
	}
	if got := f.c.CacheStats().Misses; got != misses {
		t.Errorf("cache misses %d -> %d", misses, got)
	}
}

func TestStateChangeRunsDependentAtoms(t *testing.T) {
	f := newFixture(t, Config{}, colorVS)
	f.draw(t, pipe.PrimTriangles)
	f.c.ResetAtomRuns()

	b := pipe.DefaultBlendState()
	b.Enabled = true
	b.Color = gputypes.BlendComponent{
		SrcFactor: gputypes.BlendFactorSrcAlpha,
		DstFactor: gputypes.BlendFactorOneMinusSrcAlpha,
		Operation: gputypes.BlendOperationAdd,
	}
	b.Alpha = b.Color
	f.c.SetBlendState(b)

	r := pipe.DefaultRasterizerState()
	r.LineWidth = 2
	f.c.SetRasterizerState(r)
	r.CullMode = gputypes.CullModeBack
	f.c.SetRasterizerState(r)

	f.draw(t, pipe.PrimTriangles)

	for _, name := range []string{"cc_unit", "wm_surfaces", "sf_unit", "wm_unit", "clip_unit", "line_stipple", "psp_urb_cbs"} {
		if got := f.c.AtomRuns(name); got != 1 {
			t.Errorf("atom %s ran %d times, want 1", name, got)
		}
	}
	for _, name := range []string{"vs_prog", "wm_prog", "vertices", "urb_fence", "cc_vp", "invariant", "constant_buffer"} {
		if got := f.c.AtomRuns(name); got != 0 {
			t.Errorf("atom %s ran %d times, want 0", name, got)
		}
	}
}

func TestPrimitiveChangeSelectsGS(t *testing.T) {
	f := newFixture(t, Config{}, colorVS)
	f.draw(t, pipe.PrimTriangles)
	if f.c.gsProg != nil {
		t.Fatal("GS kernel bound for triangles")
	}
	f.draw(t, pipe.PrimQuads)
	if f.c.gsProg == nil {
		t.Fatal("no GS kernel for quads")
	}
	f.c.ResetAtomRuns()
	f.draw(t, pipe.PrimPolygon)
	if got := f.c.AtomRuns("sf_prog"); got != 0 {
		t.Errorf("sf_prog ran %d times for an unchanged reduced primitive", got)
	}
	f.draw(t, pipe.PrimLineLoop)
	if got := f.c.AtomRuns("sf_prog"); got != 1 {
		t.Errorf("sf_prog ran %d times after switching to lines, want 1", got)
	}
}

func TestClipPlanesRecompileVS(t *testing.T) {
	f := newFixture(t, Config{}, transformVS)
	if err := f.c.SetConstantBuffer(pipe.StageVertex, identity); err != nil {
		t.Fatal(err)
	}
	f.draw(t, pipe.PrimTriangles)
	before := f.c.Curbe()
	if before.ClipSize != 0 {
		t.Fatalf("clip block without planes: %+v", before)
	}

	if err := f.c.SetClipPlanes([]pipe.ClipPlane{{1, 0, 0, 0}, {0, 1, 0, 0}}); err != nil {
		t.Fatal(err)
	}
	f.c.ResetAtomRuns()
	f.draw(t, pipe.PrimTriangles)
	if got := f.c.AtomRuns("vs_prog"); got != 1 {
		t.Errorf("vs_prog ran %d times, want 1", got)
	}
	l := f.c.Curbe()
	if l.ClipSize != 2 || l.VSStart != l.ClipStart+l.ClipSize {
		t.Errorf("layout with 2 planes = %+v", l)
	}
}

func TestCurbeUploadedOnlyOnChange(t *testing.T) {
	f := newFixture(t, Config{}, transformVS)
	if err := f.c.SetConstantBuffer(pipe.StageVertex, identity); err != nil {
		t.Fatal(err)
	}
	f.draw(t, pipe.PrimTriangles)
	if got := f.c.Stats().CurbeUploads; got != 1 {
		t.Fatalf("CurbeUploads = %d, want 1", got)
	}

	// Same contents: the atom runs but nothing is uploaded.
	if err := f.c.SetConstantBuffer(pipe.StageVertex, identity); err != nil {
		t.Fatal(err)
	}
	f.draw(t, pipe.PrimTriangles)
	if got := f.c.Stats().CurbeUploads; got != 1 {
		t.Errorf("CurbeUploads after identical constants = %d, want 1", got)
	}

	scaled := append([]float32(nil), identity...)
	scaled[0] = 2
	if err := f.c.SetConstantBuffer(pipe.StageVertex, scaled); err != nil {
		t.Fatal(err)
	}
	f.draw(t, pipe.PrimTriangles)
	if got := f.c.Stats().CurbeUploads; got != 2 {
		t.Errorf("CurbeUploads after new constants = %d, want 2", got)
	}
}

func TestPoolExhaustedTwiceIsFatal(t *testing.T) {
	f := newFixture(t, Config{GeneralPoolSize: 16}, colorVS)
	err := f.c.Draw(pipe.PrimTriangles, 0, 3, false)
	if !errors.Is(err, ErrFatal) {
		t.Fatalf("Draw = %v, want ErrFatal", err)
	}
	if !errors.Is(err, pool.ErrPoolExhausted) {
		t.Errorf("Draw = %v, want it to wrap ErrPoolExhausted", err)
	}
	if got := f.c.Stats().Retries; got != 1 {
		t.Errorf("Retries = %d, want 1", got)
	}
}

func TestPoolExhaustedRetrySucceeds(t *testing.T) {
	f := newFixture(t, Config{GeneralPoolSize: 16 << 10}, colorVS)
	f.draw(t, pipe.PrimTriangles)

	// Every distinct alpha reference uploads a new CC record.
	dsa := pipe.DefaultDepthStencilAlphaState()
	for i := range 1000 {
		dsa.AlphaRef = float32(i) / 1000
		f.c.SetDepthStencilAlphaState(dsa)
		f.draw(t, pipe.PrimTriangles)
	}
	st := f.c.Stats()
	if st.Retries == 0 || st.Scenes == 0 {
		t.Errorf("stats = %s, want at least one retry and scene", st)
	}
	if gen, _ := f.c.PoolStats(); gen.Epochs == 0 {
		t.Errorf("general pool never invalidated: %s", gen)
	}
}

func TestBatchFullSubmitsAndReplays(t *testing.T) {
	f := newFixture(t, Config{BatchDwords: 256}, colorVS)
	for range 100 {
		f.draw(t, pipe.PrimTriangles)
	}
	if len(f.ws.Submissions) == 0 {
		t.Fatal("no batch submitted")
	}
	if got := f.c.Stats().Draws; got != 100 {
		t.Errorf("Draws = %d, want 100", got)
	}
	// Every batch starts from scratch, so each one re-emits the context.
	for i, s := range f.ws.Submissions {
		pkts, err := DecodeBatch(s.Cmds)
		if err != nil {
			t.Fatalf("submission %d: %v", i, err)
		}
		if pkts[0].Name != "PIPELINE_SELECT" {
			t.Errorf("submission %d starts with %s", i, pkts[0].Name)
		}
	}
}

func TestDrawErrors(t *testing.T) {
	f := newFixture(t, Config{}, colorVS)
	tests := []struct {
		name    string
		prep    func()
		indexed bool
		want    error
	}{
		{"indexed without buffer", func() {}, true, ErrInvalidState},
		{"no vertex shader", func() { _ = f.c.SetVertexShader(nil) }, false, ErrNoVertexShader},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.prep()
			err := f.c.Draw(pipe.PrimTriangles, 0, 3, tt.indexed)
			if !errors.Is(err, tt.want) {
				t.Errorf("Draw = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMissingVertexElement(t *testing.T) {
	f := newFixture(t, Config{}, colorVS)
	if err := f.c.SetVertexElements([]pipe.VertexElement{{Format: gputypes.VertexFormatFloat32x4}}); err != nil {
		t.Fatal(err)
	}
	before, subs := f.c.Batch().Len(), len(f.ws.Submissions)
	err := f.c.Draw(pipe.PrimTriangles, 0, 3, false)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Draw = %v, want ErrInvalidState", err)
	}
	if got := f.c.Batch().Len(); got != before {
		t.Errorf("failed validation left %d dwords, want %d", got, before)
	}
	if err := f.c.Flush(context.Background(), 0); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := len(f.ws.Submissions); got != subs {
		t.Errorf("packets of a failed validation were submitted (%d submissions, want %d)", got, subs)
	}
	// The failed pass keeps its flags and resumes once fixed.
	if f.c.Dirty().Empty() {
		t.Error("dirty flags dropped after a failed validation")
	}
	if err := f.c.SetVertexElements([]pipe.VertexElement{
		{Format: gputypes.VertexFormatFloat32x4},
		{Offset: 16, Format: gputypes.VertexFormatFloat32x4},
	}); err != nil {
		t.Fatal(err)
	}
	f.draw(t, pipe.PrimTriangles)
}

func TestFlushSubmitsAndSchedulesContext(t *testing.T) {
	f := newFixture(t, Config{}, colorVS)
	f.draw(t, pipe.PrimTriangles)
	if err := f.c.Flush(context.Background(), pipe.FlushRenderCache|pipe.FlushWait); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	last := f.ws.Last()
	if last == nil {
		t.Fatal("nothing submitted")
	}
	if !f.ws.FenceSignalled(last.Fence) {
		t.Error("FlushWait returned before the fence signalled")
	}
	pkts, err := DecodeBatch(last.Cmds)
	if err != nil {
		t.Fatalf("DecodeBatch: %v", err)
	}
	if got := pkts[len(pkts)-1].Name; got != "MI_BATCH_BUFFER_END" {
		t.Errorf("last packet = %s", got)
	}
	if got := pkts[len(pkts)-2].Name; got != "MI_FLUSH" {
		t.Errorf("packet before end = %s, want MI_FLUSH", got)
	}

	f.c.ResetAtomRuns()
	f.draw(t, pipe.PrimTriangles)
	if got := f.c.AtomRuns("state_base_address"); got != 1 {
		t.Errorf("state_base_address ran %d times after flush, want 1", got)
	}
	if got := f.c.AtomRuns("vs_prog"); got != 0 {
		t.Errorf("vs_prog ran %d times after flush, want 0", got)
	}
}

func TestEmitStateAlways(t *testing.T) {
	f := newFixture(t, Config{EmitStateAlways: true}, colorVS)
	f.draw(t, pipe.PrimTriangles)
	f.c.ResetAtomRuns()
	f.draw(t, pipe.PrimTriangles)
	if got := f.c.AtomRuns("invariant"); got != 1 {
		t.Errorf("invariant ran %d times, want 1", got)
	}
}

func TestClearColor(t *testing.T) {
	f := newFixture(t, Config{}, colorVS)
	err := f.c.Clear(context.Background(), pipe.ClearColor, gputypes.Color{R: 1, G: 0.5, B: 0, A: 1}, 0, 0)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	data := f.ws.Find("rt").Data
	pitch := int(f.rt.Tree.Pitch)
	want := []byte{255, 128, 0, 255}
	for _, off := range []int{0, 15 * 4, 15 * pitch, 15*pitch + 15*4} {
		if got := data[off : off+4]; string(got) != string(want) {
			t.Errorf("texel at %d = %v, want %v", off, got, want)
		}
	}
}

func TestClearReportsUnmapFailure(t *testing.T) {
	f := newFixture(t, Config{}, colorVS)
	f.ws.FailUnmap = true
	err := f.c.Clear(context.Background(), pipe.ClearColor, gputypes.Color{R: 1, A: 1}, 0, 0)
	if !errors.Is(err, wstest.ErrInjected) {
		t.Fatalf("Clear = %v, want the unmap error", err)
	}
	rt := f.ws.Find("rt")
	if rt.Mapped {
		t.Error("render target still mapped")
	}
	if got := rt.Data[:4]; string(got) != string([]byte{255, 0, 0, 255}) {
		t.Errorf("first texel = %v, want the clear color", got)
	}
}

func TestDestroyedContext(t *testing.T) {
	f := newFixture(t, Config{}, colorVS)
	f.c.Destroy()
	if err := f.c.Draw(pipe.PrimTriangles, 0, 3, false); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Draw = %v, want ErrDestroyed", err)
	}
	if err := f.c.Flush(context.Background(), 0); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Flush = %v, want ErrDestroyed", err)
	}
}
