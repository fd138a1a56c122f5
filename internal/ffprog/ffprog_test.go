package ffprog

import (
	"errors"
	"math"
	"testing"

	"github.com/gogpu/i965/internal/eu"
	"github.com/gogpu/i965/internal/pipe"
	"github.com/gogpu/i965/internal/shader"
	"github.com/gogpu/i965/internal/wm"
)

// vertex is one VUE: clip flags, position and attributes.
type vertex struct {
	flags uint32
	pos   [4]float32
	attrs [][4]float32
}

func load(m *eu.Machine, k *Kernel, verts []vertex) {
	vregs := k.URBReadLength
	for v, vx := range verts {
		base := 1 + v*vregs
		m.SetGRFUint(base, [8]uint32{0, 0, 0, vx.flags})
		slots := append([][4]float32{{}, {}, vx.pos}, vx.attrs...)
		for s := 2; s < len(slots); s++ {
			m.SetGRFVec4(base+s/2, s%2, slots[s])
		}
	}
}

func run(t *testing.T, k *Kernel, verts []vertex) *eu.Machine {
	t.Helper()
	if len(verts) != k.NrVertices {
		t.Fatalf("%d vertices for a %d-vertex kernel", len(verts), k.NrVertices)
	}
	m := eu.NewMachine()
	load(m, k, verts)
	if err := m.Run(k.Instructions); err != nil {
		t.Fatalf("Run: %v\n%s", err, eu.Disassemble(k.Instructions))
	}
	return m
}

func near(a, b float32) bool { return math.Abs(float64(a-b)) < 1e-5 }

// plane returns [dx, dy, c0] of component ch of attribute a in a setup
// write whose first attribute is first.
func plane(w eu.Written, a, ch int) [3]float32 {
	r := 1 + 2*a + ch/2
	f := (ch % 2) * 4
	return [3]float32{w.Float(r, f), w.Float(r, f+1), w.Float(r, f+3)}
}

func TestSFTriangle(t *testing.T) {
	k, err := CompileSF(SFKey{Prim: pipe.PrimTriangles, NrAttrs: 1})
	if err != nil {
		t.Fatal(err)
	}
	m := run(t, k, []vertex{
		{pos: [4]float32{0, 0, 0, 1}, attrs: [][4]float32{{1, 0, 0, 1}}},
		{pos: [4]float32{4, 0, 0, 1}, attrs: [][4]float32{{3, 0, 0, 1}}},
		{pos: [4]float32{0, 2, 0, 1}, attrs: [][4]float32{{1, 4, 0, 1}}},
	})
	if len(m.Writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(m.Writes))
	}
	w := m.Writes[0]
	if w.Target != eu.TargetURB || !w.EOT || len(w.Regs) != 3 {
		t.Fatalf("write target %d eot %v length %d", w.Target, w.EOT, len(w.Regs))
	}
	want := [4][3]float32{{0.5, 0, 1}, {0, 2, 0}, {0, 0, 0}, {0, 0, 1}}
	for ch, pl := range want {
		got := plane(w, 0, ch)
		for i := range pl {
			if !near(got[i], pl[i]) {
				t.Errorf("component %d plane = %v, want %v", ch, got, pl)
				break
			}
		}
	}
}

func TestSFLineAndPoint(t *testing.T) {
	line, err := CompileSF(SFKey{Prim: pipe.PrimLines, NrAttrs: 1})
	if err != nil {
		t.Fatal(err)
	}
	m := run(t, line, []vertex{
		{pos: [4]float32{0, 0, 0, 1}, attrs: [][4]float32{{0, 1, 0, 0}}},
		{pos: [4]float32{2, 0, 0, 1}, attrs: [][4]float32{{4, 1, 0, 0}}},
	})
	if got := plane(m.Writes[0], 0, 0); !near(got[0], 2) || !near(got[1], 0) || !near(got[2], 0) {
		t.Errorf("line x plane = %v, want [2 0 0]", got)
	}
	if got := plane(m.Writes[0], 0, 1); !near(got[0], 0) || !near(got[2], 1) {
		t.Errorf("line y plane = %v, want [0 0 1]", got)
	}

	point, err := CompileSF(SFKey{Prim: pipe.PrimPoints, NrAttrs: 1})
	if err != nil {
		t.Fatal(err)
	}
	m = run(t, point, []vertex{{pos: [4]float32{5, 5, 0, 1}, attrs: [][4]float32{{0.5, 0.25, 0, 1}}}})
	for ch, c0 := range []float32{0.5, 0.25, 0, 1} {
		if got := plane(m.Writes[0], 0, ch); got != [3]float32{0, 0, c0} {
			t.Errorf("point component %d plane = %v", ch, got)
		}
	}
}

func TestSFSplitsLongSetup(t *testing.T) {
	k, err := CompileSF(SFKey{Prim: pipe.PrimPoints, NrAttrs: 9})
	if err != nil {
		t.Fatal(err)
	}
	attrs := make([][4]float32, 9)
	for i := range attrs {
		attrs[i] = [4]float32{float32(i), 0, 0, 0}
	}
	m := run(t, k, []vertex{{attrs: attrs}})
	if len(m.Writes) != 2 {
		t.Fatalf("writes = %d, want 2", len(m.Writes))
	}
	first, second := m.Writes[0], m.Writes[1]
	if len(first.Regs) != 15 || first.EOT || first.Offset != 0 {
		t.Errorf("first write length %d eot %v offset %d", len(first.Regs), first.EOT, first.Offset)
	}
	if len(second.Regs) != 5 || !second.EOT || second.Offset != 14 {
		t.Errorf("second write length %d eot %v offset %d", len(second.Regs), second.EOT, second.Offset)
	}
	if got := plane(second, 1, 0); got[2] != 8 {
		t.Errorf("attribute 8 c0 = %g, want 8", got[2])
	}
}

// TestSetupFeedsFragment interpolates the setup output with the built-in
// fragment kernel.
func TestSetupFeedsFragment(t *testing.T) {
	sf, err := CompileSF(SFKey{Prim: pipe.PrimTriangles, NrAttrs: 1})
	if err != nil {
		t.Fatal(err)
	}
	m := run(t, sf, []vertex{
		{pos: [4]float32{0, 0, 0, 1}, attrs: [][4]float32{{0, 0, 0, 1}}},
		{pos: [4]float32{4, 0, 0, 1}, attrs: [][4]float32{{1, 0, 0, 1}}},
		{pos: [4]float32{0, 4, 0, 1}, attrs: [][4]float32{{0, 1, 0, 1}}},
	})
	setup := m.Writes[0]

	attrs := []shader.IOSlot{{Semantic: shader.SemColor}}
	fs, err := wm.Compile(wm.Builtin(attrs), wm.Key{Attributes: attrs})
	if err != nil {
		t.Fatal(err)
	}
	pm := eu.NewMachine()
	pm.SetGRFUint(1, [8]uint32{0, 0, 0, 2})
	for r := range fs.SetupRegs {
		var d [8]uint32
		for i := range d {
			d[i] = setup.Uint(1+r, i)
		}
		pm.SetGRFUint(wm.DispatchGRFStart+fs.CurbReadLength+r, d)
	}
	if err := pm.Run(fs.Instructions); err != nil {
		t.Fatal(err)
	}
	xs := []float32{0, 1, 0, 1, 2, 3, 2, 3}
	ys := []float32{0, 0, 1, 1, 0, 0, 1, 1}
	w := pm.Writes[0]
	for i := range 8 {
		r, g := w.Float(2, i), w.Float(3, i)
		if !near(r, xs[i]/4) || !near(g, ys[i]/4) || !near(w.Float(5, i), 1) {
			t.Errorf("pixel %d = (%g, %g), want (%g, %g)", i, r, g, xs[i]/4, ys[i]/4)
		}
	}
}

func TestClip(t *testing.T) {
	attr := [][4]float32{{7, 7, 7, 7}}
	tri := func(a, b, c uint32) []vertex {
		return []vertex{{flags: a, attrs: attr}, {flags: b, attrs: attr}, {flags: c, attrs: attr}}
	}
	tests := []struct {
		name   string
		planes int
		verts  []vertex
		writes int
	}{
		{name: "all outside plane 0", planes: 2, verts: tri(1, 3, 1), writes: 1},
		{name: "outside different planes", planes: 2, verts: tri(1, 2, 1), writes: 3},
		{name: "outside a disabled plane", planes: 2, verts: tri(4, 4, 4), writes: 3},
		{name: "accept all", planes: 0, verts: tri(1, 1, 1), writes: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := CompileClip(ClipKey{Prim: pipe.PrimTriangles, NrAttrs: 1, NrUserClip: tt.planes})
			if err != nil {
				t.Fatal(err)
			}
			m := run(t, k, tt.verts)
			if len(m.Writes) != tt.writes {
				t.Fatalf("writes = %d, want %d", len(m.Writes), tt.writes)
			}
			last := m.Writes[len(m.Writes)-1]
			if !last.EOT {
				t.Error("last write does not end the thread")
			}
			if tt.writes == 3 && last.Float(2, 4) != 7 {
				t.Errorf("attribute not copied: %v", last.Float(2, 4))
			}
		})
	}
}

func TestGSQuads(t *testing.T) {
	k, err := CompileGS(GSKey{Prim: pipe.PrimQuads})
	if err != nil {
		t.Fatal(err)
	}
	verts := make([]vertex, 4)
	for i := range verts {
		verts[i].pos = [4]float32{float32(i), 0, 0, 1}
	}
	m := run(t, k, verts)
	if len(m.Writes) != 4 {
		t.Fatalf("writes = %d, want 4", len(m.Writes))
	}
	order := []float32{3, 0, 2, 1}
	headers := []uint32{HWTriStrip<<2 | primStart, HWTriStrip << 2, HWTriStrip << 2, HWTriStrip<<2 | primEnd}
	for i, w := range m.Writes {
		if got := w.Float(2, 0); got != order[i] {
			t.Errorf("write %d carries vertex %g, want %g", i, got, order[i])
		}
		if got := w.Uint(0, 2); got != headers[i] {
			t.Errorf("write %d header = %#x, want %#x", i, got, headers[i])
		}
		if w.EOT != (i == 3) {
			t.Errorf("write %d eot = %v", i, w.EOT)
		}
	}
}

func TestBadKeys(t *testing.T) {
	if _, err := CompileSF(SFKey{Prim: pipe.PrimQuads}); !errors.Is(err, ErrBadKey) {
		t.Errorf("CompileSF(quads) = %v", err)
	}
	if _, err := CompileSF(SFKey{Prim: pipe.PrimTriangles, NrAttrs: -1}); !errors.Is(err, ErrBadKey) {
		t.Errorf("CompileSF(-1 attrs) = %v", err)
	}
	if _, err := CompileClip(ClipKey{Prim: pipe.PrimTriangles, NrUserClip: 7}); !errors.Is(err, ErrBadKey) {
		t.Errorf("CompileClip(7 planes) = %v", err)
	}
	if _, err := CompileGS(GSKey{Prim: pipe.PrimTriangles}); !errors.Is(err, ErrBadKey) {
		t.Errorf("CompileGS(triangles) = %v", err)
	}
}

func TestPrimitiveTables(t *testing.T) {
	tests := []struct {
		prim pipe.Primitive
		hw   uint32
		gs   bool
	}{
		{pipe.PrimPoints, HWPointList, false},
		{pipe.PrimLineLoop, HWLineLoop, true},
		{pipe.PrimTriangles, HWTriList, false},
		{pipe.PrimTriangleFan, HWTriFan, false},
		{pipe.PrimQuads, HWQuadList, true},
		{pipe.PrimQuadStrip, HWQuadStrip, true},
		{pipe.PrimPolygon, HWPolygon, true},
	}
	for _, tt := range tests {
		t.Run(tt.prim.String(), func(t *testing.T) {
			if got := HardwarePrim(tt.prim); got != tt.hw {
				t.Errorf("HardwarePrim() = %#x, want %#x", got, tt.hw)
			}
			if got := NeedsGS(tt.prim); got != tt.gs {
				t.Errorf("NeedsGS() = %v, want %v", got, tt.gs)
			}
		})
	}
}
