package brw

import (
	"errors"
	"math"
	"testing"

	"github.com/gogpu/i965/internal/pipe"
)

func TestFixedPoint(t *testing.T) {
	tests := []struct {
		name string
		got  uint32
		want uint32
	}{
		{"line width U3.1", ufixed(1.5, 1, 4), 3},
		{"line width clamps", ufixed(100, 1, 4), 15},
		{"negative is zero", ufixed(-2, 3, 11), 0},
		{"point size U8.3", ufixed(2.25, 3, 11), 18},
		{"stipple inverse U3.13", ufixed(0.5, 13, 16), 4096},
		{"lod U4.6", ufixed(3, 6, 10), 192},
		{"bias S4.6 negative", sfixed(-1, 11), 0x7c0},
		{"bias S4.6 clamps", sfixed(100, 11), 0x3ff},
		{"bias S4.6 clamps negative", sfixed(-100, 11), 0x400},
		{"bias NaN", sfixed(float32(math.NaN()), 11), 0},
		{"line width truncates", ufixed(1.99, 1, 4), 3},
		{"huge line width saturates", ufixed(3e38, 1, 4), 15},
		{"infinite point size saturates", ufixed(float32(math.Inf(1)), 3, 11), 0x7ff},
		{"NaN point size", ufixed(float32(math.NaN()), 3, 11), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %#x, want %#x", tt.got, tt.want)
			}
		})
	}
}

func TestPackSFUnitLineWidth(t *testing.T) {
	rs := pipe.DefaultRasterizerState()
	rs.LineWidth = 2.5
	rs.Scissor = true
	r := packSFUnit(threadState{}, urbAlloc{entries: 8, size: 1, maxThreads: 4}, rs, 0x1040)
	if got := (r[6] >> 24) & 0xf; got != 5 {
		t.Errorf("line width field = %d, want 5", got)
	}
	if r[6]&(1<<17) == 0 {
		t.Error("scissor not enabled")
	}
	if got := r[5] &^ 31; got != 0x1040 {
		t.Errorf("viewport pointer = %#x", got)
	}
	if got := (r[4] >> 11) & 0x7f; got != 8 {
		t.Errorf("URB entries = %d, want 8", got)
	}
}

func TestPartitionURB(t *testing.T) {
	tests := []struct {
		name        string
		vs, sf, cs  int
		constrained bool
		err         error
	}{
		{"small entries", 1, 1, 1, false, nil},
		{"large entries fall back to minimum", 5, 12, 32, true, nil},
		{"oversized vs entry", 6, 1, 1, false, ErrURBLayout},
		{"oversized constant buffer", 1, 1, 33, false, ErrURBLayout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := PartitionURB(tt.vs, tt.sf, tt.cs)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("err = %v, want %v", err, tt.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("PartitionURB: %v", err)
			}
			if l.Constrained != tt.constrained {
				t.Errorf("Constrained = %v, want %v (%s)", l.Constrained, tt.constrained, l)
			}
			if l.Total > URBRows {
				t.Errorf("Total = %d rows", l.Total)
			}
			for i := 1; i < numURB; i++ {
				if l.Start[i] != l.Start[i-1]+l.Entries[i-1]*l.Size[i-1] {
					t.Errorf("%s starts at %d, overlapping %s", urbNames[i], l.Start[i], urbNames[i-1])
				}
			}
			if l.Fence(urbCS) != URBRows {
				t.Errorf("last fence = %d", l.Fence(urbCS))
			}
		})
	}
}

func TestLayoutCurbe(t *testing.T) {
	tests := []struct {
		name                     string
		wm, clip, vs             int
		wmSize, clipSize, vsSize int
	}{
		{"empty", 0, 0, 0, 0, 0, 0},
		{"all regions", 3, 2, 5, 1, 2, 2},
		{"no planes", 4, 0, 4, 1, 0, 1},
		{"six planes", 0, 6, 1, 0, 3, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := LayoutCurbe(tt.wm, tt.clip, tt.vs)
			if l.WMSize != tt.wmSize || l.ClipSize != tt.clipSize || l.VSSize != tt.vsSize {
				t.Fatalf("layout = %+v", l)
			}
			if l.WMStart != 0 || l.ClipStart != l.WMSize || l.VSStart != l.ClipStart+l.ClipSize ||
				l.Total != l.VSStart+l.VSSize {
				t.Errorf("regions not contiguous: %+v", l)
			}
		})
	}
}

func TestDecodeBatch(t *testing.T) {
	words := []uint32{
		cmdPipelineSelect<<16 | pipelineSelect3D,
		cmd(cmdDrawingRectangle, 4), 0, 0, 0,
		miNoop,
		cmd(cmdPrimitive, 6), 3, 0, 1, 0, 0,
		miFlush,
		0x0a << 23,
		0xdeadbeef,
	}
	pkts, err := DecodeBatch(words)
	if err != nil {
		t.Fatalf("DecodeBatch: %v", err)
	}
	want := []string{"PIPELINE_SELECT", "DRAWING_RECTANGLE", "MI_NOOP", "3DPRIMITIVE", "MI_FLUSH", "MI_BATCH_BUFFER_END"}
	if len(pkts) != len(want) {
		t.Fatalf("got %d packets, want %d: %v", len(pkts), len(want), pkts)
	}
	for i, p := range pkts {
		if p.Name != want[i] {
			t.Errorf("packet %d = %s, want %s", i, p.Name, want[i])
		}
	}
	if pkts[3].Offset != 6 || len(pkts[3].Words) != 6 {
		t.Errorf("3DPRIMITIVE = %s", pkts[3])
	}

	if _, err := DecodeBatch(words[:9]); !errors.Is(err, ErrDecode) {
		t.Errorf("truncated packet: err = %v, want ErrDecode", err)
	}
	if _, err := DecodeBatch([]uint32{0x40000000}); !errors.Is(err, ErrDecode) {
		t.Errorf("unknown command type: err = %v, want ErrDecode", err)
	}
}

func TestDirtyNames(t *testing.T) {
	if got := DirtyBlend.String(); got != "blend" {
		t.Errorf("DirtyBlend = %q", got)
	}
	if got := DirtyContext.String(); got != "context" {
		t.Errorf("DirtyContext = %q", got)
	}
	if got := CacheName(CacheSurfaceBind); got != "SS_SURF_BIND" {
		t.Errorf("CacheName(CacheSurfaceBind) = %q", got)
	}
	if got := Dirty(99).String(); got != "unknown" {
		t.Errorf("Dirty(99) = %q", got)
	}
}
