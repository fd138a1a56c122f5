package pool

import (
	"errors"
	"testing"

	"github.com/gogpu/i965/internal/winsys"
	"github.com/gogpu/i965/internal/winsys/wstest"
)

func newPool(t *testing.T, size uint32) *Pool {
	t.Helper()
	p, err := New(wstest.New(), "gs", size, winsys.UsageState)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

type countingCache struct{ clears int }

func (c *countingCache) Clear() { c.clears++ }

func TestAlignUp(t *testing.T) {
	tests := []struct {
		v, align, want uint32
	}{
		{0, 4, 0},
		{1, 4, 4},
		{4, 4, 4},
		{5, 32, 32},
		{33, 32, 64},
		{63, 64, 64},
	}
	for _, tt := range tests {
		if got := AlignUp(tt.v, tt.align); got != tt.want {
			t.Errorf("AlignUp(%d, %d) = %d, want %d", tt.v, tt.align, got, tt.want)
		}
	}
	if got := DivRoundUp(17, 16); got != 2 {
		t.Errorf("DivRoundUp(17, 16) = %d, want 2", got)
	}
	if IsPow2(0) || !IsPow2(64) || IsPow2(48) {
		t.Error("IsPow2 wrong")
	}
}

func TestAllocMonotonic(t *testing.T) {
	p := newPool(t, 4096)

	sizes := []struct{ size, align uint32 }{
		{32, 32}, {7, 4}, {64, 64}, {1, 1}, {100, 32}, {16, 16},
	}
	var prevEnd uint32
	for i, s := range sizes {
		off, err := p.Alloc(s.size, s.align)
		if err != nil {
			t.Fatalf("alloc %d: %v", i, err)
		}
		if off%s.align != 0 {
			t.Errorf("alloc %d: offset %d not aligned to %d", i, off, s.align)
		}
		if off < prevEnd {
			t.Errorf("alloc %d: offset %d overlaps previous end %d", i, off, prevEnd)
		}
		prevEnd = off + AlignUp(s.size, 4)
	}
	if p.Offset() != prevEnd {
		t.Errorf("Offset() = %d, want %d", p.Offset(), prevEnd)
	}
}

func TestAllocRoundsToDword(t *testing.T) {
	p := newPool(t, 64)
	if _, err := p.Alloc(3, 1); err != nil {
		t.Fatal(err)
	}
	off, err := p.Alloc(4, 1)
	if err != nil {
		t.Fatal(err)
	}
	if off != 4 {
		t.Errorf("second offset = %d, want 4", off)
	}
}

func TestAllocExhausted(t *testing.T) {
	p := newPool(t, 128)
	if _, err := p.Alloc(96, 32); err != nil {
		t.Fatal(err)
	}
	_, err := p.Alloc(64, 32)
	if !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("Alloc() = %v, want ErrPoolExhausted", err)
	}
	// A failed alloc leaves the watermark alone.
	if p.Offset() != 96 {
		t.Errorf("Offset() = %d after failure, want 96", p.Offset())
	}
	// Exactly filling the pool is allowed.
	if _, err := p.Alloc(32, 32); err != nil {
		t.Errorf("Alloc() to exact capacity = %v", err)
	}
}

func TestAllocBadAlignment(t *testing.T) {
	p := newPool(t, 128)
	for _, a := range []uint32{0, 3, 48} {
		if _, err := p.Alloc(4, a); !errors.Is(err, ErrBadAlignment) {
			t.Errorf("Alloc(4, %d) = %v, want ErrBadAlignment", a, err)
		}
	}
}

func TestInvalidateResetsAndClears(t *testing.T) {
	p := newPool(t, 1024)
	c1, c2 := &countingCache{}, &countingCache{}
	p.Attach(c1)
	p.Attach(c2)

	for range 4 {
		if _, err := p.Alloc(100, 32); err != nil {
			t.Fatal(err)
		}
	}
	p.Invalidate()

	if c1.clears != 1 || c2.clears != 1 {
		t.Errorf("clears = %d, %d; want 1, 1", c1.clears, c2.clears)
	}
	off, err := p.Alloc(16, 64)
	if err != nil {
		t.Fatal(err)
	}
	if off != 0 {
		t.Errorf("first offset after Invalidate = %d, want 0", off)
	}
	st := p.Stats()
	if st.Epochs != 1 || st.HighWatermark < 400 {
		t.Errorf("Stats() = %v", st)
	}
}

func TestCheckWrap(t *testing.T) {
	tests := []struct {
		name  string
		alloc uint32
		want  bool
	}{
		{"empty", 0, false},
		{"half", 512, false},
		{"exactly three quarters", 768, false},
		{"past three quarters", 772, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPool(t, 1024)
			if tt.alloc > 0 {
				if _, err := p.Alloc(tt.alloc, 4); err != nil {
					t.Fatal(err)
				}
			}
			if got := p.CheckWrap(); got != tt.want {
				t.Errorf("CheckWrap() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUploadWritesBuffer(t *testing.T) {
	ws := wstest.New()
	p, err := New(ws, "ss", 256, winsys.UsageSurfaceState)
	if err != nil {
		t.Fatal(err)
	}
	off, err := p.Alloc(4, 32)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Upload(off, []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	buf := ws.Find("ss")
	if buf.Data[off] != 1 || buf.Data[off+3] != 4 {
		t.Errorf("buffer = %v", buf.Data[off:off+4])
	}

	ws.FailSubdata = true
	if err := p.Upload(off, []byte{9}); !errors.Is(err, wstest.ErrInjected) {
		t.Errorf("Upload() = %v, want injected error", err)
	}
}

func TestNewFailures(t *testing.T) {
	ws := wstest.New()
	if _, err := New(ws, "x", 0, winsys.UsageState); err == nil {
		t.Error("New() with zero size succeeded")
	}
	ws.FailCreate = true
	if _, err := New(ws, "x", 64, winsys.UsageState); !errors.Is(err, wstest.ErrInjected) {
		t.Errorf("New() = %v, want injected error", err)
	}
}
