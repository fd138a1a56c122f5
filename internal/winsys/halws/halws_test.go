package halws

import (
	"context"
	"errors"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/i965/internal/winsys"
)

func openNoop(t *testing.T) *Winsys {
	t.Helper()
	ws, err := Open(noop.API{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(ws.Destroy)
	return ws
}

// noopProvider exposes a noop device the way a host window context would.
type noopProvider struct {
	device hal.Device
	queue  hal.Queue
}

func (p noopProvider) Device() gpucontext.Device             { return p.device }
func (p noopProvider) Queue() gpucontext.Queue               { return p.queue }
func (p noopProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatUndefined }
func (p noopProvider) Adapter() gpucontext.Adapter           { return nil }
func (p noopProvider) AdapterInfo() gpucontext.AdapterInfo   { return gpucontext.AdapterInfo{Name: "noop"} }

func TestNewRequiresDevice(t *testing.T) {
	if _, err := New(nil, nil); !errors.Is(err, ErrNoDevice) {
		t.Errorf("New(nil, nil) = %v, want ErrNoDevice", err)
	}
	if _, err := Open(nil); !errors.Is(err, ErrNoDevice) {
		t.Errorf("Open(nil) = %v, want ErrNoDevice", err)
	}
	if _, err := NewFromProvider(noopProvider{}); !errors.Is(err, ErrNoDevice) {
		t.Errorf("NewFromProvider(empty) = %v, want ErrNoDevice", err)
	}
}

func TestNewFromProvider(t *testing.T) {
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer instance.Destroy()
	open, err := instance.EnumerateAdapters(nil)[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	defer open.Device.Destroy()

	ws, err := NewFromProvider(noopProvider{device: open.Device, queue: open.Queue})
	if err != nil {
		t.Fatalf("NewFromProvider: %v", err)
	}
	defer ws.Destroy()
	if _, err := ws.BufferCreate("b", 64, winsys.UsageVertex); err != nil {
		t.Errorf("BufferCreate: %v", err)
	}
}

func TestBufferAddresses(t *testing.T) {
	ws := openNoop(t)
	var prev uint64
	for i, size := range []uint64{100, 4096, 1} {
		buf, err := ws.BufferCreate("b", size, winsys.UsageState)
		if err != nil {
			t.Fatalf("BufferCreate: %v", err)
		}
		addr, err := ws.BufferOffset(buf)
		if err != nil {
			t.Fatalf("BufferOffset: %v", err)
		}
		if addr%addressAlign != 0 {
			t.Errorf("buffer %d at %#x is not aligned", i, addr)
		}
		if i == 0 && addr != addressBase {
			t.Errorf("first buffer at %#x, want %#x", addr, addressBase)
		}
		if i > 0 && addr <= prev {
			t.Errorf("buffer %d at %#x, previous at %#x", i, addr, prev)
		}
		prev = addr
	}
	if got := ws.Stats().Buffers; got != 3 {
		t.Errorf("Buffers = %d, want 3", got)
	}
}

func TestSubdataAndMap(t *testing.T) {
	ws := openNoop(t)
	buf, err := ws.BufferCreate("data", 16, winsys.UsageConstants)
	if err != nil {
		t.Fatal(err)
	}
	if err := ws.BufferSubdata(buf, 4, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("BufferSubdata: %v", err)
	}
	if err := ws.BufferSubdata(buf, 14, []byte{1, 2, 3}); !errors.Is(err, winsys.ErrOutOfRange) {
		t.Errorf("overflowing write = %v, want ErrOutOfRange", err)
	}

	data, err := ws.BufferMap(buf)
	if err != nil {
		t.Fatalf("BufferMap: %v", err)
	}
	if len(data) != 16 || data[4] != 1 || data[7] != 4 {
		t.Errorf("mapped = %v", data)
	}
	if err := ws.BufferUnmap(buf); err != nil {
		t.Errorf("BufferUnmap: %v", err)
	}
}

func TestDestroyedBuffer(t *testing.T) {
	ws := openNoop(t)
	buf, err := ws.BufferCreate("gone", 8, winsys.UsageState)
	if err != nil {
		t.Fatal(err)
	}
	ws.BufferDestroy(buf)
	if _, err := ws.BufferOffset(buf); !errors.Is(err, winsys.ErrNoBuffer) {
		t.Errorf("BufferOffset after destroy = %v, want ErrNoBuffer", err)
	}
	if _, err := ws.BufferCreate("empty", 0, winsys.UsageState); err == nil {
		t.Error("zero-size buffer created")
	}
}

func TestBatchSubmitAndFence(t *testing.T) {
	ws := openNoop(t)
	target, err := ws.BufferCreate("target", 64, winsys.UsageState)
	if err != nil {
		t.Fatal(err)
	}
	b, err := winsys.NewBatch(ws, 64, 4)
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}
	defer b.Destroy()
	if err := b.Start(2, 1); err != nil {
		t.Fatal(err)
	}
	b.WriteDword(0)
	b.WriteReloc(target, winsys.AccessRead, 0)
	if err := b.End(); err != nil {
		t.Fatal(err)
	}
	fence, err := b.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if fence == 0 {
		t.Error("submission returned the zero fence")
	}
	if !ws.FenceSignalled(fence) {
		t.Error("noop submission not complete")
	}
	if err := ws.FenceFinish(context.Background(), fence); err != nil {
		t.Errorf("FenceFinish: %v", err)
	}
	if got := ws.Stats().Submits; got != 1 {
		t.Errorf("Submits = %d, want 1", got)
	}
}

func TestClosedWinsys(t *testing.T) {
	ws, err := Open(noop.API{})
	if err != nil {
		t.Fatal(err)
	}
	ws.Destroy()
	ws.Destroy()
	if _, err := ws.BufferCreate("late", 8, winsys.UsageState); !errors.Is(err, ErrClosed) {
		t.Errorf("BufferCreate after Destroy = %v, want ErrClosed", err)
	}
	if _, err := ws.Submit(nil, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit after Destroy = %v, want ErrClosed", err)
	}
}
