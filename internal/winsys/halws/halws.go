// Package halws implements the driver's winsys contract on top of a
// github.com/gogpu/wgpu HAL device and queue.
//
// Buffers are HAL buffers. Each buffer is given a fixed address in a linear
// GPU address space when it is created; relocations resolve against that
// address. A fence is the queue submission index, so polling a fence is a
// comparison against Queue.PollCompleted.
package halws

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unsafe"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/i965/internal/winsys"
)

// Errors returned by the HAL winsys.
var (
	// ErrNoDevice is returned when no HAL device or queue is available.
	ErrNoDevice = errors.New("halws: no HAL device")

	// ErrNoAdapter is returned when a backend exposes no adapters.
	ErrNoAdapter = errors.New("halws: backend exposes no adapters")

	// ErrClosed is returned after Destroy.
	ErrClosed = errors.New("halws: winsys destroyed")
)

const (
	// addressBase is where the linear GPU address space starts. Address 0
	// stays unused so a zero relocation is recognizable in dumps.
	addressBase = 0x0010_0000

	// addressAlign is the alignment of every buffer address.
	addressAlign = 4096

	// fencePoll is the polling interval used by FenceFinish.
	fencePoll = 100 * time.Microsecond
)

// Buffer is a HAL-backed winsys buffer.
type Buffer struct {
	raw     hal.Buffer
	label   string
	size    uint64
	usage   winsys.Usage
	addr    uint64
	mapped  bool
	retired bool
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 { return b.size }

// Label returns the debug label.
func (b *Buffer) Label() string { return b.label }

// Usage returns the buffer role.
func (b *Buffer) Usage() winsys.Usage { return b.usage }

// Raw returns the underlying HAL buffer.
func (b *Buffer) Raw() hal.Buffer { return b.raw }

// Stats counts winsys activity.
type Stats struct {
	Buffers      int
	BytesLive    uint64
	Submits      uint64
	SubdataBytes uint64
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("halws[%d buffers, %d KiB live, %d submits, %d KiB uploaded]",
		s.Buffers, s.BytesLive/1024, s.Submits, s.SubdataBytes/1024)
}

// Winsys implements winsys.Winsys over a HAL device and queue.
//
// Winsys is not safe for concurrent use; the driver core is single
// threaded and owns its winsys.
type Winsys struct {
	device hal.Device
	queue  hal.Queue

	// Set when the winsys opened the device itself.
	instance hal.Instance
	owned    bool

	buffers  map[*Buffer]struct{}
	nextAddr uint64
	stats    Stats
	closed   bool
}

var _ winsys.Winsys = (*Winsys)(nil)

// New wraps an existing HAL device and queue. The caller keeps ownership of
// both; Destroy only releases buffers created through the winsys.
func New(device hal.Device, queue hal.Queue) (*Winsys, error) {
	if device == nil || queue == nil {
		return nil, ErrNoDevice
	}
	return &Winsys{
		device:   device,
		queue:    queue,
		buffers:  make(map[*Buffer]struct{}),
		nextAddr: addressBase,
	}, nil
}

// NewFromProvider wraps the device and queue of a gpucontext provider,
// such as a host application's window context. The provider must expose
// HAL objects.
func NewFromProvider(p gpucontext.DeviceProvider) (*Winsys, error) {
	if p == nil {
		return nil, ErrNoDevice
	}
	device, ok := p.Device().(hal.Device)
	if !ok {
		return nil, fmt.Errorf("%w: provider device is %T", ErrNoDevice, p.Device())
	}
	queue, ok := p.Queue().(hal.Queue)
	if !ok {
		return nil, fmt.Errorf("%w: provider queue is %T", ErrNoDevice, p.Queue())
	}
	info := p.AdapterInfo()
	slogger().Info("halws: using provider device", "adapter", info.Name, "type", info.Type.String())
	return New(device, queue)
}

// Open creates an instance on backend, opens its first adapter with default
// limits and wraps the resulting device. The winsys owns the device and
// destroys it in Destroy.
func Open(backend hal.Backend) (*Winsys, error) {
	if backend == nil {
		return nil, ErrNoDevice
	}
	instance, err := backend.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("halws: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	exposed := adapters[0]
	open, err := exposed.Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("halws: open adapter %q: %w", exposed.Info.Name, err)
	}
	slogger().Info("halws: opened adapter", "name", exposed.Info.Name, "driver", exposed.Info.Driver)

	ws, err := New(open.Device, open.Queue)
	if err != nil {
		instance.Destroy()
		return nil, err
	}
	ws.instance = instance
	ws.owned = true
	return ws, nil
}

func halUsage(u winsys.Usage) gputypes.BufferUsage {
	base := gputypes.BufferUsageCopyDst | gputypes.BufferUsageMapWrite
	switch u {
	case winsys.UsageVertex:
		return base | gputypes.BufferUsageVertex
	case winsys.UsageIndex:
		return base | gputypes.BufferUsageIndex
	case winsys.UsageConstants:
		return base | gputypes.BufferUsageUniform
	case winsys.UsageRenderTarget, winsys.UsageDepth, winsys.UsageTexture:
		return base | gputypes.BufferUsageCopySrc | gputypes.BufferUsageMapRead
	case winsys.UsageBatch:
		return base | gputypes.BufferUsageIndirect
	default:
		return base | gputypes.BufferUsageStorage
	}
}

func alignAddr(v uint64) uint64 {
	return (v + addressAlign - 1) &^ (addressAlign - 1)
}

// BufferCreate allocates a HAL buffer and assigns it a GPU address.
func (w *Winsys) BufferCreate(label string, size uint64, usage winsys.Usage) (winsys.Buffer, error) {
	if w.closed {
		return nil, ErrClosed
	}
	if size == 0 {
		return nil, fmt.Errorf("halws: buffer %q: zero size", label)
	}
	raw, err := w.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: halUsage(usage),
	})
	if err != nil {
		return nil, fmt.Errorf("halws: create buffer %q (%d bytes): %w", label, size, err)
	}
	b := &Buffer{
		raw:   raw,
		label: label,
		size:  size,
		usage: usage,
		addr:  w.nextAddr,
	}
	w.nextAddr = alignAddr(w.nextAddr + size)
	w.buffers[b] = struct{}{}
	w.stats.Buffers++
	w.stats.BytesLive += size

	slogger().Debug("halws: buffer created", "label", label, "size", size, "usage", usage.String(), "addr", b.addr)
	return b, nil
}

func (w *Winsys) lookup(buf winsys.Buffer) (*Buffer, error) {
	if w.closed {
		return nil, ErrClosed
	}
	b, ok := buf.(*Buffer)
	if !ok || b == nil || b.retired {
		return nil, winsys.ErrNoBuffer
	}
	if _, live := w.buffers[b]; !live {
		return nil, winsys.ErrNoBuffer
	}
	return b, nil
}

// BufferDestroy releases a buffer.
func (w *Winsys) BufferDestroy(buf winsys.Buffer) {
	b, err := w.lookup(buf)
	if err != nil {
		return
	}
	if b.mapped {
		if err := w.device.UnmapBuffer(b.raw); err != nil {
			slogger().Warn("halws: unmap on destroy failed", "label", b.label, "err", err)
		}
	}
	w.device.DestroyBuffer(b.raw)
	b.retired = true
	delete(w.buffers, b)
	w.stats.Buffers--
	w.stats.BytesLive -= b.size
}

// BufferMap maps the whole buffer for CPU access.
func (w *Winsys) BufferMap(buf winsys.Buffer) ([]byte, error) {
	b, err := w.lookup(buf)
	if err != nil {
		return nil, err
	}
	m, err := w.device.MapBuffer(b.raw, 0, b.size)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", winsys.ErrMapFailed, b.label, err)
	}
	if m.Ptr == nil {
		return nil, fmt.Errorf("%w: %s: nil mapping", winsys.ErrMapFailed, b.label)
	}
	b.mapped = true
	return unsafe.Slice((*byte)(m.Ptr), b.size), nil
}

// BufferUnmap releases a mapping.
func (w *Winsys) BufferUnmap(buf winsys.Buffer) error {
	b, err := w.lookup(buf)
	if err != nil {
		return err
	}
	if !b.mapped {
		return nil
	}
	b.mapped = false
	if err := w.device.UnmapBuffer(b.raw); err != nil {
		return fmt.Errorf("halws: unmap %s: %w", b.label, err)
	}
	return nil
}

// BufferSubdata writes data into the buffer through the queue.
func (w *Winsys) BufferSubdata(buf winsys.Buffer, offset uint64, data []byte) error {
	b, err := w.lookup(buf)
	if err != nil {
		return err
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("%w: %s: [%d, %d) of %d", winsys.ErrOutOfRange, b.label, offset, offset+uint64(len(data)), b.size)
	}
	if len(data) == 0 {
		return nil
	}
	if err := w.queue.WriteBuffer(b.raw, offset, data); err != nil {
		return fmt.Errorf("halws: write %s: %w", b.label, err)
	}
	w.stats.SubdataBytes += uint64(len(data))
	return nil
}

// BufferOffset returns the GPU address of the buffer.
func (w *Winsys) BufferOffset(buf winsys.Buffer) (uint64, error) {
	b, err := w.lookup(buf)
	if err != nil {
		return 0, err
	}
	return b.addr, nil
}

// Submit records a batch submission on the queue. The batch words have
// already been uploaded and relocated by winsys.Batch; the returned fence
// is the submission index.
func (w *Winsys) Submit(cmds []uint32, relocs []winsys.Reloc) (winsys.Fence, error) {
	if w.closed {
		return 0, ErrClosed
	}
	for _, r := range relocs {
		if _, err := w.lookup(r.Buffer); err != nil {
			return 0, fmt.Errorf("halws: relocation at dword %d: %w", r.Index, err)
		}
	}
	idx, err := w.queue.Submit(nil)
	if err != nil {
		return 0, fmt.Errorf("halws: submit: %w", err)
	}
	w.stats.Submits++
	slogger().Debug("halws: batch submitted", "dwords", len(cmds), "relocs", len(relocs), "fence", idx)
	return winsys.Fence(idx), nil
}

// FenceSignalled reports whether the queue has completed submission f.
func (w *Winsys) FenceSignalled(f winsys.Fence) bool {
	if f == 0 {
		return true
	}
	if w.closed {
		return true
	}
	return w.queue.PollCompleted() >= uint64(f)
}

// FenceFinish polls until f completes or ctx is done.
func (w *Winsys) FenceFinish(ctx context.Context, f winsys.Fence) error {
	if w.FenceSignalled(f) {
		return nil
	}
	ticker := time.NewTicker(fencePoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("halws: wait for fence %d: %w", f, ctx.Err())
		case <-ticker.C:
			if w.FenceSignalled(f) {
				return nil
			}
		}
	}
}

// Stats returns a snapshot of winsys counters.
func (w *Winsys) Stats() Stats {
	return w.stats
}

// Destroy releases every buffer created through the winsys and, when the
// winsys opened the device itself, the device and instance.
func (w *Winsys) Destroy() {
	if w.closed {
		return
	}
	for b := range w.buffers {
		w.BufferDestroy(b)
	}
	w.closed = true
	if w.owned {
		if err := w.device.WaitIdle(); err != nil {
			slogger().Warn("halws: wait idle on destroy failed", "err", err)
		}
		w.device.Destroy()
		if w.instance != nil {
			w.instance.Destroy()
		}
	}
}
