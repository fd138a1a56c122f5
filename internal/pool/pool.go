// Package pool implements the linear allocator that backs the driver's
// cached hardware state.
//
// A Pool owns one GPU-visible buffer and hands out byte offsets from a
// single watermark. Allocations are never freed one by one: the whole pool
// is invalidated at once, which also clears every cache that indexes into
// it, since all offsets those caches hold become reusable memory.
package pool

import (
	"errors"
	"fmt"

	"github.com/gogpu/i965/internal/winsys"
)

// Pool errors.
var (
	// ErrPoolExhausted is returned when an allocation would overflow the pool.
	ErrPoolExhausted = errors.New("pool: exhausted")

	// ErrBadAlignment is returned for a zero or non power-of-two alignment.
	ErrBadAlignment = errors.New("pool: alignment must be a power of two")
)

// Default pool sizes.
const (
	// DefaultGeneralSize is the general state pool size (1 MiB).
	DefaultGeneralSize = 1 << 20

	// DefaultSurfaceSize is the surface state pool size (256 KiB).
	DefaultSurfaceSize = 256 << 10

	// wrapNumerator / wrapDenominator is the fill ratio past which
	// CheckWrap asks for a new scene.
	wrapNumerator   = 3
	wrapDenominator = 4
)

// Clearer is implemented by caches that must be emptied when the pool
// they allocate from is invalidated.
type Clearer interface {
	Clear()
}

// Stats describes pool usage.
type Stats struct {
	Size          uint32
	Offset        uint32
	HighWatermark uint32
	Epochs        uint64
	Allocations   uint64
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("Pool[%d/%d bytes, high %d, epoch %d, %d allocs]",
		s.Offset, s.Size, s.HighWatermark, s.Epochs, s.Allocations)
}

// Pool is a linear allocator over one winsys buffer.
type Pool struct {
	name   string
	ws     winsys.Winsys
	buffer winsys.Buffer
	size   uint32
	offset uint32

	caches []Clearer

	high   uint32
	epochs uint64
	allocs uint64
}

// New creates a pool of size bytes backed by a new winsys buffer.
func New(ws winsys.Winsys, name string, size uint32, usage winsys.Usage) (*Pool, error) {
	if size == 0 {
		return nil, fmt.Errorf("pool %s: zero size", name)
	}
	buf, err := ws.BufferCreate(name, uint64(size), usage)
	if err != nil {
		return nil, fmt.Errorf("pool %s: %w", name, err)
	}
	return &Pool{name: name, ws: ws, buffer: buf, size: size}, nil
}

// Attach registers a cache to be cleared on Invalidate.
func (p *Pool) Attach(c Clearer) {
	p.caches = append(p.caches, c)
}

// Alloc reserves size bytes at the next offset aligned to align. The size
// is rounded up to a dword. Offsets handed out are valid until the next
// Invalidate.
func (p *Pool) Alloc(size, align uint32) (uint32, error) {
	if !IsPow2(align) {
		return 0, fmt.Errorf("pool %s: %w: %d", p.name, ErrBadAlignment, align)
	}
	size = AlignUp(size, 4)
	start := AlignUp(p.offset, align)
	if uint64(start)+uint64(size) > uint64(p.size) {
		return 0, fmt.Errorf("pool %s: %w: %d bytes at %d of %d", p.name, ErrPoolExhausted, size, start, p.size)
	}
	p.offset = start + size
	p.high = max(p.high, p.offset)
	p.allocs++
	return start, nil
}

// CheckWrap reports whether the pool is more than three quarters full. The
// owning context reacts by scheduling Invalidate before the next batch.
func (p *Pool) CheckWrap() bool {
	return uint64(p.offset)*wrapDenominator > uint64(p.size)*wrapNumerator
}

// Invalidate resets the watermark and clears every attached cache.
func (p *Pool) Invalidate() {
	p.offset = 0
	p.epochs++
	for _, c := range p.caches {
		c.Clear()
	}
}

// Name returns the pool name.
func (p *Pool) Name() string { return p.name }

// Offset returns the current watermark.
func (p *Pool) Offset() uint32 { return p.offset }

// Size returns the capacity in bytes.
func (p *Pool) Size() uint32 { return p.size }

// Buffer returns the backing buffer.
func (p *Pool) Buffer() winsys.Buffer { return p.buffer }

// Winsys returns the winsys the pool uploads through.
func (p *Pool) Winsys() winsys.Winsys { return p.ws }

// Upload copies data into the pool buffer at offset.
func (p *Pool) Upload(offset uint32, data []byte) error {
	if err := p.ws.BufferSubdata(p.buffer, uint64(offset), data); err != nil {
		return fmt.Errorf("pool %s: upload at %d: %w", p.name, offset, err)
	}
	return nil
}

// Stats returns a usage snapshot.
func (p *Pool) Stats() Stats {
	return Stats{
		Size:          p.size,
		Offset:        p.offset,
		HighWatermark: p.high,
		Epochs:        p.epochs,
		Allocations:   p.allocs,
	}
}

// Destroy releases the backing buffer.
func (p *Pool) Destroy() {
	if p.buffer != nil {
		p.ws.BufferDestroy(p.buffer)
		p.buffer = nil
	}
	p.caches = nil
}
