// Package winsys defines the contract between the driver core and the
// window system / kernel layer underneath it: GPU-visible buffers, batch
// submission with relocations, and fences.
//
// The core never talks to a device directly. Everything it uploads goes
// through a Winsys, and every command it records lands in a Batch that is
// handed to Winsys.Submit on flush.
package winsys

import (
	"context"
	"errors"
	"fmt"
)

// Winsys errors.
var (
	// ErrBatchFull is returned by Batch.Start when the requested space does
	// not fit. The caller is expected to flush and retry.
	ErrBatchFull = errors.New("winsys: batch full")

	// ErrBatchOverrun is returned by Batch.End when more dwords or
	// relocations were written than reserved by Start.
	ErrBatchOverrun = errors.New("winsys: batch reservation overrun")

	// ErrBatchNotStarted is returned when writing outside a Start/End pair.
	ErrBatchNotStarted = errors.New("winsys: batch write outside start/end")

	// ErrBatchOpen is returned by Batch.Flush while a reservation is open.
	ErrBatchOpen = errors.New("winsys: flush with open reservation")

	// ErrNoBuffer is returned when a nil or destroyed buffer is used.
	ErrNoBuffer = errors.New("winsys: invalid buffer")

	// ErrMapFailed is returned when a buffer cannot be mapped.
	ErrMapFailed = errors.New("winsys: buffer map failed")

	// ErrOutOfRange is returned when a subdata write exceeds the buffer.
	ErrOutOfRange = errors.New("winsys: range exceeds buffer")
)

// Access describes how the GPU will touch a relocated buffer.
type Access uint8

// Access flags.
const (
	AccessRead Access = 1 << iota
	AccessWrite
)

// String returns a short representation of the access flags.
func (a Access) String() string {
	switch a {
	case AccessRead:
		return "R"
	case AccessWrite:
		return "W"
	case AccessRead | AccessWrite:
		return "RW"
	default:
		return fmt.Sprintf("Access(%d)", uint8(a))
	}
}

// Usage tags a buffer with its role. Backends use it to pick memory
// placement; debug dumps use it to label uploads.
type Usage uint8

// Buffer usages.
const (
	UsageState Usage = iota
	UsageSurfaceState
	UsageConstants
	UsageVertex
	UsageIndex
	UsageTexture
	UsageRenderTarget
	UsageDepth
	UsageBatch
)

var usageNames = [...]string{
	UsageState:        "state",
	UsageSurfaceState: "surface-state",
	UsageConstants:    "constants",
	UsageVertex:       "vertex",
	UsageIndex:        "index",
	UsageTexture:      "texture",
	UsageRenderTarget: "render-target",
	UsageDepth:        "depth",
	UsageBatch:        "batch",
}

// String returns the usage name.
func (u Usage) String() string {
	if int(u) < len(usageNames) {
		return usageNames[u]
	}
	return fmt.Sprintf("Usage(%d)", uint8(u))
}

// Buffer is an opaque GPU-visible allocation owned by a Winsys.
type Buffer interface {
	// Size returns the buffer size in bytes.
	Size() uint64

	// Label returns the debug label given at creation.
	Label() string
}

// Fence represents work submitted up to some point. The zero Fence is
// always signalled.
type Fence uint64

// Reloc is a deferred patch of one batch dword: at flush time the dword
// becomes the GPU address of Buffer plus Delta.
type Reloc struct {
	// Index is the dword position inside the batch.
	Index int

	// Buffer is the relocation target. It stays referenced until flush.
	Buffer Buffer

	// Access is how the GPU will use the target.
	Access Access

	// Delta is added to the buffer address.
	Delta uint32
}

// Winsys is the downstream interface the driver core consumes.
type Winsys interface {
	// BufferCreate allocates a GPU-visible buffer.
	BufferCreate(label string, size uint64, usage Usage) (Buffer, error)

	// BufferDestroy releases a buffer. Destroying nil is a no-op.
	BufferDestroy(buf Buffer)

	// BufferMap maps the whole buffer for CPU access.
	BufferMap(buf Buffer) ([]byte, error)

	// BufferUnmap releases a mapping made by BufferMap.
	BufferUnmap(buf Buffer) error

	// BufferSubdata copies data into buf at offset.
	BufferSubdata(buf Buffer, offset uint64, data []byte) error

	// BufferOffset returns the GPU address buf is currently bound at.
	BufferOffset(buf Buffer) (uint64, error)

	// Submit hands a fully resolved batch to the GPU.
	Submit(cmds []uint32, relocs []Reloc) (Fence, error)

	// FenceSignalled reports whether the work behind f has completed.
	FenceSignalled(f Fence) bool

	// FenceFinish blocks until f signals or ctx is done.
	FenceFinish(ctx context.Context, f Fence) error
}
