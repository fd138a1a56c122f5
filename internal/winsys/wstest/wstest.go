// Package wstest provides an in-memory winsys for tests. It records every
// submission and lets tests inject failures.
package wstest

import (
	"context"
	"errors"
	"fmt"

	"github.com/gogpu/i965/internal/winsys"
)

// ErrInjected is returned by operations a test asked to fail.
var ErrInjected = errors.New("wstest: injected failure")

// Buffer is an in-memory buffer.
type Buffer struct {
	Data    []byte
	Name    string
	Use     winsys.Usage
	Addr    uint64
	Mapped  bool
	Retired bool
}

// Size returns len(Data).
func (b *Buffer) Size() uint64 { return uint64(len(b.Data)) }

// Label returns the buffer name.
func (b *Buffer) Label() string { return b.Name }

// Submission is one recorded Submit call.
type Submission struct {
	Cmds   []uint32
	Relocs []winsys.Reloc
	Fence  winsys.Fence
}

// Winsys is an in-memory winsys.Winsys.
type Winsys struct {
	Buffers     []*Buffer
	Submissions []Submission

	// Failure injection.
	FailCreate  bool
	FailSubdata bool
	FailSubmit  bool
	FailMap     bool
	FailUnmap   bool

	nextAddr  uint64
	fence     winsys.Fence
	completed winsys.Fence
}

var _ winsys.Winsys = (*Winsys)(nil)

// New returns an empty winsys whose buffers start at address 0x10000.
func New() *Winsys {
	return &Winsys{nextAddr: 0x10000}
}

// BufferCreate allocates a zeroed buffer.
func (w *Winsys) BufferCreate(label string, size uint64, usage winsys.Usage) (winsys.Buffer, error) {
	if w.FailCreate {
		return nil, ErrInjected
	}
	b := &Buffer{Data: make([]byte, size), Name: label, Use: usage, Addr: w.nextAddr}
	w.nextAddr += (size + 0xfff) &^ 0xfff
	w.Buffers = append(w.Buffers, b)
	return b, nil
}

func (w *Winsys) get(buf winsys.Buffer) (*Buffer, error) {
	b, ok := buf.(*Buffer)
	if !ok || b == nil || b.Retired {
		return nil, winsys.ErrNoBuffer
	}
	return b, nil
}

// BufferDestroy marks the buffer retired.
func (w *Winsys) BufferDestroy(buf winsys.Buffer) {
	if b, err := w.get(buf); err == nil {
		b.Retired = true
	}
}

// BufferMap returns the backing slice.
func (w *Winsys) BufferMap(buf winsys.Buffer) ([]byte, error) {
	if w.FailMap {
		return nil, fmt.Errorf("%w: %w", winsys.ErrMapFailed, ErrInjected)
	}
	b, err := w.get(buf)
	if err != nil {
		return nil, err
	}
	b.Mapped = true
	return b.Data, nil
}

// BufferUnmap clears the mapped flag.
func (w *Winsys) BufferUnmap(buf winsys.Buffer) error {
	b, err := w.get(buf)
	if err != nil {
		return err
	}
	b.Mapped = false
	if w.FailUnmap {
		return ErrInjected
	}
	return nil
}

// BufferSubdata copies data into the buffer.
func (w *Winsys) BufferSubdata(buf winsys.Buffer, offset uint64, data []byte) error {
	if w.FailSubdata {
		return ErrInjected
	}
	b, err := w.get(buf)
	if err != nil {
		return err
	}
	if offset+uint64(len(data)) > uint64(len(b.Data)) {
		return winsys.ErrOutOfRange
	}
	copy(b.Data[offset:], data)
	return nil
}

// BufferOffset returns the buffer address.
func (w *Winsys) BufferOffset(buf winsys.Buffer) (uint64, error) {
	b, err := w.get(buf)
	if err != nil {
		return 0, err
	}
	return b.Addr, nil
}

// Submit records the submission. Fences complete only via Complete.
func (w *Winsys) Submit(cmds []uint32, relocs []winsys.Reloc) (winsys.Fence, error) {
	if w.FailSubmit {
		return 0, ErrInjected
	}
	w.fence++
	s := Submission{
		Cmds:   append([]uint32(nil), cmds...),
		Relocs: append([]winsys.Reloc(nil), relocs...),
		Fence:  w.fence,
	}
	w.Submissions = append(w.Submissions, s)
	return w.fence, nil
}

// Complete marks every submission up to f as finished.
func (w *Winsys) Complete(f winsys.Fence) {
	if f > w.completed {
		w.completed = f
	}
}

// FenceSignalled reports whether f was completed.
func (w *Winsys) FenceSignalled(f winsys.Fence) bool {
	return f <= w.completed
}

// FenceFinish completes f immediately unless ctx is already done.
func (w *Winsys) FenceFinish(ctx context.Context, f winsys.Fence) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.Complete(f)
	return nil
}

// Last returns the most recent submission, or nil.
func (w *Winsys) Last() *Submission {
	if len(w.Submissions) == 0 {
		return nil
	}
	return &w.Submissions[len(w.Submissions)-1]
}

// Find returns the first live buffer with the given label, or nil.
func (w *Winsys) Find(label string) *Buffer {
	for _, b := range w.Buffers {
		if b.Name == label && !b.Retired {
			return b
		}
	}
	return nil
}
