package winsys

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Default batch limits.
const (
	// DefaultBatchDwords is the default batch capacity in dwords (32 KiB).
	DefaultBatchDwords = 8192

	// DefaultBatchRelocs is the default number of relocations per batch.
	DefaultBatchRelocs = 400

	// batchReserved keeps room for MI_BATCH_BUFFER_END and its padding.
	batchReserved = 2
)

// Command dwords the batch itself emits.
const (
	miNoop           = 0
	miBatchBufferEnd = 0x0A << 23
)

// Batch is an append-only command buffer with inline relocations.
//
// Writes happen inside Start/End pairs that reserve space up front, so a
// packet is never split across two batches. Relocations are recorded by
// position and resolved against Winsys.BufferOffset only when the batch is
// flushed.
type Batch struct {
	ws  Winsys
	buf Buffer

	cmds   []uint32
	relocs []Reloc

	maxDwords int
	maxRelocs int

	// Open reservation.
	open       bool
	dwordLimit int
	relocLimit int
	err        error

	flushes uint64
	// gen counts resets, so a Mark taken before one is recognised.
	gen uint64
}

// Mark is a position in a batch that Rollback can return to.
type Mark struct {
	gen    uint64
	dwords int
	relocs int
}

// NewBatch creates a batch with the given limits and allocates its backing
// buffer through ws. Zero limits select the defaults.
func NewBatch(ws Winsys, dwords, relocs int) (*Batch, error) {
	if dwords <= batchReserved {
		dwords = DefaultBatchDwords
	}
	if relocs <= 0 {
		relocs = DefaultBatchRelocs
	}
	buf, err := ws.BufferCreate("batch", uint64(dwords)*4, UsageBatch)
	if err != nil {
		return nil, fmt.Errorf("winsys: create batch buffer: %w", err)
	}
	return &Batch{
		ws:        ws,
		buf:       buf,
		cmds:      make([]uint32, 0, dwords),
		relocs:    make([]Reloc, 0, relocs),
		maxDwords: dwords,
		maxRelocs: relocs,
	}, nil
}

// Start reserves space for dwords command words and relocs relocations.
// It returns ErrBatchFull when the reservation does not fit.
func (b *Batch) Start(dwords, relocs int) error {
	if b.open {
		return ErrBatchOpen
	}
	if dwords+batchReserved > b.maxDwords || relocs > b.maxRelocs {
		return fmt.Errorf("%w: reservation of %d dwords exceeds batch capacity", ErrBatchOverrun, dwords)
	}
	if len(b.cmds)+dwords+batchReserved > b.maxDwords || len(b.relocs)+relocs > b.maxRelocs {
		return ErrBatchFull
	}
	b.open = true
	b.dwordLimit = len(b.cmds) + dwords
	b.relocLimit = len(b.relocs) + relocs
	b.err = nil
	return nil
}

// WriteDword appends one command word.
func (b *Batch) WriteDword(v uint32) {
	if !b.writable(1) {
		return
	}
	b.cmds = append(b.cmds, v)
}

// WriteFloat appends an IEEE-754 single as one command word.
func (b *Batch) WriteFloat(f float32) {
	b.WriteDword(math.Float32bits(f))
}

// WriteReloc appends a placeholder word that will hold the address of buf
// plus delta once the batch is flushed. buf stays referenced until then.
func (b *Batch) WriteReloc(buf Buffer, access Access, delta uint32) {
	if !b.writable(1) {
		return
	}
	if buf == nil {
		b.err = ErrNoBuffer
		return
	}
	if len(b.relocs) >= b.relocLimit {
		b.err = ErrBatchOverrun
		return
	}
	b.relocs = append(b.relocs, Reloc{
		Index:  len(b.cmds),
		Buffer: buf,
		Access: access,
		Delta:  delta,
	})
	b.cmds = append(b.cmds, delta)
}

func (b *Batch) writable(n int) bool {
	if b.err != nil {
		return false
	}
	if !b.open {
		b.err = ErrBatchNotStarted
		return false
	}
	if len(b.cmds)+n > b.dwordLimit {
		b.err = ErrBatchOverrun
		return false
	}
	return true
}

// End closes the reservation opened by Start. It reports any error
// recorded by the writes in between.
func (b *Batch) End() error {
	if !b.open {
		return ErrBatchNotStarted
	}
	b.open = false
	err := b.err
	b.err = nil
	return err
}

// Flush terminates the batch, resolves every relocation against the
// addresses buffers have now, uploads the words and submits them.
// The batch is empty afterwards and its relocation targets are released.
func (b *Batch) Flush() (Fence, error) {
	if b.open {
		return 0, ErrBatchOpen
	}
	if len(b.cmds) == 0 {
		return 0, nil
	}

	b.cmds = append(b.cmds, miBatchBufferEnd)
	if len(b.cmds)%2 != 0 {
		b.cmds = append(b.cmds, miNoop)
	}

	for _, r := range b.relocs {
		addr, err := b.ws.BufferOffset(r.Buffer)
		if err != nil {
			b.reset()
			return 0, fmt.Errorf("winsys: resolve relocation at dword %d (%s): %w", r.Index, r.Buffer.Label(), err)
		}
		b.cmds[r.Index] = uint32(addr) + r.Delta
	}

	data := make([]byte, 0, len(b.cmds)*4)
	for _, v := range b.cmds {
		data = binary.LittleEndian.AppendUint32(data, v)
	}
	if err := b.ws.BufferSubdata(b.buf, 0, data); err != nil {
		b.reset()
		return 0, fmt.Errorf("winsys: upload batch: %w", err)
	}

	fence, err := b.ws.Submit(b.cmds, b.relocs)
	b.reset()
	if err != nil {
		return 0, fmt.Errorf("winsys: submit batch: %w", err)
	}
	b.flushes++
	return fence, nil
}

func (b *Batch) reset() {
	b.gen++
	b.cmds = b.cmds[:0]
	clear(b.relocs)
	b.relocs = b.relocs[:0]
}

// Mark returns the current end of the batch.
func (b *Batch) Mark() Mark {
	return Mark{gen: b.gen, dwords: len(b.cmds), relocs: len(b.relocs)}
}

// Rollback drops every word and relocation recorded after m, along with
// an open reservation. If the batch was flushed since m was taken,
// everything it holds came later and is dropped.
func (b *Batch) Rollback(m Mark) {
	b.open = false
	b.err = nil
	if m.gen != b.gen {
		b.reset()
		return
	}
	b.cmds = b.cmds[:m.dwords]
	clear(b.relocs[m.relocs:])
	b.relocs = b.relocs[:m.relocs]
}

// Len returns the number of dwords currently recorded.
func (b *Batch) Len() int { return len(b.cmds) }

// Space returns how many dwords a Start call could still reserve.
func (b *Batch) Space() int { return b.maxDwords - batchReserved - len(b.cmds) }

// Empty reports whether nothing has been recorded since the last flush.
func (b *Batch) Empty() bool { return len(b.cmds) == 0 }

// Flushes returns how many non-empty batches were submitted.
func (b *Batch) Flushes() uint64 { return b.flushes }

// Words returns a copy of the recorded, unresolved command words.
func (b *Batch) Words() []uint32 {
	out := make([]uint32, len(b.cmds))
	copy(out, b.cmds)
	return out
}

// Relocs returns a copy of the pending relocations.
func (b *Batch) Relocs() []Reloc {
	out := make([]Reloc, len(b.relocs))
	copy(out, b.relocs)
	return out
}

// Destroy releases the backing buffer. Pending commands are dropped.
func (b *Batch) Destroy() {
	b.reset()
	if b.buf != nil {
		b.ws.BufferDestroy(b.buf)
		b.buf = nil
	}
}
