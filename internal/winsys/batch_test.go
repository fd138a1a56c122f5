package winsys_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/gogpu/i965/internal/winsys"
	"github.com/gogpu/i965/internal/winsys/wstest"
)

func newBatch(t *testing.T, ws *wstest.Winsys, dwords, relocs int) *winsys.Batch {
	t.Helper()
	b, err := winsys.NewBatch(ws, dwords, relocs)
	if err != nil {
		t.Fatalf("NewBatch() error = %v", err)
	}
	return b
}

func TestBatchWriteAndFlush(t *testing.T) {
	ws := wstest.New()
	b := newBatch(t, ws, 64, 4)

	if err := b.Start(3, 0); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	b.WriteDword(0x7a000003)
	b.WriteDword(1)
	b.WriteFloat(1.0)
	if err := b.End(); err != nil {
		t.Fatalf("End() error = %v", err)
	}

	fence, err := b.Flush()
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if fence == 0 {
		t.Error("Flush() returned zero fence for non-empty batch")
	}
	sub := ws.Last()
	if sub == nil {
		t.Fatal("no submission recorded")
	}
	want := []uint32{0x7a000003, 1, 0x3f800000, 0x0A << 23}
	if len(sub.Cmds) != len(want) {
		t.Fatalf("submitted %d dwords, want %d", len(sub.Cmds), len(want))
	}
	for i := range want {
		if sub.Cmds[i] != want[i] {
			t.Errorf("dword %d = %#x, want %#x", i, sub.Cmds[i], want[i])
		}
	}
	if !b.Empty() {
		t.Error("batch not empty after flush")
	}
}

func TestBatchFlushPadsToQword(t *testing.T) {
	ws := wstest.New()
	b := newBatch(t, ws, 64, 4)
	if err := b.Start(2, 0); err != nil {
		t.Fatal(err)
	}
	b.WriteDword(1)
	b.WriteDword(2)
	if err := b.End(); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Flush(); err != nil {
		t.Fatal(err)
	}
	cmds := ws.Last().Cmds
	if len(cmds)%2 != 0 {
		t.Errorf("len = %d, want even", len(cmds))
	}
	if cmds[2] != 0x0A<<23 || cmds[3] != 0 {
		t.Errorf("tail = %#x %#x, want batch end + noop", cmds[2], cmds[3])
	}
}

func TestBatchRelocationsResolveAtFlush(t *testing.T) {
	ws := wstest.New()
	b := newBatch(t, ws, 64, 4)
	target, err := ws.BufferCreate("target", 4096, winsys.UsageVertex)
	if err != nil {
		t.Fatal(err)
	}

	if err := b.Start(2, 1); err != nil {
		t.Fatal(err)
	}
	b.WriteDword(0x78080003)
	b.WriteReloc(target, winsys.AccessRead, 0x40)
	if err := b.End(); err != nil {
		t.Fatal(err)
	}

	// Unresolved until flush: the placeholder holds the delta only.
	if got := b.Words()[1]; got != 0x40 {
		t.Errorf("pre-flush word = %#x, want delta 0x40", got)
	}

	// Move the buffer after recording; the flush must see the new address.
	target.(*wstest.Buffer).Addr = 0x200000

	if _, err := b.Flush(); err != nil {
		t.Fatal(err)
	}
	sub := ws.Last()
	if got := sub.Cmds[1]; got != 0x200040 {
		t.Errorf("relocated word = %#x, want %#x", got, 0x200040)
	}
	if len(sub.Relocs) != 1 || sub.Relocs[0].Index != 1 || sub.Relocs[0].Access != winsys.AccessRead {
		t.Errorf("relocs = %+v", sub.Relocs)
	}

	// The uploaded bytes match the submitted words.
	batchBuf := ws.Find("batch")
	if got := binary.LittleEndian.Uint32(batchBuf.Data[4:]); got != 0x200040 {
		t.Errorf("uploaded word = %#x, want %#x", got, 0x200040)
	}
}

func TestBatchReservationErrors(t *testing.T) {
	tests := []struct {
		name string
		run  func(b *winsys.Batch) error
		want error
	}{
		{
			name: "write without start",
			run: func(b *winsys.Batch) error {
				b.WriteDword(1)
				if err := b.Start(1, 0); err != nil {
					return err
				}
				return b.End()
			},
			want: nil,
		},
		{
			name: "overrun dwords",
			run: func(b *winsys.Batch) error {
				if err := b.Start(1, 0); err != nil {
					return err
				}
				b.WriteDword(1)
				b.WriteDword(2)
				return b.End()
			},
			want: winsys.ErrBatchOverrun,
		},
		{
			name: "overrun relocs",
			run: func(b *winsys.Batch) error {
				if err := b.Start(2, 0); err != nil {
					return err
				}
				b.WriteReloc(&wstest.Buffer{Name: "x", Data: make([]byte, 4)}, winsys.AccessRead, 0)
				return b.End()
			},
			want: winsys.ErrBatchOverrun,
		},
		{
			name: "end without start",
			run:  func(b *winsys.Batch) error { return b.End() },
			want: winsys.ErrBatchNotStarted,
		},
		{
			name: "nested start",
			run: func(b *winsys.Batch) error {
				if err := b.Start(1, 0); err != nil {
					return err
				}
				return b.Start(1, 0)
			},
			want: winsys.ErrBatchOpen,
		},
		{
			name: "nil reloc target",
			run: func(b *winsys.Batch) error {
				if err := b.Start(1, 1); err != nil {
					return err
				}
				b.WriteReloc(nil, winsys.AccessRead, 0)
				return b.End()
			},
			want: winsys.ErrNoBuffer,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBatch(t, wstest.New(), 64, 4)
			err := tt.run(b)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("err = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBatchFull(t *testing.T) {
	b := newBatch(t, wstest.New(), 16, 4)
	if err := b.Start(10, 0); err != nil {
		t.Fatal(err)
	}
	for i := range 10 {
		b.WriteDword(uint32(i))
	}
	if err := b.End(); err != nil {
		t.Fatal(err)
	}
	if err := b.Start(8, 0); !errors.Is(err, winsys.ErrBatchFull) {
		t.Fatalf("Start() = %v, want ErrBatchFull", err)
	}
	if _, err := b.Flush(); err != nil {
		t.Fatal(err)
	}
	if err := b.Start(8, 0); err != nil {
		t.Fatalf("Start() after flush = %v", err)
	}
	if err := b.End(); err != nil {
		t.Fatal(err)
	}
}

func TestBatchFlushOpenAndEmpty(t *testing.T) {
	ws := wstest.New()
	b := newBatch(t, ws, 64, 4)

	fence, err := b.Flush()
	if err != nil || fence != 0 {
		t.Fatalf("empty Flush() = %d, %v; want 0, nil", fence, err)
	}
	if len(ws.Submissions) != 0 {
		t.Error("empty flush submitted work")
	}

	if err := b.Start(1, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Flush(); !errors.Is(err, winsys.ErrBatchOpen) {
		t.Fatalf("Flush() with open reservation = %v, want ErrBatchOpen", err)
	}
}

func TestBatchRollback(t *testing.T) {
	ws := wstest.New()
	b := newBatch(t, ws, 64, 4)
	target, err := ws.BufferCreate("target", 64, winsys.UsageState)
	if err != nil {
		t.Fatal(err)
	}

	if err := b.Start(1, 0); err != nil {
		t.Fatal(err)
	}
	b.WriteDword(1)
	if err := b.End(); err != nil {
		t.Fatal(err)
	}
	mark := b.Mark()

	if err := b.Start(2, 1); err != nil {
		t.Fatal(err)
	}
	b.WriteDword(2)
	b.WriteReloc(target, winsys.AccessRead, 0)
	if err := b.End(); err != nil {
		t.Fatal(err)
	}
	if err := b.Start(3, 0); err != nil {
		t.Fatal(err)
	}
	b.WriteDword(3)

	b.Rollback(mark)
	if b.Len() != 1 || len(b.Relocs()) != 0 {
		t.Fatalf("after Rollback: %d dwords, %d relocs; want 1, 0", b.Len(), len(b.Relocs()))
	}
	if err := b.Start(1, 0); err != nil {
		t.Fatalf("Start() after Rollback of an open reservation = %v", err)
	}
	b.WriteDword(4)
	if err := b.End(); err != nil {
		t.Fatal(err)
	}
	if got := b.Words(); len(got) != 2 || got[0] != 1 || got[1] != 4 {
		t.Errorf("words = %v, want [1 4]", got)
	}

	if _, err := b.Flush(); err != nil {
		t.Fatal(err)
	}
	if err := b.Start(1, 0); err != nil {
		t.Fatal(err)
	}
	b.WriteDword(5)
	if err := b.End(); err != nil {
		t.Fatal(err)
	}
	b.Rollback(mark)
	if !b.Empty() {
		t.Errorf("Rollback to a mark from before a flush left %d dwords", b.Len())
	}
}

func TestBatchSubmitFailureResets(t *testing.T) {
	ws := wstest.New()
	b := newBatch(t, ws, 64, 4)
	if err := b.Start(1, 0); err != nil {
		t.Fatal(err)
	}
	b.WriteDword(1)
	if err := b.End(); err != nil {
		t.Fatal(err)
	}
	ws.FailSubmit = true
	if _, err := b.Flush(); !errors.Is(err, wstest.ErrInjected) {
		t.Fatalf("Flush() = %v, want injected error", err)
	}
	if !b.Empty() {
		t.Error("failed flush left commands behind")
	}
}

func TestAccessString(t *testing.T) {
	tests := []struct {
		a    winsys.Access
		want string
	}{
		{winsys.AccessRead, "R"},
		{winsys.AccessWrite, "W"},
		{winsys.AccessRead | winsys.AccessWrite, "RW"},
		{0, "Access(0)"},
	}
	for _, tt := range tests {
		if got := tt.a.String(); got != tt.want {
			t.Errorf("Access(%d).String() = %q, want %q", tt.a, got, tt.want)
		}
	}
}
