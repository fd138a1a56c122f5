package cache

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/gogpu/i965/internal/pool"
	"github.com/gogpu/i965/internal/winsys"
	"github.com/gogpu/i965/internal/winsys/wstest"
)

const (
	idA ID = 1
	idB ID = 7
)

type fixture struct {
	ws       *wstest.Winsys
	pool     *pool.Pool
	cache    *Cache
	notified []ID
}

func newFixture(t *testing.T, size uint32) *fixture {
	t.Helper()
	f := &fixture{ws: wstest.New()}
	p, err := pool.New(f.ws, "gs", size, winsys.UsageState)
	if err != nil {
		t.Fatal(err)
	}
	f.pool = p
	f.cache = New(func(id ID) { f.notified = append(f.notified, id) })
	f.cache.Register(idA, "A", p, 32)
	f.cache.Register(idB, "B", p, 64)
	return f
}

func key(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}

func TestLookupOrInsertIdempotent(t *testing.T) {
	f := newFixture(t, 4096)

	first, err := f.cache.LookupOrInsert(idA, key(42), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	watermark := f.pool.Offset()
	for range 5 {
		off, err := f.cache.LookupOrInsert(idA, key(42), nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		if off != first {
			t.Fatalf("offset = %d, want %d", off, first)
		}
	}
	if f.pool.Offset() != watermark {
		t.Errorf("pool grew on hits: %d -> %d", watermark, f.pool.Offset())
	}
	st := f.cache.Stats()
	if st.Hits != 5 || st.Misses != 1 {
		t.Errorf("Stats() = %v", st)
	}
}

func TestSameKeyDifferentID(t *testing.T) {
	f := newFixture(t, 4096)
	a, err := f.cache.LookupOrInsert(idA, key(1), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := f.cache.LookupOrInsert(idB, key(1), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Errorf("ids A and B share offset %d", a)
	}
	if b%64 != 0 {
		t.Errorf("id B offset %d not 64-aligned", b)
	}
}

func TestPayloadUploaded(t *testing.T) {
	f := newFixture(t, 4096)
	payload := []byte{0xde, 0xad, 0xbe, 0xef, 1, 2, 3, 4}
	off, err := f.cache.LookupOrInsert(idA, key(9), payload, "meta")
	if err != nil {
		t.Fatal(err)
	}
	buf := f.ws.Find("gs")
	if !bytes.Equal(buf.Data[off:off+8], payload) {
		t.Errorf("pool bytes = %x, want %x", buf.Data[off:off+8], payload)
	}
	gotOff, aux, ok := f.cache.Lookup(idA, key(9))
	if !ok || gotOff != off || aux != "meta" {
		t.Errorf("Lookup() = %d, %v, %v", gotOff, aux, ok)
	}
	if _, _, ok := f.cache.Lookup(idA, key(10)); ok {
		t.Error("Lookup() of missing key succeeded")
	}
}

func TestNotifyOnOffsetChange(t *testing.T) {
	f := newFixture(t, 4096)

	steps := []struct {
		k          uint32
		wantNotify bool
	}{
		{1, true},  // first resolution
		{1, false}, // same offset
		{2, true},  // new object
		{2, false},
		{1, true}, // back to the first one
	}
	for i, s := range steps {
		before := len(f.notified)
		if _, err := f.cache.LookupOrInsert(idA, key(s.k), nil, nil); err != nil {
			t.Fatal(err)
		}
		got := len(f.notified) > before
		if got != s.wantNotify {
			t.Errorf("step %d: notified = %v, want %v", i, got, s.wantNotify)
		}
	}
}

func TestClearOnPoolInvalidate(t *testing.T) {
	f := newFixture(t, 4096)
	if _, err := f.cache.LookupOrInsert(idA, key(1), nil, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := f.cache.LookupOrInsert(idA, key(2), nil, nil); err != nil {
		t.Fatal(err)
	}

	f.pool.Invalidate()
	if f.cache.Len() != 0 {
		t.Fatalf("Len() = %d after invalidate", f.cache.Len())
	}

	f.notified = nil
	off, err := f.cache.LookupOrInsert(idA, key(2), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if off != 0 {
		t.Errorf("offset after invalidate = %d, want 0", off)
	}
	if len(f.notified) != 1 {
		t.Errorf("notified %d times after clear, want 1", len(f.notified))
	}
}

func TestGrowKeepsEntries(t *testing.T) {
	f := newFixture(t, 1<<16)
	offsets := make(map[uint32]uint32)
	for i := range uint32(200) {
		off, err := f.cache.LookupOrInsert(idA, key(i), nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		offsets[i] = off
	}
	st := f.cache.Stats()
	if st.Buckets <= initialBuckets {
		t.Errorf("Buckets = %d, table never grew", st.Buckets)
	}
	if st.Len > st.Buckets*maxLoad {
		t.Errorf("load %d/%d exceeds %d", st.Len, st.Buckets, maxLoad)
	}
	for i, want := range offsets {
		got, _, ok := f.cache.Lookup(idA, key(i))
		if !ok || got != want {
			t.Errorf("key %d: Lookup() = %d, %v; want %d", i, got, ok, want)
		}
	}
}

func TestLookupOrInsertErrors(t *testing.T) {
	tests := []struct {
		name string
		run  func(f *fixture) error
		want error
	}{
		{
			name: "unknown id",
			run: func(f *fixture) error {
				_, err := f.cache.LookupOrInsert(3, key(1), nil, nil)
				return err
			},
			want: ErrUnknownID,
		},
		{
			name: "empty key",
			run: func(f *fixture) error {
				_, err := f.cache.LookupOrInsert(idA, nil, nil, nil)
				return err
			},
			want: ErrEmptyKey,
		},
		{
			name: "pool exhausted",
			run: func(f *fixture) error {
				_, err := f.cache.LookupOrInsert(idA, key(1), make([]byte, 256), nil)
				return err
			},
			want: pool.ErrPoolExhausted,
		},
		{
			name: "upload failure",
			run: func(f *fixture) error {
				f.ws.FailSubdata = true
				_, err := f.cache.LookupOrInsert(idA, key(1), nil, nil)
				return err
			},
			want: wstest.ErrInjected,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 128)
			if err := tt.run(f); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if f.cache.Len() != 0 {
				t.Errorf("failed insert left %d entries", f.cache.Len())
			}
		})
	}
}

func TestName(t *testing.T) {
	f := newFixture(t, 128)
	if got := f.cache.Name(idA); got != "A" {
		t.Errorf("Name(idA) = %q", got)
	}
	if got := f.cache.Name(5); got != "ID(5)" {
		t.Errorf("Name(5) = %q", got)
	}
}

func BenchmarkLookupHit(b *testing.B) {
	ws := wstest.New()
	p, _ := pool.New(ws, "gs", 1<<20, winsys.UsageState)
	c := New(nil)
	c.Register(idA, "A", p, 32)
	k := make([]byte, 32)
	if _, err := c.LookupOrInsert(idA, k, nil, nil); err != nil {
		b.Fatal(err)
	}
	for b.Loop() {
		_, _ = c.LookupOrInsert(idA, k, nil, nil)
	}
}
