package state

import "fmt"

// Flags is a set of dirty bits. Pipeline bits name changed API state and
// derived hardware state. Cache bits name cache ids that produced a new
// object offset.
type Flags struct {
	Pipeline uint64
	Cache    uint64
}

// All has every bit set.
var All = Flags{Pipeline: ^uint64(0), Cache: ^uint64(0)}

// Empty reports whether no bit is set.
func (f Flags) Empty() bool {
	return f.Pipeline == 0 && f.Cache == 0
}

// Intersects reports whether f and o share a bit.
func (f Flags) Intersects(o Flags) bool {
	return f.Pipeline&o.Pipeline != 0 || f.Cache&o.Cache != 0
}

// Or sets every bit of o in f.
func (f *Flags) Or(o Flags) {
	f.Pipeline |= o.Pipeline
	f.Cache |= o.Cache
}

// And returns the bits set in both f and o.
func (f Flags) And(o Flags) Flags {
	return Flags{Pipeline: f.Pipeline & o.Pipeline, Cache: f.Cache & o.Cache}
}

// Xor returns the bits set in exactly one of f and o.
func (f Flags) Xor(o Flags) Flags {
	return Flags{Pipeline: f.Pipeline ^ o.Pipeline, Cache: f.Cache ^ o.Cache}
}

// Clear zeroes f.
func (f *Flags) Clear() {
	*f = Flags{}
}

// String returns the flags in hex.
func (f Flags) String() string {
	return fmt.Sprintf("{pipeline:%#x cache:%#x}", f.Pipeline, f.Cache)
}

// Pipeline returns flags with the given pipeline bit positions set.
func Pipeline(bits ...uint) Flags {
	var f Flags
	for _, b := range bits {
		f.Pipeline |= 1 << b
	}
	return f
}

// Cache returns flags with the given cache bit positions set.
func Cache(bits ...uint) Flags {
	var f Flags
	for _, b := range bits {
		f.Cache |= 1 << b
	}
	return f
}
