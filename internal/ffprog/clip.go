package ffprog

import (
	"fmt"

	"github.com/gogpu/i965/internal/eu"
	"github.com/gogpu/i965/internal/pipe"
)

// ClipKey selects a clip kernel.
type ClipKey struct {
	Prim       pipe.Primitive // reduced
	NrAttrs    int
	NrUserClip int
}

// CompileClip builds the clip kernel. With user planes enabled it ANDs
// the outcodes the vertex kernel left in the headers and drops the
// primitive when every vertex is outside the same plane. Everything else
// is passed through unchanged; with no user planes the kernel accepts
// all primitives.
func CompileClip(key ClipKey) (*Kernel, error) {
	if key.Prim != key.Prim.Reduced() {
		return nil, fmt.Errorf("%w: clip for %s", ErrBadKey, key.Prim)
	}
	if key.NrUserClip < 0 || key.NrUserClip > pipe.MaxClipPlanes {
		return nil, fmt.Errorf("%w: %d user clip planes", ErrBadKey, key.NrUserClip)
	}
	b, err := newBuilder(key.NrAttrs, verticesOf(key.Prim))
	if err != nil {
		return nil, err
	}
	p := b.p
	p.SetAccessMode(eu.Align1)
	r0 := eu.UD8(eu.FileGRF, 0, 0)

	if key.NrUserClip > 0 {
		mask := uint32(1)<<key.NrUserClip - 1
		outcodes := eu.UD1(eu.FileGRF, b.tmp().Nr, 0)
		for v := range b.nverts {
			if v == b.nverts-1 {
				p.SetCondMod(eu.CondNZ)
			}
			flags := eu.UD1(eu.FileGRF, b.vertexBase(v), 3)
			if v == 0 {
				p.AND(outcodes, flags, eu.ImmUD(mask))
			} else {
				p.AND(outcodes, outcodes, flags)
			}
		}
		// Rejected: release the URB entry and end.
		p.URBWrite(eu.Null(), 0, r0, false, false, 1, 0, true, false, 0, eu.URBSwizzleNone)
		p.SetPredicate(eu.PredicateNone, false)
	}

	for v := range b.nverts {
		b.copyVertex(v)
		last := v == b.nverts-1
		p.URBWrite(eu.Null(), 0, r0, v > 0, true, 1+b.vregs, 0, last, true, uint32(v)*b.vregs, eu.URBSwizzleNone)
	}
	return b.kernel()
}
