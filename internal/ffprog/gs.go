package ffprog

import (
	"fmt"

	"github.com/gogpu/i965/internal/eu"
	"github.com/gogpu/i965/internal/pipe"
)

// GSKey selects a GS kernel.
type GSKey struct {
	Prim    pipe.Primitive
	NrAttrs int
}

// NeedsGS reports whether p reaches the rasterizer only through the GS.
func NeedsGS(p pipe.Primitive) bool {
	switch p {
	case pipe.PrimQuads, pipe.PrimQuadStrip, pipe.PrimLineLoop, pipe.PrimPolygon:
		return true
	}
	return false
}

// gsEmit is one vertex of the re-emitted primitive.
type gsEmit struct {
	vertex int
	header uint32
}

func gsPlan(p pipe.Primitive) (int, []gsEmit) {
	switch p {
	case pipe.PrimQuads:
		return 4, []gsEmit{
			{3, HWTriStrip<<2 | primStart}, {0, HWTriStrip << 2}, {2, HWTriStrip << 2}, {1, HWTriStrip<<2 | primEnd},
		}
	case pipe.PrimQuadStrip:
		return 4, []gsEmit{
			{2, HWTriStrip<<2 | primStart}, {3, HWTriStrip << 2}, {0, HWTriStrip << 2}, {1, HWTriStrip<<2 | primEnd},
		}
	case pipe.PrimLineLoop:
		return 2, []gsEmit{
			{0, HWLineStrip<<2 | primStart}, {1, HWLineStrip<<2 | primEnd},
		}
	case pipe.PrimPolygon:
		return 3, []gsEmit{
			{0, HWTriList<<2 | primStart}, {1, HWTriList << 2}, {2, HWTriList<<2 | primEnd},
		}
	}
	return 0, nil
}

// CompileGS builds the kernel that turns one quad, quad-strip segment,
// line-loop segment or polygon fan triangle into strips and lists. Each
// vertex goes out in its own URB write with the topology and the
// start/end flags in r0.2.
func CompileGS(key GSKey) (*Kernel, error) {
	n, plan := gsPlan(key.Prim)
	if plan == nil {
		return nil, fmt.Errorf("%w: no GS for %s", ErrBadKey, key.Prim)
	}
	b, err := newBuilder(key.NrAttrs, n)
	if err != nil {
		return nil, err
	}
	p := b.p
	p.SetAccessMode(eu.Align1)
	r0 := eu.UD8(eu.FileGRF, 0, 0)
	for i, e := range plan {
		last := i == len(plan)-1
		p.MOV(eu.UD1(eu.FileGRF, 0, 2), eu.ImmUD(e.header))
		b.copyVertex(e.vertex)
		// Every write but the last returns the next URB handle in r0.
		dst, resp := r0, uint32(1)
		if last {
			dst, resp = eu.Null(), 0
		}
		p.URBWrite(dst, 0, r0, true, true, 1+b.vregs, resp, last, true, 0, eu.URBSwizzleNone)
	}
	return b.kernel()
}
