package ffprog

import (
	"fmt"

	"github.com/gogpu/i965/internal/eu"
	"github.com/gogpu/i965/internal/pipe"
)

// Attributes per URB write of the setup output; two registers each.
const sfAttrsPerWrite = (eu.NumMRF - 1) / 2

// SFKey selects a setup kernel.
type SFKey struct {
	// Prim is the reduced primitive: points, lines or triangles.
	Prim    pipe.Primitive
	NrAttrs int
}

// CompileSF builds the setup kernel. For every attribute component it
// writes the plane [dA/dx, dA/dy, -, A0] relative to the first vertex, in
// the layout the fragment kernel interpolates from: two components per
// register, two registers per attribute.
//
// Triangles solve the plane through all three vertices. Lines take the
// gradient along the line, points a constant.
func CompileSF(key SFKey) (*Kernel, error) {
	if key.Prim != key.Prim.Reduced() {
		return nil, fmt.Errorf("%w: setup for %s", ErrBadKey, key.Prim)
	}
	b, err := newBuilder(key.NrAttrs, verticesOf(key.Prim))
	if err != nil {
		return nil, err
	}
	p := b.p
	p.SetAccessMode(eu.Align16)

	var planes func(a int) (dx, dy eu.Reg)
	switch key.Prim {
	case pipe.PrimTriangles:
		planes = b.trianglePlanes()
	case pipe.PrimLines:
		planes = b.linePlanes()
	default:
		planes = func(int) (eu.Reg, eu.Reg) { return eu.ImmF(0), eu.ImmF(0) }
	}

	if key.NrAttrs == 0 {
		p.URBWrite(eu.Null(), 0, eu.UD8(eu.FileGRF, 0, 0), false, true, 1, 0, true, true, 0, eu.URBSwizzleNone)
		return b.kernel()
	}
	for first := 0; first < key.NrAttrs; first += sfAttrsPerWrite {
		n := min(sfAttrsPerWrite, key.NrAttrs-first)
		for i := range n {
			a := first + i
			dx, dy := planes(a)
			b.scatter(uint32(1+2*i), dx, dy, b.slot(0, FirstAttrSlot+a))
		}
		last := first+n == key.NrAttrs
		p.SetAccessMode(eu.Align1)
		p.URBWrite(eu.Null(), 0, eu.UD8(eu.FileGRF, 0, 0), false, true, uint32(1+2*n), 0, last, true,
			uint32(2*first), eu.URBSwizzleNone)
		p.SetAccessMode(eu.Align16)
	}
	return b.kernel()
}

// trianglePlanes computes the edge vectors and 1/det once and returns the
// per-attribute gradient generator.
func (b *builder) trianglePlanes() func(int) (eu.Reg, eu.Reg) {
	p := b.p
	e0, e2 := b.tmp(), b.tmp()
	ta, tb := b.tmp(), b.tmp()
	inv := b.tmp()
	p.ADD(e0, b.slot(1, SlotPosition), eu.Neg(b.slot(0, SlotPosition)))
	p.ADD(e2, b.slot(2, SlotPosition), eu.Neg(b.slot(0, SlotPosition)))
	p.MUL(ta, eu.Swizzle1(e0, eu.X), eu.Swizzle1(e2, eu.Y))
	p.MUL(tb, eu.Swizzle1(e2, eu.X), eu.Swizzle1(e0, eu.Y))
	p.ADD(ta, ta, eu.Neg(tb))
	p.Math(inv, eu.MathInv, false, 2, ta, eu.MathDataScalar, eu.MathPrecisionFull)

	a0, a2 := b.tmp(), b.tmp()
	dx, dy := b.tmp(), b.tmp()
	return func(a int) (eu.Reg, eu.Reg) {
		s := FirstAttrSlot + a
		p.ADD(a0, b.slot(1, s), eu.Neg(b.slot(0, s)))
		p.ADD(a2, b.slot(2, s), eu.Neg(b.slot(0, s)))

		p.MUL(ta, a0, eu.Swizzle1(e2, eu.Y))
		p.MUL(tb, a2, eu.Swizzle1(e0, eu.Y))
		p.ADD(ta, ta, eu.Neg(tb))
		p.MUL(dx, ta, inv)

		p.MUL(ta, a2, eu.Swizzle1(e0, eu.X))
		p.MUL(tb, a0, eu.Swizzle1(e2, eu.X))
		p.ADD(ta, ta, eu.Neg(tb))
		p.MUL(dy, ta, inv)
		return dx, dy
	}
}

// linePlanes projects each attribute delta onto the line direction.
func (b *builder) linePlanes() func(int) (eu.Reg, eu.Reg) {
	p := b.p
	e0 := b.tmp()
	ta, tb := b.tmp(), b.tmp()
	inv := b.tmp()
	p.ADD(e0, b.slot(1, SlotPosition), eu.Neg(b.slot(0, SlotPosition)))
	p.MUL(ta, eu.Swizzle1(e0, eu.X), eu.Swizzle1(e0, eu.X))
	p.MUL(tb, eu.Swizzle1(e0, eu.Y), eu.Swizzle1(e0, eu.Y))
	p.ADD(ta, ta, tb)
	p.Math(inv, eu.MathInv, false, 2, ta, eu.MathDataScalar, eu.MathPrecisionFull)

	a0 := b.tmp()
	dx, dy := b.tmp(), b.tmp()
	return func(a int) (eu.Reg, eu.Reg) {
		s := FirstAttrSlot + a
		p.ADD(a0, b.slot(1, s), eu.Neg(b.slot(0, s)))
		p.MUL(a0, a0, inv)
		p.MUL(dx, a0, eu.Swizzle1(e0, eu.X))
		p.MUL(dy, a0, eu.Swizzle1(e0, eu.Y))
		return dx, dy
	}
}

// scatter transposes the gradients of one attribute into m<mrf> and
// m<mrf+1>, one 16-byte plane per component.
func (b *builder) scatter(mrf uint32, dx, dy, c0 eu.Reg) {
	p := b.p
	for ch := range uint8(4) {
		plane := eu.Vec4(eu.FileMRF, mrf+uint32(ch/2), uint32(ch%2)*4)
		p.MOV(eu.Masked(plane, eu.WriteX), component(dx, ch))
		p.MOV(eu.Masked(plane, eu.WriteY), component(dy, ch))
		p.MOV(eu.Masked(plane, eu.WriteW), component(c0, ch))
	}
}

func component(r eu.Reg, ch uint8) eu.Reg {
	if r.File == eu.FileIMM {
		return r
	}
	return eu.Swizzle1(r, ch)
}
