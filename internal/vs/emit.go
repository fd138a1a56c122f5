package vs

import (
	"fmt"

	"github.com/gogpu/i965/internal/eu"
	"github.com/gogpu/i965/internal/shader"
)

var setConds = map[shader.Opcode]eu.CondMod{
	shader.OpSEQ: eu.CondZ,
	shader.OpSNE: eu.CondNZ,
	shader.OpSLT: eu.CondL,
	shader.OpSLE: eu.CondLE,
	shader.OpSGT: eu.CondG,
	shader.OpSGE: eu.CondGE,
}

// Opcodes whose lowering writes the destination in pieces. Saturating
// them would only clamp the last piece.
var multiWrite = map[shader.Opcode]bool{
	shader.OpDST: true,
	shader.OpEXP: true,
	shader.OpLOG: true,
	shader.OpLIT: true,
	shader.OpXPD: true,
	shader.OpSWZ: true,
	shader.OpARL: true,
}

func (c *compiler) instruction(in shader.Instruction) error {
	if in.Saturate && multiWrite[in.Op] {
		return fmt.Errorf("%w: %s_SAT", ErrUnsupportedOpcode, in.Op)
	}
	c.sat = in.Saturate

	if in.Op == shader.OpSWZ {
		dst, err := c.dst(in.Dst)
		if err != nil {
			return err
		}
		src, err := c.plainSrc(in.Src[0])
		if err != nil {
			return err
		}
		c.emitSWZ(dst, src, in.Src[0])
		return nil
	}

	args := make([]eu.Reg, len(in.Src))
	for i, s := range in.Src {
		r, err := c.src(s)
		if err != nil {
			return err
		}
		args[i] = r
	}
	var dst eu.Reg
	if in.Op.HasDst() {
		var err error
		if dst, err = c.dst(in.Dst); err != nil {
			return err
		}
	}

	before := c.p.Len()
	p := c.p
	switch in.Op {
	case shader.OpNOP:
	case shader.OpMOV:
		p.MOV(dst, args[0])
	case shader.OpABS:
		p.MOV(dst, eu.AbsOf(args[0]))
	case shader.OpADD:
		p.ADD(dst, args[0], args[1])
	case shader.OpSUB:
		p.ADD(dst, args[0], eu.Neg(args[1]))
	case shader.OpMUL:
		p.MUL(dst, args[0], args[1])
	case shader.OpMAD:
		p.MOV(eu.Acc(), args[2])
		p.MAC(dst, args[0], args[1])
	case shader.OpDP3:
		p.DP3(dst, args[0], args[1])
	case shader.OpDP4:
		p.DP4(dst, args[0], args[1])
	case shader.OpDPH:
		p.DPH(dst, args[0], args[1])
	case shader.OpMIN:
		p.CMP(eu.Null(), eu.CondL, args[0], args[1])
		p.SEL(dst, args[0], args[1])
		p.SetPredicate(eu.PredicateNone, false)
	case shader.OpMAX:
		p.CMP(eu.Null(), eu.CondL, args[0], args[1])
		p.SEL(dst, args[1], args[0])
		p.SetPredicate(eu.PredicateNone, false)
	case shader.OpSEQ, shader.OpSNE, shader.OpSLT, shader.OpSLE, shader.OpSGT, shader.OpSGE:
		c.emitSetCond(dst, setConds[in.Op], args[0], args[1])
	case shader.OpFLR:
		p.RNDD(dst, args[0])
	case shader.OpFRC:
		p.FRC(dst, args[0])
	case shader.OpRCP:
		c.emitMath1(eu.MathInv, dst, scalar(args[0]), eu.MathPrecisionFull)
	case shader.OpRSQ:
		c.emitMath1(eu.MathRsq, dst, scalar(args[0]), eu.MathPrecisionFull)
	case shader.OpEX2:
		c.emitMath1(eu.MathExp, dst, scalar(args[0]), eu.MathPrecisionFull)
	case shader.OpLG2:
		c.emitMath1(eu.MathLog, dst, scalar(args[0]), eu.MathPrecisionFull)
	case shader.OpSIN:
		c.emitMath1(eu.MathSin, dst, scalar(args[0]), eu.MathPrecisionFull)
	case shader.OpCOS:
		c.emitMath1(eu.MathCos, dst, scalar(args[0]), eu.MathPrecisionFull)
	case shader.OpPOW:
		c.emitMath2(eu.MathPow, dst, scalar(args[0]), scalar(args[1]), eu.MathPrecisionFull)
	case shader.OpARL:
		c.emitARL(dst, args[0])
	case shader.OpEXP:
		c.unalias1(dst, args[0], c.emitEXP)
	case shader.OpLOG:
		c.unalias1(dst, args[0], c.emitLOG)
	case shader.OpLIT:
		c.unalias1(dst, args[0], c.emitLIT)
	case shader.OpDST:
		c.unalias2(dst, args[0], args[1], c.emitDST)
	case shader.OpXPD:
		c.unalias2(dst, args[0], args[1], c.emitXPD)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedOpcode, in.Op)
	}

	if c.sat && c.p.Len() > before {
		if last := c.p.Last(); last.Opcode() != eu.OpSEND {
			last.SetSaturate(true)
		}
	}
	return nil
}

// scalar replicates the x component, the operand of the scalar opcodes.
func scalar(r eu.Reg) eu.Reg { return eu.Swizzle1(r, eu.X) }

func (c *compiler) emitSetCond(dst eu.Reg, cond eu.CondMod, a, b eu.Reg) {
	p := c.p
	p.CMP(eu.Null(), cond, a, b)
	p.SetPredicate(eu.PredicateNone, false)
	p.MOV(dst, eu.ImmF(0))
	p.SetPredicate(eu.PredicateNormal, false)
	p.MOV(dst, eu.ImmF(1))
	p.SetPredicate(eu.PredicateNone, false)
}

// emitMath1 sends arg through the math unit. The message writes whole
// registers, so partial masks and message register destinations go
// through a temporary.
func (c *compiler) emitMath1(fn uint32, dst, arg eu.Reg, precision uint32) {
	tmp := dst
	needTmp := dst.WriteMask != eu.WriteXYZW || dst.File != eu.FileGRF
	if needTmp {
		tmp = c.getTmp()
	}
	c.p.Math(tmp, fn, c.sat && !needTmp, 2, arg, eu.MathDataScalar, precision)
	if needTmp {
		c.p.MOV(dst, tmp)
		c.releaseTmp(tmp)
	}
}

func (c *compiler) emitMath2(fn uint32, dst, arg0, arg1 eu.Reg, precision uint32) {
	tmp := dst
	needTmp := dst.WriteMask != eu.WriteXYZW || dst.File != eu.FileGRF
	if needTmp {
		tmp = c.getTmp()
	}
	c.p.MOV(eu.MRF(3), arg1)
	c.p.Math(tmp, fn, c.sat && !needTmp, 2, arg0, eu.MathDataScalar, precision)
	if needTmp {
		c.p.MOV(dst, tmp)
		c.releaseTmp(tmp)
	}
}

// emitARL stores floor(arg)*16, the byte offset of a CURBE vec4.
func (c *compiler) emitARL(dst, arg eu.Reg) {
	c.p.RNDD(dst, arg)
	c.p.MUL(dst, dst, eu.ImmD(16))
}

// aliases reports whether writing dst can clobber arg before it is read.
func aliases(dst, arg eu.Reg) bool {
	return dst.File == arg.File && dst.Nr == arg.Nr
}

func (c *compiler) unalias1(dst, arg eu.Reg, emit func(dst, arg eu.Reg)) {
	if !aliases(dst, arg) {
		emit(dst, arg)
		return
	}
	tmp := eu.Masked(c.getTmp(), dst.WriteMask)
	emit(tmp, arg)
	c.p.MOV(dst, tmp)
	c.releaseTmp(tmp)
}

func (c *compiler) unalias2(dst, arg0, arg1 eu.Reg, emit func(dst, arg0, arg1 eu.Reg)) {
	if !aliases(dst, arg0) && !aliases(dst, arg1) {
		emit(dst, arg0, arg1)
		return
	}
	tmp := eu.Masked(c.getTmp(), dst.WriteMask)
	emit(tmp, arg0, arg1)
	c.p.MOV(dst, tmp)
	c.releaseTmp(tmp)
}

// emitEXP computes 2^floor(x), fract(x), a partial-precision 2^x and 1.
func (c *compiler) emitEXP(dst, arg eu.Reg) {
	p := c.p
	x := scalar(arg)
	if dst.WriteMask&eu.WriteX != 0 {
		tmp := c.getTmp()
		tmpD := eu.Retype(tmp, eu.TypeD)
		p.RNDD(tmpD, x)
		p.ADD(eu.Masked(tmpD, eu.WriteX), tmpD, eu.ImmD(127))
		p.SHL(eu.Masked(eu.Retype(dst, eu.TypeD), eu.WriteX), tmpD, eu.ImmD(23))
		c.releaseTmp(tmp)
	}
	if dst.WriteMask&eu.WriteY != 0 {
		p.FRC(eu.Masked(dst, eu.WriteY), x)
	}
	if dst.WriteMask&eu.WriteZ != 0 {
		c.emitMath1(eu.MathExp, eu.Masked(dst, eu.WriteZ), x, eu.MathPrecisionPartial)
	}
	if dst.WriteMask&eu.WriteW != 0 {
		p.MOV(eu.Masked(dst, eu.WriteW), eu.ImmF(1))
	}
}

// emitLOG splits |x| into its unbiased exponent and its mantissa in
// [1, 2), then adds the two for a partial-precision log2.
func (c *compiler) emitLOG(dst, arg eu.Reg) {
	p := c.p
	tmp := dst
	needTmp := dst.WriteMask != eu.WriteXYZW || dst.File != eu.FileGRF
	if needTmp {
		tmp = c.getTmp()
	}
	tmpUD := eu.Retype(tmp, eu.TypeUD)
	argUD := eu.Retype(scalar(arg), eu.TypeUD)
	mask := dst.WriteMask

	if mask&(eu.WriteX|eu.WriteZ) != 0 {
		p.AND(eu.Masked(tmpUD, eu.WriteX), argUD, eu.ImmUD(0x7f800000))
		p.SHR(eu.Masked(tmpUD, eu.WriteX), tmpUD, eu.ImmUD(23))
		p.ADD(eu.Masked(tmp, eu.WriteX), eu.Retype(tmpUD, eu.TypeD), eu.ImmD(-127))
	}
	if mask&(eu.WriteY|eu.WriteZ) != 0 {
		p.AND(eu.Masked(tmpUD, eu.WriteY), argUD, eu.ImmUD((1<<23)-1))
		p.OR(eu.Masked(tmpUD, eu.WriteY), tmpUD, eu.ImmUD(127<<23))
	}
	if mask&eu.WriteZ != 0 {
		c.emitMath1(eu.MathLog, eu.Masked(tmp, eu.WriteZ), eu.Swizzle1(tmp, eu.Y), eu.MathPrecisionPartial)
		p.ADD(eu.Masked(tmp, eu.WriteZ), eu.Swizzle1(tmp, eu.Z), eu.Swizzle1(tmp, eu.X))
	}
	if mask&eu.WriteW != 0 {
		p.MOV(eu.Masked(dst, eu.WriteW), eu.ImmF(1))
	}
	if needTmp {
		p.MOV(eu.Masked(dst, mask&eu.WriteXYZ), tmp)
		c.releaseTmp(tmp)
	}
}

// emitLIT builds the lighting coefficients with predication instead of
// branches: y and z start at 0 and are overwritten where the diffuse and
// specular terms are positive.
func (c *compiler) emitLIT(dst, arg eu.Reg) {
	p := c.p
	mask := dst.WriteMask
	if mask&(eu.WriteY|eu.WriteZ) != 0 {
		p.MOV(eu.Masked(dst, eu.WriteY|eu.WriteZ), eu.ImmF(0))
	}
	if mask&(eu.WriteX|eu.WriteW) != 0 {
		p.MOV(eu.Masked(dst, eu.WriteX|eu.WriteW), eu.ImmF(1))
	}
	if mask&(eu.WriteY|eu.WriteZ) == 0 {
		return
	}

	specular := c.getTmp()
	if mask&eu.WriteZ != 0 {
		c.emitMath2(eu.MathPow, specular, eu.Swizzle1(arg, eu.Y), eu.Swizzle1(arg, eu.W), eu.MathPrecisionPartial)
		p.CMP(eu.Null(), eu.CondLE, eu.Swizzle1(arg, eu.Y), eu.ImmF(0))
		p.MOV(specular, eu.ImmF(0))
		p.SetPredicate(eu.PredicateNone, false)
	}
	p.CMP(eu.Null(), eu.CondG, eu.Swizzle1(arg, eu.X), eu.ImmF(0))
	if mask&eu.WriteY != 0 {
		p.MOV(eu.Masked(dst, eu.WriteY), eu.Swizzle1(arg, eu.X))
	}
	if mask&eu.WriteZ != 0 {
		p.MOV(eu.Masked(dst, eu.WriteZ), eu.Swizzle1(specular, eu.X))
	}
	p.SetPredicate(eu.PredicateNone, false)
	c.releaseTmp(specular)
}

// emitDST builds (1, a.y*b.y, a.z, b.w).
func (c *compiler) emitDST(dst, a, b eu.Reg) {
	p := c.p
	if dst.WriteMask&eu.WriteX != 0 {
		p.MOV(eu.Masked(dst, eu.WriteX), eu.ImmF(1))
	}
	if dst.WriteMask&eu.WriteY != 0 {
		p.MUL(eu.Masked(dst, eu.WriteY), a, b)
	}
	if dst.WriteMask&eu.WriteZ != 0 {
		p.MOV(eu.Masked(dst, eu.WriteZ), a)
	}
	if dst.WriteMask&eu.WriteW != 0 {
		p.MOV(eu.Masked(dst, eu.WriteW), b)
	}
}

// emitXPD computes t.yzx*u.zxy - t.zxy*u.yzx through the accumulator.
func (c *compiler) emitXPD(dst, t, u eu.Reg) {
	c.p.MUL(eu.Null(), eu.Swizzled(t, eu.Y, eu.Z, eu.X, eu.W), eu.Swizzled(u, eu.Z, eu.X, eu.Y, eu.W))
	c.p.MAC(dst, eu.Neg(eu.Swizzled(t, eu.Z, eu.X, eu.Y, eu.W)), eu.Swizzled(u, eu.Y, eu.Z, eu.X, eu.W))
}

// emitSWZ handles the extended swizzle: components can select 0 or 1 and
// be negated one by one.
func (c *compiler) emitSWZ(dst, base eu.Reg, s shader.Src) {
	p := c.p
	var srcMask, zeros, ones uint8
	var swz [4]uint8
	for i, sel := range s.Swizzle {
		bit := uint8(1) << i
		switch sel {
		case shader.SwzZero:
			zeros |= bit
			swz[i] = eu.X
		case shader.SwzOne:
			ones |= bit
			swz[i] = eu.X
		default:
			srcMask |= bit
			swz[i] = sel
		}
	}
	negate := s.NegateMask
	if s.Negate {
		negate ^= eu.WriteXYZW
	}
	srcMask &= dst.WriteMask
	zeros &= dst.WriteMask
	ones &= dst.WriteMask
	negate &= dst.WriteMask

	tmp := dst
	needTmp := negate != 0 && dst.File != eu.FileGRF
	if needTmp {
		tmp = c.getTmp()
	}
	if srcMask != 0 {
		src := base
		src.Swizzle = eu.Swizzle4(swz[0], swz[1], swz[2], swz[3])
		if s.Abs {
			src = eu.AbsOf(src)
		}
		p.MOV(eu.Masked(tmp, srcMask), src)
	}
	if zeros != 0 {
		p.MOV(eu.Masked(tmp, zeros), eu.ImmF(0))
	}
	if ones != 0 {
		p.MOV(eu.Masked(tmp, ones), eu.ImmF(1))
	}
	if negate != 0 {
		p.MOV(eu.Masked(tmp, negate), eu.Neg(tmp))
	}
	if needTmp {
		p.MOV(dst, tmp)
		c.releaseTmp(tmp)
	}
}

// extended reports whether s needs emitSWZ to be read.
func extended(s shader.Src) bool {
	if s.NegateMask != 0 {
		return true
	}
	for _, sel := range s.Swizzle {
		if sel > shader.SwzW {
			return true
		}
	}
	return false
}

// src resolves a source operand, materializing extended swizzles and
// indirect constants into scratch registers.
func (c *compiler) src(s shader.Src) (eu.Reg, error) {
	if !extended(s) {
		r, err := c.plainSrc(s)
		if err != nil {
			return eu.Reg{}, err
		}
		r.Swizzle = eu.Swizzle4(s.Swizzle[0], s.Swizzle[1], s.Swizzle[2], s.Swizzle[3])
		if s.Abs {
			r = eu.AbsOf(r)
		}
		if s.Negate {
			r = eu.Neg(r)
		}
		return r, nil
	}
	base, err := c.plainSrc(s)
	if err != nil {
		return eu.Reg{}, err
	}
	tmp := c.getTmp()
	c.emitSWZ(tmp, base, s)
	return tmp, nil
}

// plainSrc returns the register holding s, ignoring its modifiers.
func (c *compiler) plainSrc(s shader.Src) (eu.Reg, error) {
	switch s.File {
	case shader.FileConst:
		if s.Indirect {
			return c.deref(s)
		}
		return lookup(c.params[:c.nrConsts], s.File, s.Index)
	case shader.FileImm:
		return lookup(c.params[c.nrConsts:], s.File, s.Index)
	case shader.FileInput:
		return lookupMap(c.inputs, s.File, s.Index)
	case shader.FileOutput:
		return lookupMap(c.outputs, s.File, s.Index)
	case shader.FileTemp:
		return lookup(c.temps, s.File, s.Index)
	case shader.FileAddr:
		return lookup(c.addrs, s.File, s.Index)
	}
	return eu.Reg{}, fmt.Errorf("%w: %s source", ErrBadOperand, s.File)
}

func (c *compiler) dst(d shader.Dst) (eu.Reg, error) {
	var (
		r   eu.Reg
		err error
	)
	switch d.File {
	case shader.FileOutput:
		r, err = lookupMap(c.outputs, d.File, d.Index)
	case shader.FileTemp:
		r, err = lookup(c.temps, d.File, d.Index)
	case shader.FileAddr:
		r, err = lookup(c.addrs, d.File, d.Index)
	default:
		err = fmt.Errorf("%w: %s destination", ErrBadOperand, d.File)
	}
	if err != nil {
		return eu.Reg{}, err
	}
	return eu.Masked(r, d.WriteMask), nil
}

func lookup(regs []eu.Reg, f shader.File, i int) (eu.Reg, error) {
	if i < 0 || i >= len(regs) {
		return eu.Reg{}, fmt.Errorf("%w: %s[%d]", ErrBadOperand, f, i)
	}
	return regs[i], nil
}

func lookupMap(regs map[int]eu.Reg, f shader.File, i int) (eu.Reg, error) {
	r, ok := regs[i]
	if !ok {
		return eu.Reg{}, fmt.Errorf("%w: %s[%d]", ErrBadOperand, f, i)
	}
	return r, nil
}

// deref loads CONST[ADDR+Index] for both vertices. Each vertex half of the
// address register holds its own byte offset; the two vec4s are fetched in
// Align1 through a0.0.
func (c *compiler) deref(s shader.Src) (eu.Reg, error) {
	if c.nrConsts == 0 {
		return eu.Reg{}, fmt.Errorf("%w: indirect CONST without constants", ErrBadOperand)
	}
	addr, err := lookup(c.addrs, shader.FileAddr, s.IndirectIndex)
	if err != nil {
		return eu.Reg{}, err
	}
	vpAddr := eu.Retype(eu.ToVec1(addr), eu.TypeUW)
	base := c.params[0]
	off := int32(base.Nr*eu.RegBytes+base.Subnr) + int32(s.Index)*16

	tmp := c.getTmp()
	p := c.p
	p.Push()
	p.SetAccessMode(eu.Align1)
	p.ADD(eu.Address(0), vpAddr, eu.ImmD(off))
	p.MOV(eu.ToVec4(tmp), eu.Vec4Indirect(0, 0))
	p.ADD(eu.Address(0), eu.Suboffset(vpAddr, 8), eu.ImmD(off))
	p.MOV(eu.Suboffset(eu.ToVec4(tmp), 4), eu.Vec4Indirect(0, 0))
	p.Pop()
	return tmp, nil
}
