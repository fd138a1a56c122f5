package wm

import (
	"fmt"
	"math"

	"github.com/gogpu/i965/internal/eu"
	"github.com/gogpu/i965/internal/pipe"
	"github.com/gogpu/i965/internal/shader"
)

// dest is where an instruction writes each component. When the
// destination is also a source the components are computed into scratch
// and copied by commit.
type dest struct {
	regs  [4]eu.Reg
	final [4]eu.Reg
	mask  uint8
	alias bool
	sat   bool
}

func (d *dest) written(ch int) bool { return d.mask&(1<<ch) != 0 }

// first returns the lowest written component.
func (d *dest) first() int {
	for ch := range 4 {
		if d.written(ch) {
			return ch
		}
	}
	return -1
}

func (c *compiler) instruction(in shader.Instruction) error {
	switch in.Op {
	case shader.OpNOP:
		return nil
	case shader.OpMOV, shader.OpABS, shader.OpADD, shader.OpSUB, shader.OpMUL,
		shader.OpMAD, shader.OpMIN, shader.OpMAX, shader.OpFLR, shader.OpFRC,
		shader.OpDP3, shader.OpDP4, shader.OpRCP, shader.OpRSQ, shader.OpTEX:
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedOpcode, in.Op)
	}

	d, err := c.destination(in)
	if err != nil {
		return err
	}
	if d.first() < 0 {
		return nil
	}

	switch in.Op {
	case shader.OpDP3:
		err = c.emitDP(d, in.Src, 3)
	case shader.OpDP4:
		err = c.emitDP(d, in.Src, 4)
	case shader.OpRCP:
		err = c.emitMath(d, eu.MathInv, in.Src[0])
	case shader.OpRSQ:
		err = c.emitMath(d, eu.MathRsq, in.Src[0])
	case shader.OpTEX:
		err = c.emitTEX(d, in)
	default:
		for ch := range 4 {
			if !d.written(ch) {
				continue
			}
			if err = c.emitChannel(d, in, ch); err != nil {
				break
			}
		}
	}
	if err != nil {
		return err
	}
	c.commit(d)
	return nil
}

// emitChannel lowers one component of a component-wise instruction.
func (c *compiler) emitChannel(d *dest, in shader.Instruction, ch int) error {
	args := make([]eu.Reg, len(in.Src))
	for i, s := range in.Src {
		switch {
		case in.Op == shader.OpABS:
			s.Abs, s.Negate, s.NegateMask = true, false, 0
		case in.Op == shader.OpSUB && i == 1:
			s = s.Neg()
		}
		r, err := c.operand(s, ch)
		if err != nil {
			return err
		}
		args[i] = r
	}

	p := c.p
	r := d.regs[ch]
	switch in.Op {
	case shader.OpMOV, shader.OpABS:
		p.MOV(r, args[0])
	case shader.OpADD, shader.OpSUB:
		p.ADD(r, c.reg(args[0]), args[1])
	case shader.OpMUL:
		p.MUL(r, c.reg(args[0]), args[1])
	case shader.OpMAD:
		p.MOV(eu.Acc(), args[2])
		p.MAC(r, c.reg(args[0]), args[1])
	case shader.OpMIN:
		a := c.reg(args[0])
		p.CMP(eu.Null(), eu.CondL, a, args[1])
		p.SEL(r, a, args[1])
		p.SetPredicate(eu.PredicateNone, false)
	case shader.OpMAX:
		a, b := c.reg(args[0]), c.reg(args[1])
		p.CMP(eu.Null(), eu.CondL, a, b)
		p.SEL(r, b, a)
		p.SetPredicate(eu.PredicateNone, false)
	case shader.OpFLR:
		p.RNDD(r, args[0])
	case shader.OpFRC:
		p.FRC(r, args[0])
	}
	c.saturate(d)
	return nil
}

// emitDP accumulates an n-component dot product and replicates it.
func (c *compiler) emitDP(d *dest, src []shader.Src, n int) error {
	p := c.p
	first := d.first()
	for i := range n {
		a, err := c.operand(src[0], i)
		if err != nil {
			return err
		}
		b, err := c.operand(src[1], i)
		if err != nil {
			return err
		}
		switch i {
		case 0:
			p.MUL(eu.Null(), c.reg(a), b)
		case n - 1:
			p.MAC(d.regs[first], c.reg(a), b)
			c.saturate(d)
		default:
			p.MAC(eu.Null(), c.reg(a), b)
		}
	}
	c.replicate(d, first)
	return nil
}

// emitMath runs a scalar math function on the x component of src.
func (c *compiler) emitMath(d *dest, fn uint32, src shader.Src) error {
	x, err := c.operand(src, 0)
	if err != nil {
		return err
	}
	if x.File != eu.FileGRF {
		x = c.reg(x)
	}
	first := d.first()
	c.p.Math(d.regs[first], fn, d.sat && !d.alias, 2, x, eu.MathDataVector, eu.MathPrecisionFull)
	c.replicate(d, first)
	return nil
}

// emitTEX sends the texture coordinates to the sampler of the unit named
// by the second source and copies the returned texel.
func (c *compiler) emitTEX(d *dest, in shader.Instruction) error {
	if in.Target == shader.Tex3D || in.Target == shader.TexCube {
		return fmt.Errorf("%w: TEX %s", ErrUnsupportedOpcode, in.Target)
	}
	samp := in.Src[1]
	if samp.File != shader.FileSampler || samp.Index < 0 || samp.Index >= pipe.MaxSamplers {
		return fmt.Errorf("%w: %s[%d] as sampler", ErrBadOperand, samp.File, samp.Index)
	}
	p := c.p
	for i := range 2 {
		coord, err := c.operand(in.Src[0], i)
		if err != nil {
			return err
		}
		p.MOV(eu.MRF(uint32(samplerMessageReg+1+i)), coord)
	}
	unit := uint32(samp.Index)
	texel := c.getTmps(4)
	p.Sample(texel, samplerMessageReg, eu.UD8(eu.FileGRF, 0, 0),
		FirstTextureSurface+unit, unit, eu.SamplerMessageSample, 4, 3, false)
	for ch := range 4 {
		if !d.written(ch) {
			continue
		}
		p.MOV(d.regs[ch], eu.Offset(texel, uint32(ch)))
		c.saturate(d)
	}
	return nil
}

// replicate copies component from to the other written components.
func (c *compiler) replicate(d *dest, from int) {
	for ch := range 4 {
		if ch != from && d.written(ch) {
			c.p.MOV(d.regs[ch], d.regs[from])
		}
	}
}

// saturate clamps the last instruction when it writes the final value.
func (c *compiler) saturate(d *dest) {
	if !d.sat || d.alias {
		return
	}
	if last := c.p.Last(); last != nil {
		last.SetSaturate(true)
	}
}

func (c *compiler) commit(d *dest) {
	if !d.alias {
		return
	}
	for ch := range 4 {
		if !d.written(ch) {
			continue
		}
		c.p.MOV(d.final[ch], d.regs[ch])
		if d.sat {
			c.p.Last().SetSaturate(true)
		}
	}
}

func (c *compiler) destination(in shader.Instruction) (*dest, error) {
	d := &dest{mask: in.Dst.WriteMask, sat: in.Saturate}
	var base uint32
	switch in.Dst.File {
	case shader.FileTemp:
		if in.Dst.Index < 0 || in.Dst.Index >= c.info.NumTemps() {
			return nil, fmt.Errorf("%w: TEMP[%d]", ErrBadOperand, in.Dst.Index)
		}
		base = c.temps + 4*uint32(in.Dst.Index)
	case shader.FileOutput:
		b, ok := c.outputs[in.Dst.Index]
		if !ok {
			return nil, fmt.Errorf("%w: OUT[%d]", ErrBadOperand, in.Dst.Index)
		}
		base = b
	default:
		return nil, fmt.Errorf("%w: %s destination", ErrBadOperand, in.Dst.File)
	}
	for _, s := range in.Src {
		if s.File == in.Dst.File && s.Index == in.Dst.Index {
			d.alias = true
		}
	}
	for ch := range 4 {
		if !d.written(ch) {
			continue
		}
		d.final[ch] = eu.GRF(base + uint32(ch))
		d.regs[ch] = d.final[ch]
		if d.alias {
			d.regs[ch] = c.getTmp()
		}
	}
	return d, nil
}

// operand returns component ch of s for all eight pixels. Constants are
// scalar CURBE regions and immediates fold their modifiers.
func (c *compiler) operand(s shader.Src, ch int) (eu.Reg, error) {
	if s.Indirect {
		return eu.Reg{}, fmt.Errorf("%w: indirect %s", ErrBadOperand, s.File)
	}
	sel := s.Swizzle[ch]
	if sel > shader.SwzW {
		return eu.Reg{}, fmt.Errorf("%w: swizzle selector %d", ErrBadOperand, sel)
	}
	neg := s.Negate != (s.NegateMask&(1<<ch) != 0)

	var r eu.Reg
	switch s.File {
	case shader.FileImm:
		if s.Index < 0 || s.Index >= len(c.prog.Immediates) {
			return eu.Reg{}, fmt.Errorf("%w: IMM[%d]", ErrBadOperand, s.Index)
		}
		f := c.prog.Immediates[s.Index][sel]
		if s.Abs {
			f = float32(math.Abs(float64(f)))
		}
		if neg {
			f = -f
		}
		return eu.ImmF(f), nil
	case shader.FileConst:
		if s.Index < 0 || s.Index >= c.info.NumConsts() {
			return eu.Reg{}, fmt.Errorf("%w: CONST[%d]", ErrBadOperand, s.Index)
		}
		r = eu.Vec1(eu.FileGRF, c.curbe+uint32(s.Index/2), uint32(s.Index%2)*4+uint32(sel))
	case shader.FileInput:
		base, ok := c.inputs[s.Index]
		if !ok {
			return eu.Reg{}, fmt.Errorf("%w: IN[%d]", ErrBadOperand, s.Index)
		}
		r = eu.GRF(base + uint32(sel))
	case shader.FileOutput:
		base, ok := c.outputs[s.Index]
		if !ok {
			return eu.Reg{}, fmt.Errorf("%w: OUT[%d] read before written", ErrBadOperand, s.Index)
		}
		r = eu.GRF(base + uint32(sel))
	case shader.FileTemp:
		if s.Index < 0 || s.Index >= c.info.NumTemps() {
			return eu.Reg{}, fmt.Errorf("%w: TEMP[%d]", ErrBadOperand, s.Index)
		}
		r = eu.GRF(c.temps + 4*uint32(s.Index) + uint32(sel))
	default:
		return eu.Reg{}, fmt.Errorf("%w: %s source", ErrBadOperand, s.File)
	}
	if s.Abs {
		r = eu.AbsOf(r)
	}
	if neg {
		r = eu.Neg(r)
	}
	return r, nil
}

// reg moves an immediate into scratch so it can be a first source.
func (c *compiler) reg(r eu.Reg) eu.Reg {
	if r.File != eu.FileIMM {
		return r
	}
	tmp := c.getTmp()
	c.p.MOV(tmp, r)
	return tmp
}
