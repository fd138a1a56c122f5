package eu

import (
	"fmt"
	"math"
	"strings"
)

var targetNames = [...]string{
	TargetNull:        "null",
	TargetMath:        "math",
	TargetSampler:     "sampler",
	TargetGateway:     "gateway",
	TargetDataRead:    "read",
	TargetDataWrite:   "write",
	TargetURB:         "urb",
	TargetThreadSpawn: "thread_spawn",
}

var mathNames = map[uint32]string{
	MathInv: "inv", MathLog: "log", MathExp: "exp", MathSqrt: "sqrt",
	MathRsq: "rsq", MathSin: "sin", MathCos: "cos", MathPow: "pow",
}

// Disassemble renders instructions one per line.
func Disassemble(insns []Instruction) string {
	var sb strings.Builder
	for i := range insns {
		fmt.Fprintf(&sb, "%4d: %s\n", i, insns[i].String())
	}
	return sb.String()
}

// String renders the instruction in assembler syntax.
func (in *Instruction) String() string {
	var sb strings.Builder
	if in.PredicateControl() != PredicateNone {
		if in.PredicateInverse() {
			sb.WriteString("(-f0) ")
		} else {
			sb.WriteString("(+f0) ")
		}
	}
	op := in.Opcode()
	sb.WriteString(op.String())
	if in.Saturate() {
		sb.WriteString(".sat")
	}
	if op != OpSEND {
		if c := in.CondMod(); c != CondNone {
			sb.WriteString("." + c.String())
		}
	}
	fmt.Fprintf(&sb, " (%d)", 1<<in.ExecSize())
	if op == OpNOP {
		return sb.String()
	}
	sb.WriteString(" " + in.dstString())
	if op.NumSources() > 0 {
		sb.WriteString(" " + in.srcString(in.Src0(), true))
	}
	if op == OpSEND {
		sb.WriteString(" " + messageString(in.MsgReg(), in.Imm()))
	} else if op.NumSources() > 1 {
		sb.WriteString(" " + in.srcString(in.Src1(), false))
	}
	if in.AccessMode() == Align16 {
		sb.WriteString(" {align16}")
	}
	return sb.String()
}

func (in *Instruction) dstString() string {
	d := in.Dst()
	if d.AddrMode == AddrIndirect {
		return fmt.Sprintf("g[a0.%d%+d]:%s", d.AddrSubnr, d.AddrOffset, d.Type)
	}
	s := regName(d.File, d.Nr, d.Subnr/d.Type.Size())
	if in.AccessMode() == Align16 && d.WriteMask != WriteXYZW {
		s += "." + maskString(d.WriteMask)
	} else if in.AccessMode() == Align1 {
		s += fmt.Sprintf("<%d>", strideOf(d.HStride))
	}
	return s + ":" + d.Type.String()
}

func (in *Instruction) srcString(r Reg, first bool) string {
	if r.File == FileIMM {
		if r.Type == TypeF {
			return fmt.Sprintf("%gF", math.Float32frombits(r.Imm))
		}
		return Reg{File: FileIMM, Type: r.Type, Imm: r.Imm}.String()
	}
	var prefix string
	if r.Negate {
		prefix = "-"
	}
	if r.Abs {
		prefix += "(abs)"
	}
	var name string
	if r.AddrMode == AddrIndirect {
		name = fmt.Sprintf("g[a0.%d%+d]", r.AddrSubnr, r.AddrOffset)
	} else {
		name = regName(r.File, r.Nr, r.Subnr/r.Type.Size())
	}
	if in.AccessMode() == Align1 {
		name += fmt.Sprintf("<%d,%d,%d>", strideOf(r.VStride), 1<<r.Width, strideOf(r.HStride))
	} else {
		name += fmt.Sprintf("<%d>", strideOf(r.VStride))
		if r.Swizzle != SwizzleXYZW {
			name += "." + swizzleString(r.Swizzle)
		}
	}
	return prefix + name + ":" + r.Type.String()
}

func strideOf(enc uint8) int {
	if enc == 0 {
		return 0
	}
	return 1 << (enc - 1)
}

func maskString(m uint8) string {
	var sb strings.Builder
	for i, c := range "xyzw" {
		if m&(1<<i) != 0 {
			sb.WriteRune(c)
		}
	}
	return sb.String()
}

func swizzleString(swz uint8) string {
	const chans = "xyzw"
	b := make([]byte, 4)
	for i := range b {
		b[i] = chans[SwizzleGet(swz, i)]
	}
	return string(b)
}

func messageString(msgReg, desc uint32) string {
	m := DecodeMessage(desc)
	name := "unknown"
	if int(m.Target) < len(targetNames) {
		name = targetNames[m.Target]
	}
	s := fmt.Sprintf("m%d %s", msgReg, name)
	switch m.Target {
	case TargetMath:
		s += " " + mathNames[desc&0xf]
	case TargetURB:
		s += fmt.Sprintf(" offset %d swizzle %d", desc>>4&0x3f, desc>>10&3)
		if desc&(1<<15) != 0 {
			s += " complete"
		}
	case TargetSampler:
		s += fmt.Sprintf(" surface %d sampler %d", desc&0xff, desc>>8&0xf)
	case TargetDataWrite:
		s += fmt.Sprintf(" surface %d type %d", desc&0xff, desc>>12&7)
	}
	s += fmt.Sprintf(" mlen %d rlen %d", m.MsgLen, m.RespLen)
	if m.EOT {
		s += " EOT"
	}
	return s
}
