package eu

// Instruction is one native 128-bit EU instruction, four little-endian
// dwords.
type Instruction [4]uint32

func (in *Instruction) get(dw, lo, hi int) uint32 {
	width := hi - lo + 1
	return (in[dw] >> lo) & (1<<width - 1)
}

func (in *Instruction) set(dw, lo, hi int, v uint32) {
	width := hi - lo + 1
	mask := uint32(1<<width-1) << lo
	in[dw] = in[dw]&^mask | (v<<lo)&mask
}

func b2u(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// Header (dword 0) and operand-type (dword 1) accessors.

func (in *Instruction) Opcode() Opcode { return Opcode(in.get(0, 0, 6)) }

func (in *Instruction) SetOpcode(op Opcode) { in.set(0, 0, 6, uint32(op)) }

func (in *Instruction) AccessMode() AccessMode { return AccessMode(in.get(0, 8, 8)) }

func (in *Instruction) SetAccessMode(m AccessMode) { in.set(0, 8, 8, uint32(m)) }

func (in *Instruction) MaskControl() uint32 { return in.get(0, 9, 9) }

func (in *Instruction) SetMaskControl(v uint32) { in.set(0, 9, 9, v) }

func (in *Instruction) Compression() uint32 { return in.get(0, 12, 13) }

func (in *Instruction) SetCompression(v uint32) { in.set(0, 12, 13, v) }

func (in *Instruction) PredicateControl() uint32 { return in.get(0, 16, 19) }

func (in *Instruction) SetPredicateControl(v uint32) { in.set(0, 16, 19, v) }

func (in *Instruction) PredicateInverse() bool { return in.get(0, 20, 20) != 0 }

func (in *Instruction) SetPredicateInverse(b bool) { in.set(0, 20, 20, b2u(b)) }

func (in *Instruction) ExecSize() uint32 { return in.get(0, 21, 23) }

func (in *Instruction) SetExecSize(v uint32) { in.set(0, 21, 23, v) }

// CondMod shares its bits with the SEND message register number.
func (in *Instruction) CondMod() CondMod { return CondMod(in.get(0, 24, 27)) }

func (in *Instruction) SetCondMod(c CondMod) { in.set(0, 24, 27, uint32(c)) }

func (in *Instruction) MsgReg() uint32 { return in.get(0, 24, 27) }

func (in *Instruction) SetMsgReg(nr uint32) { in.set(0, 24, 27, nr) }

func (in *Instruction) Saturate() bool { return in.get(0, 31, 31) != 0 }

func (in *Instruction) SetSaturate(b bool) { in.set(0, 31, 31, b2u(b)) }

func (in *Instruction) DstFile() File { return File(in.get(1, 0, 1)) }

func (in *Instruction) DstType() Type { return Type(in.get(1, 2, 4)) }

func (in *Instruction) Src0File() File { return File(in.get(1, 5, 6)) }

func (in *Instruction) Src0Type() Type { return Type(in.get(1, 7, 9)) }

func (in *Instruction) Src1File() File { return File(in.get(1, 10, 11)) }

func (in *Instruction) Src1Type() Type { return Type(in.get(1, 12, 14)) }

func (in *Instruction) DstAddrMode() uint32 { return in.get(1, 31, 31) }

func (in *Instruction) DstNr() uint32 { return in.get(1, 21, 28) }

func (in *Instruction) DstWriteMask() uint8 { return uint8(in.get(1, 16, 19)) }

func (in *Instruction) DstHStride() uint8 { return uint8(in.get(1, 29, 30)) }

// Imm returns dword 3, which holds an immediate or a SEND descriptor.
func (in *Instruction) Imm() uint32 { return in[3] }

// DstSubnr returns the destination byte offset within its register.
func (in *Instruction) DstSubnr() uint32 {
	if in.AccessMode() == Align16 {
		return in.get(1, 20, 20) * 16
	}
	return in.get(1, 16, 20)
}

// SetDst encodes the destination operand.
func (in *Instruction) SetDst(r Reg) {
	in.set(1, 0, 1, uint32(r.File))
	in.set(1, 2, 4, uint32(r.Type))
	in.set(1, 31, 31, uint32(r.AddrMode))
	if r.AddrMode == AddrIndirect {
		in.set(1, 16, 25, uint32(r.AddrOffset)&0x3ff)
		in.set(1, 26, 28, r.AddrSubnr)
		in.set(1, 29, 30, uint32(hstrideOrOne(r.HStride)))
		return
	}
	in.set(1, 21, 28, r.Nr)
	if in.AccessMode() == Align1 {
		in.set(1, 16, 20, r.Subnr)
		in.set(1, 29, 30, uint32(hstrideOrOne(r.HStride)))
		return
	}
	in.set(1, 16, 19, uint32(r.WriteMask))
	in.set(1, 20, 20, r.Subnr/16)
	// Align16 destinations always use a horizontal stride of 1.
	in.set(1, 29, 30, HStride1)
}

func hstrideOrOne(h uint8) uint8 {
	if h == 0 {
		return HStride1
	}
	return h
}

// Dst decodes the destination operand.
func (in *Instruction) Dst() Reg {
	r := Reg{
		File:     in.DstFile(),
		Type:     in.DstType(),
		AddrMode: uint8(in.DstAddrMode()),
		HStride:  in.DstHStride(),
	}
	if r.AddrMode == AddrIndirect {
		r.AddrOffset = signExtend10(in.get(1, 16, 25))
		r.AddrSubnr = in.get(1, 26, 28)
		r.WriteMask = WriteXYZW
		return r
	}
	r.Nr = in.DstNr()
	r.Subnr = in.DstSubnr()
	if in.AccessMode() == Align16 {
		r.WriteMask = in.DstWriteMask()
	} else {
		r.WriteMask = WriteXYZW
	}
	return r
}

func signExtend10(v uint32) int32 {
	return int32(v<<22) >> 22
}

// SetSrc0 encodes the first source operand. An immediate consumes dword 3
// and forces src1 to the ARF file with the immediate type.
func (in *Instruction) SetSrc0(r Reg) {
	in.set(1, 5, 6, uint32(r.File))
	in.set(1, 7, 9, uint32(r.Type))
	if r.File == FileIMM {
		in[3] = r.Imm
		in.set(1, 10, 11, uint32(FileARF))
		in.set(1, 12, 14, uint32(r.Type))
		in[2] = 0
		return
	}
	in.setSrcRegion(2, r, in.ExecSize() == Exec1 && r.Width == Width1)
}

// SetSrc1 encodes the second source operand. Only src1 may be an
// immediate when src0 is a register.
func (in *Instruction) SetSrc1(r Reg) {
	in.set(1, 10, 11, uint32(r.File))
	in.set(1, 12, 14, uint32(r.Type))
	if r.File == FileIMM {
		in[3] = r.Imm
		return
	}
	in.setSrcRegion(3, r, in.ExecSize() == Exec1 && r.Width == Width1)
}

func (in *Instruction) setSrcRegion(dw int, r Reg, scalar bool) {
	in.set(dw, 13, 13, b2u(r.Abs))
	in.set(dw, 14, 14, b2u(r.Negate))
	in.set(dw, 15, 15, uint32(r.AddrMode))
	if r.AddrMode == AddrIndirect {
		in.set(dw, 0, 9, uint32(r.AddrOffset)&0x3ff)
		in.set(dw, 10, 12, r.AddrSubnr)
	} else {
		in.set(dw, 5, 12, r.Nr)
		if in.AccessMode() == Align1 {
			in.set(dw, 0, 4, r.Subnr)
		} else {
			in.set(dw, 4, 4, r.Subnr/16)
		}
	}
	if in.AccessMode() == Align1 {
		if scalar {
			in.set(dw, 16, 17, HStride0)
			in.set(dw, 18, 20, Width1)
			in.set(dw, 21, 24, VStride0)
			return
		}
		in.set(dw, 16, 17, uint32(r.HStride))
		in.set(dw, 18, 20, uint32(r.Width))
		in.set(dw, 21, 24, uint32(r.VStride))
		return
	}
	in.set(dw, 0, 1, uint32(SwizzleGet(r.Swizzle, X)))
	in.set(dw, 2, 3, uint32(SwizzleGet(r.Swizzle, Y)))
	in.set(dw, 16, 17, uint32(SwizzleGet(r.Swizzle, Z)))
	in.set(dw, 18, 19, uint32(SwizzleGet(r.Swizzle, W)))
	// Align16 encodes a vertical stride of 8 as 4.
	vs := uint32(r.VStride)
	if r.VStride == VStride8 {
		vs = VStride4
	}
	in.set(dw, 21, 24, vs)
}

// Src0 decodes the first source operand.
func (in *Instruction) Src0() Reg {
	r := Reg{File: in.Src0File(), Type: in.Src0Type()}
	if r.File == FileIMM {
		r.Imm = in[3]
		return r
	}
	in.srcRegion(2, &r)
	return r
}

// Src1 decodes the second source operand.
func (in *Instruction) Src1() Reg {
	r := Reg{File: in.Src1File(), Type: in.Src1Type()}
	if r.File == FileIMM || in.Src0File() == FileIMM {
		r.File = FileIMM
		r.Imm = in[3]
		return r
	}
	in.srcRegion(3, &r)
	return r
}

func (in *Instruction) srcRegion(dw int, r *Reg) {
	r.Abs = in.get(dw, 13, 13) != 0
	r.Negate = in.get(dw, 14, 14) != 0
	r.AddrMode = uint8(in.get(dw, 15, 15))
	r.VStride = uint8(in.get(dw, 21, 24))
	if r.AddrMode == AddrIndirect {
		r.AddrOffset = signExtend10(in.get(dw, 0, 9))
		r.AddrSubnr = in.get(dw, 10, 12)
	} else {
		r.Nr = in.get(dw, 5, 12)
	}
	if in.AccessMode() == Align1 {
		if r.AddrMode == AddrDirect {
			r.Subnr = in.get(dw, 0, 4)
		}
		r.HStride = uint8(in.get(dw, 16, 17))
		r.Width = uint8(in.get(dw, 18, 20))
		r.Swizzle = SwizzleXYZW
		return
	}
	if r.AddrMode == AddrDirect {
		r.Subnr = in.get(dw, 4, 4) * 16
	}
	r.Swizzle = Swizzle4(
		uint8(in.get(dw, 0, 1)), uint8(in.get(dw, 2, 3)),
		uint8(in.get(dw, 16, 17)), uint8(in.get(dw, 18, 19)),
	)
	r.Width = Width4
	r.HStride = HStride1
}

// Message descriptors (dword 3 of SEND).

// MathMessage returns the descriptor of a math shared-function request.
func MathMessage(function, dataType, precision, msgLen, respLen uint32, saturate bool) uint32 {
	return function |
		precision<<5 |
		b2u(saturate)<<6 |
		dataType<<7 |
		respLen<<16 |
		msgLen<<20 |
		TargetMath<<24
}

// URBMessage returns the descriptor of an URB write.
func URBMessage(offset, swizzle, msgLen, respLen uint32, allocate, used, complete, eot bool) uint32 {
	return offset<<4 |
		swizzle<<10 |
		b2u(allocate)<<13 |
		b2u(used)<<14 |
		b2u(complete)<<15 |
		respLen<<16 |
		msgLen<<20 |
		TargetURB<<24 |
		b2u(eot)<<31
}

// SamplerMessage returns the descriptor of a sampler request.
func SamplerMessage(surface, sampler, msgType, returnFormat, msgLen, respLen uint32, eot bool) uint32 {
	return surface |
		sampler<<8 |
		returnFormat<<12 |
		msgType<<14 |
		respLen<<16 |
		msgLen<<20 |
		TargetSampler<<24 |
		b2u(eot)<<31
}

// DataPortWriteMessage returns the descriptor of a data-port write.
func DataPortWriteMessage(surface, msgControl, msgType, msgLen, respLen uint32, lastRT, eot bool) uint32 {
	return surface |
		msgControl<<8 |
		b2u(lastRT)<<11 |
		msgType<<12 |
		respLen<<16 |
		msgLen<<20 |
		TargetDataWrite<<24 |
		b2u(eot)<<31
}

// Message is a decoded SEND descriptor.
type Message struct {
	Target   uint32
	MsgLen   uint32
	RespLen  uint32
	EOT      bool
	Function uint32 // low 16 bits, interpreted per target
}

// DecodeMessage splits a SEND descriptor.
func DecodeMessage(desc uint32) Message {
	return Message{
		Target:   desc >> 24 & 0xf,
		MsgLen:   desc >> 20 & 0xf,
		RespLen:  desc >> 16 & 0xf,
		EOT:      desc>>31 != 0,
		Function: desc & 0xffff,
	}
}
