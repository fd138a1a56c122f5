package eu

import (
	"fmt"
	"math"
)

// Reg is an instruction operand: a register region, an ARF register or an
// immediate. Region fields hold the hardware encodings.
type Reg struct {
	File    File
	Type    Type
	Nr      uint32
	Subnr   uint32 // byte offset within the register
	Negate  bool
	Abs     bool
	VStride uint8
	Width   uint8
	HStride uint8

	Swizzle   uint8
	WriteMask uint8

	AddrMode   uint8
	AddrSubnr  uint32 // address register subregister (words) for indirect operands
	AddrOffset int32  // byte offset added to the address register

	// Imm holds the raw bits of an immediate.
	Imm uint32
}

// NewReg builds a register operand from raw encodings.
func NewReg(file File, nr, subnr uint32, typ Type, vstride, width, hstride, swizzle, writemask uint8) Reg {
	return Reg{
		File:      file,
		Type:      typ,
		Nr:        nr,
		Subnr:     subnr * typ.Size(),
		VStride:   vstride,
		Width:     width,
		HStride:   hstride,
		Swizzle:   swizzle,
		WriteMask: writemask,
	}
}

// Vec16 returns a 16-wide float region.
func Vec16(file File, nr, subnr uint32) Reg {
	return NewReg(file, nr, subnr, TypeF, VStride16, Width16, HStride1, SwizzleXYZW, WriteXYZW)
}

// Vec8 returns an 8-wide float region.
func Vec8(file File, nr, subnr uint32) Reg {
	return NewReg(file, nr, subnr, TypeF, VStride8, Width8, HStride1, SwizzleXYZW, WriteXYZW)
}

// Vec4 returns a 4-wide float region.
func Vec4(file File, nr, subnr uint32) Reg {
	return NewReg(file, nr, subnr, TypeF, VStride4, Width4, HStride1, SwizzleXYZW, WriteXYZW)
}

// Vec2 returns a 2-wide float region.
func Vec2(file File, nr, subnr uint32) Reg {
	return NewReg(file, nr, subnr, TypeF, VStride2, Width2, HStride1, SwizzleXYZW, WriteXYZW)
}

// Vec1 returns a scalar float region.
func Vec1(file File, nr, subnr uint32) Reg {
	return NewReg(file, nr, subnr, TypeF, VStride0, Width1, HStride0, SwizzleXYZW, WriteX)
}

// UW1 returns a scalar word region.
func UW1(file File, nr, subnr uint32) Reg {
	return Retype(Vec1(file, nr, 0), TypeUW).withSubnr(subnr)
}

// UD1 returns a scalar dword region.
func UD1(file File, nr, subnr uint32) Reg {
	return Retype(Vec1(file, nr, subnr), TypeUD)
}

// UD8 returns an 8-wide dword region.
func UD8(file File, nr, subnr uint32) Reg {
	return Retype(Vec8(file, nr, subnr), TypeUD)
}

func (r Reg) withSubnr(subnr uint32) Reg {
	r.Subnr = subnr * r.Type.Size()
	return r
}

// GRF returns g<nr> as an 8-wide float region.
func GRF(nr uint32) Reg { return Vec8(FileGRF, nr, 0) }

// MRF returns m<nr> as an 8-wide float region.
func MRF(nr uint32) Reg { return Vec8(FileMRF, nr, 0) }

// Null returns the null register.
func Null() Reg { return Vec8(FileARF, ARFNull, 0) }

// Acc returns the accumulator.
func Acc() Reg { return Vec8(FileARF, ARFAcc, 0) }

// Address returns address subregister a0.<subnr>.
func Address(subnr uint32) Reg { return UW1(FileARF, ARFAddress, subnr) }

// Flag returns the flag register f0.0.
func Flag() Reg { return UW1(FileARF, ARFFlag, 0) }

func imm(t Type, bits uint32) Reg {
	return Reg{File: FileIMM, Type: t, VStride: VStride0, Width: Width1, HStride: HStride0, Imm: bits}
}

// ImmF returns a float immediate.
func ImmF(f float32) Reg { return imm(TypeF, math.Float32bits(f)) }

// ImmD returns a signed dword immediate.
func ImmD(d int32) Reg { return imm(TypeD, uint32(d)) }

// ImmUD returns an unsigned dword immediate.
func ImmUD(ud uint32) Reg { return imm(TypeUD, ud) }

// ImmUW returns an unsigned word immediate, replicated in both halves.
func ImmUW(uw uint16) Reg { return imm(TypeUW, uint32(uw)|uint32(uw)<<16) }

// ImmV returns a packed vector of eight signed 4-bit integers, element i
// in bits 4i..4i+3.
func ImmV(v uint32) Reg {
	r := imm(TypeV, v)
	r.VStride = VStride0
	r.Width = Width8
	r.HStride = HStride1
	return r
}

// ImmVF4 returns a packed vector of four restricted floats.
func ImmVF4(x, y, z, w uint8) Reg {
	r := imm(TypeVF, uint32(x)|uint32(y)<<8|uint32(z)<<16|uint32(w)<<24)
	r.VStride = VStride0
	r.Width = Width4
	r.HStride = HStride1
	return r
}

// VF encodes f as an 8-bit restricted float: sign, 3-bit exponent biased
// by 3 and 4-bit mantissa. It reports false when f is not representable.
func VF(f float32) (uint8, bool) {
	if f == 0 {
		return 0, true
	}
	bits := math.Float32bits(f)
	sign := uint8(bits>>31) << 7
	exp := int32(bits>>23&0xff) - 127
	mant := bits & 0x7fffff
	if exp < -3 || exp > 4 || mant&0x7ffff != 0 {
		return 0, false
	}
	v := uint8(exp+3)<<4 | uint8(mant>>19)
	if v == 0 {
		// The all-zero encoding is reserved for zero.
		return 0, false
	}
	return sign | v, true
}

// VFToFloat decodes an 8-bit restricted float.
func VFToFloat(v uint8) float32 {
	if v&0x7f == 0 {
		return 0
	}
	exp := int32(v>>4&7) - 3
	mant := float32(v&0xf) / 16
	f := (1 + mant) * float32(math.Pow(2, float64(exp)))
	if v&0x80 != 0 {
		return -f
	}
	return f
}

// Retype returns r with type t.
func Retype(r Reg, t Type) Reg {
	r.Type = t
	return r
}

// Offset returns r moved by delta registers.
func Offset(r Reg, delta uint32) Reg {
	r.Nr += delta
	return r
}

// Suboffset returns r moved by delta elements.
func Suboffset(r Reg, delta uint32) Reg {
	r.Subnr += delta * r.Type.Size()
	return r
}

// ByteOffset returns r moved by bytes, carrying into the register number.
func ByteOffset(r Reg, bytes uint32) Reg {
	abs := r.Nr*32 + r.Subnr + bytes
	r.Nr = abs / 32
	r.Subnr = abs % 32
	return r
}

// Stride returns r with the given region, in elements.
func Stride(r Reg, vstride, width, hstride uint32) Reg {
	r.VStride = encodeStride(vstride)
	r.Width = encodeWidth(width)
	r.HStride = encodeStride(hstride)
	if hstride == 4 {
		r.HStride = HStride4
	}
	return r
}

func encodeStride(v uint32) uint8 {
	if v == 0 {
		return 0
	}
	n := uint8(1)
	for v > 1 {
		v >>= 1
		n++
	}
	return n
}

func encodeWidth(w uint32) uint8 {
	n := uint8(0)
	for w > 1 {
		w >>= 1
		n++
	}
	return n
}

// ToVec8 returns r as an 8-wide region.
func ToVec8(r Reg) Reg { return Stride(r, 8, 8, 1) }

// ToVec4 returns r as a 4-wide region.
func ToVec4(r Reg) Reg { return Stride(r, 4, 4, 1) }

// ToVec1 returns r as a scalar region.
func ToVec1(r Reg) Reg { return Stride(r, 0, 1, 0) }

// Swizzled composes swz on top of the existing swizzle of r.
func Swizzled(r Reg, x, y, z, w uint8) Reg {
	r.Swizzle = Swizzle4(
		SwizzleGet(r.Swizzle, int(x)),
		SwizzleGet(r.Swizzle, int(y)),
		SwizzleGet(r.Swizzle, int(z)),
		SwizzleGet(r.Swizzle, int(w)),
	)
	return r
}

// Swizzle1 replicates channel ch.
func Swizzle1(r Reg, ch uint8) Reg { return Swizzled(r, ch, ch, ch, ch) }

// Masked restricts the write mask of r.
func Masked(r Reg, mask uint8) Reg {
	r.WriteMask &= mask
	return r
}

// Neg returns -r.
func Neg(r Reg) Reg {
	r.Negate = !r.Negate
	return r
}

// AbsOf returns |r|.
func AbsOf(r Reg) Reg {
	r.Abs = true
	r.Negate = false
	return r
}

// Vec4Indirect returns a float vec4 read through address subregister subnr
// plus a byte offset.
func Vec4Indirect(subnr uint32, offset int32) Reg {
	r := Vec4(FileGRF, 0, 0)
	r.AddrMode = AddrIndirect
	r.AddrSubnr = subnr
	r.AddrOffset = offset
	return r
}

// IsNull reports whether r is the null register.
func (r Reg) IsNull() bool { return r.File == FileARF && r.Nr == ARFNull }

// IsAcc reports whether r is the accumulator.
func (r Reg) IsAcc() bool { return r.File == FileARF && r.Nr == ARFAcc }

// Equal reports whether r and o address the same register storage.
func (r Reg) Equal(o Reg) bool {
	return r.File == o.File && r.Nr == o.Nr && r.Subnr == o.Subnr && r.AddrMode == o.AddrMode
}

// String returns an assembler-style operand.
func (r Reg) String() string {
	if r.File == FileIMM {
		switch r.Type {
		case TypeF:
			return fmt.Sprintf("%gF", math.Float32frombits(r.Imm))
		case TypeD:
			return fmt.Sprintf("%dD", int32(r.Imm))
		case TypeVF:
			return fmt.Sprintf("[%g,%g,%g,%g]VF",
				VFToFloat(uint8(r.Imm)), VFToFloat(uint8(r.Imm>>8)),
				VFToFloat(uint8(r.Imm>>16)), VFToFloat(uint8(r.Imm>>24)))
		default:
			return fmt.Sprintf("%#x%s", r.Imm, r.Type)
		}
	}
	var prefix string
	if r.Negate {
		prefix = "-"
	}
	if r.Abs {
		prefix += "(abs)"
	}
	return fmt.Sprintf("%s%s:%s", prefix, regName(r.File, r.Nr, r.Subnr/r.Type.Size()), r.Type)
}

func regName(f File, nr, sub uint32) string {
	switch f {
	case FileGRF:
		return fmt.Sprintf("g%d.%d", nr, sub)
	case FileMRF:
		return fmt.Sprintf("m%d", nr)
	case FileARF:
		switch nr & 0xf0 {
		case ARFNull:
			return "null"
		case ARFAddress:
			return fmt.Sprintf("a0.%d", sub)
		case ARFAcc:
			return "acc0"
		case ARFFlag:
			return fmt.Sprintf("f0.%d", sub)
		}
		return fmt.Sprintf("arf%#x", nr)
	}
	return "imm"
}
