package eu

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestMOVEncoding(t *testing.T) {
	a := NewAssembler()
	a.MOV(GRF(1), GRF(2))
	if err := a.Err(); err != nil {
		t.Fatal(err)
	}
	want := Instruction{0x00600001, 0x202003bd, 0x008d0040, 0}
	if got := a.Instructions()[0]; got != want {
		t.Errorf("mov = %08x, want %08x", got, want)
	}
}

func TestImmediateSource(t *testing.T) {
	a := NewAssembler()
	a.MOV(GRF(1), ImmF(1.5))
	in := a.Last()
	if in.Src0File() != FileIMM || in.Src1File() != FileARF || in.Src1Type() != TypeF {
		t.Errorf("imm operand files: src0 %d src1 %d/%d", in.Src0File(), in.Src1File(), in.Src1Type())
	}
	if in.Imm() != math.Float32bits(1.5) {
		t.Errorf("Imm() = %#x", in.Imm())
	}
	if got := in.Src0(); got.File != FileIMM || got.Imm != math.Float32bits(1.5) {
		t.Errorf("Src0() = %+v", got)
	}
}

func TestOperandRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		mode AccessMode
		dst  Reg
		src  Reg
	}{
		{"align1 vec8", Align1, GRF(5), Neg(Vec8(FileGRF, 9, 0))},
		{"align1 suboffset", Align1, Vec4(FileGRF, 3, 4), AbsOf(Vec4(FileGRF, 7, 4))},
		{"align16 swizzle", Align16, Masked(GRF(12), WriteX|WriteZ), Swizzled(GRF(40), W, Z, Y, X)},
		{"align1 indirect", Align1, Vec4(FileGRF, 2, 0), Vec4Indirect(0, 48)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAssembler()
			a.SetAccessMode(tt.mode)
			a.MOV(tt.dst, tt.src)
			in := a.Last()
			d, s := in.Dst(), in.Src0()
			if d.Nr != tt.dst.Nr || d.Subnr != tt.dst.Subnr {
				t.Errorf("dst = g%d.%d, want g%d.%d", d.Nr, d.Subnr, tt.dst.Nr, tt.dst.Subnr)
			}
			if tt.mode == Align16 && d.WriteMask != tt.dst.WriteMask {
				t.Errorf("write mask = %x, want %x", d.WriteMask, tt.dst.WriteMask)
			}
			if s.Negate != tt.src.Negate || s.Abs != tt.src.Abs || s.AddrMode != tt.src.AddrMode {
				t.Errorf("src mods = %+v, want %+v", s, tt.src)
			}
			if tt.src.AddrMode == AddrIndirect {
				if s.AddrOffset != tt.src.AddrOffset {
					t.Errorf("indirect offset = %d, want %d", s.AddrOffset, tt.src.AddrOffset)
				}
			} else if s.Nr != tt.src.Nr {
				t.Errorf("src nr = %d, want %d", s.Nr, tt.src.Nr)
			}
			if tt.mode == Align16 && s.Swizzle != tt.src.Swizzle {
				t.Errorf("swizzle = %s, want %s", swizzleString(s.Swizzle), swizzleString(tt.src.Swizzle))
			}
		})
	}
}

func TestCondModIsOneShot(t *testing.T) {
	a := NewAssembler()
	a.SetCondMod(CondL)
	a.ADD(GRF(1), GRF(2), GRF(3))
	a.MOV(GRF(4), GRF(1))
	insns := a.Instructions()
	if insns[0].CondMod() != CondL || insns[0].PredicateControl() != PredicateNone {
		t.Errorf("first: cond %v pred %d", insns[0].CondMod(), insns[0].PredicateControl())
	}
	if insns[1].CondMod() != CondNone || insns[1].PredicateControl() != PredicateNormal {
		t.Errorf("second: cond %v pred %d", insns[1].CondMod(), insns[1].PredicateControl())
	}
}

func TestCMPNullEnablesPredicate(t *testing.T) {
	a := NewAssembler()
	a.CMP(Null(), CondGE, GRF(1), ImmF(0))
	if a.State().Predicate != PredicateNormal {
		t.Error("CMP to null did not enable predication")
	}
	if a.Last().CondMod() != CondGE {
		t.Errorf("cond = %v", a.Last().CondMod())
	}
}

func TestPushPop(t *testing.T) {
	a := NewAssembler()
	a.Push()
	a.SetAccessMode(Align16)
	a.SetSaturate(true)
	a.Pop()
	if s := a.State(); s.Access != Align1 || s.Saturate {
		t.Errorf("state after Pop = %+v", s)
	}
}

func TestAssemblerErrors(t *testing.T) {
	tests := []struct {
		name string
		emit func(a *Assembler)
		want error
	}{
		{"underflow", func(a *Assembler) { a.Pop() }, ErrStateUnderflow},
		{"two immediates", func(a *Assembler) { a.ADD(GRF(1), ImmF(1), ImmF(2)) }, ErrTwoImmediates},
		{"message past mrf", func(a *Assembler) {
			a.URBWrite(Null(), 10, UD8(FileGRF, 0, 0), false, true, 8, 0, true, true, 0, URBSwizzleInterleave)
		}, ErrMessageLength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAssembler()
			tt.emit(a)
			a.MOV(GRF(1), GRF(2))
			if !errors.Is(a.Err(), tt.want) {
				t.Errorf("Err() = %v, want %v", a.Err(), tt.want)
			}
			if a.Len() != 0 {
				t.Errorf("Len() = %d after a sticky error", a.Len())
			}
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	a := NewAssembler()
	a.MOV(GRF(1), GRF(2))
	a.MUL(GRF(3), GRF(1), ImmF(2))
	code := a.Bytes()
	if len(code) != 32 {
		t.Fatalf("len = %d", len(code))
	}
	back, err := Decode(code)
	if err != nil {
		t.Fatal(err)
	}
	for i := range back {
		if back[i] != a.Instructions()[i] {
			t.Errorf("insn %d = %08x, want %08x", i, back[i], a.Instructions()[i])
		}
	}
	if _, err := Decode(code[:20]); err == nil {
		t.Error("Decode accepted a partial instruction")
	}
}

func TestMessageDescriptors(t *testing.T) {
	m := DecodeMessage(URBMessage(0, URBSwizzleInterleave, 5, 0, false, true, true, true))
	if m.Target != TargetURB || m.MsgLen != 5 || !m.EOT {
		t.Errorf("urb = %+v", m)
	}
	m = DecodeMessage(MathMessage(MathPow, MathDataVector, MathPrecisionFull, 2, 1, false))
	if m.Target != TargetMath || m.MsgLen != 2 || m.RespLen != 1 || m.Function&0xf != MathPow {
		t.Errorf("math = %+v", m)
	}
}

func TestVF(t *testing.T) {
	for _, f := range []float32{0, 1, -1, 0.5, 2, 0.25, 31, -3} {
		v, ok := VF(f)
		if !ok {
			t.Errorf("VF(%g) not representable", f)
			continue
		}
		if got := VFToFloat(v); got != f {
			t.Errorf("VFToFloat(VF(%g)) = %g", f, got)
		}
	}
	for _, f := range []float32{0.1, 0.125, 64} {
		if _, ok := VF(f); ok {
			t.Errorf("VF(%g) should not be representable", f)
		}
	}
}

func TestDisassemble(t *testing.T) {
	a := NewAssembler()
	a.SetAccessMode(Align16)
	a.ADD(Masked(GRF(4), WriteX), GRF(1), Neg(GRF(2)))
	a.SetAccessMode(Align1)
	a.URBWrite(Null(), 0, UD8(FileGRF, 0, 0), false, true, 3, 0, true, true, 0, URBSwizzleInterleave)
	text := Disassemble(a.Instructions())
	for _, want := range []string{"add (8) g4.0.x:F", "-g2.0", "{align16}", "send (8)", "urb", "EOT"} {
		if !strings.Contains(text, want) {
			t.Errorf("disassembly missing %q:\n%s", want, text)
		}
	}
}

func endThread(a *Assembler) {
	a.SetAccessMode(Align1)
	a.SetPredicate(PredicateNone, false)
	a.URBWrite(Null(), 0, UD8(FileGRF, 0, 0), false, true, 2, 0, true, true, 0, URBSwizzleInterleave)
}

func TestMachineMACAndDP4(t *testing.T) {
	a := NewAssembler()
	a.SetAccessMode(Align16)
	a.MOV(Acc(), GRF(2))
	a.MAC(GRF(3), GRF(1), GRF(1))
	a.DP4(GRF(4), GRF(1), GRF(2))
	a.SetAccessMode(Align1)
	a.MOV(MRF(1), GRF(3))
	endThread(a)
	if err := a.Err(); err != nil {
		t.Fatal(err)
	}

	m := NewMachine()
	m.SetGRF(1, [8]float32{1, 2, 3, 4, 5, 6, 7, 8})
	m.SetGRF(2, [8]float32{2, 2, 2, 2, 1, 1, 1, 1})
	if err := m.Run(a.Instructions()); err != nil {
		t.Fatal(err)
	}
	if got, want := m.GRF(3), [8]float32{3, 6, 11, 18, 26, 37, 50, 65}; got != want {
		t.Errorf("mac = %v, want %v", got, want)
	}
	if got, want := m.GRF(4), [8]float32{20, 20, 20, 20, 26, 26, 26, 26}; got != want {
		t.Errorf("dp4 = %v, want %v", got, want)
	}
	if len(m.Writes) != 1 || !m.Writes[0].EOT {
		t.Fatalf("writes = %+v", m.Writes)
	}
	if got := m.Writes[0].Float(1, 3); got != 18 {
		t.Errorf("urb payload m1.3 = %g, want 18", got)
	}
}

func TestMachineMaxViaCMPSEL(t *testing.T) {
	a := NewAssembler()
	a.CMP(Null(), CondL, GRF(1), GRF(2))
	a.SEL(GRF(3), GRF(2), GRF(1))
	endThread(a)

	m := NewMachine()
	m.SetGRF(1, [8]float32{1, 5, 3, 7, 0, 9, 4, 2})
	m.SetGRF(2, [8]float32{4, 4, 4, 4, 4, 4, 4, 4})
	if err := m.Run(a.Instructions()); err != nil {
		t.Fatal(err)
	}
	if m.Flag() != 0x95 {
		t.Errorf("flag = %#x, want 0x95", m.Flag())
	}
	if got, want := m.GRF(3), [8]float32{4, 5, 4, 7, 4, 9, 4, 4}; got != want {
		t.Errorf("max = %v, want %v", got, want)
	}
}

func TestMachineMath(t *testing.T) {
	a := NewAssembler()
	a.Math(GRF(2), MathInv, false, 2, GRF(1), MathDataVector, MathPrecisionFull)
	a.MOV(MRF(3), GRF(3))
	a.Math(GRF(4), MathPow, false, 2, GRF(1), MathDataVector, MathPrecisionFull)
	endThread(a)

	m := NewMachine()
	m.SetGRF(1, [8]float32{2, 4, 8, 16, 1, 0.5, 0.25, 32})
	m.SetGRF(3, [8]float32{2, 2, 2, 2, 2, 2, 2, 2})
	if err := m.Run(a.Instructions()); err != nil {
		t.Fatal(err)
	}
	if got, want := m.GRF(2), [8]float32{0.5, 0.25, 0.125, 0.0625, 1, 2, 4, 0.03125}; got != want {
		t.Errorf("inv = %v, want %v", got, want)
	}
	if got, want := m.GRF(4), [8]float32{4, 16, 64, 256, 1, 0.25, 0.0625, 1024}; got != want {
		t.Errorf("pow = %v, want %v", got, want)
	}
}

func TestMachineIndirectRead(t *testing.T) {
	a := NewAssembler()
	a.ADD(Address(0), Retype(Vec1(FileGRF, 1, 0), TypeUW), ImmD(5*32))
	a.MOV(Vec4(FileGRF, 2, 0), Vec4Indirect(0, 16))
	endThread(a)

	m := NewMachine()
	m.SetGRFUint(1, [8]uint32{32})
	m.SetGRF(6, [8]float32{0, 0, 0, 0, 9, 8, 7, 6})
	if err := m.Run(a.Instructions()); err != nil {
		t.Fatal(err)
	}
	got := m.GRF(2)
	if got[0] != 9 || got[3] != 6 {
		t.Errorf("indirect = %v", got)
	}
}

func TestMachineErrors(t *testing.T) {
	a := NewAssembler()
	a.MOV(GRF(1), GRF(2))
	if err := NewMachine().Run(a.Instructions()); !errors.Is(err, ErrNoEOT) {
		t.Errorf("Run() = %v, want ErrNoEOT", err)
	}
	bad := []Instruction{{uint32(OpIF)}}
	if err := NewMachine().Run(bad); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Run() = %v, want ErrUnsupported", err)
	}
}

func TestMachinePixelOffsets(t *testing.T) {
	r1 := Retype(GRF(1), TypeUW)
	a := NewAssembler()
	a.ADD(Retype(GRF(2), TypeUW), Stride(Suboffset(r1, 4), 2, 4, 0), ImmV(0x10101010))
	a.ADD(GRF(3), Retype(GRF(2), TypeUW), Neg(Vec1(FileGRF, 1, 0)))
	endThread(a)

	m := NewMachine()
	m.SetGRFUint(1, [8]uint32{math.Float32bits(9), 0, 10 | 20<<16, 12 | 20<<16})
	if err := m.Run(a.Instructions()); err != nil {
		t.Fatal(err)
	}
	if got, want := m.GRF(3), [8]float32{1, 2, 1, 2, 3, 4, 3, 4}; got != want {
		t.Errorf("delta x = %v, want %v", got, want)
	}
}

func TestMachinePredicatedSend(t *testing.T) {
	a := NewAssembler()
	a.SetCondMod(CondNZ)
	a.AND(UD1(FileGRF, 2, 0), UD1(FileGRF, 1, 0), ImmUD(0x3))
	a.URBWrite(Null(), 0, UD8(FileGRF, 0, 0), false, true, 1, 0, true, true, 0, URBSwizzleNone)
	a.SetPredicate(PredicateNone, false)
	a.URBWrite(Null(), 0, UD8(FileGRF, 0, 0), false, true, 2, 0, true, true, 0, URBSwizzleNone)

	for _, tt := range []struct {
		bits   uint32
		msgLen int
	}{{0x4, 2}, {0x1, 1}} {
		m := NewMachine()
		m.SetGRFUint(1, [8]uint32{tt.bits})
		if err := m.Run(a.Instructions()); err != nil {
			t.Fatal(err)
		}
		if len(m.Writes) != 1 || len(m.Writes[0].Regs) != tt.msgLen {
			t.Errorf("bits %#x: writes %+v, want one of length %d", tt.bits, m.Writes, tt.msgLen)
		}
	}
}
