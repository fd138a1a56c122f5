package eu

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MaxInstructions bounds a single kernel.
const MaxInstructions = 4096

var (
	// ErrTooManyInstructions is returned when a kernel outgrows MaxInstructions.
	ErrTooManyInstructions = errors.New("eu: too many instructions")

	// ErrTwoImmediates is returned for an instruction with two immediate sources.
	ErrTwoImmediates = errors.New("eu: both sources are immediates")

	// ErrStateUnderflow is returned by Pop on an empty state stack.
	ErrStateUnderflow = errors.New("eu: state stack underflow")

	// ErrMessageLength is returned when a SEND payload would run past the MRF file.
	ErrMessageLength = errors.New("eu: message length out of range")
)

// NumMRF is the size of the message register file.
const NumMRF = 16

// State is the instruction default state copied into every emitted
// instruction.
type State struct {
	Access      AccessMode
	Predicate   uint32
	PredInverse bool
	CondMod     CondMod
	Mask        uint32
	Compression uint32
	Saturate    bool
}

// Assembler emits native instructions. It keeps a stack of default states;
// a conditional modifier is one-shot and turns on predication for the
// instructions that follow it.
//
// Errors are sticky: once an emit fails every later emit is ignored and
// Err reports the first failure.
type Assembler struct {
	store []Instruction
	cur   State
	stack []State
	err   error
}

// NewAssembler returns an assembler in Align1 mode with masking enabled and
// no predication.
func NewAssembler() *Assembler {
	return &Assembler{cur: State{Access: Align1, Mask: MaskEnable}}
}

// Err returns the first emit error.
func (a *Assembler) Err() error { return a.err }

func (a *Assembler) fail(err error) {
	if a.err == nil {
		a.err = err
	}
}

// Push saves the default state.
func (a *Assembler) Push() { a.stack = append(a.stack, a.cur) }

// Pop restores the last pushed default state.
func (a *Assembler) Pop() {
	if len(a.stack) == 0 {
		a.fail(ErrStateUnderflow)
		return
	}
	a.cur = a.stack[len(a.stack)-1]
	a.stack = a.stack[:len(a.stack)-1]
}

// State returns the current default state.
func (a *Assembler) State() State { return a.cur }

// SetAccessMode selects Align1 or Align16 addressing.
func (a *Assembler) SetAccessMode(m AccessMode) { a.cur.Access = m }

// SetPredicate sets the predicate control for following instructions.
func (a *Assembler) SetPredicate(ctrl uint32, inverse bool) {
	a.cur.Predicate = ctrl
	a.cur.PredInverse = inverse
}

// SetCondMod applies c to the next emitted instruction only.
func (a *Assembler) SetCondMod(c CondMod) { a.cur.CondMod = c }

// SetMaskControl sets execution masking.
func (a *Assembler) SetMaskControl(v uint32) { a.cur.Mask = v }

// SetSaturate clamps results of following instructions to [0, 1].
func (a *Assembler) SetSaturate(b bool) { a.cur.Saturate = b }

// SetCompression sets the compression control.
func (a *Assembler) SetCompression(v uint32) { a.cur.Compression = v }

// Len returns the number of emitted instructions.
func (a *Assembler) Len() int { return len(a.store) }

// Instructions returns the emitted instructions.
func (a *Assembler) Instructions() []Instruction { return a.store }

// Last returns the most recently emitted instruction.
func (a *Assembler) Last() *Instruction {
	if len(a.store) == 0 {
		return nil
	}
	return &a.store[len(a.store)-1]
}

// Bytes returns the kernel as little-endian machine code.
func (a *Assembler) Bytes() []byte { return Encode(a.store) }

// Encode serializes instructions as little-endian machine code.
func Encode(insns []Instruction) []byte {
	out := make([]byte, 0, len(insns)*16)
	for _, in := range insns {
		for _, dw := range in {
			out = binary.LittleEndian.AppendUint32(out, dw)
		}
	}
	return out
}

// Decode parses little-endian machine code.
func Decode(code []byte) ([]Instruction, error) {
	if len(code)%16 != 0 {
		return nil, fmt.Errorf("eu: code length %d is not a multiple of 16", len(code))
	}
	insns := make([]Instruction, len(code)/16)
	for i := range insns {
		for j := range 4 {
			insns[i][j] = binary.LittleEndian.Uint32(code[i*16+j*4:])
		}
	}
	return insns, nil
}

func (a *Assembler) next(op Opcode) *Instruction {
	if a.err != nil {
		return nil
	}
	if len(a.store) >= MaxInstructions {
		a.fail(ErrTooManyInstructions)
		return nil
	}
	var in Instruction
	in.SetOpcode(op)
	in.SetAccessMode(a.cur.Access)
	in.SetMaskControl(a.cur.Mask)
	in.SetCompression(a.cur.Compression)
	in.SetPredicateControl(a.cur.Predicate)
	in.SetPredicateInverse(a.cur.PredInverse)
	in.SetCondMod(a.cur.CondMod)
	in.SetSaturate(a.cur.Saturate)
	if a.cur.CondMod != CondNone {
		a.cur.CondMod = CondNone
		a.cur.Predicate = PredicateNormal
	}
	a.store = append(a.store, in)
	return &a.store[len(a.store)-1]
}

func (a *Assembler) setDst(in *Instruction, dst Reg) {
	in.SetExecSize(uint32(dst.Width))
	in.SetDst(dst)
}

func (a *Assembler) alu1(op Opcode, dst, src Reg) *Instruction {
	in := a.next(op)
	if in == nil {
		return nil
	}
	a.setDst(in, dst)
	in.SetSrc0(src)
	return in
}

func (a *Assembler) alu2(op Opcode, dst, src0, src1 Reg) *Instruction {
	if src0.File == FileIMM && src1.File == FileIMM {
		a.fail(fmt.Errorf("%w: %s", ErrTwoImmediates, op))
		return nil
	}
	in := a.next(op)
	if in == nil {
		return nil
	}
	a.setDst(in, dst)
	in.SetSrc0(src0)
	in.SetSrc1(src1)
	return in
}

// MOV emits dst = src.
func (a *Assembler) MOV(dst, src Reg) { a.alu1(OpMOV, dst, src) }

// NOT emits dst = ^src.
func (a *Assembler) NOT(dst, src Reg) { a.alu1(OpNOT, dst, src) }

// FRC emits dst = src - floor(src).
func (a *Assembler) FRC(dst, src Reg) { a.alu1(OpFRC, dst, src) }

// RNDD emits dst = floor(src).
func (a *Assembler) RNDD(dst, src Reg) { a.alu1(OpRNDD, dst, src) }

// RNDZ emits dst = trunc(src).
func (a *Assembler) RNDZ(dst, src Reg) { a.alu1(OpRNDZ, dst, src) }

// RNDE emits dst = round-half-even(src).
func (a *Assembler) RNDE(dst, src Reg) { a.alu1(OpRNDE, dst, src) }

// SEL emits dst = flag ? src0 : src1 under the current predicate.
func (a *Assembler) SEL(dst, src0, src1 Reg) { a.alu2(OpSEL, dst, src0, src1) }

// AND emits a bitwise and.
func (a *Assembler) AND(dst, src0, src1 Reg) { a.alu2(OpAND, dst, src0, src1) }

// OR emits a bitwise or.
func (a *Assembler) OR(dst, src0, src1 Reg) { a.alu2(OpOR, dst, src0, src1) }

// XOR emits a bitwise xor.
func (a *Assembler) XOR(dst, src0, src1 Reg) { a.alu2(OpXOR, dst, src0, src1) }

// SHL emits a left shift.
func (a *Assembler) SHL(dst, src0, src1 Reg) { a.alu2(OpSHL, dst, src0, src1) }

// SHR emits a logical right shift.
func (a *Assembler) SHR(dst, src0, src1 Reg) { a.alu2(OpSHR, dst, src0, src1) }

// ADD emits dst = src0 + src1.
func (a *Assembler) ADD(dst, src0, src1 Reg) { a.alu2(OpADD, dst, src0, src1) }

// MUL emits dst = src0 * src1.
func (a *Assembler) MUL(dst, src0, src1 Reg) { a.alu2(OpMUL, dst, src0, src1) }

// MAC emits dst = acc + src0*src1.
func (a *Assembler) MAC(dst, src0, src1 Reg) { a.alu2(OpMAC, dst, src0, src1) }

// DP3 emits a three-component dot product replicated to all channels.
func (a *Assembler) DP3(dst, src0, src1 Reg) { a.alu2(OpDP3, dst, src0, src1) }

// DP4 emits a four-component dot product replicated to all channels.
func (a *Assembler) DP4(dst, src0, src1 Reg) { a.alu2(OpDP4, dst, src0, src1) }

// DPH emits a homogeneous dot product.
func (a *Assembler) DPH(dst, src0, src1 Reg) { a.alu2(OpDPH, dst, src0, src1) }

// LINE emits dst = src0.x*src1 + src0.w, the plane-equation helper.
func (a *Assembler) LINE(dst, src0, src1 Reg) { a.alu2(OpLINE, dst, src0, src1) }

// NOP emits a no-op.
func (a *Assembler) NOP() { a.next(OpNOP) }

// CMP emits a comparison that updates the flag register. With a null
// destination it also turns on predication for the following instructions.
func (a *Assembler) CMP(dst Reg, cond CondMod, src0, src1 Reg) {
	in := a.alu2(OpCMP, dst, src0, src1)
	if in == nil {
		return
	}
	in.SetCondMod(cond)
	if dst.IsNull() {
		a.cur.Predicate = PredicateNormal
	}
}

func (a *Assembler) send(dst Reg, msgReg uint32, src0 Reg, desc uint32, msgLen uint32) *Instruction {
	if msgReg+msgLen > NumMRF {
		a.fail(fmt.Errorf("%w: m%d+%d", ErrMessageLength, msgReg, msgLen))
		return nil
	}
	in := a.next(OpSEND)
	if in == nil {
		return nil
	}
	a.setDst(in, dst)
	in.SetSrc0(src0)
	in.SetSrc1(ImmD(0))
	in[3] = desc
	in.SetMsgReg(msgReg)
	return in
}

// Math sends src to the extended math unit. The source is copied to
// m<msgReg> by the message itself; POW takes its second operand from the
// following message register.
func (a *Assembler) Math(dst Reg, function uint32, saturate bool, msgReg uint32, src Reg, dataType, precision uint32) {
	msgLen := uint32(1)
	if function == MathPow {
		msgLen = 2
	}
	desc := MathMessage(function, dataType, precision, msgLen, 1, saturate)
	in := a.send(dst, msgReg, src, desc, msgLen)
	if in != nil {
		in.SetPredicateControl(PredicateNone)
	}
}

// URBWrite writes msgLen message registers, starting at m<msgReg>, to the
// thread's URB entry.
func (a *Assembler) URBWrite(dst Reg, msgReg uint32, src0 Reg, allocate, used bool, msgLen, respLen uint32, eot, complete bool, offset, swizzle uint32) {
	desc := URBMessage(offset, swizzle, msgLen, respLen, allocate, used, complete, eot)
	a.send(dst, msgReg, src0, desc, msgLen)
}

// Sample issues a sampler request from m<msgReg> into dst.
func (a *Assembler) Sample(dst Reg, msgReg uint32, src0 Reg, surface, sampler, msgType, respLen, msgLen uint32, eot bool) {
	desc := SamplerMessage(surface, sampler, msgType, SamplerReturnFloat32, msgLen, respLen, eot)
	in := a.send(dst, msgReg, src0, desc, msgLen)
	if in != nil {
		in.SetPredicateControl(PredicateNone)
	}
}

// FBWrite writes a SIMD8 render-target message starting at m<msgReg>.
func (a *Assembler) FBWrite(dst Reg, msgReg uint32, src0 Reg, surface, msgLen, respLen uint32, eot bool) {
	desc := DataPortWriteMessage(surface, DPRenderTargetSIMD8Low, DPWriteRenderTarget, msgLen, respLen, true, eot)
	in := a.send(dst, msgReg, src0, desc, msgLen)
	if in != nil {
		in.SetPredicateControl(PredicateNone)
		in.SetCompression(CompressionNone)
	}
}
