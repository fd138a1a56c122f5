package eu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Register file sizes.
const (
	NumGRF   = 128
	RegBytes = 32
)

var (
	// ErrUnsupported is returned when the interpreter meets an instruction it
	// does not model.
	ErrUnsupported = errors.New("eu: unsupported instruction")

	// ErrNoEOT is returned when a kernel runs off its end without an
	// end-of-thread message.
	ErrNoEOT = errors.New("eu: kernel ended without EOT")

	// ErrStepLimit is returned when a kernel exceeds the step limit.
	ErrStepLimit = errors.New("eu: step limit exceeded")

	// ErrBadAddress is returned for a register access outside its file.
	ErrBadAddress = errors.New("eu: register address out of range")
)

// SampleFunc returns the texel color for one channel's coordinates.
type SampleFunc func(surface, sampler uint32, u, v float32) [4]float32

// Written is a captured URB or render-target write: the payload registers
// as they were in the MRF when the SEND executed.
type Written struct {
	Target uint32
	Offset uint32
	EOT    bool
	Regs   [][RegBytes]byte
}

// Float returns float f of payload register r.
func (w Written) Float(r, f int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(w.Regs[r][f*4:]))
}

// Uint returns dword d of payload register r.
func (w Written) Uint(r, d int) uint32 {
	return binary.LittleEndian.Uint32(w.Regs[r][d*4:])
}

// Machine is a reference interpreter for generated kernels. It models the
// ALU subset the compilers emit plus the math, URB, sampler and
// render-target messages. It is a test oracle, not a cycle model.
type Machine struct {
	grf  [NumGRF * RegBytes]byte
	mrf  [NumMRF * RegBytes]byte
	acc  [RegBytes]byte
	addr [16]byte
	flag uint16

	// Sampler serves sampler messages. Nil samples return zero.
	Sampler SampleFunc

	// MaxSteps bounds execution; zero means 1<<16.
	MaxSteps int

	// Writes records URB and render-target messages in issue order.
	Writes []Written

	// Steps is the number of instructions executed by the last Run.
	Steps int
}

// NewMachine returns a machine with all registers zero.
func NewMachine() *Machine { return &Machine{} }

// SetGRF stores eight floats into g<nr>.
func (m *Machine) SetGRF(nr int, v [8]float32) {
	for i, f := range v {
		binary.LittleEndian.PutUint32(m.grf[nr*RegBytes+i*4:], math.Float32bits(f))
	}
}

// SetGRFUint stores eight dwords into g<nr>.
func (m *Machine) SetGRFUint(nr int, v [8]uint32) {
	for i, u := range v {
		binary.LittleEndian.PutUint32(m.grf[nr*RegBytes+i*4:], u)
	}
}

// SetGRFVec4 stores a vec4 at g<nr>.<half*4>.
func (m *Machine) SetGRFVec4(nr, half int, v [4]float32) {
	for i, f := range v {
		binary.LittleEndian.PutUint32(m.grf[nr*RegBytes+half*16+i*4:], math.Float32bits(f))
	}
}

// GRF returns g<nr> as eight floats.
func (m *Machine) GRF(nr int) [8]float32 {
	var out [8]float32
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(m.grf[nr*RegBytes+i*4:]))
	}
	return out
}

// MRF returns m<nr> as eight floats.
func (m *Machine) MRF(nr int) [8]float32 {
	var out [8]float32
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(m.mrf[nr*RegBytes+i*4:]))
	}
	return out
}

// Flag returns the flag register.
func (m *Machine) Flag() uint16 { return m.flag }

// Run executes insns from the first instruction until an end-of-thread
// message.
func (m *Machine) Run(insns []Instruction) error {
	limit := m.MaxSteps
	if limit == 0 {
		limit = 1 << 16
	}
	m.Steps = 0
	for pc := 0; pc < len(insns); pc++ {
		if m.Steps >= limit {
			return ErrStepLimit
		}
		m.Steps++
		eot, err := m.step(&insns[pc])
		if err != nil {
			return fmt.Errorf("eu: pc %d (%s): %w", pc, insns[pc].String(), err)
		}
		if eot {
			return nil
		}
	}
	return ErrNoEOT
}

// value is one channel operand: floats for float execution, raw integer
// bits otherwise.
type value struct {
	f float64
	i int64
}

func (m *Machine) step(in *Instruction) (bool, error) {
	switch op := in.Opcode(); op {
	case OpNOP:
		return false, nil
	case OpSEND:
		// A predicated message is sent or dropped as a whole, on channel 0.
		if !m.enabled(in, 0) {
			return false, nil
		}
		return m.send(in)
	case OpMOV, OpNOT, OpFRC, OpRNDD, OpRNDZ, OpRNDE, OpRNDU,
		OpSEL, OpAND, OpOR, OpXOR, OpSHL, OpSHR, OpASR,
		OpADD, OpMUL, OpMAC, OpCMP, OpLINE, OpDP3, OpDP4, OpDPH:
		return false, m.alu(in)
	default:
		return false, fmt.Errorf("%w: opcode %d", ErrUnsupported, op)
	}
}

func (m *Machine) execSize(in *Instruction) int { return 1 << in.ExecSize() }

func (m *Machine) enabled(in *Instruction, ch int) bool {
	if in.PredicateControl() == PredicateNone {
		return true
	}
	on := m.flag&(1<<ch) != 0
	return on != in.PredicateInverse()
}

func isFloat(t Type) bool { return t == TypeF }

func (m *Machine) alu(in *Instruction) error {
	op := in.Opcode()
	n := m.execSize(in)
	dst := in.Dst()
	src0 := in.Src0()
	var src1 Reg
	if op.NumSources() > 1 {
		src1 = in.Src1()
	}
	float := isFloat(src0.Type) || (op.NumSources() > 1 && isFloat(src1.Type))
	if src0.File == FileIMM && src0.Type == TypeVF {
		float = true
	}

	var results [16]value
	var a, b [16]value
	for ch := range n {
		var err error
		if a[ch], err = m.read(in, src0, ch); err != nil {
			return err
		}
		if op.NumSources() > 1 {
			if b[ch], err = m.read(in, src1, ch); err != nil {
				return err
			}
		}
	}

	var flags uint16
	for ch := range n {
		x, y := a[ch], b[ch]
		var r value
		switch op {
		case OpMOV:
			r = x
		case OpNOT:
			r.i = ^x.i
		case OpFRC:
			r.f = x.f - math.Floor(x.f)
		case OpRNDD:
			r.f = math.Floor(x.f)
		case OpRNDU:
			r.f = math.Ceil(x.f)
		case OpRNDZ:
			r.f = math.Trunc(x.f)
		case OpRNDE:
			r.f = math.RoundToEven(x.f)
		case OpSEL:
			if m.enabled(in, ch) {
				r = x
			} else {
				r = y
			}
		case OpAND:
			r.i = x.i & y.i
		case OpOR:
			r.i = x.i | y.i
		case OpXOR:
			r.i = x.i ^ y.i
		case OpSHL:
			r.i = x.i << (y.i & 31)
		case OpSHR:
			r.i = int64(uint32(x.i) >> (y.i & 31))
		case OpASR:
			r.i = int64(int32(x.i) >> (y.i & 31))
		case OpADD:
			r.f, r.i = x.f+y.f, x.i+y.i
		case OpMUL:
			r.f, r.i = x.f*y.f, x.i*y.i
		case OpMAC:
			acc := m.accFloat(ch)
			r.f = acc + x.f*y.f
		case OpCMP:
			if compare(in.CondMod(), x, y, float) {
				r.i = -1
				flags |= 1 << ch
			}
		case OpLINE:
			p, q, err := m.linePlane(src0)
			if err != nil {
				return err
			}
			r.f = p*y.f + q
		case OpDP3, OpDP4, OpDPH:
			base := ch &^ 3
			var sum float64
			for k := range 3 {
				sum += a[base+k].f * b[base+k].f
			}
			switch op {
			case OpDP4:
				sum += a[base+3].f * b[base+3].f
			case OpDPH:
				sum += b[base+3].f
			}
			r.f = sum
		}
		if op != OpCMP && float && in.Saturate() {
			r.f = math.Max(0, math.Min(1, r.f))
		}
		if op != OpCMP {
			if cm := in.CondMod(); cm != CondNone && compare(cm, r, value{}, float) {
				flags |= 1 << ch
			}
		}
		results[ch] = r
	}

	if op == OpCMP || in.CondMod() != CondNone {
		mask := uint16(1<<n - 1)
		for ch := range n {
			if !m.enabled(in, ch) && op != OpSEL {
				mask &^= 1 << ch
			}
		}
		m.flag = m.flag&^mask | flags&mask
	}

	for ch := range n {
		if op != OpSEL && !m.enabled(in, ch) {
			continue
		}
		if in.AccessMode() == Align16 && dst.WriteMask&(1<<(ch&3)) == 0 {
			continue
		}
		if err := m.write(in, dst, ch, results[ch], float && op != OpCMP); err != nil {
			return err
		}
		if op == OpADD || op == OpMUL || op == OpMAC || op == OpLINE {
			m.setAccFloat(ch, results[ch].f)
		}
	}
	return nil
}

func compare(cm CondMod, x, y value, float bool) bool {
	var d float64
	if float {
		d = x.f - y.f
		if x.f == y.f {
			d = 0
		}
	} else {
		switch {
		case x.i < y.i:
			d = -1
		case x.i > y.i:
			d = 1
		}
	}
	switch cm {
	case CondZ:
		return d == 0
	case CondNZ:
		return d != 0
	case CondG:
		return d > 0
	case CondGE:
		return d >= 0
	case CondL:
		return d < 0
	case CondLE:
		return d <= 0
	}
	return false
}

// linePlane returns the plane coefficients P and Q read from the first
// and fourth elements of src0.
func (m *Machine) linePlane(src Reg) (float64, float64, error) {
	base, err := m.regBase(src)
	if err != nil {
		return 0, 0, err
	}
	p := math.Float32frombits(binary.LittleEndian.Uint32(m.file(src.File)[base:]))
	q := math.Float32frombits(binary.LittleEndian.Uint32(m.file(src.File)[base+12:]))
	return float64(p), float64(q), nil
}

func (m *Machine) file(f File) []byte {
	switch f {
	case FileGRF:
		return m.grf[:]
	case FileMRF:
		return m.mrf[:]
	}
	return nil
}

func (m *Machine) regBase(r Reg) (int, error) {
	if r.AddrMode == AddrIndirect {
		a := int(binary.LittleEndian.Uint16(m.addr[r.AddrSubnr*2:]))
		return a + int(r.AddrOffset), nil
	}
	return int(r.Nr*RegBytes + r.Subnr), nil
}

func (m *Machine) elementOffset(in *Instruction, r Reg, ch int) int {
	size := int(r.Type.Size())
	if in.AccessMode() == Align16 {
		vertex, comp := ch/4, ch%4
		return (vertex*strideOf(r.VStride) + int(SwizzleGet(r.Swizzle, comp))) * size
	}
	width := 1 << r.Width
	return ((ch/width)*strideOf(r.VStride) + (ch%width)*strideOf(r.HStride)) * size
}

func (m *Machine) read(in *Instruction, r Reg, ch int) (value, error) {
	if r.File == FileIMM {
		return immValue(r, ch), nil
	}
	var raw uint32
	switch {
	case r.File == FileARF && r.Nr&0xf0 == ARFNull:
		return value{}, nil
	case r.File == FileARF && r.Nr&0xf0 == ARFAcc:
		return value{f: m.accFloat(ch)}, nil
	case r.File == FileARF && r.Nr&0xf0 == ARFFlag:
		return value{i: int64(m.flag)}, nil
	case r.File == FileARF && r.Nr&0xf0 == ARFAddress:
		off := int(r.Subnr) + m.elementOffset(in, r, ch)
		if off+2 > len(m.addr) {
			return value{}, ErrBadAddress
		}
		return value{i: int64(binary.LittleEndian.Uint16(m.addr[off:]))}, nil
	}
	base, err := m.regBase(r)
	if err != nil {
		return value{}, err
	}
	mem := m.file(r.File)
	off := base + m.elementOffset(in, r, ch)
	size := int(r.Type.Size())
	if mem == nil || off < 0 || off+size > len(mem) {
		return value{}, fmt.Errorf("%w: %s offset %d", ErrBadAddress, r, off)
	}
	switch size {
	case 4:
		raw = binary.LittleEndian.Uint32(mem[off:])
	case 2:
		raw = uint32(binary.LittleEndian.Uint16(mem[off:]))
	default:
		raw = uint32(mem[off])
	}
	return applyMods(decodeValue(r.Type, raw), r), nil
}

func immValue(r Reg, ch int) value {
	switch r.Type {
	case TypeVF:
		f := VFToFloat(uint8(r.Imm >> (8 * (ch % 4))))
		return value{f: float64(f)}
	case TypeV:
		n := int64(r.Imm>>(4*(ch%8))) & 0xf
		if n >= 8 {
			n -= 16
		}
		return applyMods(value{i: n, f: float64(n)}, r)
	case TypeUW, TypeW:
		return applyMods(decodeValue(r.Type, r.Imm&0xffff), r)
	}
	return applyMods(decodeValue(r.Type, r.Imm), r)
}

func decodeValue(t Type, raw uint32) value {
	switch t {
	case TypeF:
		f := float64(math.Float32frombits(raw))
		return value{f: f, i: int64(f)}
	case TypeD:
		return value{i: int64(int32(raw)), f: float64(int32(raw))}
	case TypeW:
		return value{i: int64(int16(raw)), f: float64(int16(raw))}
	case TypeB:
		return value{i: int64(int8(raw)), f: float64(int8(raw))}
	default:
		return value{i: int64(raw), f: float64(raw)}
	}
}

func applyMods(v value, r Reg) value {
	if r.Abs {
		v.f = math.Abs(v.f)
		if v.i < 0 {
			v.i = -v.i
		}
	}
	if r.Negate {
		v.f, v.i = -v.f, -v.i
	}
	return v
}

func (m *Machine) write(in *Instruction, dst Reg, ch int, v value, float bool) error {
	if dst.File == FileARF {
		switch dst.Nr & 0xf0 {
		case ARFNull:
			return nil
		case ARFAcc:
			if float {
				m.setAccFloat(ch, v.f)
			} else {
				m.setAccFloat(ch, float64(v.i))
			}
			return nil
		case ARFAddress:
			off := int(dst.Subnr) + ch*2*strideOf(hstrideOrOne(dst.HStride))
			if off+2 > len(m.addr) {
				return ErrBadAddress
			}
			binary.LittleEndian.PutUint16(m.addr[off:], uint16(intOf(v, float)))
			return nil
		case ARFFlag:
			m.flag = uint16(intOf(v, float))
			return nil
		}
		return fmt.Errorf("%w: %s", ErrUnsupported, dst)
	}
	base, err := m.regBase(dst)
	if err != nil {
		return err
	}
	size := int(dst.Type.Size())
	var off int
	if in.AccessMode() == Align16 {
		off = base + ch*size
	} else {
		off = base + ch*size*strideOf(hstrideOrOne(dst.HStride))
	}
	mem := m.file(dst.File)
	if mem == nil || off < 0 || off+size > len(mem) {
		return fmt.Errorf("%w: %s offset %d", ErrBadAddress, dst, off)
	}
	var raw uint32
	switch dst.Type {
	case TypeF:
		f := v.f
		if !float {
			f = float64(v.i)
		}
		raw = math.Float32bits(float32(f))
	default:
		raw = uint32(intOf(v, float))
	}
	switch size {
	case 4:
		binary.LittleEndian.PutUint32(mem[off:], raw)
	case 2:
		binary.LittleEndian.PutUint16(mem[off:], uint16(raw))
	default:
		mem[off] = byte(raw)
	}
	return nil
}

func intOf(v value, float bool) int64 {
	if float {
		return int64(v.f)
	}
	return v.i
}

func (m *Machine) accFloat(ch int) float64 {
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(m.acc[(ch%8)*4:])))
}

func (m *Machine) setAccFloat(ch int, f float64) {
	binary.LittleEndian.PutUint32(m.acc[(ch%8)*4:], math.Float32bits(float32(f)))
}

func (m *Machine) send(in *Instruction) (bool, error) {
	msgReg := int(in.MsgReg())
	desc := in.Imm()
	msg := DecodeMessage(desc)
	if msgReg+int(msg.MsgLen) > NumMRF {
		return false, ErrMessageLength
	}

	// The payload source is moved into the first message register.
	src := in.Src0()
	if src.File == FileGRF {
		mov := *in
		mov.SetOpcode(OpMOV)
		mov.SetCondMod(CondNone)
		mov.SetSaturate(false)
		mov.SetDst(Retype(Vec8(FileMRF, uint32(msgReg), 0), src.Type))
		if err := m.alu(&mov); err != nil {
			return false, err
		}
	}

	switch msg.Target {
	case TargetMath:
		return msg.EOT, m.math(in, msgReg, desc)
	case TargetURB, TargetDataWrite:
		w := Written{Target: msg.Target, EOT: msg.EOT}
		if msg.Target == TargetURB {
			w.Offset = desc >> 4 & 0x3f
		}
		for i := range int(msg.MsgLen) {
			var reg [RegBytes]byte
			copy(reg[:], m.mrf[(msgReg+i)*RegBytes:])
			w.Regs = append(w.Regs, reg)
		}
		m.Writes = append(m.Writes, w)
		return msg.EOT, nil
	case TargetSampler:
		return msg.EOT, m.sample(in, msgReg, desc)
	}
	return false, fmt.Errorf("%w: message target %d", ErrUnsupported, msg.Target)
}

func (m *Machine) math(in *Instruction, msgReg int, desc uint32) error {
	fn := desc & 0xf
	dst := in.Dst()
	n := m.execSize(in)
	for ch := range n {
		x := float64(m.mrfFloat(msgReg, ch))
		var r float64
		switch fn {
		case MathInv:
			r = 1 / x
		case MathLog:
			r = math.Log2(x)
		case MathExp:
			r = math.Exp2(x)
		case MathSqrt:
			r = math.Sqrt(x)
		case MathRsq:
			r = 1 / math.Sqrt(math.Abs(x))
		case MathSin:
			r = math.Sin(x)
		case MathCos:
			r = math.Cos(x)
		case MathPow:
			r = math.Pow(x, float64(m.mrfFloat(msgReg+1, ch)))
		default:
			return fmt.Errorf("%w: math function %d", ErrUnsupported, fn)
		}
		if desc&(1<<6) != 0 {
			r = math.Max(0, math.Min(1, r))
		}
		if in.AccessMode() == Align16 && dst.WriteMask&(1<<(ch&3)) == 0 {
			continue
		}
		if err := m.write(in, dst, ch, value{f: r}, true); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) mrfFloat(nr, ch int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(m.mrf[nr*RegBytes+(ch%8)*4:]))
}

// sample reads u from m<msg+1> and v from m<msg+2> and returns four
// response registers of eight channels each.
func (m *Machine) sample(in *Instruction, msgReg int, desc uint32) error {
	dst := in.Dst()
	surface, sampler := desc&0xff, desc>>8&0xf
	for ch := range 8 {
		var c [4]float32
		if m.Sampler != nil {
			c = m.Sampler(surface, sampler, m.mrfFloat(msgReg+1, ch), m.mrfFloat(msgReg+2, ch))
		}
		for k, f := range c {
			off := int((dst.Nr+uint32(k))*RegBytes) + ch*4
			if off+4 > len(m.grf) {
				return ErrBadAddress
			}
			binary.LittleEndian.PutUint32(m.grf[off:], math.Float32bits(f))
		}
	}
	return nil
}
