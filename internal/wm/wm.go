// Package wm compiles shader IR fragment programs to SIMD8 GEN4 EU
// kernels.
//
// Every IR vec4 register becomes four GRFs, one per component, each
// holding that component for the eight pixels of the dispatch. The
// thread payload and the allocation that follows it are:
//
//	r0                 thread header
//	r1                 origin x, y as floats in r1.0 and r1.1; the
//	                   upper-left pixel of each 2x2 subspan as words
//	                   in r1.4/r1.5 and r1.6/r1.7
//	CURBE              constants, two vec4 per register
//	setup              SF coefficients, two registers per attribute;
//	                   channel c holds [Cx, Cy, -, C0] in 16 bytes
//	pixel x, y         words
//	delta x, delta y   pixel position minus origin, floats
//	inputs             four registers per IN read
//	outputs            four registers per OUT written
//	temporaries        four registers each
//	scratch            up to g127
//
// Attributes are interpolated linearly with LINE and MAC. The kernel
// ends with a render-target write of the color output: the header in m0,
// r1 in m1 and red, green, blue, alpha in m2 to m5.
package wm

import (
	"errors"
	"fmt"

	"github.com/gogpu/i965/internal/eu"
	"github.com/gogpu/i965/internal/pipe"
	"github.com/gogpu/i965/internal/shader"
)

// Binding table layout seen by the kernel.
const (
	RenderTargetSurface = 0
	FirstTextureSurface = 1
)

// DispatchGRFStart is the first register after the fixed payload.
const DispatchGRFStart = 2

// Message registers of the render-target write.
const (
	fbHeaderMessageReg = 0
	fbColorMessageReg  = 2
	fbMessageLength    = 6

	samplerMessageReg = 1
)

var (
	// ErrUnsupportedOpcode is returned for IR opcodes without a SIMD8
	// lowering.
	ErrUnsupportedOpcode = errors.New("wm: unsupported opcode")

	// ErrRegisterOverflow is returned when allocation runs past g127.
	ErrRegisterOverflow = errors.New("wm: register file exhausted")

	// ErrNotFragment is returned when compiling a vertex program.
	ErrNotFragment = errors.New("wm: not a fragment program")

	// ErrBadOperand is returned for register references outside the
	// declared ranges, and for indirect addressing.
	ErrBadOperand = errors.New("wm: bad operand")

	// ErrNoColor is returned for programs that never write an output.
	ErrNoColor = errors.New("wm: program writes no color")
)

// Key selects a compiled variant.
type Key struct {
	ProgramID uint32

	// Attributes is the SF attribute layout: the vertex outputs after
	// POSITION, in URB order. Inputs are matched to it by semantic.
	Attributes []shader.IOSlot
}

// Program is a compiled fragment kernel plus the metadata the WM unit
// and the CURBE layout need.
type Program struct {
	Instructions []eu.Instruction

	TotalGRF       int
	CurbReadLength int
	URBReadLength  int
	SetupRegs      int
	NrParams       int
	NrSamplers     int

	// InputAttribute maps each IN register read to its attribute, or -1
	// when the vertex stage does not provide it.
	InputAttribute map[int]int
}

// Bytes returns the little-endian kernel.
func (p *Program) Bytes() []byte { return eu.Encode(p.Instructions) }

type compiler struct {
	prog *shader.Program
	info *shader.Info
	key  Key
	p    *eu.Assembler

	curbe  uint32
	setup  uint32
	pixel  uint32
	deltaX eu.Reg
	deltaY eu.Reg

	inputs  map[int]uint32
	outputs map[int]uint32
	temps   uint32
	color   int

	inputAttr map[int]int

	firstTmp int
	lastTmp  int
	totalGRF int

	err error
}

// Compile translates prog into a SIMD8 fragment kernel.
func Compile(prog *shader.Program, key Key) (*Program, error) {
	if prog.Stage != pipe.StageFragment {
		return nil, ErrNotFragment
	}
	info := shader.Scan(prog)
	c := &compiler{
		prog:      prog,
		info:      info,
		key:       key,
		p:         eu.NewAssembler(),
		inputs:    make(map[int]uint32),
		outputs:   make(map[int]uint32),
		inputAttr: make(map[int]int),
		color:     -1,
	}
	if err := c.alloc(); err != nil {
		return nil, err
	}

	c.p.SetAccessMode(eu.Align1)
	c.interpolate()
	for i, in := range prog.Insns {
		if in.Op == shader.OpEND {
			break
		}
		if err := c.instruction(in); err != nil {
			return nil, fmt.Errorf("wm: instruction %d (%s): %w", i, in, err)
		}
		if c.err != nil {
			return nil, fmt.Errorf("wm: instruction %d (%s): %w", i, in, c.err)
		}
		c.releaseTmps()
	}
	c.writeColor()
	if err := c.p.Err(); err != nil {
		return nil, fmt.Errorf("wm: %w", err)
	}

	return &Program{
		Instructions:   c.p.Instructions(),
		TotalGRF:       c.totalGRF,
		CurbReadLength: (info.NumConsts() + 1) / 2,
		URBReadLength:  len(key.Attributes),
		SetupRegs:      2 * len(key.Attributes),
		NrParams:       info.NumConsts(),
		NrSamplers:     info.NumSamplers(),
		InputAttribute: c.inputAttr,
	}, nil
}

// Builtin returns the program used when no fragment program is bound. It
// writes the first attribute as the color, or opaque white when the
// vertex stage provides none.
func Builtin(attrs []shader.IOSlot) *shader.Program {
	p := &shader.Program{Stage: pipe.StageFragment}
	p.Declare(shader.Decl{File: shader.FileOutput, Semantic: shader.SemColor})
	if len(attrs) == 0 {
		white := p.AddImmediate([4]float32{1, 1, 1, 1})
		p.Emit(shader.OpMOV, shader.NewDst(shader.FileOutput, 0), shader.NewSrc(shader.FileImm, white))
	} else {
		p.Declare(shader.Decl{File: shader.FileInput, Semantic: attrs[0].Semantic, SemanticIndex: attrs[0].SemanticIndex})
		p.Emit(shader.OpMOV, shader.NewDst(shader.FileOutput, 0), shader.NewSrc(shader.FileInput, 0))
	}
	p.Emit(shader.OpEND, shader.Dst{})
	return p
}

func (c *compiler) alloc() error {
	info := c.info
	reg := uint32(DispatchGRFStart)

	c.curbe = reg
	reg += uint32(info.NumConsts()+1) / 2

	c.setup = reg
	reg += 2 * uint32(len(c.key.Attributes))

	c.pixel = reg
	c.deltaX = eu.GRF(reg + 1)
	c.deltaY = eu.GRF(reg + 2)
	reg += 3

	for i := range 64 {
		if info.InputsRead&(1<<uint(i)) == 0 {
			continue
		}
		c.inputs[i] = reg
		c.inputAttr[i] = c.attribute(i)
		reg += 4
	}
	for i := range 64 {
		if info.OutputsWritten&(1<<uint(i)) == 0 {
			continue
		}
		c.outputs[i] = reg
		reg += 4
		if s, ok := info.OutputSemantic(i); ok && s.Semantic == shader.SemColor && s.SemanticIndex == 0 {
			c.color = i
		}
		if c.color < 0 {
			c.color = i
		}
	}
	if c.color < 0 {
		return ErrNoColor
	}

	c.temps = reg
	reg += 4 * uint32(info.NumTemps())

	if reg >= eu.NumGRF {
		return fmt.Errorf("%w: %d registers before scratch", ErrRegisterOverflow, reg)
	}
	c.firstTmp = int(reg)
	c.lastTmp = int(reg)
	c.totalGRF = int(reg)
	return nil
}

// attribute returns the SF attribute feeding input i, or -1.
func (c *compiler) attribute(i int) int {
	want, ok := c.info.InputSemantic(i)
	if !ok {
		want = shader.IOSlot{Semantic: shader.SemGeneric, SemanticIndex: i}
	}
	for n, a := range c.key.Attributes {
		if a.Semantic == want.Semantic && a.SemanticIndex == want.SemanticIndex {
			return n
		}
	}
	return -1
}

// interpolate computes the pixel deltas and every input read.
func (c *compiler) interpolate() {
	p := c.p
	r1 := eu.Retype(eu.GRF(1), eu.TypeUW)
	pixelX := eu.Retype(eu.GRF(c.pixel), eu.TypeUW)
	pixelY := eu.Suboffset(pixelX, 8)

	// Subspan origins plus the offsets of the four pixels in each.
	p.ADD(pixelX, eu.Stride(eu.Suboffset(r1, 4), 2, 4, 0), eu.ImmV(0x10101010))
	p.ADD(pixelY, eu.Stride(eu.Suboffset(r1, 5), 2, 4, 0), eu.ImmV(0x11001100))
	p.ADD(c.deltaX, pixelX, eu.Neg(eu.Vec1(eu.FileGRF, 1, 0)))
	p.ADD(c.deltaY, pixelY, eu.Neg(eu.Vec1(eu.FileGRF, 1, 1)))

	for i := range 64 {
		base, ok := c.inputs[i]
		if !ok {
			continue
		}
		a := c.inputAttr[i]
		if a < 0 {
			for ch := range uint32(4) {
				p.MOV(eu.GRF(base+ch), eu.ImmF(defaultAttribute[ch]))
			}
			continue
		}
		for ch := range uint32(4) {
			coef := eu.Vec1(eu.FileGRF, c.setup+2*uint32(a)+ch/2, (ch%2)*4)
			p.LINE(eu.Null(), coef, c.deltaX)
			p.MAC(eu.GRF(base+ch), eu.Suboffset(coef, 1), c.deltaY)
		}
	}
}

var defaultAttribute = [4]float32{0, 0, 0, 1}

// writeColor sends the color output to the render target and ends the
// thread.
func (c *compiler) writeColor() {
	p := c.p
	p.SetPredicate(eu.PredicateNone, false)
	p.MOV(eu.Retype(eu.MRF(1), eu.TypeUD), eu.UD8(eu.FileGRF, 1, 0))
	base := c.outputs[c.color]
	for ch := range uint32(4) {
		p.MOV(eu.MRF(fbColorMessageReg+ch), eu.GRF(base+ch))
	}
	p.FBWrite(eu.Null(), fbHeaderMessageReg, eu.UD8(eu.FileGRF, 0, 0), RenderTargetSurface, fbMessageLength, 0, true)
}

func (c *compiler) getTmp() eu.Reg {
	if c.lastTmp >= eu.NumGRF {
		if c.err == nil {
			c.err = fmt.Errorf("%w: scratch register g%d", ErrRegisterOverflow, c.lastTmp)
		}
		return eu.GRF(eu.NumGRF - 1)
	}
	tmp := eu.GRF(uint32(c.lastTmp))
	c.lastTmp++
	c.totalGRF = max(c.totalGRF, c.lastTmp)
	return tmp
}

// getTmps returns the first of n consecutive scratch registers.
func (c *compiler) getTmps(n int) eu.Reg {
	first := c.getTmp()
	for range n - 1 {
		c.getTmp()
	}
	return first
}

func (c *compiler) releaseTmps() { c.lastTmp = c.firstTmp }
