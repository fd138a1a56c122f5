// Package vs compiles shader IR vertex programs to GEN4 EU kernels.
//
// The kernel runs in SIMD4x2 Align16 mode: every GRF holds one vec4 for
// each of two vertices. Registers are assigned once, in a fixed order,
// with no liveness analysis:
//
//	r0                 thread payload
//	clip planes        CURBE, when user clipping is enabled
//	params             CURBE, constants then immediates, two per register
//	inputs             URB, one register per input read
//	POSITION, PSIZE    GRF; every other output goes straight to m4 onwards
//	temporaries        one register each
//	address registers  one register each
//	scratch            the get/release stack, up to g127
//
// The program ends with the vertex write: a header with point size and
// clip flags in m1, NDC in m2, position in m3, the outputs after that, and
// an URB write that terminates the thread.
package vs

import (
	"errors"
	"fmt"

	"github.com/gogpu/i965/internal/eu"
	"github.com/gogpu/i965/internal/pipe"
	"github.com/gogpu/i965/internal/shader"
)

// MaxUserClip is the number of user clip planes the header can flag.
const MaxUserClip = 6

// First message register holding a non-position output.
const firstOutputMRF = 4

var (
	// ErrUnsupportedOpcode is returned for IR opcodes without a lowering.
	ErrUnsupportedOpcode = errors.New("vs: unsupported opcode")

	// ErrRegisterOverflow is returned when allocation runs past g127 or
	// the outputs do not fit the message registers.
	ErrRegisterOverflow = errors.New("vs: register file exhausted")

	// ErrNoPosition is returned for programs that never write POSITION.
	ErrNoPosition = errors.New("vs: program does not write POSITION")

	// ErrNotVertex is returned when compiling a fragment program.
	ErrNotVertex = errors.New("vs: not a vertex program")

	// ErrBadOperand is returned for register references outside the
	// declared ranges.
	ErrBadOperand = errors.New("vs: bad operand")
)

// Key selects a compiled variant. Two programs with equal keys and equal
// IR compile to identical kernels.
type Key struct {
	ProgramID    uint32
	NrUserClip   int
	CopyEdgeFlag bool

	// KnowWIsOne skips the NDC divide. It is also set when the program
	// provably writes 1 to POSITION.w.
	KnowWIsOne bool
}

// Program is a compiled vertex kernel plus the metadata the VS unit and
// the CURBE and URB layouts need.
type Program struct {
	Instructions []eu.Instruction

	TotalGRF       int
	CurbReadLength int
	URBReadLength  int
	URBEntrySize   int
	NrParams       int
	NrInputs       int
	NrOutputs      int
	InputsRead     uint64
	OutputsWritten uint64

	// Inputs lists the IN registers in GRF order.
	Inputs []int

	// Outputs lists the non-position outputs in URB order: element i is
	// written from m4+i.
	Outputs []shader.IOSlot
}

// Bytes returns the little-endian kernel.
func (p *Program) Bytes() []byte { return eu.Encode(p.Instructions) }

type compiler struct {
	prog *shader.Program
	info *shader.Info
	key  Key
	p    *eu.Assembler

	r0        eu.Reg
	userPlane [MaxUserClip]eu.Reg
	params    []eu.Reg
	inputs    map[int]eu.Reg
	outputs   map[int]eu.Reg
	temps     []eu.Reg
	addrs     []eu.Reg

	// shadowed outputs are read as sources, so they live in a GRF and are
	// copied to their message register by the epilogue.
	shadowed map[int]uint32

	nrConsts   int
	nrInputs   int
	nrOutputs  int
	knowWIsOne bool
	sat        bool

	firstTmp int
	lastTmp  int
	totalGRF int

	inputsRead     uint64
	outputsWritten uint64
	outSlots       []shader.IOSlot
	inputOrder     []int

	err error
}

// Compile translates prog into a vertex kernel.
func Compile(prog *shader.Program, key Key) (*Program, error) {
	if prog.Stage != pipe.StageVertex {
		return nil, ErrNotVertex
	}
	if key.NrUserClip < 0 || key.NrUserClip > MaxUserClip {
		return nil, fmt.Errorf("vs: %d user clip planes, at most %d", key.NrUserClip, MaxUserClip)
	}
	info := shader.Scan(prog)
	c := &compiler{
		prog:       prog,
		info:       info,
		key:        key,
		p:          eu.NewAssembler(),
		inputs:     make(map[int]eu.Reg),
		outputs:    make(map[int]eu.Reg),
		shadowed:   make(map[int]uint32),
		knowWIsOne: key.KnowWIsOne || info.PositionWIsOne,
	}
	if info.PositionOutput < 0 || info.OutputsWritten&(1<<uint(info.PositionOutput)) == 0 {
		return nil, ErrNoPosition
	}
	if err := c.alloc(); err != nil {
		return nil, err
	}

	c.p.SetAccessMode(eu.Align16)
	for i, in := range prog.Insns {
		if in.Op == shader.OpEND {
			c.epilogue()
			break
		}
		if err := c.instruction(in); err != nil {
			return nil, fmt.Errorf("vs: instruction %d (%s): %w", i, in, err)
		}
		if c.err != nil {
			return nil, fmt.Errorf("vs: instruction %d (%s): %w", i, in, c.err)
		}
		c.releaseTmps()
	}
	if c.err != nil {
		return nil, c.err
	}
	if err := c.p.Err(); err != nil {
		return nil, fmt.Errorf("vs: %w", err)
	}

	return &Program{
		Instructions:   c.p.Instructions(),
		TotalGRF:       c.totalGRF,
		CurbReadLength: c.curbReadLength(),
		URBReadLength:  (c.nrInputs + 1) / 2,
		URBEntrySize:   (c.nrOutputs + 2 + 3) / 4,
		NrParams:       len(c.params),
		NrInputs:       c.nrInputs,
		NrOutputs:      c.nrOutputs,
		InputsRead:     c.inputsRead,
		OutputsWritten: c.outputsWritten,
		Inputs:         c.inputOrder,
		Outputs:        c.outSlots,
	}, nil
}

func (c *compiler) curbReadLength() int {
	n := 0
	if c.key.NrUserClip > 0 {
		n += (6 + c.key.NrUserClip + 3) / 4 * 2
	}
	return n + (len(c.params)+1)/2
}

// curbeVec4 addresses the i-th vec4 of a CURBE block starting at reg,
// replicated to both vertex halves.
func curbeVec4(reg uint32, i int) eu.Reg {
	return eu.Stride(eu.Vec4(eu.FileGRF, reg+uint32(i/2), uint32(i%2)*4), 0, 4, 1)
}

func (c *compiler) alloc() error {
	info := c.info
	reg := uint32(1)
	c.r0 = eu.GRF(0)

	if n := c.key.NrUserClip; n > 0 {
		// The six fixed planes come first in the clip block.
		for i := range n {
			c.userPlane[i] = curbeVec4(reg+3, i)
		}
		reg += uint32((6+n+3)/4) * 2
	}

	c.nrConsts = info.NumConsts()
	nrParams := c.nrConsts + len(c.prog.Immediates)
	for i := range nrParams {
		c.params = append(c.params, curbeVec4(reg, i))
	}
	reg += uint32(nrParams+1) / 2

	c.inputsRead = info.InputsRead
	c.outputsWritten = info.OutputsWritten
	edgeIn, edgeOut := -1, -1
	if c.key.CopyEdgeFlag {
		edgeIn, edgeOut = c.edgeFlagSlots()
		if edgeIn >= 0 && edgeOut >= 0 {
			c.inputsRead |= 1 << uint(edgeIn)
			c.outputsWritten |= 1 << uint(edgeOut)
		}
	}

	for i := range 64 {
		if c.inputsRead&(1<<uint(i)) == 0 {
			continue
		}
		c.inputs[i] = eu.GRF(reg)
		c.inputOrder = append(c.inputOrder, i)
		c.nrInputs++
		reg++
	}

	readOutputs := c.outputsReadAsSource()
	mrf := uint32(firstOutputMRF)
	for i := range 64 {
		if c.outputsWritten&(1<<uint(i)) == 0 {
			continue
		}
		c.nrOutputs++
		switch i {
		case info.PositionOutput:
			c.outputs[i] = eu.GRF(reg)
			reg++
		case info.PSizeOutput:
			c.outputs[i] = eu.GRF(reg)
			reg++
			c.outSlots = append(c.outSlots, c.slot(i))
			mrf++
		default:
			if readOutputs[i] {
				c.shadowed[i] = mrf
			} else {
				c.outputs[i] = eu.MRF(mrf)
			}
			c.outSlots = append(c.outSlots, c.slot(i))
			mrf++
		}
	}
	if mrf > eu.NumMRF {
		return fmt.Errorf("%w: %d outputs do not fit the message registers", ErrRegisterOverflow, c.nrOutputs)
	}

	for range info.NumTemps() {
		c.temps = append(c.temps, eu.GRF(reg))
		reg++
	}
	for range info.NumAddrs() {
		c.addrs = append(c.addrs, eu.NewReg(eu.FileGRF, reg, 0, eu.TypeD,
			eu.VStride8, eu.Width8, eu.HStride1, eu.Swizzle4(eu.X, eu.X, eu.X, eu.X), eu.WriteX))
		reg++
	}
	for i := range 64 {
		if _, ok := c.shadowed[i]; ok {
			c.outputs[i] = eu.GRF(reg)
			reg++
		}
	}

	if reg >= eu.NumGRF {
		return fmt.Errorf("%w: %d registers before scratch", ErrRegisterOverflow, reg)
	}
	c.firstTmp = int(reg)
	c.lastTmp = int(reg)
	c.totalGRF = int(reg)
	return nil
}

func (c *compiler) slot(i int) shader.IOSlot {
	if s, ok := c.info.OutputSemantic(i); ok {
		return s
	}
	return shader.IOSlot{Index: i}
}

func (c *compiler) edgeFlagSlots() (in, out int) {
	in, out = -1, -1
	for _, s := range c.info.Inputs {
		if s.Semantic == shader.SemEdgeFlag {
			in = s.Index
		}
	}
	for _, s := range c.info.Outputs {
		if s.Semantic == shader.SemEdgeFlag {
			out = s.Index
		}
	}
	return in, out
}

func (c *compiler) outputsReadAsSource() map[int]bool {
	read := make(map[int]bool)
	for _, in := range c.prog.Insns {
		for _, s := range in.Src {
			if s.File == shader.FileOutput {
				read[s.Index] = true
			}
		}
	}
	return read
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

// releaseTmp only frees the most recent allocation.
func (c *compiler) releaseTmp(r eu.Reg) {
	if int(r.Nr) == c.lastTmp-1 {
		c.lastTmp--
	}
}

func (c *compiler) releaseTmps() { c.lastTmp = c.firstTmp }
