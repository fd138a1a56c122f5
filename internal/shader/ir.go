// Package shader holds the driver's shader IR: a flat, TGSI-style list of
// vec4 instructions over typed register files, plus the declarations that
// bind inputs and outputs to semantics.
//
// Programs are built by Parse from assembler text, by the WGSL front-end,
// or directly by callers. Scan walks a program once and reports the
// register file sizes and I/O masks the compilers need.
package shader

import (
	"errors"
	"fmt"

	"github.com/gogpu/i965/internal/pipe"
)

var (
	// ErrSyntax is returned by Parse for malformed text.
	ErrSyntax = errors.New("shader: syntax error")

	// ErrInvalid is returned by Validate for structurally invalid programs.
	ErrInvalid = errors.New("shader: invalid program")
)

// File is a register file.
type File uint8

// Register files.
const (
	FileNull File = iota
	FileConst
	FileInput
	FileOutput
	FileTemp
	FileAddr
	FileImm
	FileSampler
	numFiles
)

var fileNames = [...]string{"NULL", "CONST", "IN", "OUT", "TEMP", "ADDR", "IMM", "SAMP"}

// String returns the assembler name of the file.
func (f File) String() string {
	if int(f) < len(fileNames) {
		return fileNames[f]
	}
	return "?"
}

// Semantic names the meaning of an input or output.
type Semantic uint8

// Semantics.
const (
	SemGeneric Semantic = iota
	SemPosition
	SemColor
	SemBColor
	SemFog
	SemPSize
	SemEdgeFlag
	SemTexcoord
)

var semNames = [...]string{"GENERIC", "POSITION", "COLOR", "BCOLOR", "FOG", "PSIZE", "EDGEFLAG", "TEXCOORD"}

// String returns the assembler name of the semantic.
func (s Semantic) String() string {
	if int(s) < len(semNames) {
		return semNames[s]
	}
	return "?"
}

// Swizzle component selectors. Zero and One are only valid in SWZ.
const (
	SwzX uint8 = iota
	SwzY
	SwzZ
	SwzW
	SwzZero
	SwzOne
)

// Write masks.
const (
	MaskX    uint8 = 1
	MaskY    uint8 = 2
	MaskZ    uint8 = 4
	MaskW    uint8 = 8
	MaskXYZW uint8 = 0xf
)

// Identity is the no-op swizzle.
var Identity = [4]uint8{SwzX, SwzY, SwzZ, SwzW}

// Src is a source operand.
type Src struct {
	File    File
	Index   int
	Swizzle [4]uint8
	Negate  bool
	// NegateMask negates individual components; SWZ only.
	NegateMask uint8
	Abs        bool

	// Indirect addresses File[ADDR[IndirectIndex].IndirectComp + Index].
	Indirect      bool
	IndirectIndex int
	IndirectComp  uint8
}

// Dst is a destination operand.
type Dst struct {
	File      File
	Index     int
	WriteMask uint8
}

// Texture targets.
const (
	Tex1D   = "1D"
	Tex2D   = "2D"
	Tex3D   = "3D"
	TexCube = "CUBE"
)

// Instruction is one IR instruction.
type Instruction struct {
	Op       Opcode
	Saturate bool
	Dst      Dst
	Src      []Src
	// Target is the texture target of TEX.
	Target string
}

// Decl binds a range of a register file, with a semantic for inputs and
// outputs.
type Decl struct {
	File          File
	First, Last   int
	Semantic      Semantic
	SemanticIndex int
}

// Program is a parsed shader.
type Program struct {
	Stage      pipe.Stage
	Decls      []Decl
	Immediates [][4]float32
	Insns      []Instruction
}

// NewSrc returns an identity-swizzled source.
func NewSrc(f File, index int) Src {
	return Src{File: f, Index: index, Swizzle: Identity}
}

// NewDst returns a destination writing all components.
func NewDst(f File, index int) Dst {
	return Dst{File: f, Index: index, WriteMask: MaskXYZW}
}

// Scalar returns s with component c replicated.
func (s Src) Scalar(c uint8) Src {
	sel := s.Swizzle[c]
	s.Swizzle = [4]uint8{sel, sel, sel, sel}
	return s
}

// Swizzled composes swz on top of the swizzle of s.
func (s Src) Swizzled(swz [4]uint8) Src {
	var out [4]uint8
	for i, c := range swz {
		out[i] = s.Swizzle[c]
	}
	s.Swizzle = out
	return s
}

// Neg returns -s.
func (s Src) Neg() Src {
	s.Negate = !s.Negate
	return s
}

// Masked returns d restricted to mask.
func (d Dst) Masked(mask uint8) Dst {
	d.WriteMask &= mask
	return d
}

// AddImmediate appends an immediate vector and returns its index.
func (p *Program) AddImmediate(v [4]float32) int {
	for i, imm := range p.Immediates {
		if imm == v {
			return i
		}
	}
	p.Immediates = append(p.Immediates, v)
	return len(p.Immediates) - 1
}

// Emit appends an instruction.
func (p *Program) Emit(op Opcode, dst Dst, src ...Src) *Instruction {
	p.Insns = append(p.Insns, Instruction{Op: op, Dst: dst, Src: src})
	return &p.Insns[len(p.Insns)-1]
}

// Declare appends a declaration.
func (p *Program) Declare(d Decl) { p.Decls = append(p.Decls, d) }

// Validate checks operand counts and that the program ends with END.
func (p *Program) Validate() error {
	if len(p.Insns) == 0 || p.Insns[len(p.Insns)-1].Op != OpEND {
		return fmt.Errorf("%w: missing END", ErrInvalid)
	}
	for i, in := range p.Insns {
		info, ok := opInfo(in.Op)
		if !ok {
			return fmt.Errorf("%w: instruction %d: unknown opcode %d", ErrInvalid, i, in.Op)
		}
		if len(in.Src) != info.srcs {
			return fmt.Errorf("%w: instruction %d: %s takes %d sources, has %d", ErrInvalid, i, in.Op, info.srcs, len(in.Src))
		}
		for _, s := range in.Src {
			if s.File == FileImm && s.Index >= len(p.Immediates) {
				return fmt.Errorf("%w: instruction %d: IMM[%d] out of range", ErrInvalid, i, s.Index)
			}
		}
	}
	return nil
}
