package shader

// IOSlot describes one declared input or output register.
type IOSlot struct {
	Index         int
	Semantic      Semantic
	SemanticIndex int
}

// Info is the result of a single pass over a program.
type Info struct {
	// FileSize is one past the highest register used or declared, per file.
	FileSize [numFiles]int

	// InputsRead and OutputsWritten are register-index bitmasks.
	InputsRead     uint64
	OutputsWritten uint64

	Inputs  []IOSlot
	Outputs []IOSlot

	// PositionOutput and PSizeOutput are output register indices, or -1.
	PositionOutput int
	PSizeOutput    int

	// PositionWIsOne reports that every write of POSITION.w stores the
	// constant 1.
	PositionWIsOne bool

	UsesIndirect bool
	NumInsns     int
	Opcodes      map[Opcode]int
}

// NumTemps returns the temporary register count.
func (i *Info) NumTemps() int { return i.FileSize[FileTemp] }

// NumConsts returns the constant register count.
func (i *Info) NumConsts() int { return i.FileSize[FileConst] }

// NumAddrs returns the address register count.
func (i *Info) NumAddrs() int { return i.FileSize[FileAddr] }

// NumInputs returns the input register count.
func (i *Info) NumInputs() int { return i.FileSize[FileInput] }

// NumOutputs returns the output register count.
func (i *Info) NumOutputs() int { return i.FileSize[FileOutput] }

// NumSamplers returns the sampler count.
func (i *Info) NumSamplers() int { return i.FileSize[FileSampler] }

// OutputSemantic returns the semantic of output register idx.
func (i *Info) OutputSemantic(idx int) (IOSlot, bool) {
	for _, s := range i.Outputs {
		if s.Index == idx {
			return s, true
		}
	}
	return IOSlot{}, false
}

// InputSemantic returns the semantic of input register idx.
func (i *Info) InputSemantic(idx int) (IOSlot, bool) {
	for _, s := range i.Inputs {
		if s.Index == idx {
			return s, true
		}
	}
	return IOSlot{}, false
}

func (i *Info) use(f File, idx int) {
	if idx+1 > i.FileSize[f] {
		i.FileSize[f] = idx + 1
	}
}

// Scan walks the declarations and instructions of p once.
func Scan(p *Program) *Info {
	info := &Info{
		PositionOutput: -1,
		PSizeOutput:    -1,
		Opcodes:        make(map[Opcode]int),
	}
	info.FileSize[FileImm] = len(p.Immediates)
	for _, d := range p.Decls {
		info.use(d.File, d.Last)
		if d.File != FileInput && d.File != FileOutput {
			continue
		}
		for r := d.First; r <= d.Last; r++ {
			slot := IOSlot{Index: r, Semantic: d.Semantic, SemanticIndex: d.SemanticIndex + r - d.First}
			if d.File == FileInput {
				info.Inputs = append(info.Inputs, slot)
				continue
			}
			info.Outputs = append(info.Outputs, slot)
			switch d.Semantic {
			case SemPosition:
				info.PositionOutput = r
			case SemPSize:
				info.PSizeOutput = r
			}
		}
	}

	posW := 0
	posWOne := true
	for _, in := range p.Insns {
		info.NumInsns++
		info.Opcodes[in.Op]++
		if in.Op.HasDst() {
			info.use(in.Dst.File, in.Dst.Index)
			if in.Dst.File == FileOutput {
				info.OutputsWritten |= 1 << uint(in.Dst.Index)
				if in.Dst.Index == info.PositionOutput && in.Dst.WriteMask&MaskW != 0 {
					posW++
					if !writesOne(p, in) {
						posWOne = false
					}
				}
			}
		}
		for _, s := range in.Src {
			if s.Indirect {
				info.UsesIndirect = true
				info.use(FileAddr, s.IndirectIndex)
				// An indirect access may reach any declared register.
				continue
			}
			info.use(s.File, s.Index)
			if s.File == FileInput {
				info.InputsRead |= 1 << uint(s.Index)
			}
		}
	}
	info.PositionWIsOne = posW > 0 && posWOne
	return info
}

// writesOne reports whether in stores the constant 1 into the w channel.
func writesOne(p *Program, in Instruction) bool {
	if in.Op != OpMOV && in.Op != OpSWZ {
		return false
	}
	s := in.Src[0]
	sel := s.Swizzle[SwzW]
	neg := s.Negate != (s.NegateMask&MaskW != 0)
	if sel == SwzOne {
		return !neg
	}
	if s.File != FileImm || s.Indirect || s.Index >= len(p.Immediates) || sel > SwzW {
		return false
	}
	v := p.Immediates[s.Index][sel]
	if s.Abs && v < 0 {
		v = -v
	}
	if neg {
		v = -v
	}
	return v == 1
}
