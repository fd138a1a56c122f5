package shader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gogpu/i965/internal/pipe"
)

const swizzleChars = "xyzw01"

// String renders the program in the text form accepted by Parse.
func (p *Program) String() string {
	var sb strings.Builder
	if p.Stage == pipe.StageFragment {
		sb.WriteString("FRAG\n")
	} else {
		sb.WriteString("VERT\n")
	}
	for _, d := range p.Decls {
		sb.WriteString("DCL " + d.String() + "\n")
	}
	for _, imm := range p.Immediates {
		sb.WriteString("IMM FLT32 { ")
		for i, f := range imm {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
		}
		sb.WriteString(" }\n")
	}
	for i, in := range p.Insns {
		fmt.Fprintf(&sb, "%3d: %s\n", i, in.String())
	}
	return sb.String()
}

// String renders the declaration without the DCL keyword.
func (d Decl) String() string {
	s := fmt.Sprintf("%s[%d]", d.File, d.First)
	if d.Last != d.First {
		s = fmt.Sprintf("%s[%d..%d]", d.File, d.First, d.Last)
	}
	if d.File == FileInput || d.File == FileOutput {
		s += ", " + d.Semantic.String()
		if d.SemanticIndex != 0 {
			s += fmt.Sprintf("[%d]", d.SemanticIndex)
		}
	}
	return s
}

// String renders one instruction.
func (in Instruction) String() string {
	var sb strings.Builder
	sb.WriteString(in.Op.String())
	if in.Saturate {
		sb.WriteString("_SAT")
	}
	var ops []string
	if in.Op.HasDst() {
		ops = append(ops, in.Dst.String())
	}
	for _, s := range in.Src {
		ops = append(ops, s.String())
	}
	if in.Op == OpTEX && in.Target != "" {
		ops = append(ops, in.Target)
	}
	if len(ops) > 0 {
		sb.WriteString(" " + strings.Join(ops, ", "))
	}
	return sb.String()
}

// String renders the destination operand.
func (d Dst) String() string {
	s := fmt.Sprintf("%s[%d]", d.File, d.Index)
	if d.WriteMask != MaskXYZW {
		s += "."
		for i := range 4 {
			if d.WriteMask&(1<<i) != 0 {
				s += string(swizzleChars[i])
			}
		}
	}
	return s
}

// String renders the source operand.
func (s Src) String() string {
	var sb strings.Builder
	if s.Negate {
		sb.WriteByte('-')
	}
	if s.Abs {
		sb.WriteByte('|')
	}
	sb.WriteString(s.File.String())
	sb.WriteByte('[')
	if s.Indirect {
		fmt.Fprintf(&sb, "ADDR[%d].%c", s.IndirectIndex, swizzleChars[s.IndirectComp])
		if s.Index > 0 {
			fmt.Fprintf(&sb, "+%d", s.Index)
		} else if s.Index < 0 {
			fmt.Fprintf(&sb, "%d", s.Index)
		}
	} else {
		fmt.Fprintf(&sb, "%d", s.Index)
	}
	sb.WriteByte(']')
	if s.Swizzle != Identity || s.NegateMask != 0 {
		sb.WriteByte('.')
		for i, c := range s.Swizzle {
			if s.NegateMask&(1<<i) != 0 {
				sb.WriteByte('-')
			}
			sb.WriteByte(swizzleChars[c])
		}
	}
	if s.Abs {
		sb.WriteByte('|')
	}
	return sb.String()
}
