package shader

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/gogpu/i965/internal/pipe"
)

var fileByName = map[string]File{
	"CONST": FileConst,
	"IN":    FileInput,
	"OUT":   FileOutput,
	"TEMP":  FileTemp,
	"ADDR":  FileAddr,
	"IMM":   FileImm,
	"SAMP":  FileSampler,
}

type parser struct {
	prog *Program
	line int
}

func (ps *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", ErrSyntax, ps.line, fmt.Sprintf(format, args...))
}

// Parse reads a program in assembler text form. The first statement names
// the stage (VERT or FRAG); DCL, IMM and instruction lines follow, the
// latter optionally prefixed by a numeric label. A '#' starts a comment.
func Parse(text string) (*Program, error) {
	ps := &parser{prog: &Program{}}
	sc := bufio.NewScanner(strings.NewReader(text))
	sawHeader := false
	for sc.Scan() {
		ps.line++
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(stripLabel(line))
		if line == "" {
			continue
		}
		if !sawHeader {
			switch line {
			case "VERT":
				ps.prog.Stage = pipe.StageVertex
			case "FRAG":
				ps.prog.Stage = pipe.StageFragment
			default:
				return nil, ps.errorf("expected VERT or FRAG, got %q", line)
			}
			sawHeader = true
			continue
		}
		var err error
		switch {
		case strings.HasPrefix(line, "DCL "):
			err = ps.decl(strings.TrimSpace(line[4:]))
		case strings.HasPrefix(line, "IMM "):
			err = ps.immediate(strings.TrimSpace(line[4:]))
		default:
			err = ps.instruction(line)
		}
		if err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if !sawHeader {
		return nil, ps.errorf("empty program")
	}
	if err := ps.prog.Validate(); err != nil {
		return nil, err
	}
	return ps.prog, nil
}

// stripLabel removes a leading "123:" label.
func stripLabel(line string) string {
	t := strings.TrimLeft(line, " \t")
	i := 0
	for i < len(t) && t[i] >= '0' && t[i] <= '9' {
		i++
	}
	if i > 0 && i < len(t) && t[i] == ':' {
		return t[i+1:]
	}
	return line
}

func (ps *parser) decl(s string) error {
	parts := splitOperands(s)
	if len(parts) == 0 || len(parts) > 2 {
		return ps.errorf("malformed DCL %q", s)
	}
	name, inner, rest, ok := bracket(parts[0])
	if !ok || rest != "" {
		return ps.errorf("malformed DCL register %q", parts[0])
	}
	f, ok := fileByName[name]
	if !ok || f == FileImm {
		return ps.errorf("unknown register file %q", name)
	}
	d := Decl{File: f}
	lo, hi, found := strings.Cut(inner, "..")
	var err error
	if d.First, err = strconv.Atoi(lo); err != nil {
		return ps.errorf("bad index %q", lo)
	}
	d.Last = d.First
	if found {
		if d.Last, err = strconv.Atoi(hi); err != nil || d.Last < d.First {
			return ps.errorf("bad range %q", inner)
		}
	}
	if len(parts) == 2 {
		if f != FileInput && f != FileOutput {
			return ps.errorf("semantic on %s declaration", f)
		}
		semName, semIdx := parts[1], ""
		if n, idx, _, ok := bracket(parts[1]); ok {
			semName, semIdx = n, idx
		}
		sem, ok := lookupSemantic(semName)
		if !ok {
			return ps.errorf("unknown semantic %q", semName)
		}
		d.Semantic = sem
		if semIdx != "" {
			if d.SemanticIndex, err = strconv.Atoi(semIdx); err != nil {
				return ps.errorf("bad semantic index %q", semIdx)
			}
		}
	}
	ps.prog.Decls = append(ps.prog.Decls, d)
	return nil
}

func lookupSemantic(name string) (Semantic, bool) {
	for i, n := range semNames {
		if n == name {
			return Semantic(i), true
		}
	}
	return 0, false
}

func (ps *parser) immediate(s string) error {
	s = strings.TrimPrefix(s, "FLT32")
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return ps.errorf("malformed IMM %q", s)
	}
	fields := strings.Split(s[1:len(s)-1], ",")
	if len(fields) != 4 {
		return ps.errorf("IMM needs 4 components, has %d", len(fields))
	}
	var v [4]float32
	for i, f := range fields {
		x, err := strconv.ParseFloat(strings.TrimSpace(f), 32)
		if err != nil {
			return ps.errorf("bad immediate %q", f)
		}
		v[i] = float32(x)
	}
	ps.prog.Immediates = append(ps.prog.Immediates, v)
	return nil
}

func (ps *parser) instruction(s string) error {
	mnemonic, operands, _ := strings.Cut(s, " ")
	in := Instruction{}
	if base, ok := strings.CutSuffix(mnemonic, "_SAT"); ok {
		in.Saturate = true
		mnemonic = base
	}
	op, ok := LookupOpcode(mnemonic)
	if !ok {
		return ps.errorf("unknown opcode %q", mnemonic)
	}
	in.Op = op
	parts := splitOperands(operands)
	want := op.NumSrc()
	if op.HasDst() {
		want++
	}
	if op == OpTEX && len(parts) == want+1 {
		in.Target = parts[len(parts)-1]
		parts = parts[:len(parts)-1]
	}
	if len(parts) != want {
		return ps.errorf("%s takes %d operands, has %d", op, want, len(parts))
	}
	if op.HasDst() {
		d, err := ps.dst(parts[0])
		if err != nil {
			return err
		}
		in.Dst = d
		parts = parts[1:]
	}
	for _, p := range parts {
		src, err := ps.src(p)
		if err != nil {
			return err
		}
		in.Src = append(in.Src, src)
	}
	ps.prog.Insns = append(ps.prog.Insns, in)
	return nil
}

// splitOperands splits on commas outside brackets.
func splitOperands(s string) []string {
	var out []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if last := strings.TrimSpace(s[start:]); last != "" {
		out = append(out, last)
	}
	return out
}

// bracket splits "NAME[inner]rest", matching nested brackets.
func bracket(s string) (name, inner, rest string, ok bool) {
	open := strings.IndexByte(s, '[')
	if open <= 0 {
		return "", "", "", false
	}
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return s[:open], s[open+1 : i], s[i+1:], true
			}
		}
	}
	return "", "", "", false
}

func (ps *parser) dst(s string) (Dst, error) {
	name, inner, rest, ok := bracket(s)
	if !ok {
		return Dst{}, ps.errorf("malformed destination %q", s)
	}
	f, ok := fileByName[name]
	if !ok || f == FileImm || f == FileConst || f == FileInput || f == FileSampler {
		return Dst{}, ps.errorf("%q is not a writable register", s)
	}
	idx, err := strconv.Atoi(inner)
	if err != nil {
		return Dst{}, ps.errorf("bad index %q", inner)
	}
	d := Dst{File: f, Index: idx, WriteMask: MaskXYZW}
	if rest != "" {
		mask, ok := strings.CutPrefix(rest, ".")
		if !ok || mask == "" {
			return Dst{}, ps.errorf("malformed write mask %q", rest)
		}
		d.WriteMask = 0
		last := -1
		for _, c := range mask {
			i := strings.IndexRune("xyzw", c)
			if i <= last {
				return Dst{}, ps.errorf("malformed write mask %q", rest)
			}
			d.WriteMask |= 1 << i
			last = i
		}
	}
	return d, nil
}

func (ps *parser) src(s string) (Src, error) {
	src := Src{Swizzle: Identity}
	if t, ok := strings.CutPrefix(s, "-"); ok {
		src.Negate = true
		s = t
	}
	if strings.HasPrefix(s, "|") {
		if !strings.HasSuffix(s, "|") || len(s) < 2 {
			return Src{}, ps.errorf("unterminated absolute value %q", s)
		}
		src.Abs = true
		s = s[1 : len(s)-1]
	}
	name, inner, rest, ok := bracket(s)
	if !ok {
		return Src{}, ps.errorf("malformed source %q", s)
	}
	f, ok := fileByName[name]
	if !ok {
		return Src{}, ps.errorf("unknown register file %q", name)
	}
	src.File = f
	if err := ps.index(&src, inner); err != nil {
		return Src{}, err
	}
	if rest != "" {
		swz, ok := strings.CutPrefix(rest, ".")
		if !ok {
			return Src{}, ps.errorf("malformed swizzle %q", rest)
		}
		if err := ps.swizzle(&src, swz); err != nil {
			return Src{}, err
		}
	}
	return src, nil
}

func (ps *parser) index(src *Src, inner string) error {
	if !strings.HasPrefix(inner, "ADDR[") {
		idx, err := strconv.Atoi(inner)
		if err != nil {
			return ps.errorf("bad index %q", inner)
		}
		src.Index = idx
		return nil
	}
	_, addr, rest, ok := bracket(inner)
	if !ok || len(rest) < 2 || rest[0] != '.' {
		return ps.errorf("malformed indirect index %q", inner)
	}
	n, err := strconv.Atoi(addr)
	if err != nil {
		return ps.errorf("bad address register %q", addr)
	}
	comp := strings.IndexByte("xyzw", rest[1])
	if comp < 0 {
		return ps.errorf("bad address component %q", rest)
	}
	src.Indirect = true
	src.IndirectIndex = n
	src.IndirectComp = uint8(comp)
	if off := rest[2:]; off != "" {
		k, err := strconv.Atoi(strings.TrimPrefix(off, "+"))
		if err != nil {
			return ps.errorf("bad indirect offset %q", off)
		}
		src.Index = k
	}
	return nil
}

func (ps *parser) swizzle(src *Src, swz string) error {
	var comps []uint8
	var neg uint8
	pending := false
	for i := 0; i < len(swz); i++ {
		if swz[i] == '-' {
			pending = true
			continue
		}
		c := strings.IndexByte(swizzleChars, swz[i])
		if c < 0 {
			return ps.errorf("bad swizzle %q", swz)
		}
		if pending {
			neg |= 1 << len(comps)
			pending = false
		}
		comps = append(comps, uint8(c))
	}
	switch {
	case len(comps) == 1 && neg == 0 && comps[0] <= SwzW:
		src.Swizzle = [4]uint8{comps[0], comps[0], comps[0], comps[0]}
	case len(comps) == 4:
		copy(src.Swizzle[:], comps)
		src.NegateMask = neg
	default:
		return ps.errorf("bad swizzle %q", swz)
	}
	return nil
}
