// Package wgsl lowers WGSL entry points to the register-based shader IR.
//
// Source text goes through naga's parser and lowering; the resulting naga IR
// function is then walked statement by statement. Every value lives in a
// four-component register: inputs map @location(n) to IN[n], uniform
// buffers map to consecutive CONST registers by (group, binding), and
// function-local variables get TEMP registers of their own. Only straight
// line code over f32 scalars, vectors and matrices is accepted.
package wgsl

import (
	"errors"
	"fmt"
	"slices"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"

	"github.com/gogpu/i965/internal/pipe"
	"github.com/gogpu/i965/internal/shader"
)

var (
	// ErrUnsupported is returned for WGSL constructs the IR cannot express.
	ErrUnsupported = errors.New("wgsl: unsupported construct")

	// ErrNoEntryPoint is returned when the module has no entry point for
	// the requested stage.
	ErrNoEntryPoint = errors.New("wgsl: no entry point for stage")
)

// Translate parses source and lowers its first entry point of stage.
func Translate(source string, stage pipe.Stage) (*shader.Program, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("wgsl: parse: %w", err)
	}
	mod, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, fmt.Errorf("wgsl: lower: %w", err)
	}
	return Lower(mod, stage)
}

// Lower converts the first entry point of stage in mod.
func Lower(mod *ir.Module, stage pipe.Stage) (*shader.Program, error) {
	want := ir.StageVertex
	if stage == pipe.StageFragment {
		want = ir.StageFragment
	}
	for i := range mod.EntryPoints {
		ep := &mod.EntryPoints[i]
		if ep.Stage != want {
			continue
		}
		t := newTranslator(mod, &ep.Function, stage)
		prog, err := t.run()
		if err != nil {
			return nil, fmt.Errorf("wgsl: entry point %q: %w", ep.Name, err)
		}
		return prog, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoEntryPoint, stage)
}

func unsupported(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnsupported, fmt.Sprintf(format, args...))
}

type output struct {
	reg      int
	size     int
	member   int
	sem      shader.Semantic
	semIndex int
}

type translator struct {
	mod   *ir.Module
	fn    *ir.Function
	prog  *shader.Program
	stage pipe.Stage

	vals     map[ir.ExpressionHandle]value
	locals   []int
	uniforms map[ir.GlobalVariableHandle]int
	handles  map[ir.GlobalVariableHandle]value
	inputs   []int
	outputs  []output
	samplers []int

	temps    int
	consts   int
	returned bool
}

func newTranslator(mod *ir.Module, fn *ir.Function, stage pipe.Stage) *translator {
	return &translator{
		mod:      mod,
		fn:       fn,
		prog:     &shader.Program{Stage: stage},
		stage:    stage,
		vals:     make(map[ir.ExpressionHandle]value),
		uniforms: make(map[ir.GlobalVariableHandle]int),
		handles:  make(map[ir.GlobalVariableHandle]value),
	}
}

func (t *translator) run() (*shader.Program, error) {
	t.bindGlobals()
	if err := t.bindOutputs(); err != nil {
		return nil, err
	}
	for _, lv := range t.fn.LocalVars {
		n, err := t.regCount(t.inner(lv.Type))
		if err != nil {
			return nil, fmt.Errorf("local %q: %w", lv.Name, err)
		}
		t.locals = append(t.locals, t.temps)
		t.temps += n
	}
	for i, lv := range t.fn.LocalVars {
		if lv.Init == nil {
			continue
		}
		v, err := t.eval(*lv.Init)
		if err != nil {
			return nil, err
		}
		p := place{file: shader.FileTemp, reg: t.locals[i], swz: shader.Identity, mask: shader.MaskXYZW, inner: t.inner(lv.Type)}
		if err := t.store(p, v); err != nil {
			return nil, err
		}
	}
	if err := t.block(t.fn.Body); err != nil {
		return nil, err
	}
	if !t.returned {
		return nil, unsupported("entry point does not return a value")
	}
	t.declare()
	t.prog.Emit(shader.OpEND, shader.Dst{})
	if err := t.prog.Validate(); err != nil {
		return nil, err
	}
	return t.prog, nil
}

// bindGlobals assigns CONST ranges to uniform buffers and units to
// textures and samplers, both in (group, binding) order.
func (t *translator) bindGlobals() {
	order := make([]ir.GlobalVariableHandle, len(t.mod.GlobalVariables))
	for i := range order {
		order[i] = ir.GlobalVariableHandle(i)
	}
	key := func(h ir.GlobalVariableHandle) uint64 {
		rb := t.mod.GlobalVariables[h].Binding
		if rb == nil {
			return 1<<63 | uint64(h)
		}
		return uint64(rb.Group)<<32 | uint64(rb.Binding)
	}
	slices.SortStableFunc(order, func(a, b ir.GlobalVariableHandle) int {
		ka, kb := key(a), key(b)
		switch {
		case ka < kb:
			return -1
		case ka > kb:
			return 1
		}
		return 0
	})

	units, samplers := 0, 0
	for _, h := range order {
		gv := t.mod.GlobalVariables[h]
		switch gv.Space {
		case ir.SpaceUniform:
			n, err := t.constRegs(t.inner(gv.Type))
			if err != nil {
				// Reported if the entry point touches it.
				continue
			}
			t.uniforms[h] = t.consts
			t.consts += n
		case ir.SpaceHandle:
			switch ty := t.inner(gv.Type).(type) {
			case ir.ImageType:
				t.handles[h] = value{kind: kindTexture, unit: units, target: target(ty.Dim)}
				units++
			case ir.SamplerType:
				t.handles[h] = value{kind: kindSampler, unit: samplers}
				samplers++
			}
		}
	}
}

func target(dim ir.ImageDimension) string {
	switch dim {
	case ir.Dim1D:
		return shader.Tex1D
	case ir.Dim3D:
		return shader.Tex3D
	case ir.DimCube:
		return shader.TexCube
	}
	return shader.Tex2D
}

// bindOutputs assigns output registers. Vertex programs put POSITION
// first, then generic varyings by location, then the point size.
// Fragment color n goes to OUT[n].
func (t *translator) bindOutputs() error {
	res := t.fn.Result
	if res == nil {
		return unsupported("entry point without a result")
	}
	inner := t.inner(res.Type)
	if st, ok := inner.(ir.StructType); ok {
		for i, m := range st.Members {
			o, err := t.outputSlot(m.Binding, t.inner(m.Type))
			if err != nil {
				return fmt.Errorf("member %q: %w", m.Name, err)
			}
			o.member = i
			t.outputs = append(t.outputs, o)
		}
	} else {
		o, err := t.outputSlot(res.Binding, inner)
		if err != nil {
			return err
		}
		o.member = -1
		t.outputs = append(t.outputs, o)
	}

	if t.stage == pipe.StageFragment {
		for i := range t.outputs {
			t.outputs[i].reg = t.outputs[i].semIndex
		}
		return nil
	}
	rank := func(o output) int {
		switch o.sem {
		case shader.SemPosition:
			return -1
		case shader.SemPSize:
			return 1 << 20
		}
		return o.semIndex
	}
	slices.SortStableFunc(t.outputs, func(a, b output) int { return rank(a) - rank(b) })
	if t.outputs[0].sem != shader.SemPosition {
		return unsupported("vertex entry point does not write @builtin(position)")
	}
	for i := range t.outputs {
		t.outputs[i].reg = i
	}
	return nil
}

func (t *translator) outputSlot(b *ir.Binding, inner ir.TypeInner) (output, error) {
	k, size, ok := shape(inner)
	if !ok || k > kindVector {
		return output{}, unsupported("output of type %T", inner)
	}
	if b == nil {
		return output{}, unsupported("output without a binding")
	}
	o := output{size: size}
	switch bb := (*b).(type) {
	case ir.BuiltinBinding:
		switch {
		case t.stage == pipe.StageVertex && bb.Builtin == ir.BuiltinPosition:
			o.sem = shader.SemPosition
		case t.stage == pipe.StageVertex && bb.Builtin == ir.BuiltinPointSize:
			o.sem = shader.SemPSize
		default:
			return output{}, unsupported("builtin output %d", bb.Builtin)
		}
	case ir.LocationBinding:
		o.sem = shader.SemGeneric
		if t.stage == pipe.StageFragment {
			o.sem = shader.SemColor
		}
		o.semIndex = int(bb.Location)
	default:
		return output{}, unsupported("output binding %T", bb)
	}
	return o, nil
}

func (t *translator) declare() {
	slices.Sort(t.inputs)
	for _, loc := range t.inputs {
		t.prog.Declare(shader.Decl{File: shader.FileInput, First: loc, Last: loc, Semantic: shader.SemGeneric, SemanticIndex: loc})
	}
	for _, o := range t.outputs {
		t.prog.Declare(shader.Decl{File: shader.FileOutput, First: o.reg, Last: o.reg, Semantic: o.sem, SemanticIndex: o.semIndex})
	}
	if t.consts > 0 {
		t.prog.Declare(shader.Decl{File: shader.FileConst, First: 0, Last: t.consts - 1})
	}
	if t.temps > 0 {
		t.prog.Declare(shader.Decl{File: shader.FileTemp, First: 0, Last: t.temps - 1})
	}
	slices.Sort(t.samplers)
	for _, u := range t.samplers {
		t.prog.Declare(shader.Decl{File: shader.FileSampler, First: u, Last: u})
	}
}

func (t *translator) block(b ir.Block) error {
	for _, st := range b {
		switch s := st.Kind.(type) {
		case ir.StmtEmit:
			for h := s.Range.Start; h < s.Range.End; h++ {
				if t.isPointer(h) {
					continue
				}
				if _, err := t.eval(h); err != nil {
					return err
				}
			}
		case ir.StmtBlock:
			if err := t.block(s.Block); err != nil {
				return err
			}
			if t.returned {
				return nil
			}
		case ir.StmtStore:
			p, err := t.pointer(s.Pointer)
			if err != nil {
				return err
			}
			v, err := t.eval(s.Value)
			if err != nil {
				return err
			}
			if err := t.store(p, v); err != nil {
				return err
			}
		case ir.StmtReturn:
			if s.Value == nil {
				return unsupported("return without a value")
			}
			return t.ret(*s.Value)
		default:
			return unsupported("statement %T", s)
		}
	}
	return nil
}

func (t *translator) ret(h ir.ExpressionHandle) error {
	v, err := t.eval(h)
	if err != nil {
		return err
	}
	for _, o := range t.outputs {
		fv := v
		if o.member >= 0 {
			if v.kind != kindStruct || o.member >= len(v.fields) {
				return unsupported("result is a %s, not the output struct", v.kind)
			}
			fv = v.fields[o.member]
		}
		src, err := t.operand(fv)
		if err != nil {
			return err
		}
		t.prog.Emit(shader.OpMOV, shader.NewDst(shader.FileOutput, o.reg).Masked(fullMask(o.size)), src)
	}
	t.returned = true
	return nil
}

func (t *translator) inner(h ir.TypeHandle) ir.TypeInner { return t.mod.Types[h].Inner }

func (t *translator) temp() shader.Dst {
	d := shader.NewDst(shader.FileTemp, t.temps)
	t.temps++
	return d
}

func srcOf(d shader.Dst) shader.Src { return shader.NewSrc(d.File, d.Index) }

// regCount returns the number of TEMP registers a local of type inner needs.
func (t *translator) regCount(inner ir.TypeInner) (int, error) {
	switch ty := inner.(type) {
	case ir.ScalarType, ir.VectorType:
		return 1, nil
	case ir.MatrixType:
		return int(ty.Columns), nil
	case ir.StructType:
		n := 0
		for _, m := range ty.Members {
			c, err := t.regCount(t.inner(m.Type))
			if err != nil {
				return 0, err
			}
			n += c
		}
		return n, nil
	}
	return 0, unsupported("variable of type %T", inner)
}

// constRegs returns the CONST registers a uniform of type inner spans.
func (t *translator) constRegs(inner ir.TypeInner) (int, error) {
	switch ty := inner.(type) {
	case ir.ScalarType, ir.VectorType:
		return 1, nil
	case ir.MatrixType:
		if ty.Rows == ir.Vec2 {
			return 0, unsupported("uniform matrix with two rows")
		}
		return int(ty.Columns), nil
	case ir.StructType:
		for _, m := range ty.Members {
			if _, err := t.constRegs(t.inner(m.Type)); err != nil {
				return 0, err
			}
		}
		return int(ty.Span+15) / 16, nil
	}
	return 0, unsupported("uniform of type %T", inner)
}
