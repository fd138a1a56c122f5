package wgsl

import (
	"fmt"

	"github.com/gogpu/naga/ir"

	"github.com/gogpu/i965/internal/pipe"
	"github.com/gogpu/i965/internal/shader"
)

func (t *translator) eval(h ir.ExpressionHandle) (value, error) {
	if v, ok := t.vals[h]; ok {
		return v, nil
	}
	if int(h) >= len(t.fn.Expressions) {
		return value{}, fmt.Errorf("expression %d out of range", h)
	}
	v, err := t.expr(t.fn.Expressions[h].Kind)
	if err != nil {
		return value{}, err
	}
	t.vals[h] = v
	return v, nil
}

func (t *translator) expr(k ir.ExpressionKind) (value, error) {
	switch e := k.(type) {
	case ir.Literal:
		f, err := literal(e.Value)
		if err != nil {
			return value{}, err
		}
		return scalarConst(f), nil
	case ir.ExprConstant:
		return t.moduleConst(e.Constant)
	case ir.ExprZeroValue:
		return t.zero(e.Type)
	case ir.ExprAlias:
		return t.eval(e.Source)
	case ir.ExprFunctionArgument:
		if int(e.Index) >= len(t.fn.Arguments) {
			return value{}, fmt.Errorf("argument %d out of range", e.Index)
		}
		arg := t.fn.Arguments[e.Index]
		return t.input(arg.Binding, t.inner(arg.Type))
	case ir.ExprGlobalVariable:
		if v, ok := t.handles[e.Variable]; ok {
			return v, nil
		}
		return value{}, unsupported("global %q used by value", t.mod.GlobalVariables[e.Variable].Name)
	case ir.ExprLoad:
		p, err := t.pointer(e.Pointer)
		if err != nil {
			return value{}, err
		}
		return t.load(p)
	case ir.ExprAccessIndex:
		base, err := t.eval(e.Base)
		if err != nil {
			return value{}, err
		}
		return index(base, e.Index)
	case ir.ExprSplat:
		v, err := t.eval(e.Value)
		if err != nil {
			return value{}, err
		}
		return splat(v, int(e.Size))
	case ir.ExprSwizzle:
		v, err := t.eval(e.Vector)
		if err != nil {
			return value{}, err
		}
		return swizzle(v, int(e.Size), e.Pattern)
	case ir.ExprCompose:
		comps := make([]value, len(e.Components))
		for i, c := range e.Components {
			v, err := t.eval(c)
			if err != nil {
				return value{}, err
			}
			comps[i] = v
		}
		return t.compose(t.inner(e.Type), comps)
	case ir.ExprUnary:
		if e.Op != ir.UnaryNegate {
			return value{}, unsupported("unary operator %d", e.Op)
		}
		v, err := t.eval(e.Expr)
		if err != nil {
			return value{}, err
		}
		return negate(v), nil
	case ir.ExprBinary:
		return t.binary(e)
	case ir.ExprMath:
		return t.math(e)
	case ir.ExprImageSample:
		return t.sample(e)
	}
	return value{}, unsupported("expression %T", k)
}

func literal(lv ir.LiteralValue) (float32, error) {
	switch v := lv.(type) {
	case ir.LiteralF32:
		return float32(v), nil
	case ir.LiteralF64:
		return float32(v), nil
	case ir.LiteralF16:
		return float32(v), nil
	case ir.LiteralAbstractFloat:
		return float32(v), nil
	case ir.LiteralI32:
		return float32(v), nil
	case ir.LiteralU32:
		return float32(v), nil
	case ir.LiteralAbstractInt:
		return float32(v), nil
	}
	return 0, unsupported("literal %T", lv)
}

func (t *translator) zero(h ir.TypeHandle) (value, error) {
	k, size, ok := shape(t.inner(h))
	if !ok || k > kindVector {
		return value{}, unsupported("zero value of type %T", t.inner(h))
	}
	return constant(k, size, [4]float32{}), nil
}

// moduleConst folds a module-scope const through its init expression.
func (t *translator) moduleConst(c ir.ConstantHandle) (value, error) {
	if int(c) >= len(t.mod.Constants) {
		return value{}, fmt.Errorf("constant %d out of range", c)
	}
	return t.globalExpr(t.mod.Constants[c].Init)
}

func (t *translator) globalExpr(h ir.ExpressionHandle) (value, error) {
	if int(h) >= len(t.mod.GlobalExpressions) {
		return value{}, fmt.Errorf("global expression %d out of range", h)
	}
	switch e := t.mod.GlobalExpressions[h].Kind.(type) {
	case ir.Literal:
		f, err := literal(e.Value)
		if err != nil {
			return value{}, err
		}
		return scalarConst(f), nil
	case ir.ExprConstant:
		return t.moduleConst(e.Constant)
	case ir.ExprZeroValue:
		return t.zero(e.Type)
	case ir.ExprSplat:
		v, err := t.globalExpr(e.Value)
		if err != nil {
			return value{}, err
		}
		return splat(v, int(e.Size))
	case ir.ExprCompose:
		comps := make([]value, len(e.Components))
		for i, c := range e.Components {
			v, err := t.globalExpr(c)
			if err != nil {
				return value{}, err
			}
			comps[i] = v
		}
		return t.compose(t.inner(e.Type), comps)
	}
	return value{}, unsupported("constant initializer %T", t.mod.GlobalExpressions[h].Kind)
}

// input maps an entry point argument to IN registers.
func (t *translator) input(b *ir.Binding, inner ir.TypeInner) (value, error) {
	if b == nil {
		st, ok := inner.(ir.StructType)
		if !ok {
			return value{}, unsupported("argument without a binding")
		}
		v := value{kind: kindStruct, size: len(st.Members)}
		for _, m := range st.Members {
			f, err := t.input(m.Binding, t.inner(m.Type))
			if err != nil {
				return value{}, fmt.Errorf("member %q: %w", m.Name, err)
			}
			v.fields = append(v.fields, f)
		}
		return v, nil
	}
	lb, ok := (*b).(ir.LocationBinding)
	if !ok {
		return value{}, unsupported("input binding %T", *b)
	}
	k, size, ok := shape(inner)
	if !ok || k > kindVector {
		return value{}, unsupported("input of type %T", inner)
	}
	loc := int(lb.Location)
	found := false
	for _, l := range t.inputs {
		found = found || l == loc
	}
	if !found {
		t.inputs = append(t.inputs, loc)
	}
	src := shader.NewSrc(shader.FileInput, loc)
	if k == kindScalar {
		src = src.Scalar(0)
	}
	return value{kind: k, size: size, src: src}, nil
}

func (t *translator) isPointer(h ir.ExpressionHandle) bool {
	switch e := t.fn.Expressions[h].Kind.(type) {
	case ir.ExprLocalVariable:
		return true
	case ir.ExprGlobalVariable:
		return t.mod.GlobalVariables[e.Variable].Space != ir.SpaceHandle
	case ir.ExprAccessIndex:
		return t.isPointer(e.Base)
	case ir.ExprAccess:
		return t.isPointer(e.Base)
	}
	return false
}

func (t *translator) pointer(h ir.ExpressionHandle) (place, error) {
	switch e := t.fn.Expressions[h].Kind.(type) {
	case ir.ExprLocalVariable:
		lv := t.fn.LocalVars[e.Variable]
		return place{file: shader.FileTemp, reg: t.locals[e.Variable], swz: shader.Identity, mask: shader.MaskXYZW, inner: t.inner(lv.Type)}, nil
	case ir.ExprGlobalVariable:
		gv := t.mod.GlobalVariables[e.Variable]
		base, ok := t.uniforms[e.Variable]
		if !ok {
			return place{}, unsupported("global %q in address space %d", gv.Name, gv.Space)
		}
		return place{file: shader.FileConst, reg: base, swz: shader.Identity, mask: shader.MaskXYZW, inner: t.inner(gv.Type)}, nil
	case ir.ExprAccessIndex:
		p, err := t.pointer(e.Base)
		if err != nil {
			return place{}, err
		}
		return t.member(p, e.Index)
	case ir.ExprAccess:
		return place{}, unsupported("dynamic indexing")
	}
	return place{}, unsupported("pointer expression %T", t.fn.Expressions[h].Kind)
}

// member narrows p to struct member, matrix column or vector component idx.
func (t *translator) member(p place, idx uint32) (place, error) {
	switch ty := p.inner.(type) {
	case ir.StructType:
		if int(idx) >= len(ty.Members) {
			return place{}, fmt.Errorf("member %d out of range", idx)
		}
		m := ty.Members[idx]
		q := place{file: p.file, reg: p.reg, swz: shader.Identity, mask: shader.MaskXYZW, inner: t.inner(m.Type)}
		if p.file == shader.FileConst {
			q.reg += int(m.Offset / 16)
			q.swz = shifted(int(m.Offset % 16 / 4))
			return q, nil
		}
		for _, prev := range ty.Members[:idx] {
			n, err := t.regCount(t.inner(prev.Type))
			if err != nil {
				return place{}, err
			}
			q.reg += n
		}
		return q, nil
	case ir.MatrixType:
		if int(idx) >= int(ty.Columns) {
			return place{}, fmt.Errorf("column %d out of range", idx)
		}
		return place{file: p.file, reg: p.reg + int(idx), swz: shader.Identity, mask: shader.MaskXYZW, inner: ir.VectorType{Size: ty.Rows, Scalar: ty.Scalar}}, nil
	case ir.VectorType:
		if int(idx) >= int(ty.Size) {
			return place{}, fmt.Errorf("component %d out of range", idx)
		}
		c := p.swz[idx]
		return place{file: p.file, reg: p.reg, swz: [4]uint8{c, c, c, c}, mask: 1 << c, inner: ty.Scalar}, nil
	}
	return place{}, unsupported("member access on %T", p.inner)
}

// load reads p. Constants are referenced in place; temporaries are copied
// so later stores do not change the loaded value.
func (t *translator) load(p place) (value, error) {
	switch ty := p.inner.(type) {
	case ir.ScalarType, ir.VectorType:
		k, size, _ := shape(ty)
		src := shader.NewSrc(p.file, p.reg).Swizzled(p.swz)
		if p.file == shader.FileConst {
			return value{kind: k, size: size, src: src}, nil
		}
		dst := t.temp()
		t.prog.Emit(shader.OpMOV, dst, src)
		out := srcOf(dst)
		if k == kindScalar {
			out = out.Scalar(0)
		}
		return value{kind: k, size: size, src: out}, nil
	case ir.MatrixType:
		v := value{kind: kindMatrix, size: int(ty.Columns), rows: int(ty.Rows)}
		for c := range int(ty.Columns) {
			col, err := t.member(p, uint32(c))
			if err != nil {
				return value{}, err
			}
			cv, err := t.load(col)
			if err != nil {
				return value{}, err
			}
			v.cols = append(v.cols, cv.src)
		}
		return v, nil
	case ir.StructType:
		v := value{kind: kindStruct, size: len(ty.Members)}
		for i := range ty.Members {
			m, err := t.member(p, uint32(i))
			if err != nil {
				return value{}, err
			}
			f, err := t.load(m)
			if err != nil {
				return value{}, err
			}
			v.fields = append(v.fields, f)
		}
		return v, nil
	}
	return value{}, unsupported("load of %T", p.inner)
}

func (t *translator) store(p place, v value) error {
	if p.file != shader.FileTemp {
		return unsupported("store to %s", p.file)
	}
	switch ty := p.inner.(type) {
	case ir.ScalarType, ir.VectorType:
		src, err := t.operand(v)
		if err != nil {
			return err
		}
		t.prog.Emit(shader.OpMOV, shader.NewDst(shader.FileTemp, p.reg).Masked(p.mask), src)
		return nil
	case ir.MatrixType:
		if v.kind != kindMatrix || len(v.cols) != int(ty.Columns) {
			return unsupported("storing a %s into a matrix", v.kind)
		}
		for c, col := range v.cols {
			t.prog.Emit(shader.OpMOV, shader.NewDst(shader.FileTemp, p.reg+c), col)
		}
		return nil
	case ir.StructType:
		if v.kind != kindStruct || len(v.fields) != len(ty.Members) {
			return unsupported("storing a %s into a struct", v.kind)
		}
		for i := range ty.Members {
			m, err := t.member(p, uint32(i))
			if err != nil {
				return err
			}
			if err := t.store(m, v.fields[i]); err != nil {
				return err
			}
		}
		return nil
	}
	return unsupported("store of %T", p.inner)
}

// operand returns v as a source, placing folded constants in IMM.
func (t *translator) operand(v value) (shader.Src, error) {
	if v.kind != kindScalar && v.kind != kindVector {
		return shader.Src{}, unsupported("%s used as an operand", v.kind)
	}
	if v.konst != nil {
		return shader.NewSrc(shader.FileImm, t.prog.AddImmediate(*v.konst)), nil
	}
	return v.src, nil
}

func index(base value, i uint32) (value, error) {
	switch base.kind {
	case kindScalar, kindVector:
		if int(i) >= base.size {
			return value{}, fmt.Errorf("component %d out of range", i)
		}
		if base.konst != nil {
			return scalarConst(base.konst[i]), nil
		}
		return value{kind: kindScalar, size: 1, src: base.src.Scalar(uint8(i))}, nil
	case kindMatrix:
		if int(i) >= len(base.cols) {
			return value{}, fmt.Errorf("column %d out of range", i)
		}
		return value{kind: kindVector, size: base.rows, src: base.cols[i]}, nil
	case kindStruct:
		if int(i) >= len(base.fields) {
			return value{}, fmt.Errorf("member %d out of range", i)
		}
		return base.fields[i], nil
	}
	return value{}, unsupported("indexing a %s", base.kind)
}

func splat(v value, size int) (value, error) {
	if v.kind != kindScalar {
		return value{}, unsupported("splat of a %s", v.kind)
	}
	v.kind = kindVector
	v.size = size
	return v, nil
}

func swizzle(v value, size int, pattern [4]ir.SwizzleComponent) (value, error) {
	if v.kind != kindScalar && v.kind != kindVector {
		return value{}, unsupported("swizzle of a %s", v.kind)
	}
	var pat [4]uint8
	for i := range pat {
		pat[i] = uint8(pattern[min(i, size-1)])
	}
	out := value{kind: kindVector, size: size}
	if size == 1 {
		out.kind = kindScalar
	}
	if v.konst != nil {
		var k [4]float32
		for i, c := range pat {
			k[i] = v.konst[c]
		}
		out.konst = &k
		return out, nil
	}
	out.src = v.src.Swizzled(pat)
	return out, nil
}

func negate(v value) value {
	switch {
	case v.konst != nil:
		k := *v.konst
		for i := range k {
			k[i] = -k[i]
		}
		v.konst = &k
	case v.kind == kindMatrix:
		cols := make([]shader.Src, len(v.cols))
		for i, c := range v.cols {
			cols[i] = c.Neg()
		}
		v.cols = cols
	default:
		v.src = v.src.Neg()
	}
	return v
}

// compose builds a vector, matrix or struct from its components. Vectors
// of constants fold into one immediate.
func (t *translator) compose(inner ir.TypeInner, comps []value) (value, error) {
	switch ty := inner.(type) {
	case ir.VectorType:
		size := int(ty.Size)
		if len(comps) == 1 && comps[0].kind == kindVector && comps[0].size == size {
			return comps[0], nil
		}
		folded := true
		for _, c := range comps {
			folded = folded && c.konst != nil
		}
		if folded {
			var k [4]float32
			n := 0
			for _, c := range comps {
				for i := 0; i < c.size && n < 4; i++ {
					k[n] = c.konst[i]
					n++
				}
			}
			return constant(kindVector, size, k), nil
		}
		dst := t.temp()
		n := 0
		for _, c := range comps {
			src, err := t.operand(c)
			if err != nil {
				return value{}, err
			}
			var mask uint8
			swz := src.Swizzle
			for i := 0; i < c.size && n+i < 4; i++ {
				mask |= 1 << (n + i)
				swz[n+i] = src.Swizzle[i]
			}
			src.Swizzle = swz
			t.prog.Emit(shader.OpMOV, dst.Masked(mask), src)
			n += c.size
		}
		return value{kind: kindVector, size: size, src: srcOf(dst)}, nil
	case ir.MatrixType:
		v := value{kind: kindMatrix, size: int(ty.Columns), rows: int(ty.Rows)}
		for _, c := range comps {
			if c.kind != kindVector {
				return value{}, unsupported("matrix built from a %s", c.kind)
			}
			src, err := t.operand(c)
			if err != nil {
				return value{}, err
			}
			v.cols = append(v.cols, src)
		}
		return v, nil
	case ir.StructType:
		return value{kind: kindStruct, size: len(comps), fields: comps}, nil
	}
	return value{}, unsupported("construction of %T", inner)
}

func (t *translator) sample(e ir.ExprImageSample) (value, error) {
	if t.stage != pipe.StageFragment {
		return value{}, unsupported("texture sampling outside the fragment stage")
	}
	if e.Gather != nil || e.ArrayIndex != nil || e.Offset != nil || e.DepthRef != nil {
		return value{}, unsupported("sampling variant")
	}
	img, err := t.eval(e.Image)
	if err != nil {
		return value{}, err
	}
	smp, err := t.eval(e.Sampler)
	if err != nil {
		return value{}, err
	}
	if img.kind != kindTexture || smp.kind != kindSampler {
		return value{}, unsupported("sampling a %s with a %s", img.kind, smp.kind)
	}
	coord, err := t.eval(e.Coordinate)
	if err != nil {
		return value{}, err
	}
	cs, err := t.operand(coord)
	if err != nil {
		return value{}, err
	}
	dst := t.temp()
	in := t.prog.Emit(shader.OpTEX, dst, cs, shader.NewSrc(shader.FileSampler, img.unit))
	in.Target = img.target
	used := false
	for _, u := range t.samplers {
		used = used || u == img.unit
	}
	if !used {
		t.samplers = append(t.samplers, img.unit)
	}
	return value{kind: kindVector, size: 4, src: srcOf(dst)}, nil
}
