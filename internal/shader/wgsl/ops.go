package wgsl

import (
	"github.com/gogpu/naga/ir"

	"github.com/gogpu/i965/internal/shader"
)

// alu emits op into a fresh temporary. The result is as wide as the widest
// argument.
func (t *translator) alu(op shader.Opcode, args ...value) (value, error) {
	res := value{kind: kindScalar, size: 1}
	srcs := make([]shader.Src, len(args))
	for i, a := range args {
		s, err := t.operand(a)
		if err != nil {
			return value{}, err
		}
		srcs[i] = s
		if a.kind == kindVector {
			res.kind = kindVector
			res.size = max(res.size, a.size)
		}
	}
	dst := t.temp()
	t.prog.Emit(op, dst, srcs...)
	res.src = srcOf(dst)
	if res.kind == kindScalar {
		res.src = res.src.Scalar(0)
	}
	return res, nil
}

// scalarOp emits a scalar-only op once per component.
func (t *translator) scalarOp(op shader.Opcode, args ...value) (value, error) {
	res := value{kind: kindScalar, size: 1}
	srcs := make([]shader.Src, len(args))
	for i, a := range args {
		s, err := t.operand(a)
		if err != nil {
			return value{}, err
		}
		srcs[i] = s
		if a.kind == kindVector {
			res.kind = kindVector
			res.size = max(res.size, a.size)
		}
	}
	dst := t.temp()
	for c := range res.size {
		cs := make([]shader.Src, len(srcs))
		for i, s := range srcs {
			cs[i] = s.Scalar(uint8(c))
		}
		t.prog.Emit(op, dst.Masked(1<<c), cs...)
	}
	res.src = srcOf(dst)
	if res.kind == kindScalar {
		res.src = res.src.Scalar(0)
	}
	return res, nil
}

func (t *translator) saturate() {
	t.prog.Insns[len(t.prog.Insns)-1].Saturate = true
}

func (t *translator) binary(e ir.ExprBinary) (value, error) {
	l, err := t.eval(e.Left)
	if err != nil {
		return value{}, err
	}
	r, err := t.eval(e.Right)
	if err != nil {
		return value{}, err
	}
	switch e.Op {
	case ir.BinaryAdd:
		return t.alu(shader.OpADD, l, r)
	case ir.BinarySubtract:
		return t.alu(shader.OpSUB, l, r)
	case ir.BinaryMultiply:
		return t.multiply(l, r)
	case ir.BinaryDivide:
		return t.divide(l, r)
	}
	return value{}, unsupported("binary operator %d", e.Op)
}

// multiply handles the matrix forms. Matrices are held by column, so
// M*v accumulates scaled columns and v*M dots v with each column.
func (t *translator) multiply(l, r value) (value, error) {
	switch {
	case l.kind == kindMatrix && r.kind == kindVector:
		v, err := t.operand(r)
		if err != nil {
			return value{}, err
		}
		dst := t.temp()
		t.prog.Emit(shader.OpMUL, dst, l.cols[0], v.Scalar(0))
		for c := 1; c < len(l.cols); c++ {
			t.prog.Emit(shader.OpMAD, dst, l.cols[c], v.Scalar(uint8(c)), srcOf(dst))
		}
		return value{kind: kindVector, size: l.rows, src: srcOf(dst)}, nil
	case l.kind == kindVector && r.kind == kindMatrix:
		op := shader.OpDP4
		switch r.rows {
		case 3:
			op = shader.OpDP3
		case 2:
			return value{}, unsupported("vector times two-row matrix")
		}
		v, err := t.operand(l)
		if err != nil {
			return value{}, err
		}
		dst := t.temp()
		for c, col := range r.cols {
			t.prog.Emit(op, dst.Masked(1<<c), v, col)
		}
		return value{kind: kindVector, size: len(r.cols), src: srcOf(dst)}, nil
	case l.kind == kindMatrix && r.kind == kindScalar, l.kind == kindScalar && r.kind == kindMatrix:
		m, s := l, r
		if l.kind == kindScalar {
			m, s = r, l
		}
		k, err := t.operand(s)
		if err != nil {
			return value{}, err
		}
		out := value{kind: kindMatrix, size: m.size, rows: m.rows}
		for _, col := range m.cols {
			dst := t.temp()
			t.prog.Emit(shader.OpMUL, dst, col, k)
			out.cols = append(out.cols, srcOf(dst))
		}
		return out, nil
	case l.kind == kindMatrix || r.kind == kindMatrix:
		return value{}, unsupported("matrix product")
	}
	return t.alu(shader.OpMUL, l, r)
}

// divide multiplies by the reciprocal of r, folded when r is constant.
func (t *translator) divide(l, r value) (value, error) {
	if r.kind != kindScalar && r.kind != kindVector {
		return value{}, unsupported("division by a %s", r.kind)
	}
	if r.konst != nil {
		var k [4]float32
		for i, f := range r.konst {
			k[i] = 1 / f
		}
		return t.alu(shader.OpMUL, l, constant(r.kind, r.size, k))
	}
	rcp, err := t.scalarOp(shader.OpRCP, r)
	if err != nil {
		return value{}, err
	}
	return t.alu(shader.OpMUL, l, rcp)
}

// dot reduces to a replicated scalar.
func (t *translator) dot(a, b value) (value, error) {
	var (
		v   value
		err error
	)
	switch max(a.size, b.size) {
	case 4:
		v, err = t.alu(shader.OpDP4, a, b)
	case 3:
		v, err = t.alu(shader.OpDP3, a, b)
	case 2:
		m, merr := t.alu(shader.OpMUL, a, b)
		if merr != nil {
			return value{}, merr
		}
		dst := t.temp()
		t.prog.Emit(shader.OpADD, dst, m.src.Scalar(0), m.src.Scalar(1))
		v = value{src: srcOf(dst)}
	default:
		return value{}, unsupported("dot product of %d components", max(a.size, b.size))
	}
	if err != nil {
		return value{}, err
	}
	return value{kind: kindScalar, size: 1, src: v.src.Scalar(0)}, nil
}

func (t *translator) math(e ir.ExprMath) (value, error) {
	a, err := t.eval(e.Arg)
	if err != nil {
		return value{}, err
	}
	switch e.Fun {
	case ir.MathAbs:
		return t.alu(shader.OpABS, a)
	case ir.MathFloor:
		return t.alu(shader.OpFLR, a)
	case ir.MathFract:
		return t.alu(shader.OpFRC, a)
	case ir.MathSaturate:
		v, err := t.alu(shader.OpMOV, a)
		if err == nil {
			t.saturate()
		}
		return v, err
	case ir.MathExp2:
		return t.scalarOp(shader.OpEX2, a)
	case ir.MathLog2:
		return t.scalarOp(shader.OpLG2, a)
	case ir.MathInverseSqrt:
		return t.scalarOp(shader.OpRSQ, a)
	case ir.MathSin:
		return t.scalarOp(shader.OpSIN, a)
	case ir.MathCos:
		return t.scalarOp(shader.OpCOS, a)
	case ir.MathSqrt:
		r, err := t.scalarOp(shader.OpRSQ, a)
		if err != nil {
			return value{}, err
		}
		return t.scalarOp(shader.OpRCP, r)
	case ir.MathLength:
		d, err := t.dot(a, a)
		if err != nil {
			return value{}, err
		}
		r, err := t.scalarOp(shader.OpRSQ, d)
		if err != nil {
			return value{}, err
		}
		return t.scalarOp(shader.OpRCP, r)
	case ir.MathNormalize:
		d, err := t.dot(a, a)
		if err != nil {
			return value{}, err
		}
		r, err := t.scalarOp(shader.OpRSQ, d)
		if err != nil {
			return value{}, err
		}
		return t.alu(shader.OpMUL, a, r)
	}

	if e.Arg1 == nil {
		return value{}, unsupported("math function %d", e.Fun)
	}
	b, err := t.eval(*e.Arg1)
	if err != nil {
		return value{}, err
	}
	switch e.Fun {
	case ir.MathMin:
		return t.alu(shader.OpMIN, a, b)
	case ir.MathMax:
		return t.alu(shader.OpMAX, a, b)
	case ir.MathPow:
		return t.scalarOp(shader.OpPOW, a, b)
	case ir.MathDot:
		return t.dot(a, b)
	case ir.MathCross:
		return t.alu(shader.OpXPD, a, b)
	case ir.MathStep:
		return t.alu(shader.OpSGE, b, a)
	}

	if e.Arg2 == nil {
		return value{}, unsupported("math function %d", e.Fun)
	}
	c, err := t.eval(*e.Arg2)
	if err != nil {
		return value{}, err
	}
	switch e.Fun {
	case ir.MathClamp:
		lo, err := t.alu(shader.OpMAX, a, b)
		if err != nil {
			return value{}, err
		}
		return t.alu(shader.OpMIN, lo, c)
	case ir.MathFma:
		return t.alu(shader.OpMAD, a, b, c)
	case ir.MathMix:
		d, err := t.alu(shader.OpSUB, b, a)
		if err != nil {
			return value{}, err
		}
		return t.alu(shader.OpMAD, d, c, a)
	}
	return value{}, unsupported("math function %d", e.Fun)
}
