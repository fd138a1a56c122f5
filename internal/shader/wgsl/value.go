package wgsl

import (
	"github.com/gogpu/naga/ir"

	"github.com/gogpu/i965/internal/shader"
)

type kind uint8

const (
	kindScalar kind = iota
	kindVector
	kindMatrix
	kindStruct
	kindTexture
	kindSampler
)

func (k kind) String() string {
	switch k {
	case kindScalar:
		return "scalar"
	case kindVector:
		return "vector"
	case kindMatrix:
		return "matrix"
	case kindStruct:
		return "struct"
	case kindTexture:
		return "texture"
	case kindSampler:
		return "sampler"
	}
	return "unknown"
}

// value is an evaluated expression. Scalars and vectors are a source
// operand, or a constant folded into konst until first use. A scalar source
// always has its component replicated.
type value struct {
	kind   kind
	size   int
	src    shader.Src
	konst  *[4]float32
	cols   []shader.Src
	rows   int
	fields []value
	unit   int
	target string
}

func constant(k kind, size int, v [4]float32) value {
	return value{kind: k, size: size, konst: &v}
}

func scalarConst(f float32) value {
	return constant(kindScalar, 1, [4]float32{f, f, f, f})
}

// place is the storage a pointer expression refers to.
type place struct {
	file  shader.File
	reg   int
	swz   [4]uint8
	mask  uint8
	inner ir.TypeInner
}

func shape(inner ir.TypeInner) (kind, int, bool) {
	switch ty := inner.(type) {
	case ir.ScalarType:
		return kindScalar, 1, true
	case ir.VectorType:
		return kindVector, int(ty.Size), true
	case ir.MatrixType:
		return kindMatrix, int(ty.Columns), true
	case ir.StructType:
		return kindStruct, len(ty.Members), true
	}
	return 0, 0, false
}

// shifted selects components start, start+1, ... clamped to w.
func shifted(start int) [4]uint8 {
	var swz [4]uint8
	for i := range swz {
		swz[i] = uint8(min(start+i, 3))
	}
	return swz
}

func fullMask(size int) uint8 { return uint8(1)<<size - 1 }
