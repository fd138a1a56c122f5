// Package ffprog generates the fixed-function thread kernels: the SF
// setup kernel that turns vertices into attribute planes, the CLIP
// kernel that trivially rejects primitives outside a user plane, and the
// GS kernel that re-emits legacy primitives as strips and lists.
//
// Every kernel reads its vertices from the URB in the layout the vertex
// kernel writes. A vertex is a list of vec4 slots, two per register:
//
//	slot 0   header: point size and clip flags in .w
//	slot 1   NDC
//	slot 2   position, in window coordinates by the time setup runs
//	slot 3+  the vertex outputs after POSITION, in URB order
//
// The thread payload is r0 followed by the vertices back to back.
package ffprog

import (
	"errors"
	"fmt"

	"github.com/gogpu/i965/internal/eu"
	"github.com/gogpu/i965/internal/pipe"
)

// VUE slots.
const (
	SlotHeader    = 0
	SlotNDC       = 1
	SlotPosition  = 2
	FirstAttrSlot = 3
)

// MaxAttrs is the number of attributes that fit a vertex after the
// fixed slots.
const MaxAttrs = 2*(eu.NumMRF-1) - FirstAttrSlot

var (
	// ErrBadKey is returned for keys no kernel exists for.
	ErrBadKey = errors.New("ffprog: invalid kernel key")
)

// Hardware primitive topologies, as 3DPRIMITIVE and the GS headers encode
// them.
const (
	HWPointList = 0x01
	HWLineList  = 0x02
	HWLineStrip = 0x03
	HWTriList   = 0x04
	HWTriStrip  = 0x05
	HWTriFan    = 0x06
	HWQuadList  = 0x07
	HWQuadStrip = 0x08
	HWPolygon   = 0x0e
	HWRectList  = 0x0f
	HWLineLoop  = 0x10
)

// GS primitive header flags in r0.2.
const (
	primEnd   = 0x1
	primStart = 0x2
)

// HardwarePrim returns the topology code for p.
func HardwarePrim(p pipe.Primitive) uint32 {
	switch p {
	case pipe.PrimPoints:
		return HWPointList
	case pipe.PrimLines:
		return HWLineList
	case pipe.PrimLineLoop:
		return HWLineLoop
	case pipe.PrimLineStrip:
		return HWLineStrip
	case pipe.PrimTriangleStrip:
		return HWTriStrip
	case pipe.PrimTriangleFan:
		return HWTriFan
	case pipe.PrimQuads:
		return HWQuadList
	case pipe.PrimQuadStrip:
		return HWQuadStrip
	case pipe.PrimPolygon:
		return HWPolygon
	default:
		return HWTriList
	}
}

// VertexRegs returns the registers one vertex with n attributes spans.
func VertexRegs(n int) int { return (FirstAttrSlot + n + 1) / 2 }

// Kernel is a generated fixed-function kernel.
type Kernel struct {
	Instructions []eu.Instruction

	TotalGRF int

	// URBReadLength is the registers read per vertex.
	URBReadLength int
	NrVertices    int
}

// Bytes returns the little-endian kernel.
func (k *Kernel) Bytes() []byte { return eu.Encode(k.Instructions) }

func verticesOf(reduced pipe.Primitive) int {
	switch reduced {
	case pipe.PrimPoints:
		return 1
	case pipe.PrimLines:
		return 2
	default:
		return 3
	}
}

// builder carries the register layout shared by the kernels.
type builder struct {
	p       *eu.Assembler
	vregs   uint32
	nverts  int
	nextTmp uint32
}

func newBuilder(nrAttrs, nverts int) (*builder, error) {
	if nrAttrs < 0 || nrAttrs > MaxAttrs {
		return nil, fmt.Errorf("%w: %d attributes", ErrBadKey, nrAttrs)
	}
	vregs := uint32(VertexRegs(nrAttrs))
	return &builder{
		p:       eu.NewAssembler(),
		vregs:   vregs,
		nverts:  nverts,
		nextTmp: 1 + vregs*uint32(nverts),
	}, nil
}

func (b *builder) vertexBase(v int) uint32 { return 1 + uint32(v)*b.vregs }

// slot addresses vec4 slot s of vertex v, replicated to both halves.
func (b *builder) slot(v, s int) eu.Reg {
	return eu.Stride(eu.Vec4(eu.FileGRF, b.vertexBase(v)+uint32(s/2), uint32(s%2)*4), 0, 4, 1)
}

func (b *builder) tmp() eu.Reg {
	r := eu.GRF(b.nextTmp)
	b.nextTmp++
	return r
}

// copyVertex moves the registers of vertex v to m1 onwards.
func (b *builder) copyVertex(v int) {
	for k := range b.vregs {
		b.p.MOV(eu.UD8(eu.FileMRF, 1+k, 0), eu.UD8(eu.FileGRF, b.vertexBase(v)+k, 0))
	}
}

func (b *builder) kernel() (*Kernel, error) {
	if err := b.p.Err(); err != nil {
		return nil, fmt.Errorf("ffprog: %w", err)
	}
	return &Kernel{
		Instructions:  b.p.Instructions(),
		TotalGRF:      int(b.nextTmp),
		URBReadLength: int(b.vregs),
		NrVertices:    b.nverts,
	}, nil
}
