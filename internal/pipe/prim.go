package pipe

import "github.com/gogpu/gputypes"

// Primitive is a draw topology, including the legacy kinds the hardware
// only supports through the GS.
type Primitive uint8

// Primitive kinds.
const (
	PrimPoints Primitive = iota
	PrimLines
	PrimLineLoop
	PrimLineStrip
	PrimTriangles
	PrimTriangleStrip
	PrimTriangleFan
	PrimQuads
	PrimQuadStrip
	PrimPolygon
)

var primNames = [...]string{
	PrimPoints:        "points",
	PrimLines:         "lines",
	PrimLineLoop:      "line_loop",
	PrimLineStrip:     "line_strip",
	PrimTriangles:     "triangles",
	PrimTriangleStrip: "triangle_strip",
	PrimTriangleFan:   "triangle_fan",
	PrimQuads:         "quads",
	PrimQuadStrip:     "quad_strip",
	PrimPolygon:       "polygon",
}

// String returns the primitive name.
func (p Primitive) String() string {
	if int(p) < len(primNames) {
		return primNames[p]
	}
	return "unknown"
}

// Valid reports whether p is a known primitive.
func (p Primitive) Valid() bool { return p <= PrimPolygon }

// Reduced returns the point, line or triangle class of p.
func (p Primitive) Reduced() Primitive {
	switch p {
	case PrimPoints:
		return PrimPoints
	case PrimLines, PrimLineLoop, PrimLineStrip:
		return PrimLines
	default:
		return PrimTriangles
	}
}

// ParsePrimitive returns the primitive named s.
func ParsePrimitive(s string) (Primitive, bool) {
	for i, n := range primNames {
		if n == s {
			return Primitive(i), true
		}
	}
	return 0, false
}

// FromTopology converts a WebGPU topology.
func FromTopology(t gputypes.PrimitiveTopology) Primitive {
	switch t {
	case gputypes.PrimitiveTopologyPointList:
		return PrimPoints
	case gputypes.PrimitiveTopologyLineList:
		return PrimLines
	case gputypes.PrimitiveTopologyLineStrip:
		return PrimLineStrip
	case gputypes.PrimitiveTopologyTriangleStrip:
		return PrimTriangleStrip
	default:
		return PrimTriangles
	}
}
