package brw

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrDecode is returned for command streams DecodeBatch cannot split.
var ErrDecode = errors.New("brw: malformed command stream")

// Packet is one command found by DecodeBatch.
type Packet struct {
	// Offset is the dword index of the header.
	Offset int
	Opcode uint32
	Name   string
	// Words holds the header and the payload.
	Words []uint32
}

// String returns a one-line summary.
func (p Packet) String() string {
	return fmt.Sprintf("%05d %s (%d dwords)", p.Offset, p.Name, len(p.Words))
}

var packetNames = map[uint32]string{
	cmdURBFence:               "URB_FENCE",
	cmdCSURBState:             "CS_URB_STATE",
	cmdConstantBuffer:         "CONSTANT_BUFFER",
	cmdStateBaseAddress:       "STATE_BASE_ADDRESS",
	cmdPipelineSelect:         "PIPELINE_SELECT",
	cmdPipelinedPointers:      "PIPELINED_POINTERS",
	cmdBindingTablePointers:   "BINDING_TABLE_POINTERS",
	cmdVertexBuffers:          "VERTEX_BUFFERS",
	cmdVertexElements:         "VERTEX_ELEMENTS",
	cmdIndexBuffer:            "INDEX_BUFFER",
	cmdVFStatistics:           "VF_STATISTICS",
	cmdDrawingRectangle:       "DRAWING_RECTANGLE",
	cmdBlendConstantColor:     "BLEND_CONSTANT_COLOR",
	cmdDepthBuffer:            "DEPTH_BUFFER",
	cmdPolyStippleOffset:      "POLY_STIPPLE_OFFSET",
	cmdPolyStipplePattern:     "POLY_STIPPLE_PATTERN",
	cmdLineStipplePattern:     "LINE_STIPPLE_PATTERN",
	cmdGlobalDepthOffsetClamp: "GLOBAL_DEPTH_OFFSET_CLAMP",
	cmdPrimitive:              "3DPRIMITIVE",
}

var miNames = map[uint32]string{
	0x00: "MI_NOOP",
	0x04: "MI_FLUSH",
	0x0a: "MI_BATCH_BUFFER_END",
}

// DecodeBatch splits a command stream into packets. It stops after
// MI_BATCH_BUFFER_END.
func DecodeBatch(words []uint32) ([]Packet, error) {
	var out []Packet
	for i := 0; i < len(words); {
		w := words[i]
		switch w >> 29 {
		case 0:
			op := w >> 23
			name, ok := miNames[op]
			if !ok {
				return out, fmt.Errorf("%w: unknown MI command %#x at dword %d", ErrDecode, op, i)
			}
			out = append(out, Packet{Offset: i, Opcode: op, Name: name, Words: words[i : i+1]})
			i++
			if op == 0x0a {
				return out, nil
			}
		case 3:
			op := w >> 16
			n := int(w&0xff) + 2
			if op == cmdPipelineSelect || op == cmdVFStatistics {
				n = 1
			}
			if i+n > len(words) {
				return out, fmt.Errorf("%w: %#x at dword %d needs %d dwords, %d left", ErrDecode, op, i, n, len(words)-i)
			}
			name, ok := packetNames[op]
			if !ok {
				name = fmt.Sprintf("3D(%#04x)", op)
			}
			out = append(out, Packet{Offset: i, Opcode: op, Name: name, Words: words[i : i+n]})
			i += n
		default:
			return out, fmt.Errorf("%w: command type %d at dword %d", ErrDecode, w>>29, i)
		}
	}
	return out, nil
}
