package vs

import "github.com/gogpu/i965/internal/eu"

// Vertex header bits in m1.w.
const (
	headerPSizeShift   = 8
	headerPSizeMask    = 0x7ff << headerPSizeShift
	headerNegativeRHW  = 1 << 6
	headerPSizeScale   = 1 << 11
	headerMessageReg   = 1
	ndcMessageReg      = 2
	positionMessageReg = 3
)

// epilogue writes the vertex to the URB and ends the thread.
func (c *compiler) epilogue() {
	p := c.p
	info := c.info
	pos := c.outputs[info.PositionOutput]

	if c.key.CopyEdgeFlag {
		if in, out := c.edgeFlagSlots(); in >= 0 && out >= 0 {
			p.MOV(c.outputs[out], c.inputs[in])
		}
	}

	ndc := pos
	if !c.knowWIsOne {
		ndc = c.getTmp()
		c.emitMath1(eu.MathInv, eu.Masked(ndc, eu.WriteW), eu.Swizzle1(pos, eu.W), eu.MathPrecisionFull)
		p.MUL(eu.Masked(ndc, eu.WriteXYZ), pos, eu.Swizzle1(ndc, eu.W))
	}

	psize := info.PSizeOutput >= 0 && c.outputsWritten&(1<<uint(info.PSizeOutput)) != 0
	if psize || c.key.NrUserClip > 0 || !c.knowWIsOne {
		header := eu.Retype(c.getTmp(), eu.TypeUD)
		p.MOV(header, eu.ImmUD(0))

		if psize {
			psiz := c.outputs[info.PSizeOutput]
			p.MUL(eu.Masked(header, eu.WriteW), eu.Swizzle1(psiz, eu.X), eu.ImmF(headerPSizeScale))
			p.AND(eu.Masked(header, eu.WriteW), header, eu.ImmUD(headerPSizeMask))
		}

		for i := range c.key.NrUserClip {
			p.SetCondMod(eu.CondL)
			p.DP4(eu.Null(), pos, c.userPlane[i])
			p.OR(eu.Masked(header, eu.WriteW), header, eu.ImmUD(1<<i))
			p.SetPredicate(eu.PredicateNone, false)
		}

		// Flag vertices with a negative reciprocal w so the clipper
		// rejects them, and zero their NDC.
		if !c.knowWIsOne {
			p.CMP(eu.Null(), eu.CondL, eu.Swizzle1(ndc, eu.W), eu.ImmF(0))
			p.OR(eu.Masked(header, eu.WriteW), header, eu.ImmUD(headerNegativeRHW))
			p.MOV(ndc, eu.ImmF(0))
			p.SetPredicate(eu.PredicateNone, false)
		}

		p.SetAccessMode(eu.Align1)
		p.MOV(eu.Retype(eu.MRF(headerMessageReg), eu.TypeUD), header)
	} else {
		p.SetAccessMode(eu.Align1)
		p.MOV(eu.Retype(eu.MRF(headerMessageReg), eu.TypeUD), eu.ImmUD(0))
	}

	p.MOV(eu.MRF(ndcMessageReg), ndc)
	p.MOV(eu.MRF(positionMessageReg), pos)
	for i := range 64 {
		if mrf, ok := c.shadowed[i]; ok {
			p.MOV(eu.MRF(mrf), c.outputs[i])
		}
	}
	if psize {
		// The point size slot is written from its GRF like any output.
		p.MOV(eu.MRF(uint32(firstOutputMRF+c.outputIndex(info.PSizeOutput))), c.outputs[info.PSizeOutput])
	}

	p.URBWrite(eu.Null(), 0, c.r0, false, true, uint32(c.nrOutputs+3), 0, true, true, 0, eu.URBSwizzleInterleave)
}

// outputIndex returns the URB element of output register i.
func (c *compiler) outputIndex(i int) int {
	for n, s := range c.outSlots {
		if s.Index == i {
			return n
		}
	}
	return -1
}
