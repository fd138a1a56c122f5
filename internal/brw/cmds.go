package brw

import (
	"fmt"

	"github.com/gogpu/i965/internal/ffprog"
	"github.com/gogpu/i965/internal/winsys"
)

// Command opcodes: the upper 16 bits of the header dword.
const (
	cmdURBFence               = 0x6000
	cmdCSURBState             = 0x6001
	cmdConstantBuffer         = 0x6002
	cmdStateBaseAddress       = 0x6101
	cmdPipelineSelect         = 0x6904
	cmdPipelinedPointers      = 0x7800
	cmdBindingTablePointers   = 0x7801
	cmdVertexBuffers          = 0x7808
	cmdVertexElements         = 0x7809
	cmdIndexBuffer            = 0x780a
	cmdVFStatistics           = 0x780b
	cmdDrawingRectangle       = 0x7900
	cmdBlendConstantColor     = 0x7901
	cmdDepthBuffer            = 0x7905
	cmdPolyStippleOffset      = 0x7906
	cmdPolyStipplePattern     = 0x7907
	cmdLineStipplePattern     = 0x7908
	cmdGlobalDepthOffsetClamp = 0x7909
	cmdPrimitive              = 0x7b00
)

// MI commands.
const (
	miNoop  = 0
	miFlush = 0x04 << 23

	miFlushReadCache     = 1 << 0
	miFlushStateCache    = 1 << 1
	miFlushInhibitRender = 1 << 2
)

// Header and dword flags.
const (
	constantBufferValid = 1 << 8

	urbFenceReallocAll = 0x3f << 8

	vbIndexShift       = 27
	veValid            = 1 << 26
	primRandomAccess   = 1 << 15
	primTopologyShift  = 10
	indexFormatShift   = 8
	sbaModify          = 1
	pipelineSelect3D   = 0
	vfStatisticsEnable = 1
)

// cmd returns the header of a packet of length dwords.
func cmd(op uint32, length int) uint32 {
	return op<<16 | uint32(length-2)
}

// emit reserves dwords and relocs in the batch and runs fill.
func (c *Context) emit(dwords, relocs int, fill func(b *winsys.Batch)) error {
	if err := c.batch.Start(dwords, relocs); err != nil {
		return err
	}
	fill(c.batch)
	return c.batch.End()
}

func updateInvariant(c *Context) error {
	return c.emit(4, 0, func(b *winsys.Batch) {
		b.WriteDword(cmdPipelineSelect<<16 | pipelineSelect3D)
		b.WriteDword(cmd(cmdGlobalDepthOffsetClamp, 2))
		b.WriteFloat(0)
		b.WriteDword(cmdVFStatistics<<16 | vfStatisticsEnable)
	})
}

func updateStateBaseAddress(c *Context) error {
	return c.emit(6, 2, func(b *winsys.Batch) {
		b.WriteDword(cmd(cmdStateBaseAddress, 6))
		b.WriteReloc(c.gsPool.Buffer(), winsys.AccessRead, sbaModify)
		b.WriteReloc(c.ssPool.Buffer(), winsys.AccessRead, sbaModify)
		b.WriteDword(sbaModify)
		b.WriteDword(sbaModify)
		b.WriteDword(sbaModify)
	})
}

func updateBindingTablePointers(c *Context) error {
	return c.emit(6, 0, func(b *winsys.Batch) {
		b.WriteDword(cmd(cmdBindingTablePointers, 6))
		for range 4 {
			b.WriteDword(0)
		}
		b.WriteDword(c.bindingTable)
	})
}

func updateBlendConstantColor(c *Context) error {
	col := c.blendColor
	return c.emit(5, 0, func(b *winsys.Batch) {
		b.WriteDword(cmd(cmdBlendConstantColor, 5))
		b.WriteFloat(float32(col.R))
		b.WriteFloat(float32(col.G))
		b.WriteFloat(float32(col.B))
		b.WriteFloat(float32(col.A))
	})
}

func updateDrawingRect(c *Context) error {
	w, h := max(c.fb.Width, 1), max(c.fb.Height, 1)
	return c.emit(4, 0, func(b *winsys.Batch) {
		b.WriteDword(cmd(cmdDrawingRectangle, 4))
		b.WriteDword(0)
		b.WriteDword(field(w-1, 0, 16) | field(h-1, 16, 16))
		b.WriteDword(0)
	})
}

func updateDepthBuffer(c *Context) error {
	d := c.fb.Depth
	if d == nil {
		return c.emit(5, 0, func(b *winsys.Batch) {
			b.WriteDword(cmd(cmdDepthBuffer, 5))
			b.WriteDword(field(hwSurfaceNull, 29, 3) | field(hwDepthD32Float, 18, 3))
			b.WriteDword(0)
			b.WriteDword(0)
			b.WriteDword(0)
		})
	}
	format, _ := depthFormat(d.Texture.Format())
	mt := d.Texture.Tree
	return c.emit(5, 1, func(b *winsys.Batch) {
		b.WriteDword(cmd(cmdDepthBuffer, 5))
		b.WriteDword(field(hwSurface2D, 29, 3) | field(format, 18, 3) |
			flag(mt.Desc.Tiled, 27) | field(mt.Pitch-1, 0, 17))
		b.WriteReloc(d.Texture.Buffer, winsys.AccessRead|winsys.AccessWrite, d.Offset())
		b.WriteDword(field(d.Height()-1, 19, 13) | field(d.Width()-1, 6, 13))
		b.WriteDword(0)
	})
}

func updatePolygonStipple(c *Context) error {
	return c.emit(33, 0, func(b *winsys.Batch) {
		b.WriteDword(cmd(cmdPolyStipplePattern, 33))
		// Rows are stored bottom-up.
		for i := range c.stipple {
			b.WriteDword(c.stipple[len(c.stipple)-1-i])
		}
	})
}

func updateLineStipple(c *Context) error {
	factor := max(c.rast.LineStippleFactor, 1)
	factor = min(factor, stippleRepeatMax)
	inv := ufixed(1/float32(factor), stippleInvFrac, stippleInvBits)
	return c.emit(3, 0, func(b *winsys.Batch) {
		b.WriteDword(cmd(cmdLineStipplePattern, 3))
		b.WriteDword(uint32(c.rast.LineStipplePattern))
		b.WriteDword(inv<<16 | factor)
	})
}

// updatePspURBCbs emits the unit pointers, the URB fence and the constant
// URB layout as one group.
func updatePspURBCbs(c *Context) error {
	if err := c.emit(7, 0, func(b *winsys.Batch) {
		b.WriteDword(cmd(cmdPipelinedPointers, 7))
		b.WriteDword(c.units[unitVS])
		b.WriteDword(c.units[unitGS] | flag(c.gsProg != nil, 0))
		b.WriteDword(c.units[unitClip] | 1)
		b.WriteDword(c.units[unitSF])
		b.WriteDword(c.units[unitWM])
		b.WriteDword(c.units[unitCC])
	}); err != nil {
		return err
	}
	if err := c.emitURBFence(); err != nil {
		return err
	}
	cs := c.urb.Size[urbCS]
	return c.emit(2, 0, func(b *winsys.Batch) {
		b.WriteDword(cmd(cmdCSURBState, 2))
		b.WriteDword(field(uint32(cs-1), 4, 5) | field(uint32(c.urb.Entries[urbCS]), 0, 3))
	})
}

// urbFenceDwords is the length of URB_FENCE; the packet may not cross a
// 64-byte boundary.
const urbFenceDwords = 3

func (c *Context) emitURBFence() error {
	pad := 0
	if pos := c.batch.Len() % 16; pos+urbFenceDwords > 16 {
		pad = 16 - pos
	}
	l := c.urb
	return c.emit(pad+urbFenceDwords, 0, func(b *winsys.Batch) {
		for range pad {
			b.WriteDword(miNoop)
		}
		b.WriteDword(cmd(cmdURBFence, urbFenceDwords) | urbFenceReallocAll)
		b.WriteDword(field(uint32(l.Fence(urbVS)), 0, 10) |
			field(uint32(l.Fence(urbGS)), 10, 10) |
			field(uint32(l.Fence(urbClip)), 20, 10))
		b.WriteDword(field(uint32(l.Fence(urbSF)), 0, 10) |
			field(uint32(l.Fence(urbCS)), 20, 11))
	})
}

// updateVertices emits the vertex buffers and one element per input the
// vertex kernel reads, in the order the kernel expects them.
func updateVertices(c *Context) error {
	inputs := c.vsProg.Inputs
	if len(inputs) == 0 {
		return nil
	}
	used := make(map[uint32]bool)
	for _, in := range inputs {
		if in >= len(c.velems) {
			return fmt.Errorf("%w: vertex shader reads IN[%d], %d elements bound", ErrInvalidState, in, len(c.velems))
		}
		vb := c.velems[in].BufferIndex
		if int(vb) >= len(c.vbufs) || c.vbufs[vb].Buffer == nil {
			return fmt.Errorf("%w: vertex element %d uses unbound buffer %d", ErrInvalidState, in, vb)
		}
		used[vb] = true
	}

	nbufs := len(used)
	if err := c.emit(1+4*nbufs, nbufs, func(b *winsys.Batch) {
		b.WriteDword(cmd(cmdVertexBuffers, 1+4*nbufs))
		for i, vb := range c.vbufs {
			if !used[uint32(i)] {
				continue
			}
			b.WriteDword(uint32(i)<<vbIndexShift | field(vb.Stride, 0, 11))
			b.WriteReloc(vb.Buffer, winsys.AccessRead, vb.Offset)
			b.WriteDword(vb.MaxIndex)
			b.WriteDword(0)
		}
	}); err != nil {
		return err
	}

	n := len(inputs)
	return c.emit(1+2*n, 0, func(b *winsys.Batch) {
		b.WriteDword(cmd(cmdVertexElements, 1+2*n))
		for i, in := range inputs {
			e := c.velems[in]
			format, comps, integer, _ := vertexFormat(e.Format)
			ctrl := [4]uint32{vfcStoreSrc, vfcStore0, vfcStore0, vfcStore1Flt}
			if integer {
				ctrl[3] = vfcStore1Int
			}
			for k := range comps {
				ctrl[k] = vfcStoreSrc
			}
			b.WriteDword(e.BufferIndex<<vbIndexShift | veValid | field(format, 16, 9) | field(e.Offset, 0, 11))
			b.WriteDword(field(ctrl[0], 28, 3) | field(ctrl[1], 24, 3) | field(ctrl[2], 20, 3) |
				field(ctrl[3], 16, 3) | field(uint32(i*4), 0, 8))
		}
	})
}

func updateIndexBuffer(c *Context) error {
	ib := c.ib
	if ib == nil || ib.Buffer == nil {
		return nil
	}
	format := uint32(1)
	if ib.IndexSize() == 4 {
		format = 2
	}
	end := uint32(ib.Buffer.Size()) - 1
	return c.emit(3, 2, func(b *winsys.Batch) {
		b.WriteDword(cmd(cmdIndexBuffer, 3) | format<<indexFormatShift)
		b.WriteReloc(ib.Buffer, winsys.AccessRead, ib.Offset)
		b.WriteReloc(ib.Buffer, winsys.AccessRead, end)
	})
}

// emitPrimitive records one 3DPRIMITIVE.
func (c *Context) emitPrimitive(start, count uint32, indexed bool) error {
	header := cmd(cmdPrimitive, 6) | ffprog.HardwarePrim(c.prim)<<primTopologyShift
	if indexed {
		header |= primRandomAccess
	}
	return c.emit(6, 0, func(b *winsys.Batch) {
		b.WriteDword(header)
		b.WriteDword(count)
		b.WriteDword(start)
		b.WriteDword(1)
		b.WriteDword(0)
		b.WriteDword(0)
	})
}

// emitFlush records MI_FLUSH.
func (c *Context) emitFlush(render, texture bool) error {
	v := uint32(miFlush | miFlushStateCache)
	if !render {
		v |= miFlushInhibitRender
	}
	if texture {
		v |= miFlushReadCache
	}
	return c.emit(1, 0, func(b *winsys.Batch) { b.WriteDword(v) })
}
