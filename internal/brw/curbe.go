package brw

import (
	"encoding/binary"
	"math"
	"slices"

	"github.com/gogpu/i965/internal/pool"
	"github.com/gogpu/i965/internal/winsys"
)

// curbeUnitFloats is the CURBE allocation unit: one 512-bit URB row.
const curbeUnitFloats = 16

// fixedPlanes are the view-volume planes that precede the user planes in
// the clip block.
var fixedPlanes = [6][4]float32{
	{0, 0, -1, 1},
	{0, 0, 1, 1},
	{0, -1, 0, 1},
	{0, 1, 0, 1},
	{-1, 0, 0, 1},
	{1, 0, 0, 1},
}

// CurbeLayout places the fragment constants, the clip planes and the
// vertex constants in the constant URB entry. All values are in
// 16-float units.
type CurbeLayout struct {
	WMStart, WMSize     int
	ClipStart, ClipSize int
	VSStart, VSSize     int
	Total               int
}

func vec4Units(n int) int { return pool.DivRoundUp(n*4, curbeUnitFloats) }

// LayoutCurbe returns the CURBE layout for wmParams fragment vec4s,
// nrUserClip user planes and vsParams vertex vec4s.
func LayoutCurbe(wmParams, nrUserClip, vsParams int) CurbeLayout {
	var l CurbeLayout
	l.WMSize = vec4Units(wmParams)
	if nrUserClip > 0 {
		l.ClipSize = vec4Units(len(fixedPlanes) + nrUserClip)
	}
	l.VSSize = vec4Units(vsParams)
	l.ClipStart = l.WMStart + l.WMSize
	l.VSStart = l.ClipStart + l.ClipSize
	l.Total = l.VSStart + l.VSSize
	return l
}

// curbe is the uploaded constant buffer.
type curbe struct {
	layout CurbeLayout

	// last is the payload most recently uploaded; it grows on demand.
	last   []float32
	offset uint32
	epoch  uint64
	valid  bool
}

// updateCurbeOffsets recomputes the layout and raises the category when
// it moved.
func updateCurbeOffsets(c *Context) error {
	wmParams := 0
	if c.wmProg != nil {
		wmParams = c.wmProg.NrParams
	}
	vsParams := 0
	if c.vsProg != nil {
		vsParams = c.vsProg.NrParams
	}
	l := LayoutCurbe(wmParams, len(c.planes), vsParams)
	if l != c.curbe.layout {
		c.curbe.layout = l
		c.raise(DirtyCurbeOffsets)
	}
	return nil
}

// curbePayload assembles the constant buffer contents.
func (c *Context) curbePayload() []float32 {
	l := c.curbe.layout
	buf := make([]float32, l.Total*curbeUnitFloats)

	if l.WMSize > 0 && c.fs != nil {
		n := c.wmProg.NrParams * 4
		copy(buf[l.WMStart*curbeUnitFloats:][:n], c.constants[1])
	}
	if l.ClipSize > 0 {
		dst := buf[l.ClipStart*curbeUnitFloats:]
		for i, p := range fixedPlanes {
			copy(dst[i*4:], p[:])
		}
		for i, p := range c.planes {
			copy(dst[(len(fixedPlanes)+i)*4:], p[:])
		}
	}
	if l.VSSize > 0 && c.vs != nil {
		dst := buf[l.VSStart*curbeUnitFloats:][:c.vsProg.NrParams*4]
		nc := c.vs.info.NumConsts() * 4
		copy(dst[:nc], c.constants[0])
		for i, imm := range c.vs.Program.Immediates {
			copy(dst[nc+i*4:], imm[:])
		}
	}
	return buf
}

// uploadCurbe uploads the constant buffer when its contents or the pool
// epoch changed, and reports whether it did.
func (c *Context) uploadCurbe() (bool, error) {
	if c.curbe.layout.Total == 0 {
		c.curbe.valid = false
		return false, nil
	}
	payload := c.curbePayload()
	epoch := c.gsPool.Stats().Epochs
	if c.curbe.valid && c.curbe.epoch == epoch && slices.Equal(payload, c.curbe.last) {
		return false, nil
	}

	data := make([]byte, 0, len(payload)*4)
	for _, f := range payload {
		data = binary.LittleEndian.AppendUint32(data, math.Float32bits(f))
	}
	off, err := c.gsPool.Alloc(uint32(len(data)), kernelAlign)
	if err != nil {
		return false, err
	}
	if err := c.gsPool.Upload(off, data); err != nil {
		return false, err
	}
	c.curbe.last = append(c.curbe.last[:0], payload...)
	c.curbe.offset = off
	c.curbe.epoch = epoch
	c.curbe.valid = true
	c.stats.CurbeUploads++
	slogger().Debug("brw: curbe upload", "offset", off, "units", c.curbe.layout.Total)
	return true, nil
}

// updateConstantBuffer uploads the CURBE if needed and points the
// hardware at it.
func updateConstantBuffer(c *Context) error {
	if _, err := c.uploadCurbe(); err != nil {
		return err
	}
	return c.emit(2, 1, func(b *winsys.Batch) {
		if !c.curbe.valid {
			b.WriteDword(cmd(cmdConstantBuffer, 2))
			b.WriteDword(0)
			return
		}
		b.WriteDword(cmd(cmdConstantBuffer, 2) | constantBufferValid)
		b.WriteReloc(c.gsPool.Buffer(), winsys.AccessRead, c.curbe.offset+uint32(c.curbe.layout.Total-1))
	})
}
