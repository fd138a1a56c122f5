package brw

import (
	"encoding/binary"

	"github.com/gogpu/i965/internal/cache"
	"github.com/gogpu/i965/internal/pipe"
	"github.com/gogpu/i965/internal/state"
	"github.com/gogpu/i965/internal/wm"
)

type atom = state.Atom[*Context]

// atoms returns the validation table. Producers come before consumers:
// programs, then the layouts derived from them, then unit records, then
// the command packets that point at them.
func atoms() []atom {
	return []atom{
		{Name: "vs_prog", Dirty: mask([]Dirty{DirtyVertexProgram, DirtyClipPlanes}), Update: updateVSProg},
		{Name: "gs_prog", Dirty: mask([]Dirty{DirtyPrimitive}, CacheVSProg), Update: updateGSProg},
		{Name: "clip_prog", Dirty: mask([]Dirty{DirtyReducedPrimitive, DirtyClipPlanes, DirtyRasterizer}, CacheVSProg), Update: updateClipProg},
		{Name: "sf_prog", Dirty: mask([]Dirty{DirtyReducedPrimitive, DirtyRasterizer}, CacheVSProg), Update: updateSFProg},
		{Name: "wm_prog", Dirty: mask([]Dirty{DirtyFragmentProgram}, CacheVSProg), Update: updateWMProg},
		{Name: "curbe_offsets", Dirty: mask([]Dirty{DirtyClipPlanes}, CacheVSProg, CacheWMProg), Update: updateCurbeOffsets},
		{Name: "urb_fence", Dirty: mask([]Dirty{DirtyCurbeOffsets}, CacheVSProg, CacheSFProg), Update: updateURBFence},

		{Name: "cc_vp", Dirty: dirty(DirtyViewport), Update: updateCCViewport},
		{Name: "cc_unit", Dirty: mask([]Dirty{DirtyBlend, DirtyDepthStencil}, CacheCCVP), Update: updateCCUnit},
		{Name: "wm_surfaces", Dirty: dirty(DirtyFramebuffer, DirtyTextures, DirtyBlend), Update: updateWMSurfaces},
		{Name: "wm_samplers", Dirty: dirty(DirtySamplers, DirtyTextures), Update: updateWMSamplers},
		{Name: "wm_unit", Dirty: mask([]Dirty{DirtyFragmentProgram, DirtyRasterizer, DirtyDepthStencil, DirtySamplers,
			DirtyTextures, DirtyCurbeOffsets, DirtyURBFence}, CacheWMProg, CacheSampler), Update: updateWMUnit},
		{Name: "sf_vp", Dirty: dirty(DirtyViewport, DirtyScissor, DirtyFramebuffer, DirtyRasterizer), Update: updateSFViewport},
		{Name: "sf_unit", Dirty: mask([]Dirty{DirtyRasterizer, DirtyURBFence}, CacheSFProg, CacheSFVP), Update: updateSFUnit},
		{Name: "vs_unit", Dirty: mask([]Dirty{DirtyURBFence, DirtyCurbeOffsets}, CacheVSProg), Update: updateVSUnit},
		{Name: "clip_unit", Dirty: mask([]Dirty{DirtyURBFence, DirtyRasterizer, DirtyClipPlanes}, CacheClipProg), Update: updateClipUnit},
		{Name: "gs_unit", Dirty: mask([]Dirty{DirtyURBFence, DirtyPrimitive}, CacheGSProg), Update: updateGSUnit},

		{Name: "invariant", Dirty: dirty(DirtyContext), Update: updateInvariant},
		{Name: "state_base_address", Dirty: dirty(DirtyContext), Update: updateStateBaseAddress},
		{Name: "binding_table_pointers", Dirty: mask([]Dirty{DirtyContext}, CacheSurfaceBind), Update: updateBindingTablePointers},
		{Name: "blend_constant_color", Dirty: dirty(DirtyContext, DirtyBlendColor), Update: updateBlendConstantColor},
		{Name: "drawing_rect", Dirty: dirty(DirtyContext, DirtyFramebuffer), Update: updateDrawingRect},
		{Name: "depthbuffer", Dirty: dirty(DirtyContext, DirtyFramebuffer), Update: updateDepthBuffer},
		{Name: "polygon_stipple", Dirty: dirty(DirtyContext, DirtyPolygonStipple), Update: updatePolygonStipple},
		{Name: "line_stipple", Dirty: dirty(DirtyContext, DirtyRasterizer), Update: updateLineStipple},
		{Name: "psp_urb_cbs", Dirty: mask([]Dirty{DirtyContext, DirtyURBFence},
			CacheVSUnit, CacheGSUnit, CacheClipUnit, CacheSFUnit, CacheWMUnit, CacheCCUnit), Update: updatePspURBCbs},
		{Name: "constant_buffer", Dirty: mask([]Dirty{DirtyContext, DirtyConstants, DirtyClipPlanes, DirtyCurbeOffsets,
			DirtyFragmentProgram, DirtyVertexProgram}, CacheVSProg, CacheWMProg), Update: updateConstantBuffer},
		{Name: "vertices", Dirty: mask([]Dirty{DirtyContext, DirtyVertexBuffers, DirtyVertexElements}, CacheVSProg), Update: updateVertices},
		{Name: "index_buffer", Dirty: dirty(DirtyContext, DirtyIndexBuffer), Update: updateIndexBuffer},
	}
}

// upload stores a record under id and returns its pool offset.
func (c *Context) upload(id cache.ID, r record) (uint32, error) {
	return c.cache.LookupOrInsert(id, r.bytes(), nil, nil)
}

func updateURBFence(c *Context) error {
	// The setup output is one row per attribute.
	sf := max(1, len(c.vsProg.Outputs))
	l, err := PartitionURB(c.vsProg.URBEntrySize, sf, max(1, c.curbe.layout.Total))
	if err != nil {
		return err
	}
	if l != c.urb {
		if l.Constrained {
			slogger().Warn("brw: URB constrained to minimum entries", "layout", l.String())
		}
		c.urb = l
		c.raise(DirtyURBFence)
	}
	return nil
}

func updateCCViewport(c *Context) error {
	s, t := c.viewport.Scale[2], c.viewport.Translate[2]
	lo, hi := min(t-s, t+s), max(t-s, t+s)
	off, err := c.upload(CacheCCVP, packCCViewport(max(lo, 0), min(hi, 1)))
	if err != nil {
		return err
	}
	c.ccVP = off
	return nil
}

func updateCCUnit(c *Context) error {
	off, err := c.upload(CacheCCUnit, packCCUnit(c.blend, c.dsa, c.ccVP))
	if err != nil {
		return err
	}
	c.units[unitCC] = off
	return nil
}

// textureSurface describes t for sampling.
func (c *Context) textureSurface(t *pipe.Texture) (surface, error) {
	addr, err := c.ws.BufferOffset(t.Buffer)
	if err != nil {
		return surface{}, err
	}
	mt := t.Tree
	format, _ := surfaceFormat(t.Format())
	return surface{
		kind:   surfaceType(mt.Desc.Target),
		format: format,
		addr:   uint32(addr),
		width:  mt.Desc.Width,
		height: mt.Desc.Height,
		depth:  mt.Desc.Depth,
		pitch:  mt.Pitch,
		levels: uint32(mt.NumLevels()),
		tiled:  mt.Desc.Tiled,
	}, nil
}

// renderSurface describes the color target, or a null surface.
func (c *Context) renderSurface() (surface, error) {
	s := c.fb.Color
	if s == nil {
		return surface{kind: hwSurfaceNull}, nil
	}
	addr, err := c.ws.BufferOffset(s.Texture.Buffer)
	if err != nil {
		return surface{}, err
	}
	mt := s.Texture.Tree
	format, _ := surfaceFormat(s.Texture.Format())
	return surface{
		kind:       hwSurface2D,
		format:     format,
		addr:       uint32(addr) + s.Offset(),
		width:      s.Width(),
		height:     s.Height(),
		pitch:      mt.Pitch,
		tiled:      mt.Desc.Tiled,
		blend:      c.blend.Enabled,
		writeMask:  c.blend.WriteMask,
		renderable: true,
	}, nil
}

// updateWMSurfaces uploads the render target and texture surfaces and the
// binding table that lists them: entry 0 is the render target, entry
// 1+i texture i.
func updateWMSurfaces(c *Context) error {
	rt, err := c.renderSurface()
	if err != nil {
		return err
	}
	surfaces := []surface{rt}
	for _, t := range c.textures {
		if t == nil {
			surfaces = append(surfaces, surface{kind: hwSurfaceNull})
			continue
		}
		s, err := c.textureSurface(t)
		if err != nil {
			return err
		}
		surfaces = append(surfaces, s)
	}

	table := make([]byte, 0, 4*len(surfaces))
	for _, s := range surfaces {
		off, err := c.upload(CacheSurface, packSurface(s))
		if err != nil {
			return err
		}
		table = binary.LittleEndian.AppendUint32(table, off)
	}
	off, err := c.cache.LookupOrInsert(CacheSurfaceBind, table, nil, nil)
	if err != nil {
		return err
	}
	c.bindingTable = off
	return nil
}

// updateWMSamplers uploads one SAMPLER_STATE per bound sampler as a
// single array, each pointing at its border color.
func updateWMSamplers(c *Context) error {
	if len(c.samplers) == 0 {
		c.samplerOffset = 0
		return nil
	}
	var states record
	for i, s := range c.samplers {
		color, err := c.upload(CacheSamplerDefaultColor, packDefaultColor(s.BorderColor))
		if err != nil {
			return err
		}
		levels := 1
		if i < len(c.textures) && c.textures[i] != nil {
			levels = c.textures[i].Tree.NumLevels()
		}
		states = append(states, packSampler(s, levels, color)...)
	}
	off, err := c.upload(CacheSampler, states)
	if err != nil {
		return err
	}
	c.samplerOffset = off
	return nil
}

// Thread limits per unit.
const (
	wmMaxThreads = 32
	vsMaxThreads = 16
	sfMaxThreads = 12
)

func updateWMUnit(c *Context) error {
	p := c.wmProg
	t := threadState{
		kernel:          c.kernels[kernelWM],
		grf:             p.TotalGRF,
		bindings:        1 + len(c.textures),
		dispatchGRF:     wm.DispatchGRFStart,
		urbReadLength:   p.URBReadLength,
		constReadOffset: c.curbe.layout.WMStart * 2,
		constReadLength: p.CurbReadLength,
	}
	w := wmUnit{
		samplers:       len(c.samplers),
		samplerOffset:  c.samplerOffset,
		maxThreads:     wmMaxThreads,
		polygonStipple: c.rast.PolygonStipple,
		lineStipple:    c.rast.LineStipple,
		depthOffset:    c.rast.OffsetTriangles,
		offsetUnits:    c.rast.OffsetUnits,
		offsetScale:    c.rast.OffsetScale,
	}
	off, err := c.upload(CacheWMUnit, packWMUnit(t, w))
	if err != nil {
		return err
	}
	c.units[unitWM] = off
	return nil
}

// updateSFViewport uploads the viewport transform with the scissor
// rectangle, or the whole framebuffer when scissoring is off.
func updateSFViewport(c *Context) error {
	sc := pipe.Scissor{MaxX: c.fb.Width, MaxY: c.fb.Height}
	if c.rast.Scissor {
		sc = c.scissor
	}
	off, err := c.upload(CacheSFVP, packSFViewport(c.viewport, sc))
	if err != nil {
		return err
	}
	c.sfVP = off
	return nil
}

func (c *Context) urbShare(client, threads int) urbAlloc {
	return urbAlloc{entries: c.urb.Entries[client], size: c.urb.Size[client], maxThreads: threads}
}

func updateSFUnit(c *Context) error {
	t := threadState{
		kernel:        c.kernels[kernelSF],
		grf:           c.sfProg.TotalGRF,
		dispatchGRF:   1,
		urbReadLength: c.sfProg.URBReadLength,
	}
	threads := min(sfMaxThreads, max(1, c.urb.Entries[urbSF]/2))
	off, err := c.upload(CacheSFUnit, packSFUnit(t, c.urbShare(urbSF, threads), c.rast, c.sfVP))
	if err != nil {
		return err
	}
	c.units[unitSF] = off
	return nil
}

// updateVSUnit points the VS at its constants. With user planes the read
// starts at the clip block, which the kernel addresses ahead of its own
// parameters.
func updateVSUnit(c *Context) error {
	l := c.curbe.layout
	start := l.VSStart
	if len(c.planes) > 0 {
		start = l.ClipStart
	}
	t := threadState{
		kernel:          c.kernels[kernelVS],
		grf:             c.vsProg.TotalGRF,
		dispatchGRF:     1,
		urbReadLength:   c.vsProg.URBReadLength,
		constReadOffset: start * 2,
		constReadLength: c.vsProg.CurbReadLength,
		singleFlow:      true,
	}
	threads := min(vsMaxThreads, max(1, (c.urb.Entries[urbVS]-6)/2))
	off, err := c.upload(CacheVSUnit, packVSUnit(t, c.urbShare(urbVS, threads)))
	if err != nil {
		return err
	}
	c.units[unitVS] = off
	return nil
}

// updateClipUnit uploads the guard-band viewport and the CLIP record.
func updateClipUnit(c *Context) error {
	vp, err := c.upload(CacheClipVP, packClipViewport())
	if err != nil {
		return err
	}
	c.clipVP = vp
	t := threadState{
		kernel:        c.kernels[kernelClip],
		grf:           c.clipProg.TotalGRF,
		dispatchGRF:   1,
		urbReadLength: c.clipProg.URBReadLength,
		singleFlow:    true,
	}
	r := packClipUnit(t, c.urbShare(urbClip, 1), len(c.planes), c.rast.BypassClip, vp)
	off, err := c.upload(CacheClipUnit, r)
	if err != nil {
		return err
	}
	c.units[unitClip] = off
	return nil
}

func updateGSUnit(c *Context) error {
	var t threadState
	if c.gsProg != nil {
		t = threadState{
			kernel:        c.kernels[kernelGS],
			grf:           c.gsProg.TotalGRF,
			dispatchGRF:   1,
			urbReadLength: c.gsProg.URBReadLength,
			singleFlow:    true,
		}
	}
	off, err := c.upload(CacheGSUnit, packGSUnit(t, c.urbShare(urbGS, 1), c.gsProg != nil))
	if err != nil {
		return err
	}
	c.units[unitGS] = off
	return nil
}
