package brw

import (
	"github.com/gogpu/i965/internal/cache"
	"github.com/gogpu/i965/internal/state"
)

// Dirty is a pipeline dirty category: one bit of state.Flags.Pipeline.
type Dirty uint

// Dirty categories. Setters raise the API categories; the derived ones are
// raised by atoms during validation.
const (
	DirtyBlend Dirty = iota
	DirtyDepthStencil
	DirtyRasterizer
	DirtyFramebuffer
	DirtyViewport
	DirtyScissor
	DirtyVertexProgram
	DirtyFragmentProgram
	DirtySamplers
	DirtyTextures
	DirtyConstants
	DirtyClipPlanes
	DirtyPolygonStipple
	DirtyBlendColor
	DirtyVertexBuffers
	DirtyVertexElements
	DirtyIndexBuffer
	DirtyPrimitive
	DirtyReducedPrimitive
	DirtyURBFence
	DirtyCurbeOffsets

	// DirtyScene asks Validate to start over with empty pools.
	DirtyScene

	// DirtyContext means the hardware lost all non-pipelined state, as
	// it does after every batch.
	DirtyContext

	numDirty
)

var dirtyNames = [numDirty]string{
	"blend", "depth_stencil", "rasterizer", "framebuffer", "viewport", "scissor",
	"vertex_program", "fragment_program", "samplers", "textures", "constants",
	"clip_planes", "polygon_stipple", "blend_color", "vertex_buffers",
	"vertex_elements", "index_buffer", "primitive", "reduced_primitive",
	"urb_fence", "curbe_offsets", "scene", "context",
}

// String returns the category name.
func (d Dirty) String() string {
	if d < numDirty {
		return dirtyNames[d]
	}
	return "unknown"
}

// Cache ids. Each one is also the bit the cache raises in
// state.Flags.Cache when the id resolves to a new offset.
const (
	CacheCCVP cache.ID = iota
	CacheCCUnit
	CacheWMProg
	CacheSamplerDefaultColor
	CacheSampler
	CacheWMUnit
	CacheSFProg
	CacheSFVP
	CacheSFUnit
	CacheVSUnit
	CacheVSProg
	CacheGSUnit
	CacheGSProg
	CacheClipVP
	CacheClipUnit
	CacheClipProg
	CacheSurface
	CacheSurfaceBind

	numCacheIDs
)

var cacheNames = [numCacheIDs]string{
	"CC_VP", "CC_UNIT", "WM_PROG", "SAMPLER_DEFAULT_COLOR", "SAMPLER",
	"WM_UNIT", "SF_PROG", "SF_VP", "SF_UNIT", "VS_UNIT", "VS_PROG",
	"GS_UNIT", "GS_PROG", "CLIP_VP", "CLIP_UNIT", "CLIP_PROG",
	"SS_SURFACE", "SS_SURF_BIND",
}

// CacheName returns the name of a cache id.
func CacheName(id cache.ID) string {
	if id < numCacheIDs {
		return cacheNames[id]
	}
	return "unknown"
}

// dirty returns flags with the given pipeline categories set.
func dirty(ds ...Dirty) state.Flags {
	var f state.Flags
	for _, d := range ds {
		f.Pipeline |= 1 << d
	}
	return f
}

// caches returns flags with the given cache ids set.
func caches(ids ...cache.ID) state.Flags {
	var f state.Flags
	for _, id := range ids {
		f.Cache |= 1 << id
	}
	return f
}

// mask combines pipeline categories and cache ids into one atom mask.
func mask(ds []Dirty, ids ...cache.ID) state.Flags {
	f := dirty(ds...)
	f.Or(caches(ids...))
	return f
}
