// Package layout computes where every mip level, cube face and volume
// slice of a texture lives inside its single linear allocation.
//
// Two strategies exist. 1D and 2D textures use the "below" layout: level 0
// at the top, level 1 under it, and every further level stacked
// vertically to the right of level 1. Volumes, cube maps and arrays pack
// their slices in a grid whose row gets wider as levels shrink.
//
// The offsets are consumed by surface state and by the sampler hardware,
// which derives the position of every level from the pitch alone, so the
// rounding order here must not change.
package layout

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/i965/internal/pool"
)

// Layout errors.
var (
	// ErrUnsupportedTarget is returned for targets the hardware cannot sample.
	ErrUnsupportedTarget = errors.New("layout: unsupported target")

	// ErrUnsupportedFormat is returned for formats without a block description.
	ErrUnsupportedFormat = errors.New("layout: unsupported format")

	// ErrInvalidDimensions is returned for zero sizes or too many levels.
	ErrInvalidDimensions = errors.New("layout: invalid dimensions")
)

const (
	pitchAlign      = 64
	pitchAlignTiled = 512

	alignW = 4
	alignH = 2

	cubeFaces = 6
)

// Desc describes a texture to lay out.
type Desc struct {
	Target gputypes.TextureViewDimension
	Format gputypes.TextureFormat
	Width  uint32
	Height uint32
	// Depth is the slice count of a volume or the layer count of an array.
	Depth  uint32
	Levels uint32
	Tiled  bool
}

// Level is the placement of one mip level.
type Level struct {
	Width  uint32
	Height uint32
	Depth  uint32

	// X and Y locate the level origin, in blocks and block rows.
	X, Y uint32

	images []point
}

// Images returns the number of faces or slices stored for the level.
func (l *Level) Images() int { return len(l.images) }

type point struct{ x, y uint32 }

// Miptree is a computed layout.
type Miptree struct {
	Desc  Desc
	Block Block

	// Pitch is the row pitch in bytes.
	Pitch uint32

	// TotalHeight is the allocation height in block rows.
	TotalHeight uint32

	levels []Level
}

func minify(v uint32) uint32 { return max(v>>1, 1) }

// MaxLevels returns the length of the full mip chain for the given extent.
func MaxLevels(width, height, depth uint32) uint32 {
	m := max(width, height, depth)
	n := uint32(1)
	for m > 1 {
		m >>= 1
		n++
	}
	return n
}

// Compute lays out desc.
func Compute(desc Desc) (*Miptree, error) {
	blk, ok := BlockOf(desc.Format)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, desc.Format)
	}
	if desc.Width == 0 || desc.Height == 0 || desc.Levels == 0 {
		return nil, fmt.Errorf("%w: %dx%d, %d levels", ErrInvalidDimensions, desc.Width, desc.Height, desc.Levels)
	}
	if desc.Depth == 0 {
		desc.Depth = 1
	}

	mt := &Miptree{Desc: desc, Block: blk}
	switch desc.Target {
	case gputypes.TextureViewDimension1D:
		if desc.Height != 1 || desc.Depth != 1 {
			return nil, fmt.Errorf("%w: 1D texture with height %d depth %d", ErrInvalidDimensions, desc.Height, desc.Depth)
		}
		if err := mt.checkLevels(desc.Width, 1, 1); err != nil {
			return nil, err
		}
		mt.layout2D()
	case gputypes.TextureViewDimension2D:
		if desc.Depth != 1 {
			return nil, fmt.Errorf("%w: 2D texture with depth %d", ErrInvalidDimensions, desc.Depth)
		}
		if err := mt.checkLevels(desc.Width, desc.Height, 1); err != nil {
			return nil, err
		}
		mt.layout2D()
	case gputypes.TextureViewDimension3D:
		if err := mt.checkLevels(desc.Width, desc.Height, desc.Depth); err != nil {
			return nil, err
		}
		mt.layoutSlices(desc.Depth, true)
	case gputypes.TextureViewDimensionCube:
		if desc.Width != desc.Height || desc.Depth != 1 {
			return nil, fmt.Errorf("%w: cube %dx%dx%d", ErrInvalidDimensions, desc.Width, desc.Height, desc.Depth)
		}
		if err := mt.checkLevels(desc.Width, desc.Height, 1); err != nil {
			return nil, err
		}
		mt.layoutSlices(cubeFaces, false)
	case gputypes.TextureViewDimension2DArray:
		if err := mt.checkLevels(desc.Width, desc.Height, 1); err != nil {
			return nil, err
		}
		mt.layoutSlices(desc.Depth, false)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedTarget, desc.Target)
	}
	return mt, nil
}

func (mt *Miptree) checkLevels(w, h, d uint32) error {
	if n := MaxLevels(w, h, d); mt.Desc.Levels > n {
		return fmt.Errorf("%w: %d levels for %dx%dx%d (max %d)", ErrInvalidDimensions, mt.Desc.Levels, w, h, d, n)
	}
	return nil
}

func (mt *Miptree) blocksW(w uint32) uint32 { return pool.DivRoundUp(w, mt.Block.BW) }
func (mt *Miptree) blocksH(h uint32) uint32 { return pool.DivRoundUp(h, mt.Block.BH) }

// alignment in blocks
func (mt *Miptree) align() (w, h uint32) {
	return max(alignW/mt.Block.BW, 1), max(alignH/mt.Block.BH, 1)
}

func (mt *Miptree) setPitch(blocks uint32) {
	a := uint32(pitchAlign)
	if mt.Desc.Tiled {
		a = pitchAlignTiled
	}
	mt.Pitch = pool.AlignUp(blocks*mt.Block.Bytes, a)
}

func (mt *Miptree) layout2D() {
	aw, ah := mt.align()
	w0 := mt.Desc.Width
	pitch := mt.blocksW(w0)
	if mt.Desc.Levels > 1 {
		// level 2 sits to the right of level 1 and may stick out past level 0
		mip1 := pool.AlignUp(mt.blocksW(minify(w0)), aw) + mt.blocksW(minify(minify(w0)))
		pitch = max(pitch, mip1)
	}
	mt.setPitch(pitch)

	var x, y uint32
	width, height := mt.Desc.Width, mt.Desc.Height
	for level := range mt.Desc.Levels {
		mt.levels = append(mt.levels, Level{
			Width: width, Height: height, Depth: 1,
			X: x, Y: y,
			images: []point{{x, y}},
		})
		imgH := pool.AlignUp(mt.blocksH(height), ah)
		mt.TotalHeight = max(mt.TotalHeight, y+imgH)
		if level == 1 {
			x += pool.AlignUp(mt.blocksW(width), aw)
		} else {
			y += imgH
		}
		width, height = minify(width), minify(height)
	}
}

func (mt *Miptree) layoutSlices(images uint32, minifyDepth bool) {
	mt.setPitch(mt.blocksW(mt.Desc.Width))
	pitchBlocks := mt.Pitch / mt.Block.Bytes

	packX := pitchBlocks
	packY := max(mt.blocksH(mt.Desc.Height), alignH)
	perRow := uint32(1)

	width, height, depth := mt.Desc.Width, mt.Desc.Height, images
	for range mt.Desc.Levels {
		lvl := Level{Width: width, Height: height, Depth: depth, Y: mt.TotalHeight}
		var x, y uint32
		for q := uint32(0); q < depth; {
			for j := uint32(0); j < perRow && q < depth; j, q = j+1, q+1 {
				lvl.images = append(lvl.images, point{x, mt.TotalHeight + y})
				x += packX
			}
			x = 0
			y += packY
		}
		mt.levels = append(mt.levels, lvl)
		mt.TotalHeight += y

		if packX > alignW {
			packX >>= 1
			perRow <<= 1
		}
		if packY > alignH {
			packY >>= 1
		}
		width, height = minify(width), minify(height)
		if minifyDepth {
			depth = minify(depth)
		}
	}
}

// NumLevels returns the level count.
func (mt *Miptree) NumLevels() int { return len(mt.levels) }

// Level returns the placement of level i.
func (mt *Miptree) Level(i int) *Level { return &mt.levels[i] }

// ImageOffset returns the byte offset of face or slice img of level.
func (mt *Miptree) ImageOffset(level, img int) uint32 {
	p := mt.levels[level].images[img]
	return p.y*mt.Pitch + p.x*mt.Block.Bytes
}

// Size returns the allocation size in bytes.
func (mt *Miptree) Size() uint32 {
	return mt.Pitch * mt.TotalHeight
}

// Offsets returns every image offset, level by level.
func (mt *Miptree) Offsets() []uint32 {
	var out []uint32
	for l := range mt.levels {
		for i := range mt.levels[l].images {
			out = append(out, mt.ImageOffset(l, i))
		}
	}
	return out
}

type rect struct{ x0, y0, x1, y1 uint32 }

func (mt *Miptree) rects() []rect {
	var out []rect
	for _, l := range mt.levels {
		w, h := mt.blocksW(l.Width), mt.blocksH(l.Height)
		for _, p := range l.images {
			out = append(out, rect{p.x, p.y, p.x + w, p.y + h})
		}
	}
	return out
}

// Overlaps reports whether any two images share a block, or any image
// leaves the allocation.
func (mt *Miptree) Overlaps() bool {
	rs := mt.rects()
	pitchBlocks := mt.Pitch / mt.Block.Bytes
	for i, a := range rs {
		if a.x1 > pitchBlocks || a.y1 > mt.TotalHeight {
			return true
		}
		for _, b := range rs[i+1:] {
			if a.x0 < b.x1 && b.x0 < a.x1 && a.y0 < b.y1 && b.y0 < a.y1 {
				return true
			}
		}
	}
	return false
}
