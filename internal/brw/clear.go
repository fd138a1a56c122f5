package brw

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/i965/internal/pipe"
	"github.com/gogpu/i965/internal/texel"
)

// Clear fills the bound color and depth surfaces on the CPU. Pending GPU
// work is submitted and waited for first.
func (c *Context) Clear(ctx context.Context, flags pipe.ClearFlags, color gputypes.Color, depth float32, stencil uint8) error {
	if c.destroyed {
		return ErrDestroyed
	}
	if err := c.Flush(ctx, pipe.FlushRenderCache|pipe.FlushWait); err != nil {
		return err
	}
	if flags&pipe.ClearColor != 0 && c.fb.Color != nil {
		px, err := texel.Pack(c.fb.Color.Texture.Format(), color)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidState, err)
		}
		if err := c.fill(c.fb.Color, px, nil); err != nil {
			return err
		}
	}
	if flags&(pipe.ClearDepth|pipe.ClearStencil) != 0 && c.fb.Depth != nil {
		px, keep, err := texel.PackDepth(c.fb.Depth.Texture.Format(), depth, stencil,
			flags&pipe.ClearDepth != 0, flags&pipe.ClearStencil != 0)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidState, err)
		}
		if len(px) == 0 {
			return nil
		}
		if err := c.fill(c.fb.Depth, px, keep); err != nil {
			return err
		}
	}
	return nil
}

// fill writes px to every texel of s. Bits set in keep are preserved.
func (c *Context) fill(s *pipe.Surface, px, keep []byte) (err error) {
	buf := s.Texture.Buffer
	data, err := c.ws.BufferMap(buf)
	if err != nil {
		return err
	}
	defer func() {
		if uerr := c.ws.BufferUnmap(buf); uerr != nil {
			err = errors.Join(err, errors.Wrap(uerr, "brw: unmap cleared surface"))
		}
	}()

	pitch := int(s.Texture.Tree.Pitch)
	base, w, h := int(s.Offset()), int(s.Width()), int(s.Height())
	if end := base + (h-1)*pitch + w*len(px); end > len(data) {
		return fmt.Errorf("%w: surface extends to %d, buffer is %d bytes", ErrInvalidState, end, len(data))
	}
	for y := range h {
		row := data[base+y*pitch:][:w*len(px)]
		for x := 0; x < len(row); x += len(px) {
			for i, b := range px {
				if keep != nil {
					b = row[x+i]&keep[i] | b&^keep[i]
				}
				row[x+i] = b
			}
		}
	}
	return nil
}
