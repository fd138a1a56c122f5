package brw

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/i965/internal/pipe"
	"github.com/gogpu/i965/internal/pool"
	"github.com/gogpu/i965/internal/state"
	"github.com/gogpu/i965/internal/winsys"
)

// Validate brings the hardware state up to date with the bound state,
// recording the packets that changed into the batch.
//
// When a state pool runs out, Validate starts a new scene and runs once
// more; a second exhaustion is marked ErrFatal. Any other atom error stops
// the pass with the dirty flags intact, so the next call resumes it.
func (c *Context) Validate() error {
	if c.destroyed {
		return ErrDestroyed
	}
	c.stats.Validations++

	err := c.validate()
	if err == nil || !errors.Is(err, pool.ErrPoolExhausted) {
		return err
	}
	slogger().Warn("brw: state pool exhausted, starting a new scene", "err", err)
	c.stats.Retries++
	if err := c.newScene(); err != nil {
		return err
	}
	if err := c.validate(); err != nil {
		if errors.Is(err, pool.ErrPoolExhausted) {
			return errors.Mark(errors.Wrap(err, "brw: validate after pool reset"), ErrFatal)
		}
		return err
	}
	return nil
}

func (c *Context) validate() error {
	if c.dirty.Pipeline&(1<<DirtyScene) != 0 {
		if err := c.newScene(); err != nil {
			return err
		}
	}
	if c.cfg.EmitStateAlways {
		c.raise(DirtyContext)
	}
	// A failed pass leaves its flags set; the packets it managed to record
	// must not reach the hardware.
	mark := c.batch.Mark()
	if err := c.engine.Validate(c, &c.dirty); err != nil {
		c.batch.Rollback(mark)
		return err
	}
	return nil
}

// newScene submits pending work, empties both pools and marks all state
// dirty.
func (c *Context) newScene() error {
	if !c.batch.Empty() {
		if err := c.submit(); err != nil {
			return err
		}
	}
	c.gsPool.Invalidate()
	c.ssPool.Invalidate()
	c.curbe.valid = false

	c.dirty = state.All
	c.dirty.Pipeline &^= 1 << DirtyScene
	c.stats.Scenes++
	slogger().Debug("brw: new scene", "scenes", c.stats.Scenes)
	return nil
}

// submit flushes the batch. The hardware forgets its non-pipelined state
// at the batch boundary.
func (c *Context) submit() error {
	fence, err := c.batch.Flush()
	if err != nil {
		return err
	}
	c.fence = fence
	c.stats.Flushes++
	c.raise(DirtyContext)
	return nil
}

func (c *Context) setPrimitive(p pipe.Primitive) {
	if p != c.prim {
		c.prim = p
		c.raise(DirtyPrimitive)
	}
	if r := p.Reduced(); r != c.reduced {
		c.reduced = r
		c.raise(DirtyReducedPrimitive)
	}
}

// Draw validates the bound state and records one primitive of count
// vertices starting at start. Indexed draws fetch indices from the bound
// index buffer, start counting from its offset.
//
// A batch that fills up mid-draw is submitted and the draw replayed once
// into the next one.
func (c *Context) Draw(prim pipe.Primitive, start, count uint32, indexed bool) error {
	if c.destroyed {
		return ErrDestroyed
	}
	if !prim.Valid() {
		return fmt.Errorf("%w: primitive %d", ErrInvalidState, prim)
	}
	if indexed && (c.ib == nil || c.ib.Buffer == nil) {
		return fmt.Errorf("%w: indexed draw without an index buffer", ErrInvalidState)
	}
	if c.vs == nil {
		return ErrNoVertexShader
	}
	if count == 0 {
		return nil
	}
	c.setPrimitive(prim)

	err := c.draw(start, count, indexed)
	if errors.Is(err, winsys.ErrBatchFull) {
		slogger().Debug("brw: batch full, submitting", "dwords", c.batch.Len())
		if err := c.submit(); err != nil {
			return err
		}
		err = c.draw(start, count, indexed)
	}
	if err != nil {
		return err
	}
	c.stats.Draws++
	return nil
}

func (c *Context) draw(start, count uint32, indexed bool) error {
	if err := c.Validate(); err != nil {
		return err
	}
	return c.emitPrimitive(start, count, indexed)
}

// Flush submits the batch with the requested cache flushes and, with
// FlushWait, blocks until the GPU has finished it. A pool past its wrap
// threshold schedules a new scene for the next validation.
func (c *Context) Flush(ctx context.Context, flags pipe.FlushFlags) error {
	if c.destroyed {
		return ErrDestroyed
	}
	render := flags&pipe.FlushRenderCache != 0
	texture := flags&pipe.FlushTextureCache != 0
	if !c.batch.Empty() || render || texture {
		err := c.emitFlush(render, texture)
		if errors.Is(err, winsys.ErrBatchFull) {
			if err := c.submit(); err != nil {
				return err
			}
			err = c.emitFlush(render, texture)
		}
		if err != nil {
			return err
		}
		if err := c.submit(); err != nil {
			return err
		}
	}
	if flags&pipe.FlushWait != 0 {
		if err := c.ws.FenceFinish(ctx, c.fence); err != nil {
			return errors.Wrap(err, "brw: wait for batch")
		}
	}
	if c.gsPool.CheckWrap() || c.ssPool.CheckWrap() {
		slogger().Debug("brw: state pool past wrap threshold")
		c.raise(DirtyScene)
	}
	return nil
}
