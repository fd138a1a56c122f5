package brw

import (
	"encoding/binary"

	"github.com/gogpu/i965/internal/cache"
	"github.com/gogpu/i965/internal/ffprog"
	"github.com/gogpu/i965/internal/shader"
	"github.com/gogpu/i965/internal/vs"
	"github.com/gogpu/i965/internal/wm"
)

// kernel is a compiled program the cache can upload.
type kernel interface {
	Bytes() []byte
}

// programKey encodes a compile key.
func programKey(vals ...uint32) []byte {
	k := make([]byte, 0, 4*len(vals))
	for _, v := range vals {
		k = binary.LittleEndian.AppendUint32(k, v)
	}
	return k
}

func appendSlots(k []byte, slots []shader.IOSlot) []byte {
	for _, s := range slots {
		k = binary.LittleEndian.AppendUint32(k, uint32(s.Semantic)<<16|uint32(s.SemanticIndex))
	}
	return k
}

// cachedProgram returns the kernel stored under (id, key), compiling and
// uploading it on a miss. The compiled metadata rides along as the entry's
// aux value.
func cachedProgram[P kernel](c *Context, id cache.ID, key []byte, compile func() (P, error)) (P, uint32, error) {
	if off, aux, ok := c.cache.Lookup(id, key); ok {
		if p, ok := aux.(P); ok {
			return p, off, nil
		}
	}
	p, err := compile()
	if err != nil {
		var zero P
		return zero, 0, err
	}
	off, err := c.cache.LookupOrInsert(id, key, p.Bytes(), p)
	if err != nil {
		var zero P
		return zero, 0, err
	}
	slogger().Debug("brw: program compiled", "cache", CacheName(id), "offset", off)
	return p, off, nil
}

func updateVSProg(c *Context) error {
	if c.vs == nil {
		return ErrNoVertexShader
	}
	key := vs.Key{ProgramID: c.vs.id, NrUserClip: len(c.planes)}
	p, off, err := cachedProgram(c, CacheVSProg, programKey(key.ProgramID, uint32(key.NrUserClip)),
		func() (*vs.Program, error) { return vs.Compile(c.vs.Program, key) })
	if err != nil {
		return err
	}
	c.vsProg = p
	c.kernels[kernelVS] = off
	return nil
}

func updateGSProg(c *Context) error {
	if !ffprog.NeedsGS(c.prim) {
		c.gsProg = nil
		c.kernels[kernelGS] = 0
		return nil
	}
	key := ffprog.GSKey{Prim: c.prim, NrAttrs: len(c.vsProg.Outputs)}
	p, off, err := cachedProgram(c, CacheGSProg, programKey(uint32(key.Prim), uint32(key.NrAttrs)),
		func() (*ffprog.Kernel, error) { return ffprog.CompileGS(key) })
	if err != nil {
		return err
	}
	c.gsProg = p
	c.kernels[kernelGS] = off
	return nil
}

func updateClipProg(c *Context) error {
	key := ffprog.ClipKey{Prim: c.reduced, NrAttrs: len(c.vsProg.Outputs), NrUserClip: len(c.planes)}
	p, off, err := cachedProgram(c, CacheClipProg,
		programKey(uint32(key.Prim), uint32(key.NrAttrs), uint32(key.NrUserClip)),
		func() (*ffprog.Kernel, error) { return ffprog.CompileClip(key) })
	if err != nil {
		return err
	}
	c.clipProg = p
	c.kernels[kernelClip] = off
	return nil
}

func updateSFProg(c *Context) error {
	key := ffprog.SFKey{Prim: c.reduced, NrAttrs: len(c.vsProg.Outputs)}
	p, off, err := cachedProgram(c, CacheSFProg, programKey(uint32(key.Prim), uint32(key.NrAttrs)),
		func() (*ffprog.Kernel, error) { return ffprog.CompileSF(key) })
	if err != nil {
		return err
	}
	c.sfProg = p
	c.kernels[kernelSF] = off
	return nil
}

// updateWMProg compiles the bound fragment program, or the built-in one,
// against the attribute layout the vertex kernel writes.
func updateWMProg(c *Context) error {
	attrs := c.vsProg.Outputs
	var (
		id   uint32
		prog *shader.Program
	)
	if c.fs != nil {
		id, prog = c.fs.id, c.fs.Program
	} else {
		prog = wm.Builtin(attrs)
	}
	key := wm.Key{ProgramID: id, Attributes: attrs}
	p, off, err := cachedProgram(c, CacheWMProg, appendSlots(programKey(id), attrs),
		func() (*wm.Program, error) { return wm.Compile(prog, key) })
	if err != nil {
		return err
	}
	c.wmProg = p
	c.kernels[kernelWM] = off
	return nil
}
