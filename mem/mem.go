// Package mem implements the physical frame allocator that the process
// and scheduling core treats as an external collaborator (spec.md §1:
// frame_alloc()/frame_free()). It is grounded in the teacher's mem
// package (biscuit/src/mem/mem.go: Pa_t, PGSIZE, the Page_i allocator
// interface) but rewritten as a free-list over a pool of simulated
// frames rather than real physical memory, since this module runs as
// ordinary hosted Go rather than on bare hardware with a physical
// address space to carve up.
package mem

import (
	"sync"

	"github.com/dogeared-systems/ptcore/defs"
)

/// DefaultFrames bounds how many PGSIZE frames the simulated pool holds.
/// Physmem is built from it during package initialization, so changing
/// it afterwards does not resize Physmem; a smaller pool has to be built
/// with NewPool.
var DefaultFrames = 1 << 14

/// Frame is one page-sized block of simulated physical memory.
type Frame [defs.PGSIZE]byte

/// Pool is a free-list frame allocator. The zero value is not usable;
/// construct with NewPool. Pool is the concrete type behind the package
/// level FrameAlloc/FrameFree functions and is also usable standalone,
/// e.g. to give each test its own isolated pool.
type Pool struct {
	mu     sync.Mutex
	frames map[defs.Pa_t]*Frame
	free   []defs.Pa_t
}

/// NewPool builds a frame pool with room for n frames.
func NewPool(n int) *Pool {
	p := &Pool{frames: make(map[defs.Pa_t]*Frame, n)}
	for i := 0; i < n; i++ {
		pa := defs.Pa_t((i + 1) * defs.PGSIZE)
		p.frames[pa] = &Frame{}
		p.free = append(p.free, pa)
	}
	return p
}

/// Alloc reserves a fresh, zeroed frame. ok is false (the spec's NONE)
/// if the pool is exhausted.
func (p *Pool) Alloc() (pa defs.Pa_t, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 {
		return 0, false
	}
	pa = p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	*p.frames[pa] = Frame{}
	return pa, true
}

/// Free returns a frame to the pool. Freeing an address this pool did
/// not hand out, or freeing it twice, is a caller bug and panics —
/// there is no recovery from a double-free of physical memory.
func (p *Pool) Free(pa defs.Pa_t) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.frames[pa]; !ok {
		panic("mem: free of unknown frame")
	}
	for _, f := range p.free {
		if f == pa {
			panic("mem: double free of frame")
		}
	}
	p.free = append(p.free, pa)
}

/// Dmap returns the direct-mapped backing bytes for pa, analogous to the
/// teacher's Physmem.Dmap. Panics if pa was never allocated from p.
func (p *Pool) Dmap(pa defs.Pa_t) *Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.frames[pa]
	if !ok {
		panic("mem: dmap of unknown frame")
	}
	return f
}

/// Avail reports the number of unallocated frames, used by tests driving
/// the exec/fork ENOMEM boundary behaviors.
func (p *Pool) Avail() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

/// Physmem is the singleton frame pool backing the running kernel,
/// mirroring the teacher's package-level Physmem variable.
var Physmem = NewPool(DefaultFrames)

/// FrameAlloc reserves a frame from Physmem.
func FrameAlloc() (defs.Pa_t, bool) { return Physmem.Alloc() }

/// FrameFree returns a frame to Physmem.
func FrameFree(pa defs.Pa_t) { Physmem.Free(pa) }
