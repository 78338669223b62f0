// Package vm implements the virtual-memory collaborator spec.md §1 names
// as external: kvm_setup, uvm_alloc, uvm_dealloc, uvm_copy, uvm_load,
// uvm_init, uvm_switch, kvm_switch, freevm, uvm_clear_user, copyout.
// It is grounded in the teacher's vm package (biscuit/src/vm/as.go:
// Vm_t, the pmap mutex-guarded address-space struct, Pa_t-typed
// physical addresses) but rewritten against mem.Pool's simulated frames
// instead of real x86 page tables, and with the teacher's bounds/res/
// fdops/ustr dependencies — present in the corpus only as unresolved
// import names, never as files — replaced by this module's own defs
// and mem packages. See DESIGN.md for the rewrite rationale.
package vm

import (
	"io"
	"sort"
	"sync"

	"github.com/dogeared-systems/ptcore/defs"
	"github.com/dogeared-systems/ptcore/mem"
)

/// AddressSpace is one process's page directory (Pgdir), represented as
/// a set of page-granular virtual-to-physical mappings. The mutex
/// guards pages and guard the way the teacher's Vm_t mutex guards
/// Vmregion/Pmap/P_pmap.
type AddressSpace struct {
	mu    sync.Mutex
	pool  *mem.Pool
	pages map[uintptr]defs.Pa_t
	guard map[uintptr]bool // pages explicitly marked inaccessible (exec's guard page)
}

/// KvmSetup builds a fresh address space backed by the default physical
/// pool, mirroring the teacher's kvm_setup(): a new page directory with
/// only the kernel's own mappings installed. This rewrite has no
/// separate kernel-mapping region to seed since there is no real MMU
/// underneath it; the returned AddressSpace simply starts empty.
func KvmSetup() *AddressSpace {
	return newAddressSpace(mem.Physmem)
}

func newAddressSpace(pool *mem.Pool) *AddressSpace {
	return &AddressSpace{
		pool:  pool,
		pages: make(map[uintptr]defs.Pa_t),
		guard: make(map[uintptr]bool),
	}
}

func pageOf(va int) uintptr {
	return uintptr(va) &^ defs.PGOFFSET
}

/// Alloc implements uvm_alloc: grows the mapped region from oldsz to
/// newsz, page by page, returning the new size or ENOMEM if a frame
/// could not be allocated partway through (in which case every frame
/// allocated by this call is freed again before returning — exec and
/// fork both depend on growproc-style allocation never leaving a
/// partially grown, inconsistently sized address space behind).
func (as *AddressSpace) Alloc(oldsz, newsz int) (int, defs.Err_t) {
	if newsz <= oldsz {
		return oldsz, 0
	}
	as.mu.Lock()
	defer as.mu.Unlock()

	first := pageOf(oldsz)
	if int(first) < oldsz {
		first += uintptr(defs.PGSIZE)
	}
	var added []uintptr
	for va := first; int(va) < newsz; va += uintptr(defs.PGSIZE) {
		pa, ok := as.pool.Alloc()
		if !ok {
			for _, v := range added {
				as.pool.Free(as.pages[v])
				delete(as.pages, v)
			}
			return 0, defs.ENOMEM
		}
		as.pages[va] = pa
		added = append(added, va)
	}
	return newsz, 0
}

/// Dealloc implements uvm_dealloc: shrinks the mapped region from oldsz
/// to newsz, freeing now-unmapped frames.
//
// spec.md §9 flags an open question in the original: growproc treats a
// deallocuvm result of exactly 0 as failure, which misfires if the
// address space legitimately shrinks to empty. Dealloc itself reports
// success through a separate Err_t, so a result of 0 is not ambiguous
// here; proc.GrowProc still treats a shrink to exactly 0 as failure, as
// the original does (see SPEC_FULL.md §13).
func (as *AddressSpace) Dealloc(oldsz, newsz int) (int, defs.Err_t) {
	if newsz >= oldsz {
		return oldsz, 0
	}
	as.mu.Lock()
	defer as.mu.Unlock()

	first := pageOf(newsz)
	if int(first) < newsz {
		first += uintptr(defs.PGSIZE)
	}
	for va := first; int(va) < oldsz; va += uintptr(defs.PGSIZE) {
		if pa, ok := as.pages[va]; ok {
			as.pool.Free(pa)
			delete(as.pages, va)
		}
	}
	return newsz, 0
}

/// Copy implements uvm_copy: duplicates every mapped page into a fresh
/// address space of the given size, used by fork. Rolls back (frees
/// every frame it allocated) and returns ENOMEM on partial failure.
func (as *AddressSpace) Copy(sz int) (*AddressSpace, defs.Err_t) {
	as.mu.Lock()
	defer as.mu.Unlock()

	child := newAddressSpace(as.pool)
	vas := make([]uintptr, 0, len(as.pages))
	for va := range as.pages {
		if int(va) < sz {
			vas = append(vas, va)
		}
	}
	sort.Slice(vas, func(i, j int) bool { return vas[i] < vas[j] })

	for _, va := range vas {
		npa, ok := as.pool.Alloc()
		if !ok {
			child.Free()
			return nil, defs.ENOMEM
		}
		*as.pool.Dmap(npa) = *as.pool.Dmap(as.pages[va])
		child.pages[va] = npa
	}
	for va := range as.guard {
		child.guard[va] = true
	}
	return child, 0
}

/// Init implements uvm_init: loads code at virtual address 0 for the
/// very first user process (userinit, spec.md §4.3). code must fit in a
/// single page, matching the original's fixed-size initcode image.
func (as *AddressSpace) Init(code []byte) defs.Err_t {
	if len(code) > defs.PGSIZE {
		return defs.ENOMEM
	}
	as.mu.Lock()
	defer as.mu.Unlock()
	pa, ok := as.pool.Alloc()
	if !ok {
		return defs.ENOMEM
	}
	copy(as.pool.Dmap(pa)[:], code)
	as.pages[0] = pa
	return 0
}

/// Load implements uvm_load: reads n bytes from r at file offset off
/// into virtual address va, which must already be mapped (by a prior
/// Alloc). r stands in for the inode the spec names; accepting
/// io.ReaderAt instead of a concrete inode type is this module's
/// equivalent of the spec's "external collaborator" boundary (spec.md
/// §1: readi) — the caller supplies whatever backs the file.
func (as *AddressSpace) Load(va int, r io.ReaderAt, off int64, n int) defs.Err_t {
	as.mu.Lock()
	defer as.mu.Unlock()

	remaining := n
	cur := va
	for remaining > 0 {
		page := pageOf(cur)
		pa, ok := as.pages[page]
		if !ok {
			return defs.EFAULT
		}
		pageoff := cur - int(page)
		chunk := defs.PGSIZE - pageoff
		if chunk > remaining {
			chunk = remaining
		}
		buf := as.pool.Dmap(pa)
		got, err := r.ReadAt(buf[pageoff:pageoff+chunk], off)
		if err != nil && err != io.EOF {
			return defs.EINVAL
		}
		if got != chunk {
			return defs.EINVAL
		}
		cur += chunk
		off += int64(chunk)
		remaining -= chunk
	}
	return 0
}

/// ClearUser implements uvm_clear_user: marks the page at va
/// inaccessible from user mode without unmapping it, used by exec to
/// carve out the guard page below the initial stack (spec.md §4.15
/// step 6).
func (as *AddressSpace) ClearUser(va int) {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.guard[pageOf(va)] = true
}

/// CopyOut implements copyout: writes src into the address space at va.
/// Returns EFAULT if any byte of the range is unmapped or guarded.
func (as *AddressSpace) CopyOut(va int, src []byte) defs.Err_t {
	as.mu.Lock()
	defer as.mu.Unlock()

	remaining := len(src)
	cur := va
	srcoff := 0
	for remaining > 0 {
		page := pageOf(cur)
		if as.guard[page] {
			return defs.EFAULT
		}
		pa, ok := as.pages[page]
		if !ok {
			return defs.EFAULT
		}
		pageoff := cur - int(page)
		chunk := defs.PGSIZE - pageoff
		if chunk > remaining {
			chunk = remaining
		}
		buf := as.pool.Dmap(pa)
		copy(buf[pageoff:pageoff+chunk], src[srcoff:srcoff+chunk])
		cur += chunk
		srcoff += chunk
		remaining -= chunk
	}
	return 0
}

/// Switch implements uvm_switch: installs this address space as the
/// active one for the current CPU. There is no real MMU to reprogram in
/// this simulation, so Switch is a documented no-op kept for call-site
/// parity with the spec's scheduler contract (spec.md §4.4 step 3).
func (as *AddressSpace) Switch() {}

/// KvmSwitch implements kvm_switch: installs the kernel-only page
/// directory (spec.md §4.4 step 4). No-op for the same reason as
/// Switch, and nothing in this module calls it: the scheduler, exit and
/// exec do not switch back to a kernel-only directory.
func KvmSwitch() {}

/// Free implements freevm: releases every physical frame this address
/// space owns. Safe to call on a partially built address space (exec's
/// failure path, spec.md §4.15).
func (as *AddressSpace) Free() {
	as.mu.Lock()
	defer as.mu.Unlock()
	for va, pa := range as.pages {
		as.pool.Free(pa)
		delete(as.pages, va)
	}
}

/// Size reports how many pages are currently mapped, used by tests.
func (as *AddressSpace) Size() int {
	as.mu.Lock()
	defer as.mu.Unlock()
	return len(as.pages)
}
