package proc

import (
	"github.com/dogeared-systems/ptcore/defs"
	"github.com/dogeared-systems/ptcore/mem"
	"github.com/dogeared-systems/ptcore/vm"
)

/// allocproc implements the original's allocproc(): finds an UNUSED slot,
/// marks it EMBRYO with a fresh pid, and gives it a kernel stack (here, a
/// frame from the simulated pool plus the rendezvous channels that stand
/// in for a saved context — see the package doc comment). Any failure
/// after the slot is claimed reverts it to UNUSED before returning
/// ENOMEM, so a failed allocproc never leaves a half-initialized PCB
/// behind (spec.md §7).
//
// Callers must already hold t.mu (either UserInit, called before the
// scheduler is running, taking it explicitly, or Fork, called from
// within a workload where it is already held — see the package doc
// comment's concurrency encoding).
func (t *Table) allocproc(name string) (*Proc, defs.Err_t) {
	var p *Proc
	for _, cand := range t.procs {
		if cand.State == Unused {
			p = cand
			break
		}
	}
	if p == nil {
		return nil, defs.ENOMEM
	}
	p.State = Embryo
	p.Pid = t.nextPid
	t.nextPid++
	t.live++

	kstack, ok := mem.FrameAlloc()
	if !ok {
		p.reset()
		t.live--
		return nil, defs.ENOMEM
	}
	p.Kstack = kstack
	p.Name = name
	p.resumeCh = make(chan struct{})
	p.yieldCh = make(chan struct{})
	return p, 0
}

// initcodeImage is the single-page bootstrap image userinit loads
// directly with AddressSpace.Init, mirroring the original's
// hand-assembled initcode.S blob (exec("/init", argv)). This module has
// no assembler stage, so the "image" is just a name the fake filesystem
// resolves; the workload passed to UserInit plays the part that
// initcode.S's exec syscall normally triggers.
const initcodeImage = "/init"

/// UserInit implements userinit (spec.md §4.3): builds the first
/// process by hand rather than via fork, maps one page at virtual
/// address 0, and sets it RUNNABLE. run is the workload the process
/// executes once dispatched — ordinarily "exec /init", here supplied by
/// the caller since this module has no ELF loader to exec before a
/// minimal image exists to load. Panics on any failure, exactly as the
/// original does (there is no recovering from userinit failing; the
/// machine has nothing else to run).
func (t *Table) UserInit(run Workload) *Proc {
	t.mu.Lock()
	p, err := t.allocproc("initcode")
	t.mu.Unlock()
	if err != 0 {
		panic("proc: userinit: allocproc failed")
	}

	p.AS = vm.KvmSetup()
	if err := p.AS.Init([]byte(initcodeImage)); err != 0 {
		panic("proc: userinit: uvm_init failed")
	}
	p.Sz = defs.PGSIZE
	p.Cwd = nil // root filesystem has no parent cwd to inherit
	p.workload = run

	t.mu.Lock()
	p.State = Runnable
	t.initProc = p
	t.mu.Unlock()
	return p
}
