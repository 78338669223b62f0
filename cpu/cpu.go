// Package cpu models the per-CPU descriptor spec.md §3 specifies: an
// identity, a scheduler-resume point, the process currently running
// there, a one-way "started" flag, and nested interrupt-disable
// bookkeeping.
//
// spec.md §9 calls out that the original's "implicit current CPU via
// APIC id" lookup should be preserved because interrupt code has no
// other way to discover it, but offers an explicit alternative: "a
// Kernel context threaded explicitly." The teacher's own equivalent
// (biscuit/src/tinfo/tinfo.go: Current/SetCurrent) only works because
// Biscuit patches the Go runtime to carry a per-goroutine pointer
// (runtime.Gptr/Setgptr); stock Go has no portable goroutine-local
// storage. This module takes the explicit-context alternative: every
// function that needs to know which CPU is asking for something takes
// a *T. The value is created at boot (NewTable, or proc.NewSchedCPU)
// and handed to the per-CPU scheduler loop (proc.RunScheduler), which
// passes it on to everything it calls.
package cpu

import "sync"

/// T is one CPU's descriptor. Lifetime equals the machine's.
type T struct {
	/// ApicID is the hardware identifier used to discover "which CPU am
	/// I", ported from the teacher's cpu.apicid.
	ApicID int

	mu sync.Mutex
	/// started flips once, the first time this CPU enters its scheduler
	/// loop (spec.md §4.16, mpmain).
	started bool

	/// CliDepth is the nested interrupt-disable depth of whichever
	/// kernel thread is currently running on this CPU. spec.md §5 notes
	/// this is a per-kernel-thread property, not a per-CPU one, but it
	/// lives here because it is always read/written through "the CPU
	/// currently executing", exactly as the teacher's cpu struct does.
	CliDepth int
	/// IntEnaBefore records whether interrupts were enabled before the
	/// outermost Pushcli, restored by Popcli and saved/restored across
	/// sched() the way spec.md §4.5 and §5 require.
	IntEnaBefore bool
}

/// Started reports whether this CPU has entered its scheduler loop.
func (c *T) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

/// SetStarted flips the one-way started flag, releasing anyone
/// busy-waiting on Started() (spec.md §4.16: the BSP busy-waits on
/// cpu.started == 1 while bringing an AP up).
func (c *T) SetStarted() {
	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
}

/// Pushcli increments the nesting depth, recording the pre-existing
/// interrupt-enabled state the first time the depth goes from 0 to 1.
func (c *T) Pushcli(intEnabled bool) {
	if c.CliDepth == 0 {
		c.IntEnaBefore = intEnabled
	}
	c.CliDepth++
}

/// Popcli decrements the nesting depth, returning whether interrupts
/// should now be restored to enabled (only true once the depth returns
/// to 0 and the saved state was enabled).
func (c *T) Popcli() bool {
	if c.CliDepth == 0 {
		panic("cpu: popcli without matching pushcli")
	}
	c.CliDepth--
	return c.CliDepth == 0 && c.IntEnaBefore
}

/// Table is the fixed-size array of CPU descriptors, ported from the
/// teacher's global `cpus []cpu_t` sized by NCPU.
type Table struct {
	CPUs []*T
}

/// NewTable builds a table of n CPU descriptors identified by apicIDs,
/// one entry per discovered CPU (spec.md §4.16: multiprocessor table
/// discovery).
func NewTable(apicIDs []int) *Table {
	t := &Table{CPUs: make([]*T, len(apicIDs))}
	for i, id := range apicIDs {
		t.CPUs[i] = &T{ApicID: id}
	}
	return t
}

/// ByApicID returns the descriptor for the given hardware id, or nil
/// (the spec's "unknown apicid ⇒ panic" is the caller's job, since only
/// the caller knows whether "not found" is fatal here).
func (t *Table) ByApicID(id int) *T {
	for _, c := range t.CPUs {
		if c.ApicID == id {
			return c
		}
	}
	return nil
}
