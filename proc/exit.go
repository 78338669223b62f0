package proc

import "github.com/dogeared-systems/ptcore/defs"

/// Exit implements exit() (spec.md §4.10): close every open file,
/// release the cwd, reparent every living child to init, wake init if
/// any child needs reaping, wake the caller's own parent (who may be in
/// Wait), record the exit status, and become a ZOMBIE — freeing nothing
/// else until the parent calls Wait, so a zombie's address space and
/// accounting stay inspectable until reaped (spec.md §7's "ZOMBIE keeps
/// its exit status and accounting available to the parent" invariant).
//
// Must only be called from within a workload (the table lock is already
// held; see the package doc comment). Never returns: the calling
// workload's goroutine blocks inside Sched for good. Wait's reap resets
// the PCB without resuming it, so that goroutine stays parked.
func (t *Table) Exit(c *SchedCPU, p *Proc, status int) {
	if p == t.initProc {
		panic("proc: init process exiting")
	}

	for i, f := range p.Ofile {
		if f != nil {
			f.Close()
			p.Ofile[i] = nil
		}
	}
	if p.Cwd != nil {
		p.Cwd.Put()
		p.Cwd = nil
	}

	for _, child := range t.procs {
		if child.State != Unused && child.Parent == p {
			child.Parent = t.initProc
			if child.State == Zombie {
				t.wakeup1(t.initProc)
			}
		}
	}

	p.ExitStatus = status
	p.Accnt.Finish(p.Accnt.Now())
	t.wakeup1(p.Parent)
	p.State = Zombie
	t.Sched(c, p)
	panic("proc: exit: zombie process was rescheduled")
}
