package proc

import "github.com/dogeared-systems/ptcore/defs"

/// Fork implements fork() (spec.md §4.9): allocate a child PCB, copy the
/// parent's address space and size, duplicate open files and the
/// working directory, copy the name, and publish the child RUNNABLE.
/// childRun is the workload the child executes from its own start; see
/// the package doc comment on Workload for why this module publishes a
/// closure rather than literally copying a trapframe. Returns the
/// child's pid to the parent (the fork-return law, spec.md §8) and
/// ENOMEM/EAGAIN if the table or the live-process ceiling is exhausted,
/// leaving the parent and the table exactly as they were beforehand.
//
// Must only be called from within a workload (the table lock is already
// held by the enclosing dispatch; see the package doc comment).
func (t *Table) Fork(parent *Proc, childRun Workload) (defs.Pid_t, defs.Err_t) {
	if t.live >= t.sysprocs {
		return 0, defs.EAGAIN
	}

	child, err := t.allocproc(parent.Name)
	if err != 0 {
		return 0, err
	}

	as, err := parent.AS.Copy(parent.Sz)
	if err != 0 {
		child.reset()
		t.live--
		return 0, defs.ENOMEM
	}
	child.AS = as
	child.Sz = parent.Sz
	child.Parent = parent
	child.workload = childRun

	for i, f := range parent.Ofile {
		if f != nil {
			child.Ofile[i] = f.Dup()
		}
	}
	if parent.Cwd != nil {
		child.Cwd = parent.Cwd.Dup()
	}

	child.State = Runnable
	return child.Pid, 0
}
