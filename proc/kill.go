package proc

import "github.com/dogeared-systems/ptcore/defs"

/// Kill implements kill() (spec.md §4.12): mark the target killed and,
/// if it is SLEEPING, promote it to RUNNABLE so it observes Killed and
/// unwinds at its next chance rather than sleeping forever. Returns
/// ESRCH if no live process has the given pid.
//
// Must only be called from within a workload (table lock already held).
func (t *Table) Kill(pid defs.Pid_t) defs.Err_t {
	for _, p := range t.procs {
		if p.State == Unused || p.Pid != pid {
			continue
		}
		p.Killed = true
		if p.State == Sleeping {
			p.State = Runnable
		}
		return 0
	}
	return defs.ESRCH
}
