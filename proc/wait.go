package proc

import "github.com/dogeared-systems/ptcore/defs"

/// Wait implements wait() (spec.md §4.11): block until some child
/// exits, reap the first zombie child found, and return its pid and exit
/// status. Returns ECHILD immediately if the calling process has no
/// children at all, and ECHILD without sleeping if it has been killed —
/// preserved exactly as the original's `if(!havekids || p->killed)`.
/// Killed is checked only after a full pass, so a zombie child found in
/// that pass is still reaped and its pid returned even if the parent
/// has been killed.
//
// Must only be called from within a workload (table lock already held).
func (t *Table) Wait(c *SchedCPU, p *Proc) (defs.Pid_t, int, defs.Err_t) {
	for {
		havekids := false
		for _, child := range t.procs {
			if child.State == Unused || child.Parent != p {
				continue
			}
			havekids = true
			if child.State == Zombie {
				pid := child.Pid
				status := child.ExitStatus
				if child.AS != nil {
					child.AS.Free()
				}
				child.reset()
				t.live--
				return pid, status, 0
			}
		}
		if !havekids || p.Killed {
			return 0, 0, defs.ECHILD
		}
		t.Sleep(c, p, p, nil)
	}
}
