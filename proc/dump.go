package proc

import "fmt"

/// Dump implements procdump() (spec.md §9): print pid, state, and name
/// for every non-UNUSED slot, deliberately *without* acquiring the table
/// lock. The original accepts a small chance of printing a torn or
/// stale PCB in exchange for a debug command (invoked from a kernel
/// console, often while diagnosing exactly why the lock is contended or
/// stuck) that can never itself wedge behind that same lock. This
/// implementation preserves that tradeoff rather than "fixing" it — see
/// DESIGN.md's Open Question record.
func (t *Table) Dump() string {
	s := ""
	for _, p := range t.procs {
		if p.State == Unused {
			continue
		}
		s += fmt.Sprintf("%d %s %s\n", p.Pid, p.State, p.Name)
	}
	return s
}
