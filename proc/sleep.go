package proc

import "sync"

/// Sleep implements sleep() (spec.md §4.8): atomically release lk (if it
/// isn't the table lock itself — see the signature note below) and
/// block p on chan, re-acquiring lk before returning. The atomicity
/// this provides is what prevents the classic lost-wakeup race: the
/// table lock (always held, per the package doc comment, while any
/// workload runs) keeps a concurrent Wakeup(chan) from running between
/// "release lk" and "mark SLEEPING", because both happen here under the
/// same already-held table lock.
//
// lk is either nil (Wait passes nil, sleeping under the table lock
// alone) or some other resource's lock (spec.md's example is a pipe's
// buffer lock); this module never hands the table's own unexported
// mutex to a caller, so a non-nil lk is always released-and-reacquired
// around the sleep, exactly as the original's `if(lk != &ptable.lock)`
// branch does for every caller that isn't already inside the
// scheduler's own call path.
func (t *Table) Sleep(c *SchedCPU, p *Proc, ch interface{}, lk *sync.Mutex) {
	if lk != nil {
		lk.Unlock()
	}
	p.Chan = ch
	p.State = Sleeping
	t.Sched(c, p)
	p.Chan = nil
	if lk != nil {
		lk.Lock()
	}
}

/// Wakeup implements wakeup(): wakes every process sleeping on chan. Like
/// Yield/Sleep/Exit/Kill, it assumes the table lock is already held by
/// the enclosing dispatch (see the package doc comment) and must only be
/// called from within a workload — never locks or unlocks t.mu itself,
/// so a wakeup triggered by one process's workload (e.g. a producer
/// signaling a consumer) is safe from the same already-held lock that
/// protects every other table mutation.
func (t *Table) Wakeup(ch interface{}) {
	t.wakeup1(ch)
}

// wakeup1 is wakeup()'s scanning half, also used by Exit to wake a
// zombie's parent via the same already-held lock.
func (t *Table) wakeup1(ch interface{}) {
	for _, p := range t.procs {
		if p.State == Sleeping && p.Chan == ch {
			p.State = Runnable
		}
	}
}
