package proc

/// Sched implements sched() (spec.md §4.5): the single chokepoint every
/// voluntary or involuntary give-up-the-CPU path funnels through. Its
/// preconditions mirror the original's panics exactly — the table lock
/// held, the process not RUNNING, exactly one interrupt-disable level
/// outstanding — because those panics are how a caller bug (a missing
/// lock, a double-yield) is meant to surface immediately rather than
/// corrupt the table silently.
func (t *Table) Sched(c *SchedCPU, p *Proc) {
	if t.mu.TryLock() {
		t.mu.Unlock()
		panic("sched: ptable lock not held")
	}
	if p.State == Running {
		panic("sched: process state is RUNNING")
	}
	if c.CliDepth != 1 {
		panic("sched: cli depth must be exactly 1 across a switch")
	}
	intena := c.IntEnaBefore
	p.yieldCh <- struct{}{}
	<-p.resumeCh
	c.IntEnaBefore = intena
}

/// dispatch runs one process to its next block point, standing in for
/// "swtch to p->context, then swtch back" (spec.md §4.2, §4.4 step 3).
/// Callers must hold t.mu; dispatch does not release it — see the
/// package doc comment's concurrency encoding.
func (t *Table) dispatch(c *SchedCPU, p *Proc) {
	c.Current = p
	p.AS.Switch()
	p.State = Running
	if !p.started {
		p.started = true
		go t.kthreadMain(p, c)
	} else {
		p.resumeCh <- struct{}{}
	}
	<-p.yieldCh
	c.Current = nil
}

// kthreadMain is the body of a process's persistent goroutine: it plays
// forkret's role (one-time filesystem init, spec.md §4.7) before
// falling into the workload, and if the workload ever returns without
// calling Exit itself, exits it with status 0 rather than leaving a
// dangling, never-reaped process behind.
func (t *Table) kthreadMain(p *Proc, c *SchedCPU) {
	t.fsInitOnce.Do(func() {
		if t.fs != nil {
			end := t.fs.BeginOp()
			end()
		}
		t.log.Info("forkret: first process scheduled, filesystem ready")
	})
	p.workload(p, c, t)
	if p.State != Zombie {
		t.Exit(c, p, 0)
	}
}

/// runOnce implements one pass of scheduler() (spec.md §4.4): enable
/// interrupts, acquire the table lock, scan every slot once, dispatch
/// every RUNNABLE process it finds along the way, and release the lock
/// only after the full scan completes. See the package doc comment for
/// why Table.mu is held across every nested dispatch in this pass,
/// rather than being released and re-acquired per process the way the
/// original's acquire/release chaining does.
func (t *Table) runOnce(c *SchedCPU) {
	t.mu.Lock()
	for _, p := range t.procs {
		if p.State != Runnable {
			continue
		}
		c.Pushcli(true)
		t.dispatch(c, p)
		c.Popcli()
	}
	t.mu.Unlock()
}

/// RunScheduler implements the per-CPU scheduler loop itself (spec.md
/// §4.4): never returns, and sets c.Current to nil whenever it isn't
/// actively dispatching, so a concurrent procdump sees no process
/// "belonging" to an idle CPU.
func (t *Table) RunScheduler(c *SchedCPU) {
	c.SetStarted()
	for {
		t.runOnce(c)
	}
}

/// Yield implements yield() (spec.md §4.6): voluntarily give up the CPU
/// without blocking on anything, leaving the process RUNNABLE so the
/// scheduler may immediately redispatch it or any other ready process.
func (t *Table) Yield(c *SchedCPU, p *Proc) {
	p.State = Runnable
	t.Sched(c, p)
}
