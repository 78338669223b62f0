package proc_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dogeared-systems/ptcore/defs"
	"github.com/dogeared-systems/ptcore/fsapi"
	"github.com/dogeared-systems/ptcore/proc"
)

func newTestTable(t *testing.T) *proc.Table {
	t.Helper()
	fs := fsapi.NewFake()
	fs.Put("/init", []byte("init"))
	return proc.NewTable(fs, 8, nil)
}

func startOneCPU(t *testing.T, table *proc.Table) *proc.SchedCPU {
	t.Helper()
	c := proc.NewSchedCPU(0)
	go table.RunScheduler(c)
	require.Eventually(t, c.Started, time.Second, time.Millisecond, "scheduler never started")
	return c
}

// waitFor polls until cond is true or the timeout elapses, used
// throughout since every state transition here happens on a goroutine
// this test does not control directly.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, timeout, time.Millisecond)
}

func TestUserInitPublishesRunnableProcess(t *testing.T) {
	table := newTestTable(t)
	done := make(chan struct{})
	p := table.UserInit(func(p *proc.Proc, c *proc.SchedCPU, t *proc.Table) {
		close(done)
		for {
			t.Yield(c, p)
		}
	})
	assert.Equal(t, proc.Runnable, p.State)

	startOneCPU(t, table)
	waitFor(t, time.Second, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	})
}

func TestForkReturnsChildPidToParentAndChildRunsOwnWorkload(t *testing.T) {
	table := newTestTable(t)
	childRan := make(chan defs.Pid_t, 1)

	var parentPid, childPid, forkPid defs.Pid_t
	table.UserInit(func(p *proc.Proc, c *proc.SchedCPU, t *proc.Table) {
		parentPid = p.Pid
		pid, err := t.Fork(p, func(cp *proc.Proc, cc *proc.SchedCPU, ct *proc.Table) {
			childPid = cp.Pid
			childRan <- cp.Pid
			ct.Exit(cc, cp, 0)
		})
		require.EqualValues(t, 0, err)
		require.NotZero(t, pid)
		forkPid = pid
		for {
			t.Yield(c, p)
		}
	})

	startOneCPU(t, table)

	select {
	case got := <-childRan:
		assert.Equal(t, childPid, got)
		assert.Equal(t, forkPid, got)
		assert.NotEqual(t, parentPid, childPid)
	case <-time.After(time.Second):
		t.Fatal("child workload never ran")
	}
}

func TestWaitReapsExitedChildAndReturnsItsStatus(t *testing.T) {
	table := newTestTable(t)
	reaped := make(chan struct{})
	var gotPid defs.Pid_t
	var gotStatus int
	var waitErr defs.Err_t

	table.UserInit(func(p *proc.Proc, c *proc.SchedCPU, t *proc.Table) {
		childPid, err := t.Fork(p, func(cp *proc.Proc, cc *proc.SchedCPU, ct *proc.Table) {
			ct.Exit(cc, cp, 42)
		})
		require.EqualValues(t, 0, err)

		pid, status, werr := t.Wait(c, p)
		gotPid, gotStatus, waitErr = pid, status, werr
		assert.Equal(t, childPid, pid)
		close(reaped)
		for {
			t.Yield(c, p)
		}
	})

	startOneCPU(t, table)

	select {
	case <-reaped:
		assert.EqualValues(t, 0, waitErr)
		assert.Equal(t, 42, gotStatus)
		assert.NotZero(t, gotPid)
	case <-time.After(time.Second):
		t.Fatal("wait never reaped the child")
	}
}

func TestWaitWithNoChildrenReturnsECHILD(t *testing.T) {
	table := newTestTable(t)
	done := make(chan defs.Err_t, 1)

	table.UserInit(func(p *proc.Proc, c *proc.SchedCPU, t *proc.Table) {
		_, _, err := t.Wait(c, p)
		done <- err
		for {
			t.Yield(c, p)
		}
	})

	startOneCPU(t, table)

	select {
	case err := <-done:
		assert.Equal(t, defs.ECHILD, err)
	case <-time.After(time.Second):
		t.Fatal("wait never returned")
	}
}

func TestSleepWakeupWakesSleeper(t *testing.T) {
	table := newTestTable(t)
	ch := make(chan struct{})
	woke := make(chan struct{})
	var wakerPid defs.Pid_t

	table.UserInit(func(p *proc.Proc, c *proc.SchedCPU, t *proc.Table) {
		_, err := t.Fork(p, func(sp *proc.Proc, sc *proc.SchedCPU, st *proc.Table) {
			st.Sleep(sc, sp, "woken-chan", nil)
			close(woke)
			st.Exit(sc, sp, 0)
		})
		require.EqualValues(t, 0, err)
		wakerPid = p.Pid
		close(ch)
		for {
			t.Yield(c, p)
			t.Wakeup("woken-chan")
		}
	})

	startOneCPU(t, table)
	<-ch

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("sleeper never woke")
	}
	assert.NotZero(t, wakerPid)
}

func TestKillUnblocksASleepingProcess(t *testing.T) {
	// Kill, like Wakeup/Fork/Exit, assumes the table lock is already held
	// by the enclosing dispatch (see package proc's doc comment), so the
	// killer here is itself a forked process rather than the test's own
	// goroutine calling Table.Kill directly.
	table := newTestTable(t)
	unblocked := make(chan bool, 1)
	pidCh := make(chan defs.Pid_t, 1)
	asleep := make(chan struct{}, 1)

	table.UserInit(func(p *proc.Proc, c *proc.SchedCPU, t *proc.Table) {
		_, err := t.Fork(p, func(sp *proc.Proc, sc *proc.SchedCPU, st *proc.Table) {
			pidCh <- sp.Pid
			asleep <- struct{}{}
			st.Sleep(sc, sp, "never-posted", nil)
			unblocked <- sp.Killed
			st.Exit(sc, sp, 0)
		})
		require.EqualValues(t, 0, err)

		// Poll rather than block on pidCh/asleep directly: this workload
		// runs under the table lock held for the whole scan (see package
		// proc's doc comment), so the forked child can only advance far
		// enough to post to either channel once this workload yields and
		// the scheduler's scan reaches the child's slot.
		var childPid defs.Pid_t
		for {
			select {
			case childPid = <-pidCh:
			default:
				t.Yield(c, p)
				continue
			}
			break
		}
		for {
			select {
			case <-asleep:
			default:
				t.Yield(c, p)
				continue
			}
			break
		}
		require.EqualValues(t, 0, t.Kill(childPid))
		for {
			t.Yield(c, p)
		}
	})

	startOneCPU(t, table)

	select {
	case killed := <-unblocked:
		assert.True(t, killed)
	case <-time.After(time.Second):
		t.Fatal("killed sleeper never unblocked")
	}
}

func TestGrowProcUpdatesSizeAndFreesOnShrink(t *testing.T) {
	table := newTestTable(t)
	done := make(chan struct{})

	table.UserInit(func(p *proc.Proc, c *proc.SchedCPU, t *proc.Table) {
		before := p.Sz
		pagesBefore := p.AS.Size()
		require.EqualValues(t, 0, t.GrowProc(p, defs.PGSIZE*3))
		assert.Equal(t, before+defs.PGSIZE*3, p.Sz)

		require.EqualValues(t, 0, t.GrowProc(p, -defs.PGSIZE*3))
		assert.Equal(t, before, p.Sz)
		assert.Equal(t, pagesBefore, p.AS.Size())
		close(done)
		for {
			t.Yield(c, p)
		}
	})

	startOneCPU(t, table)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("growproc workload never finished")
	}
}

func TestDumpListsOnlyNonUnusedSlots(t *testing.T) {
	table := newTestTable(t)
	p := table.UserInit(func(p *proc.Proc, c *proc.SchedCPU, t *proc.Table) {
		for {
			t.Yield(c, p)
		}
	})
	startOneCPU(t, table)

	waitFor(t, time.Second, func() bool {
		return len(table.Dump()) > 0
	})
	assert.Contains(t, table.Dump(), p.Name)
	// Only init is allocated; the other NPROC-1 UNUSED slots are skipped.
	assert.Equal(t, 1, strings.Count(table.Dump(), "\n"))
}
