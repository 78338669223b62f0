// Package kernel wires the process/scheduling core to a boot sequence:
// single-threaded BSP bring-up followed by AP bring-up, one CPU at a
// time, matching spec.md §4.16. It is grounded in the teacher's own
// main.go bring-up path (biscuit/src/kernel/main.go: the sequential
// cpus_start loop that busy-waits on each AP's "started" flag before
// releasing the next), generalized from Biscuit's hand-rolled IPI/APIC
// plumbing — entirely out of scope here, spec.md §1 — to plain
// goroutines standing in for physical cores.
package kernel

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dogeared-systems/ptcore/cpu"
	"github.com/dogeared-systems/ptcore/fsapi"
	"github.com/dogeared-systems/ptcore/limits"
	"github.com/dogeared-systems/ptcore/proc"
)

/// Machine bundles everything boot produces: the process table, the CPU
/// table, and the BSP's own scheduler handle, which the caller (see
/// cmd/kernel) is expected to run on its own goroutine, forever.
type Machine struct {
	Procs *proc.Table
	CPUs  *cpu.Table
	BSP   *proc.SchedCPU

	Log *logrus.Logger
}

/// Config selects how many CPUs to bring up and what the first process
/// runs; it stands in for the hardware discovery (MP table / ACPI
/// walk) spec.md §4.16 names but leaves unspecified.
type Config struct {
	NCPU int
	Init proc.Workload
	FS   fsapi.FS
	Log  *logrus.Logger
}

/// Boot runs the BSP's single-threaded init (spec.md §4.16 step 1:
/// memory/table setup, then userinit) and brings up the remaining
/// CPUs one at a time, busy-waiting on each one's Started() flag before
/// releasing the next — exactly the teacher's sequencing, ported from
/// goroutine-free APIC code to goroutine dispatch. It does not itself
/// run the BSP's scheduler loop; the caller does that (see
/// cmd/kernel/main.go), so Boot can be exercised by tests without
/// blocking forever.
func Boot(cfg Config) (*Machine, error) {
	if cfg.NCPU < 1 {
		return nil, fmt.Errorf("kernel: boot: NCPU must be at least 1")
	}
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	fs := cfg.FS
	if fs == nil {
		fs = fsapi.NewFake()
	}

	apicIDs := make([]int, cfg.NCPU)
	for i := range apicIDs {
		apicIDs[i] = i
	}
	cpus := cpu.NewTable(apicIDs)

	log.Info("boot: BSP bringing up process table")
	table := proc.NewTable(fs, limits.Syslimit.Sysprocs, log)
	if cfg.Init != nil {
		table.UserInit(cfg.Init)
		log.Info("boot: init process runnable")
	}

	bsp := &proc.SchedCPU{T: cpus.CPUs[0]}

	for i := 1; i < cfg.NCPU; i++ {
		ap := &proc.SchedCPU{T: cpus.CPUs[i]}
		go table.RunScheduler(ap)
		for !ap.Started() {
			// spin, mirroring the teacher's busy-wait on cpu.started
			// while bringing each AP up one at a time (spec.md §4.16).
		}
		log.WithField("apicid", ap.ApicID).Info("boot: AP online")
	}

	return &Machine{Procs: table, CPUs: cpus, BSP: bsp, Log: log}, nil
}

/// RunAll is a convenience for tests: it runs the BSP's scheduler loop
/// on its own goroutine and waits for cancellation, letting a test
/// exercise real AP+BSP concurrency without hanging the whole suite on
/// RunScheduler's infinite loop. On cancellation RunAll returns
/// ctx.Err(); the scheduler goroutine itself keeps running, since
/// RunScheduler never returns.
func RunAll(ctx context.Context, m *Machine) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		done := make(chan struct{})
		go func() {
			m.Procs.RunScheduler(m.BSP)
			close(done)
		}()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return nil
		}
	})
	return g.Wait()
}
