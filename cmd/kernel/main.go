// Command kernel boots a process/scheduling core instance: it brings up
// every CPU, schedules the init process, and then runs the BSP's own
// scheduler loop forever, mirroring the teacher's cmd-level main that
// drives the same bring-up sequence over real hardware instead of
// goroutines.
package main

import (
	"flag"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/dogeared-systems/ptcore/fsapi"
	"github.com/dogeared-systems/ptcore/kernel"
	"github.com/dogeared-systems/ptcore/proc"
)

func main() {
	ncpu := flag.Int("ncpu", 4, "number of CPUs to bring up")
	profile := flag.String("profile", "", "write a CPU profile to this path")
	flag.Parse()

	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	fs := fsapi.NewFake()
	fs.Put("/init", []byte("init"))

	m, err := kernel.Boot(kernel.Config{
		NCPU: *ncpu,
		FS:   fs,
		Log:  log,
		Init: func(p *proc.Proc, c *proc.SchedCPU, t *proc.Table) {
			// The real init shell loops forking and waiting forever; this
			// placeholder workload just yields, since this module's exec
			// package (not init itself) is what a real /init would exec
			// into. See exec's own tests for exec.ExecProc driving a
			// loaded program end to end.
			for {
				t.Yield(c, p)
			}
		},
	})
	if err != nil {
		log.WithError(err).Fatal("boot failed")
	}

	if *profile != "" {
		prof, err := kernel.StartProfiler(*profile, log)
		if err != nil {
			log.WithError(err).Fatal("profiler failed to start")
		}
		defer prof.Stop()
	}

	log.WithField("ncpu", *ncpu).Info("kernel: all CPUs online, BSP entering scheduler loop")
	m.Procs.RunScheduler(m.BSP)
	os.Exit(0)
}
