package kernel

import (
	"os"
	"runtime/pprof"
	"sort"

	"github.com/google/pprof/profile"
	"github.com/sirupsen/logrus"
)

// Profiler captures a CPU profile of the running machine, grounded on
// SPEC_FULL.md §11's choice of github.com/google/pprof as this core's
// domain-stack profiling dependency: the teacher has no profiling of
// its own to adapt, so this is new code written the way the rest of the
// pack's tooling uses the library. runtime/pprof writes the
// profile.proto-encoded samples; github.com/google/pprof/profile reads
// them back to rank which functions dominate a scheduler run. It
// records CPU samples per function only; it does not measure how long
// any PCB waited RUNNABLE before being dispatched.
type Profiler struct {
	path string
	f    *os.File
	log  *logrus.Logger
}

/// StartProfiler begins a CPU profile written to path, intended to run
/// for the lifetime of RunAll/RunScheduler.
func StartProfiler(path string, log *logrus.Logger) (*Profiler, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return nil, err
	}
	log.WithField("path", path).Info("profiler: started")
	return &Profiler{path: path, f: f, log: log}, nil
}

/// Stop ends the profile and closes the underlying file.
func (p *Profiler) Stop() error {
	pprof.StopCPUProfile()
	p.log.Info("profiler: stopped")
	return p.f.Close()
}

/// TopFunctions re-opens the stopped profile with
/// github.com/google/pprof/profile and returns the n function names
/// with the most self-samples, highest first — the same aggregation
/// `go tool pprof -top` performs, done in-process so a caller can log
/// or assert on it without shelling out.
func (p *Profiler) TopFunctions(n int) ([]string, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	prof, err := profile.Parse(f)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64)
	for _, sample := range prof.Sample {
		if len(sample.Location) == 0 || len(sample.Value) == 0 {
			continue
		}
		loc := sample.Location[0]
		if len(loc.Line) == 0 {
			continue
		}
		counts[loc.Line[0].Function.Name] += sample.Value[0]
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return counts[names[i]] > counts[names[j]] })
	if n < len(names) {
		names = names[:n]
	}
	return names, nil
}
