// Package stats provides lightweight, debug-gated counters, ported from
// the teacher's stats package. No other package in this module imports
// it yet: neither the scheduler nor the profiler records into it.
// The teacher reads the hardware TSC via a runtime.Rdtsc hook that only
// exists because Biscuit patches the Go runtime itself; stock Go has no
// portable equivalent, so this rewrite measures elapsed wall-clock time
// with time.Now() instead (see DESIGN.md). The Counter_t/Cycles_t/
// Stats2String shape — debug-gated counters reflected out of a struct by
// field-type name — is kept unchanged.
package stats

import (
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

/// Stats gates whether counters actually increment.
const Stats = true

/// Timing gates whether elapsed-time counters accumulate.
const Timing = true

/// Counter_t is a debug-gated event counter.
type Counter_t int64

/// Inc increments the counter by one.
func (c *Counter_t) Inc() {
	if Stats {
		atomic.AddInt64((*int64)(c), 1)
	}
}

/// Cycles_t accumulates elapsed nanoseconds (named Cycles_t for parity
/// with the teacher's TSC-cycle counters, even though this rewrite counts
/// nanoseconds rather than cycles).
type Cycles_t int64

/// Since returns a start marker for a later Add call.
func Since() int64 {
	if !Timing {
		return 0
	}
	return time.Now().UnixNano()
}

/// Add accumulates the elapsed time since mark into the counter.
func (c *Cycles_t) Add(mark int64) {
	if Timing {
		atomic.AddInt64((*int64)(c), time.Now().UnixNano()-mark)
	}
}

/// Stats2String renders every Counter_t/Cycles_t field of st as a
/// human-readable line, the same reflection-based dump the teacher uses.
func Stats2String(st interface{}) string {
	if !Stats {
		return ""
	}
	v := reflect.ValueOf(st)
	s := ""
	for i := 0; i < v.NumField(); i++ {
		t := v.Field(i).Type().String()
		switch {
		case strings.HasSuffix(t, "Counter_t"):
			n := v.Field(i).Interface().(Counter_t)
			s += "\n\t#" + v.Type().Field(i).Name + ": " + strconv.FormatInt(int64(n), 10)
		case strings.HasSuffix(t, "Cycles_t"):
			n := v.Field(i).Interface().(Cycles_t)
			s += "\n\t#" + v.Type().Field(i).Name + ": " + strconv.FormatInt(int64(n), 10) + "ns"
		}
	}
	return s + "\n"
}
