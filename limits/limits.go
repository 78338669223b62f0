// Package limits tracks system-wide resource ceilings, ported from the
// teacher's limits package. The process/scheduling core consults only
// Sysprocs: allocproc's fixed NPROC-sized table scan (spec.md §4.2) is
// backstopped by a configurable system-wide process ceiling, mirroring
// the teacher's own `nthreads >= syslimit.sysprocs` guard in proc_new
// (kernel/main.go) — bare xv6 only has the fixed table; the teacher adds
// this second, adjustable layer on top of it, and so do we.
package limits

import "sync/atomic"

/// Sysatomic_t is an atomically adjustable counter used for give/take
/// style resource accounting, ported from the teacher with the same
/// semantics minus the unsafe-pointer cast (atomic.AddInt64 on a plain
/// int64 field makes it unnecessary).
type Sysatomic_t struct {
	v int64
}

/// Given increases the limit by n.
func (s *Sysatomic_t) Given(n uint) {
	atomic.AddInt64(&s.v, int64(n))
}

/// Taken tries to decrement the limit by n, returning false (and leaving
/// the counter unchanged) if that would drive it negative.
func (s *Sysatomic_t) Taken(n uint) bool {
	if atomic.AddInt64(&s.v, -int64(n)) >= 0 {
		return true
	}
	atomic.AddInt64(&s.v, int64(n))
	return false
}

/// Take decrements the limit by one.
func (s *Sysatomic_t) Take() bool { return s.Taken(1) }

/// Give increments the limit by one.
func (s *Sysatomic_t) Give() { s.Given(1) }

/// Value returns the current counter value.
func (s *Sysatomic_t) Value() int64 { return atomic.LoadInt64(&s.v) }

/// Syslimit_t holds the system-wide limits this core enforces. Only the
/// process ceiling is used here; the rest of the teacher's struct
/// (vnodes, futexes, socket/pipe counts, block pages) belongs to the
/// filesystem and networking subsystems spec.md §1 names as external
/// collaborators, and is not reproduced.
type Syslimit_t struct {
	/// Sysprocs is the system-wide ceiling on live processes, independent
	/// of (and normally larger than) the fixed NPROC table capacity.
	Sysprocs int
}

/// Syslimit holds the active, process-global limit configuration.
var Syslimit = MkSysLimit()

/// MkSysLimit returns the default limit configuration.
func MkSysLimit() *Syslimit_t {
	return &Syslimit_t{
		Sysprocs: 1e4,
	}
}
