// Package scheduler defines the Scheduler and SchedulerTimer abstractions
// the main loop and dispatcher consult, plus a reference round-robin
// implementation. Concrete scheduling *policy* is explicitly out of the
// core's scope (§1); this package only fixes the interface shape and
// supplies one workable policy.
package scheduler

import (
	"time"

	"github.com/edirooss/tock-kernel/internal/chip"
	"github.com/edirooss/tock-kernel/internal/process"
)

// StopReason is why the dispatcher returned control to the main loop.
type StopReason int

const (
	StopNoWorkLeft StopReason = iota
	StopTimesliceExpired
	StopKernelPreemption
	StopStopped
)

func (r StopReason) String() string {
	switch r {
	case StopNoWorkLeft:
		return "NoWorkLeft"
	case StopTimesliceExpired:
		return "TimesliceExpired"
	case StopKernelPreemption:
		return "KernelPreemption"
	case StopStopped:
		return "Stopped"
	default:
		return "StopReason(?)"
	}
}

// Action is the main loop's next move, as decided by Scheduler.Next.
type Action struct {
	Sleep      bool
	PID        process.ID
	TimesliceUS *uint32 // nil => cooperative (no timeslice enforcement)
}

// Scheduler is the pluggable scheduling policy. Implementations decide
// which process runs next, whether kernel work preempts it, and whether
// the chip may sleep; the core only calls through this interface.
type Scheduler interface {
	// Next picks the next action: run a process, or try to sleep.
	Next() (Action, bool)
	// DoKernelWorkNow reports whether deferred kernel work should run
	// before considering any process.
	DoKernelWorkNow(c chip.Chip) bool
	// ContinueProcess is polled once per dispatcher loop iteration; a
	// false return asks the dispatcher to stop with KernelPreemption.
	ContinueProcess(pid process.ID, c chip.Chip) bool
	// Result reports how the last RunProcess action ended.
	Result(reason StopReason, timeExecuted time.Duration)
	// ExecuteKernelWork runs one round of kernel-side deferred work.
	ExecuteKernelWork(c chip.Chip)
}

// Timer is the hardware scheduler timer: arms an interrupt at timeslice
// end and reports remaining time. A dummy, always-non-expiring
// implementation is used in cooperative (timeslice_us == nil) mode.
type Timer interface {
	Reset()
	Start(us uint32)
	Arm()
	Disarm()
	RemainingUS() (us uint32, known bool)
}
