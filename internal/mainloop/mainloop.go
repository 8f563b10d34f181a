// Package mainloop implements the kernel main loop (§4.2): the top-level
// iteration that alternates between deferred kernel work, running the
// scheduler's chosen process through the dispatcher, and sleeping when
// there is nothing to do.
package mainloop

import (
	"context"

	"github.com/edirooss/tock-kernel/internal/chip"
	"github.com/edirooss/tock-kernel/internal/dispatcher"
	"github.com/edirooss/tock-kernel/internal/kernel"
	"github.com/edirooss/tock-kernel/internal/process"
	"github.com/edirooss/tock-kernel/internal/scheduler"
	"github.com/edirooss/tock-kernel/internal/watchdog"
	"go.uber.org/zap"
)

// Requeuer re-admits a pid to the ready rotation after a RunProcess action
// ends for any reason other than the process stopping, terminating or
// faulting —
// the dispatcher itself has no notion of scheduler-private bookkeeping,
// so the main loop performs this on the scheduler's behalf.
type Requeuer interface {
	Requeue(pid process.ID)
}

// Deps bundles the main loop's collaborators.
type Deps struct {
	Kernel   *kernel.Kernel
	Chip     chip.Chip
	Sched    scheduler.Scheduler
	Requeue  Requeuer // may be nil if the scheduler itself re-admits (e.g. via Result)
	Dispatch dispatcher.Deps
	WatchDog watchdog.WatchDog
	Log      *zap.Logger

	// NoSleep disables step 4 (the atomic sleep section) for deterministic
	// testing: TrySleep becomes a plain "nothing to do this iteration"
	// return instead of blocking on Chip.Sleep.
	NoSleep bool
}

// Loop drives the main loop until ctx is cancelled. Each iteration is
// exactly the four steps of §4.2.
type Loop struct {
	d Deps
}

func New(d Deps) *Loop {
	if d.WatchDog == nil {
		d.WatchDog = watchdog.Null{}
	}
	return &Loop{d: d}
}

// Run executes the main loop until ctx.Done(). It returns ctx.Err() on
// cancellation — the kernel thread never unwinds any other way (§7).
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		l.Step(ctx)
	}
}

// Step runs exactly one main-loop iteration. Exposed separately from Run
// so tests can drive the loop deterministically, one iteration at a time.
func (l *Loop) Step(ctx context.Context) {
	d := l.d

	// 1. Tickle the watchdog.
	d.WatchDog.Tickle()

	// 2. Deferred kernel work preempts process scheduling entirely.
	if d.Sched.DoKernelWorkNow(d.Chip) {
		d.Sched.ExecuteKernelWork(d.Chip)
		return
	}

	// 3. Ask the scheduler what to do next.
	action, ok := d.Sched.Next()
	if !ok {
		return
	}

	if !action.Sleep {
		p, found := d.Kernel.GetProcess(action.PID)
		if !found {
			// Scheduler handed back a stale id (restarted/terminated
			// concurrently with the decision) — nothing to run this
			// iteration, try again next time.
			return
		}
		reason, executed := dispatcher.Dispatch(d.Dispatch, action.PID, p, action.TimesliceUS)
		d.Sched.Result(reason, executed)
		if d.Requeue != nil && reason != scheduler.StopStopped && p.State().Schedulable() {
			d.Requeue.Requeue(action.PID)
		}
		return
	}

	// 4. TrySleep: the mandatory double-check before suspending the chip.
	if d.NoSleep {
		return
	}
	d.Chip.Atomic(func() {
		if d.Chip.HasPendingInterrupts() {
			return // S6: an interrupt raced the scheduler's decision — don't sleep
		}
		if d.Sched.DoKernelWorkNow(d.Chip) {
			return // a deferred call landed in the same race window
		}
		d.WatchDog.Suspend()
		d.Chip.Sleep()
		d.WatchDog.Resume()
	})
}
