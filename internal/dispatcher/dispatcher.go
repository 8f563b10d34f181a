// Package dispatcher implements do_process (§4.3): running one process
// under a scheduler-supplied timeslice and acting on why it stopped.
package dispatcher

import (
	"time"

	"github.com/edirooss/tock-kernel/internal/chip"
	"github.com/edirooss/tock-kernel/internal/kernel"
	"github.com/edirooss/tock-kernel/internal/process"
	"github.com/edirooss/tock-kernel/internal/scheduler"
	"go.uber.org/zap"
)

// MinQuantaThresholdUS is the remaining-time floor below which the
// dispatcher declares the timeslice expired rather than risk a process
// running past it before the next check.
const MinQuantaThresholdUS = 500

// ProcessFault is consulted when switch_to() returns ReasonFault. Returning
// an error means the fault could not be recovered and set_fault_state()
// must be applied.
type ProcessFault interface {
	HandleFault(p *process.Process) error
}

// ContextSwitchCallback is invoked immediately before every switch_to().
type ContextSwitchCallback interface {
	ContextSwitchHook(p *process.Process)
}

// IPCRouter delivers a queued IPC task to its peer. Calling this with no
// backing IPC service installed is a kernel-consistency violation (§4.3,
// Yielded/IPC branch) — implementations that have no IPC service should
// simply not be wired in, which is what causes Dispatch to panic on the
// first IPC task it sees (mirroring the source's "abort: kernel
// consistency violation").
type IPCRouter interface {
	Route(from process.ID, peer process.ID, kind process.IPCKind) error
}

// SyscallHandler services one trapped syscall (§4.4). The dispatcher calls
// this synchronously right after switch_to() reports ReasonSyscallFired,
// before re-evaluating the process's state.
type SyscallHandler interface {
	Handle(pid process.ID, p *process.Process, raw process.RawSyscall)
}

// Deps bundles the dispatcher's required collaborators.
type Deps struct {
	Kernel   *kernel.Kernel
	Chip     chip.Chip
	Sched    scheduler.Scheduler
	Fault    ProcessFault
	OnSwitch ContextSwitchCallback // may be nil
	IPC      IPCRouter             // may be nil iff no process ever enqueues an IPC task
	Syscall  SyscallHandler
	Cap      kernel.ExternalProcessCapability
	Log      *zap.Logger
}

// Dispatch runs pid for up to timesliceUS (nil means cooperative/no
// timeslice) and returns why it stopped plus how long it ran, mirroring
// §4.3 exactly.
func Dispatch(d Deps, pid process.ID, p *process.Process, timesliceUS *uint32) (scheduler.StopReason, time.Duration) {
	var timer scheduler.Timer
	var timeslice uint32
	if timesliceUS != nil {
		timer = scheduler.NewRealTimer()
		timeslice = *timesliceUS
	} else {
		timer = scheduler.NewDummyTimer()
	}
	timer.Reset()
	timer.Start(timeslice)

	for {
		remaining, known := timer.RemainingUS()
		if known && remaining <= MinQuantaThresholdUS {
			d.Log.Debug("timeslice expired", zap.String("pid", pid.String()))
			timer.Reset()
			return scheduler.StopTimesliceExpired, time.Duration(timeslice) * time.Microsecond
		}

		if !d.Sched.ContinueProcess(pid, d.Chip) {
			timer.Reset()
			return scheduler.StopKernelPreemption, elapsed(timeslice, remaining, known)
		}

		if !p.Ready() {
			timer.Reset()
			return scheduler.StopNoWorkLeft, elapsed(timeslice, remaining, known)
		}

		p.MustBeSchedulable()

		switch p.State() {
		case process.Running:
			if d.OnSwitch != nil {
				d.OnSwitch.ContextSwitchHook(p)
			}
			p.ConfigureMPU()
			d.Chip.MPU().Enable()
			timer.Arm()

			var deadline time.Time
			hasDeadline := false
			if remUS, known := timer.RemainingUS(); known {
				deadline = time.Now().Add(time.Duration(remUS) * time.Microsecond)
				hasDeadline = true
			}
			ret := p.SwitchTo(deadline, hasDeadline)

			timer.Disarm()
			d.Chip.MPU().Disable()

			switch ret.Reason {
			case process.ReasonFault:
				if err := d.Fault.HandleFault(p); err != nil {
					p.SetFaultState()
				}
			case process.ReasonSyscallFired:
				d.Syscall.Handle(pid, p, ret.Syscall)
			case process.ReasonInterrupted:
				if _, known := timer.RemainingUS(); !known {
					timer.Reset()
					return scheduler.StopTimesliceExpired, time.Duration(timeslice) * time.Microsecond
				}
				// else: genuine external interrupt — loop around; the
				// outer mainloop will break out to service it.
			case process.ReasonNone:
				p.SetFaultState()
			}

		case process.Yielded:
			task, ok := p.PopTask()
			if !ok {
				timer.Reset()
				return scheduler.StopNoWorkLeft, elapsed(timeslice, remaining, known)
			}
			switch task.Kind {
			case process.TaskFunctionCall:
				p.SetProcessFunction(task.FunctionCall)
			case process.TaskIPC:
				if d.IPC == nil {
					panic("dispatcher: IPC task enqueued with no IPC service installed — kernel consistency violation")
				}
				if err := d.IPC.Route(pid, task.IPCPeer, task.IPCKind); err != nil {
					d.Log.Warn("ipc route failed", zap.Error(err))
				}
			}

		case process.CredentialsApproved:
			d.Kernel.DecrementWork(d.Cap)
			if hasUniqueShortID(d.Kernel, pid, p) {
				p.EnqueueInitTask(p.Layout().Executable.Start)
				p.Yield()
			} else {
				p.Terminate(nil)
			}

		case process.StoppedRunning, process.StoppedYielded:
			timer.Reset()
			return scheduler.StopStopped, elapsed(timeslice, remaining, known)

		default:
			panic("dispatcher: process in non-schedulable state reached Dispatch — kernel consistency violation")
		}
	}
}

func elapsed(timeslice uint32, remaining uint32, known bool) time.Duration {
	if !known {
		return time.Duration(timeslice) * time.Microsecond
	}
	used := int64(timeslice) - int64(remaining)
	if used < 0 {
		used = 0
	}
	return time.Duration(used) * time.Microsecond
}

// hasUniqueShortID reports whether p's assigned ShortID differs from every
// other admitted (Running or Yielded) process's. Processes still waiting
// in CredentialsApproved do not count, so the first process dispatched
// with a given short ID wins; duplicates are terminated (§4.3
// CredentialsApproved, §8 S5).
func hasUniqueShortID(k *kernel.Kernel, pid process.ID, p *process.Process) bool {
	sid := p.ShortID()
	unique := true
	k.ProcessEach(func(_ int, other *process.Process) {
		if !unique {
			return
		}
		if other == p {
			return
		}
		os := other.State()
		if os != process.Running && os != process.Yielded {
			return
		}
		if sid.Conflicts(other.ShortID()) {
			unique = false
		}
	})
	return unique
}
