package dispatcher

import (
	"testing"
	"time"

	"github.com/edirooss/tock-kernel/internal/chip"
	"github.com/edirooss/tock-kernel/internal/kernel"
	"github.com/edirooss/tock-kernel/internal/process"
	"github.com/edirooss/tock-kernel/internal/scheduler"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeMPU struct{}

func (fakeMPU) Configure(any) {}
func (fakeMPU) Enable()       {}
func (fakeMPU) Disable()      {}

type fakeChip struct{ mpu fakeMPU }

func (*fakeChip) ServicePendingInterrupts() {}
func (*fakeChip) HasPendingInterrupts() bool { return false }
func (c *fakeChip) MPU() chip.MPU            { return c.mpu }
func (*fakeChip) Sleep()                     {}
func (*fakeChip) Atomic(f func())            { f() }

type fakeScheduler struct{ continueProcess bool }

func (*fakeScheduler) Next() (scheduler.Action, bool)          { return scheduler.Action{}, false }
func (*fakeScheduler) DoKernelWorkNow(chip.Chip) bool          { return false }
func (s *fakeScheduler) ContinueProcess(process.ID, chip.Chip) bool {
	return s.continueProcess
}
func (*fakeScheduler) Result(scheduler.StopReason, time.Duration) {}
func (*fakeScheduler) ExecuteKernelWork(chip.Chip)                {}

type fakeFault struct{ called bool }

func (f *fakeFault) HandleFault(*process.Process) error {
	f.called = true
	return nil
}

// yieldOnSyscall simulates userspace immediately yielding in response to
// whatever syscall it's handed, so the dispatcher loop runs dry and
// returns instead of spinning.
type yieldOnSyscall struct{ handled int }

func (h *yieldOnSyscall) Handle(_ process.ID, p *process.Process, _ process.RawSyscall) {
	h.handled++
	p.Yield()
}

// oneShotRuntime traps into the kernel exactly once with a synthetic
// syscall, then behaves as an ordinary process.Runtime otherwise.
type oneShotRuntime struct {
	installed *process.FunctionCallback
}

func (r *oneShotRuntime) SwitchTo(time.Time, bool) process.SwitchReturn {
	return process.SwitchReturn{Reason: process.ReasonSyscallFired}
}
func (r *oneShotRuntime) SetReturnValue([5]uintptr) {}
func (r *oneShotRuntime) WriteByte(uintptr, byte)   {}
func (r *oneShotRuntime) ReadBytes(uintptr, uintptr) []byte { return nil }
func (r *oneShotRuntime) Install(cb process.FunctionCallback) { r.installed = &cb }

func TestDispatchCredentialsApprovedAdmitsThenRuns(t *testing.T) {
	k := kernel.New(zap.NewNop(), 1)
	cap := kernel.NewExternalProcessCapability()
	k.IncrementWork(cap) // credential admission's one unit of work credit

	layout := process.Layout{Executable: process.MemRange{Start: 0x1000, End: 0x1F00}}
	gen := k.CreateProcessIdentifier()
	p := process.New("test", layout, gen, process.RestartAlways)
	p.MarkCredentialsPass(process.ShortID{LocallyUnique: true})
	pid := process.ID{Index: 0, Gen: gen}
	k.SetProcess(0, p)

	rt := &oneShotRuntime{}
	p.SetRuntime(rt)

	syscallHandler := &yieldOnSyscall{}
	deps := Deps{
		Kernel:  k,
		Chip:    &fakeChip{},
		Sched:   &fakeScheduler{continueProcess: true},
		Fault:   &fakeFault{},
		Syscall: syscallHandler,
		Cap:     cap,
		Log:     zap.NewNop(),
	}

	reason, _ := Dispatch(deps, pid, p, nil)

	require.Equal(t, scheduler.StopNoWorkLeft, reason)
	require.Equal(t, process.Yielded, p.State())
	require.Equal(t, int64(0), k.Work(), "the admission work unit is consumed exactly once")
	require.Equal(t, 1, syscallHandler.handled, "the process actually ran and trapped back in")
	require.NotNil(t, rt.installed, "the init task's PC was installed before running")
	require.Equal(t, layout.Executable.Start, rt.installed.PC)
}

func TestDispatchCredentialsApprovedDuplicateShortIDTerminates(t *testing.T) {
	k := kernel.New(zap.NewNop(), 2)
	cap := kernel.NewExternalProcessCapability()

	layout := process.Layout{Executable: process.MemRange{Start: 0x1000, End: 0x1F00}}

	gen1 := k.CreateProcessIdentifier()
	first := process.New("first", layout, gen1, process.RestartAlways)
	first.MarkCredentialsPass(process.ShortID{Value: 42})
	first.SetRuntime(&oneShotRuntime{})
	first.SetProcessFunction(process.FunctionCallback{}) // already admitted and running
	k.SetProcess(0, first)

	gen2 := k.CreateProcessIdentifier()
	second := process.New("second", layout, gen2, process.RestartAlways)
	second.MarkCredentialsPass(process.ShortID{Value: 42}) // same fixed value: conflicts
	k.SetProcess(1, second)
	k.IncrementWork(cap) // only the duplicate's admission is under test

	pid2 := process.ID{Index: 1, Gen: gen2}
	deps := Deps{
		Kernel:  k,
		Chip:    &fakeChip{},
		Sched:   &fakeScheduler{continueProcess: true},
		Fault:   &fakeFault{},
		Syscall: &yieldOnSyscall{},
		Cap:     cap,
		Log:     zap.NewNop(),
	}

	reason, _ := Dispatch(deps, pid2, second, nil)

	require.Equal(t, scheduler.StopNoWorkLeft, reason, "a terminated process is no longer Ready")
	require.Equal(t, process.Terminated, second.State())
}

func TestDispatchKernelPreemptionStopsImmediately(t *testing.T) {
	k := kernel.New(zap.NewNop(), 1)
	cap := kernel.NewExternalProcessCapability()
	gen := k.CreateProcessIdentifier()
	p := process.New("test", process.Layout{}, gen, process.RestartAlways)
	p.MarkCredentialsPass(process.ShortID{LocallyUnique: true})
	p.SetProcessFunction(process.FunctionCallback{})
	k.SetProcess(0, p)
	pid := process.ID{Index: 0, Gen: gen}

	deps := Deps{
		Kernel:  k,
		Chip:    &fakeChip{},
		Sched:   &fakeScheduler{continueProcess: false},
		Fault:   &fakeFault{},
		Syscall: &yieldOnSyscall{},
		Cap:     cap,
		Log:     zap.NewNop(),
	}

	reason, _ := Dispatch(deps, pid, p, nil)
	require.Equal(t, scheduler.StopKernelPreemption, reason)
}
