package syscallapi

import (
	"errors"
	"testing"
	"time"

	"github.com/edirooss/tock-kernel/internal/process"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errAllocFailed = errors.New("grant allocation failed")

// fakeRuntime captures what the handler writes back, standing in for
// simchip.Runtime without dragging in the goroutine machinery.
type fakeRuntime struct {
	lastReturn [5]uintptr
	bytes      map[uintptr]byte
}

func newFakeRuntime() *fakeRuntime { return &fakeRuntime{bytes: make(map[uintptr]byte)} }

func (f *fakeRuntime) SwitchTo(time.Time, bool) process.SwitchReturn { return process.SwitchReturn{} }
func (f *fakeRuntime) SetReturnValue(encoded [5]uintptr)             { f.lastReturn = encoded }
func (f *fakeRuntime) WriteByte(addr uintptr, value byte)            { f.bytes[addr] = value }
func (f *fakeRuntime) ReadBytes(uintptr, uintptr) []byte             { return nil }
func (f *fakeRuntime) Install(process.FunctionCallback)              {}

func testLayout() process.Layout {
	return process.Layout{
		Flash:        process.MemRange{Start: 0x1000, End: 0x2000},
		IntegrityEnd: 0x1F00,
		AccessibleRW: process.MemRange{Start: 0x2000, End: 0x2100},
		AccessibleRO: process.MemRange{Start: 0x2000, End: 0x2100},
		Executable:   process.MemRange{Start: 0x1000, End: 0x1F00},
	}
}

func newTestProcess() (*process.Process, *fakeRuntime) {
	p := process.New("test", testLayout(), 1, process.RestartAlways)
	rt := newFakeRuntime()
	p.SetRuntime(rt)
	return p, rt
}

// fakeDriver is a minimal syscallapi.Driver.
type fakeDriver struct {
	commandRet    Return
	allocateCalls int
	allocateFails int // fail this many AllocateGrant calls before succeeding
	allocateData  any
}

func (d *fakeDriver) Command(*process.Process, uint32, uintptr, uintptr) Return { return d.commandRet }

func (d *fakeDriver) AllocateGrant(*process.Process) AllocateResult {
	d.allocateCalls++
	if d.allocateCalls <= d.allocateFails {
		return AllocateResult{Err: errAllocFailed}
	}
	return AllocateResult{Data: d.allocateData}
}

// fakeLookup is a minimal syscallapi.Lookup backed by a map; driverNum 99
// is deliberately unregistered to exercise the "no such driver" path.
type fakeLookup struct {
	drivers map[uint32]Driver
}

func (l *fakeLookup) WithDriver(driverNum uint32, f func(d Driver)) {
	f(l.drivers[driverNum]) // nil for unregistered driverNum, matching a real map lookup
}

func newHandler(drivers map[uint32]Driver, filter Filter) *Handler {
	return New(&fakeLookup{drivers: drivers}, filter, NullMemopHandler{}, zap.NewNop())
}

func TestHandleSubscribeSuccess(t *testing.T) {
	p, rt := newTestProcess()
	drv := &fakeDriver{}
	h := newHandler(map[uint32]Driver{1: drv}, nil)

	h.Handle(process.ID{}, p, process.RawSyscall{Which: ClassSubscribe, R0: 1, R1: 2, R2: 0x1000, R3: 7})

	require.Equal(t, uintptr(RetSubscribeSuccess), rt.lastReturn[0])
	region, ok := p.Grants().Lookup(1)
	require.True(t, ok)
	require.Equal(t, uintptr(0x1000), region.UpcallAt(2).FnPtr)
}

func TestHandleSubscribeInvalidFnPtrFails(t *testing.T) {
	p, rt := newTestProcess()
	h := newHandler(map[uint32]Driver{1: &fakeDriver{}}, nil)

	h.Handle(process.ID{}, p, process.RawSyscall{Which: ClassSubscribe, R0: 1, R1: 2, R2: 0x9999, R3: 0})

	require.Equal(t, uintptr(RetSubscribeFailure), rt.lastReturn[0])
	require.Equal(t, uintptr(INVAL), rt.lastReturn[1])
}

func TestHandleSubscribeUnregisteredDriverReturnsNoDevice(t *testing.T) {
	p, rt := newTestProcess()
	h := newHandler(map[uint32]Driver{}, nil)

	h.Handle(process.ID{}, p, process.RawSyscall{Which: ClassSubscribe, R0: 99, R1: 0, R2: 0, R3: 0})

	require.Equal(t, uintptr(RetSubscribeFailure), rt.lastReturn[0])
	require.Equal(t, uintptr(NODEVICE), rt.lastReturn[1])
}

func TestHandleSubscribeSwapPurgesPendingUpcallForSameID(t *testing.T) {
	p, _ := newTestProcess()
	drv := &fakeDriver{}
	h := newHandler(map[uint32]Driver{1: drv}, nil)

	h.Handle(process.ID{}, p, process.RawSyscall{Which: ClassSubscribe, R0: 1, R1: 2, R2: 0x1000, R3: 0})
	p.EnqueueUpcall(1, 2, process.FunctionCallback{PC: 0x1000})
	require.Equal(t, 1, p.TaskQueueLen())

	// Re-subscribing the same (driver, sub) purges the stale queued delivery.
	h.Handle(process.ID{}, p, process.RawSyscall{Which: ClassSubscribe, R0: 1, R1: 2, R2: 0x1010, R3: 0})
	require.Equal(t, 0, p.TaskQueueLen())
}

func TestHandleCommandDelegatesToDriver(t *testing.T) {
	p, rt := newTestProcess()
	drv := &fakeDriver{commandRet: SuccessU32(42)}
	h := newHandler(map[uint32]Driver{1: drv}, nil)

	h.Handle(process.ID{}, p, process.RawSyscall{Which: ClassCommand, R0: 1, R1: 0, R2: 0, R3: 0})

	require.Equal(t, uintptr(RetSuccessU32x1), rt.lastReturn[0])
	require.Equal(t, uintptr(42), rt.lastReturn[1])
}

func TestHandleCommandUnregisteredDriverReturnsNoDevice(t *testing.T) {
	p, rt := newTestProcess()
	h := newHandler(map[uint32]Driver{}, nil)

	h.Handle(process.ID{}, p, process.RawSyscall{Which: ClassCommand, R0: 1, R1: 0, R2: 0, R3: 0})

	require.Equal(t, uintptr(RetFailure), rt.lastReturn[0])
	require.Equal(t, uintptr(NODEVICE), rt.lastReturn[1])
}

func TestEnsureGrantRetriesExactlyOnce(t *testing.T) {
	p, rt := newTestProcess()
	drv := &fakeDriver{allocateFails: 1, allocateData: "payload"}
	h := newHandler(map[uint32]Driver{1: drv}, nil)

	h.Handle(process.ID{}, p, process.RawSyscall{Which: ClassReadOnlyAllow, R0: 1, R1: 0, R2: 0x2000, R3: 16})

	require.Equal(t, 2, drv.allocateCalls)
	require.Equal(t, uintptr(RetAllowReadOnlySuccess), rt.lastReturn[0])
	region, ok := p.Grants().Lookup(1)
	require.True(t, ok)
	require.Equal(t, "payload", region.Data)
}

func TestEnsureGrantFailsAfterSecondAttempt(t *testing.T) {
	p, rt := newTestProcess()
	drv := &fakeDriver{allocateFails: 2}
	h := newHandler(map[uint32]Driver{1: drv}, nil)

	h.Handle(process.ID{}, p, process.RawSyscall{Which: ClassReadOnlyAllow, R0: 1, R1: 0, R2: 0x2000, R3: 16})

	require.Equal(t, 2, drv.allocateCalls, "lazy allocation retries exactly once, never more")
	require.Equal(t, uintptr(RetAllowReadOnlyFailure), rt.lastReturn[0])
	require.Equal(t, uintptr(NOMEM), rt.lastReturn[1])
}

func TestHandleReadWriteAllowRejectsOutOfRangeBuffer(t *testing.T) {
	p, rt := newTestProcess()
	h := newHandler(map[uint32]Driver{1: &fakeDriver{}}, nil)

	h.Handle(process.ID{}, p, process.RawSyscall{Which: ClassReadWriteAllow, R0: 1, R1: 0, R2: 0x5000, R3: 16})

	require.Equal(t, uintptr(RetAllowReadWriteFailure), rt.lastReturn[0])
	require.Equal(t, uintptr(INVAL), rt.lastReturn[1])
}

type rejectFilter struct{ code ErrorCode }

func (f rejectFilter) FilterSyscall(*process.Process, uint32, uintptr) error {
	return &FilterError{Code: f.code}
}

func TestFilterRejectionPropagatesErrorCode(t *testing.T) {
	p, rt := newTestProcess()
	h := newHandler(map[uint32]Driver{1: &fakeDriver{}}, rejectFilter{code: RESERVE})

	h.Handle(process.ID{}, p, process.RawSyscall{Which: ClassCommand, R0: 1, R1: 0, R2: 0, R3: 0})

	require.Equal(t, uintptr(RetFailure), rt.lastReturn[0])
	require.Equal(t, uintptr(RESERVE), rt.lastReturn[1])
}

func TestHandleYieldWaitTransitionsToYieldedAndWritesByte(t *testing.T) {
	p, rt := newTestProcess()
	h := newHandler(nil, nil)

	h.Handle(process.ID{}, p, process.RawSyscall{Which: ClassYield, R0: YieldWait, R1: 0x2000})

	require.Equal(t, process.Yielded, p.State())
	require.Equal(t, byte(1), rt.bytes[0x2000])
}

func TestHandleYieldNoWaitWithEmptyQueueWritesZero(t *testing.T) {
	p, rt := newTestProcess()
	h := newHandler(nil, nil)

	h.Handle(process.ID{}, p, process.RawSyscall{Which: ClassYield, R0: YieldNoWait, R1: 0x2000})

	require.Equal(t, byte(0), rt.bytes[0x2000])
}

func TestHandleExitTerminateMovesToTerminated(t *testing.T) {
	p, _ := newTestProcess()
	h := newHandler(nil, nil)

	h.Handle(process.ID{}, p, process.RawSyscall{Which: ClassExit, R0: ExitTerminate, R1: 3})

	require.Equal(t, process.Terminated, p.State())
}

func TestHandleUnrecognizedSyscallClassFails(t *testing.T) {
	p, rt := newTestProcess()
	h := newHandler(nil, nil)

	h.Handle(process.ID{}, p, process.RawSyscall{Which: 99})

	require.Equal(t, uintptr(RetFailure), rt.lastReturn[0])
	require.Equal(t, uintptr(NOSUPPORT), rt.lastReturn[1])
}
