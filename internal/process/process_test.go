package process

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testLayout() Layout {
	return Layout{
		Flash:        MemRange{Start: 0x1000, End: 0x2000},
		IntegrityEnd: 0x1F00,
		AccessibleRW: MemRange{Start: 0x2000, End: 0x2100},
		AccessibleRO: MemRange{Start: 0x2000, End: 0x2100},
		Executable:   MemRange{Start: 0x1000, End: 0x1F00},
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		name    string
		state   State
		taskLen int
		want    bool
	}{
		{"running is ready", Running, 0, true},
		{"credentials approved is ready", CredentialsApproved, 0, true},
		{"yielded with tasks is ready", Yielded, 1, true},
		{"yielded without tasks is not ready", Yielded, 0, false},
		{"credentials unchecked is not ready", CredentialsUnchecked, 0, false},
		{"faulted is not ready", Faulted, 0, false},
		{"terminated is not ready", Terminated, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New("test", testLayout(), 1, RestartAlways)
			p.state = tt.state
			for i := 0; i < tt.taskLen; i++ {
				p.EnqueueTask(Task{Kind: TaskFunctionCall})
			}
			require.Equal(t, tt.want, p.Ready())
		})
	}
}

func TestMustBeSchedulablePanicsOnUnschedulableState(t *testing.T) {
	p := New("test", testLayout(), 1, RestartAlways)
	p.state = Terminated
	require.Panics(t, func() { p.MustBeSchedulable() })

	p.state = Running
	require.NotPanics(t, func() { p.MustBeSchedulable() })
}

func TestMarkCredentialsPassTwicePanics(t *testing.T) {
	p := New("test", testLayout(), 1, RestartAlways)
	require.NotPanics(t, func() { p.MarkCredentialsPass(ShortID{LocallyUnique: true}) })
	require.Equal(t, CredentialsApproved, p.State())
	require.Panics(t, func() { p.MarkCredentialsPass(ShortID{LocallyUnique: true}) })
}

func TestMarkCredentialsFailTwicePanics(t *testing.T) {
	p := New("test", testLayout(), 1, RestartAlways)
	require.NotPanics(t, func() { p.MarkCredentialsFail() })
	require.Equal(t, CredentialsFailed, p.State())
	require.Panics(t, func() { p.MarkCredentialsFail() })
}

func TestShortIDConflicts(t *testing.T) {
	tests := []struct {
		name string
		a, b ShortID
		want bool
	}{
		{"two locally-unique ids never conflict", ShortID{LocallyUnique: true}, ShortID{LocallyUnique: true}, false},
		{"locally-unique vs fixed never conflicts", ShortID{LocallyUnique: true}, ShortID{Value: 0}, false},
		{"equal fixed values conflict", ShortID{Value: 7}, ShortID{Value: 7}, true},
		{"distinct fixed values do not conflict", ShortID{Value: 7}, ShortID{Value: 8}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.a.Conflicts(tt.b))
			require.Equal(t, tt.want, tt.b.Conflicts(tt.a))
		})
	}
}

func TestStopRequestedAndResume(t *testing.T) {
	p := New("test", testLayout(), 1, RestartAlways)

	p.state = Running
	p.StopRequested()
	require.Equal(t, StoppedRunning, p.State())
	p.Resume()
	require.Equal(t, Running, p.State())

	p.state = Yielded
	p.StopRequested()
	require.Equal(t, StoppedYielded, p.State())
	p.Resume()
	require.Equal(t, Yielded, p.State())
}

func TestSetFaultStateRestartsWhenPolicyAllows(t *testing.T) {
	p := New("test", testLayout(), 1, RestartAlways)
	p.state = Running
	p.credentialed = true
	p.EnqueueTask(Task{Kind: TaskFunctionCall})

	p.SetFaultState()

	require.Equal(t, CredentialsUnchecked, p.State())
	require.False(t, p.credentialed)
	require.Equal(t, 0, p.TaskQueueLen())
}

func TestSetFaultStateStaysFaultedWithoutRestart(t *testing.T) {
	p := New("test", testLayout(), 1, RestartNever)
	p.state = Running
	p.SetFaultState()
	require.Equal(t, Faulted, p.State())
}

func TestValidateExecutable(t *testing.T) {
	p := New("test", testLayout(), 1, RestartAlways)
	require.True(t, p.ValidateExecutable(0), "null fn_ptr always valid (unsubscribe)")
	require.True(t, p.ValidateExecutable(0x1000))
	require.False(t, p.ValidateExecutable(0x2000))
}

func TestValidateReadWriteAndReadOnly(t *testing.T) {
	p := New("test", testLayout(), 1, RestartAlways)
	require.True(t, p.ValidateReadWrite(0x2000, 0x50))
	require.False(t, p.ValidateReadWrite(0x2000, 0x200))
	require.True(t, p.ValidateReadWrite(0x2000, 0), "zero length always valid")

	require.True(t, p.ValidateReadOnly(0x2000, 0x50), "RO allow accepts RAM too")
	require.False(t, p.ValidateReadOnly(0x3000, 0x10))
}

func TestRemovePendingUpcallsPurgesOnlyMatching(t *testing.T) {
	p := New("test", testLayout(), 1, RestartAlways)
	p.EnqueueUpcall(1, 2, FunctionCallback{PC: 0x1000})
	p.EnqueueUpcall(1, 3, FunctionCallback{PC: 0x1010})
	p.EnqueueUpcall(2, 2, FunctionCallback{PC: 0x1020})

	p.RemovePendingUpcalls(1, 2)
	require.Equal(t, 2, p.TaskQueueLen())

	first, ok := p.PopTask()
	require.True(t, ok)
	require.Equal(t, uint32(1), first.UpcallDriverNum)
	require.Equal(t, uint32(3), first.UpcallSubNum)
}

func TestRestartIssuesFreshGeneration(t *testing.T) {
	p := New("test", testLayout(), 1, RestartAlways)
	p.EnqueueTask(Task{Kind: TaskFunctionCall})
	p.MarkCredentialsPass(ShortID{LocallyUnique: true})

	p.Restart(2)

	require.Equal(t, uint64(2), p.Generation())
	require.Equal(t, CredentialsUnchecked, p.State())
	require.Equal(t, 0, p.TaskQueueLen())
	require.False(t, p.credentialed)
}
