package scheduler

import (
	"testing"
	"time"

	"github.com/edirooss/tock-kernel/internal/kernel"
	"github.com/edirooss/tock-kernel/internal/process"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestProcess(t *testing.T, k *kernel.Kernel, idx int, state process.State) process.ID {
	t.Helper()
	gen := k.CreateProcessIdentifier()
	p := process.New("test", process.Layout{}, gen, process.RestartAlways)
	if state == process.Running {
		p.MarkCredentialsPass(process.ShortID{LocallyUnique: true})
		p.SetProcessFunction(process.FunctionCallback{})
	} else if state == process.Yielded {
		p.MarkCredentialsPass(process.ShortID{LocallyUnique: true})
		p.SetProcessFunction(process.FunctionCallback{})
		p.Yield()
	}
	k.SetProcess(idx, p)
	return process.ID{Index: idx, Gen: gen}
}

func TestRoundRobinNextReturnsSleepWhenEmpty(t *testing.T) {
	k := kernel.New(zap.NewNop(), 4)
	s := NewRoundRobin(k)

	action, ok := s.Next()
	require.True(t, ok)
	require.True(t, action.Sleep)
}

func TestRoundRobinNextReturnsReadyProcess(t *testing.T) {
	k := kernel.New(zap.NewNop(), 4)
	s := NewRoundRobin(k)
	pid := newTestProcess(t, k, 0, process.Running)
	s.Enqueue(pid)

	action, ok := s.Next()
	require.True(t, ok)
	require.False(t, action.Sleep)
	require.Equal(t, pid, action.PID)
	require.NotNil(t, action.TimesliceUS)
}

func TestRoundRobinSkipsYieldedWithEmptyQueueButKeepsItInRotation(t *testing.T) {
	k := kernel.New(zap.NewNop(), 4)
	s := NewRoundRobin(k)
	pid := newTestProcess(t, k, 0, process.Yielded) // Yielded, no tasks: not Ready
	s.Enqueue(pid)

	action, ok := s.Next()
	require.True(t, ok)
	require.True(t, action.Sleep, "a process with no pending work should not be scheduled")

	// But it's still in the rotation: giving it a task makes it selectable.
	p, _ := k.GetProcess(pid)
	p.EnqueueTask(process.Task{Kind: process.TaskFunctionCall})
	action, ok = s.Next()
	require.True(t, ok)
	require.False(t, action.Sleep)
	require.Equal(t, pid, action.PID)
}

func TestRoundRobinDropsStaleProcessID(t *testing.T) {
	k := kernel.New(zap.NewNop(), 4)
	s := NewRoundRobin(k)
	pid := newTestProcess(t, k, 0, process.Running)
	stale := process.ID{Index: 0, Gen: pid.Gen + 1}
	s.Enqueue(stale)

	action, ok := s.Next()
	require.True(t, ok)
	require.True(t, action.Sleep, "a stale id should be dropped, not scheduled")
}

func TestRoundRobinEnqueueAtPromotesOnceDue(t *testing.T) {
	k := kernel.New(zap.NewNop(), 4)
	s := NewRoundRobin(k)
	pid := newTestProcess(t, k, 0, process.Running)

	s.EnqueueAt(pid, time.Now().Add(-time.Millisecond)) // already due

	action, ok := s.Next()
	require.True(t, ok)
	require.False(t, action.Sleep)
	require.Equal(t, pid, action.PID)
}

func TestRoundRobinEnqueueAtNotYetDueStaysParked(t *testing.T) {
	k := kernel.New(zap.NewNop(), 4)
	s := NewRoundRobin(k)
	pid := newTestProcess(t, k, 0, process.Running)

	s.EnqueueAt(pid, time.Now().Add(time.Hour))

	action, ok := s.Next()
	require.True(t, ok)
	require.True(t, action.Sleep)
}

func TestRoundRobinRequeuePlacesAtTail(t *testing.T) {
	k := kernel.New(zap.NewNop(), 4)
	s := NewRoundRobin(k)
	first := newTestProcess(t, k, 0, process.Running)
	second := newTestProcess(t, k, 1, process.Running)

	s.Enqueue(first)
	s.Enqueue(second)

	action, _ := s.Next()
	require.Equal(t, first, action.PID)
	s.Requeue(first)

	action, _ = s.Next()
	require.Equal(t, second, action.PID)
}
