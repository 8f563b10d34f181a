package scheduler

import (
	"container/heap"
	"sync"
	"time"

	"github.com/edirooss/tock-kernel/internal/chip"
	"github.com/edirooss/tock-kernel/internal/kernel"
	"github.com/edirooss/tock-kernel/internal/process"
)

// DefaultTimesliceUS is the quantum the round-robin scheduler hands each
// process, absent a more specific policy.
const DefaultTimesliceUS = 10_000

// wakeEvent is a process parked until a future wall-clock time — e.g. an
// alarm-driven sleep. Ordering and removal are O(log n) via a min-heap,
// exactly as in the teacher's deferred-event scheduler
// (internal/infrastructure/processmgr/scheduler.go), adapted here from
// int64 process IDs keyed by restart time to process.ID keyed by wake
// time.
type wakeEvent struct {
	pid   process.ID
	when  time.Time
	index int
}

type wakeHeap []*wakeEvent

func (h wakeHeap) Len() int            { return len(h) }
func (h wakeHeap) Less(i, j int) bool  { return h[i].when.Before(h[j].when) }
func (h wakeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *wakeHeap) Push(x any) {
	ev := x.(*wakeEvent)
	ev.index = len(*h)
	*h = append(*h, ev)
}
func (h *wakeHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	ev.index = -1
	*h = old[:n-1]
	return ev
}

// RoundRobin is a reference Scheduler: a FIFO ready queue, fixed
// timeslice, and a wake-time heap for processes parked by a capsule-driven
// deferred wake (e.g. the alarm capsule). It decides whether sleeping is
// safe from its ready queue, wake heap and the process table; the Kernel's
// work counter is not consulted.
type RoundRobin struct {
	k *kernel.Kernel

	mu    sync.Mutex
	ready []process.ID
	wake  wakeHeap
}

func NewRoundRobin(k *kernel.Kernel) *RoundRobin {
	return &RoundRobin{k: k}
}

// Enqueue places pid at the back of the ready rotation. Called by board
// bring-up for every admitted process and by capsules whenever a parked
// process becomes runnable again.
func (s *RoundRobin) Enqueue(pid process.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = append(s.ready, pid)
}

// EnqueueAt parks pid until `when`; it rejoins the ready rotation once that
// time is reached (polled by Next).
func (s *RoundRobin) EnqueueAt(pid process.ID, when time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	heap.Push(&s.wake, &wakeEvent{pid: pid, when: when})
}

func (s *RoundRobin) promoteDueWakes(now time.Time) {
	for len(s.wake) > 0 && !s.wake[0].when.After(now) {
		ev := heap.Pop(&s.wake).(*wakeEvent)
		s.ready = append(s.ready, ev.pid)
	}
}

func (s *RoundRobin) Next() (Action, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.promoteDueWakes(time.Now())

	scanned := 0
	for len(s.ready) > 0 && scanned < len(s.ready) {
		pid := s.ready[0]
		s.ready = s.ready[1:]

		p, ok := s.k.GetProcess(pid)
		if !ok || !p.State().Schedulable() {
			continue // stale id (restarted/terminated) — drop silently
		}
		if !p.Ready() {
			// Yielded with an empty task queue: not worth a timeslice
			// right now, but still alive — keep it in rotation for the
			// next upcall to land on.
			s.ready = append(s.ready, pid)
			scanned++
			continue
		}
		us := uint32(DefaultTimesliceUS)
		return Action{PID: pid, TimesliceUS: &us}, true
	}

	return Action{Sleep: true}, true
}

// Requeue places pid back at the tail of the ready rotation; the
// main loop calls this after a RunProcess action ends for any reason
// other than Terminated/Faulted/Stopped.
func (s *RoundRobin) Requeue(pid process.ID) {
	s.Enqueue(pid)
}

func (s *RoundRobin) DoKernelWorkNow(c chip.Chip) bool {
	return c.HasPendingInterrupts()
}

func (s *RoundRobin) ContinueProcess(pid process.ID, c chip.Chip) bool {
	// A pending interrupt preempts the current process so its bottom half
	// gets serviced promptly; the round-robin policy otherwise always lets
	// a process keep its slice.
	return !c.HasPendingInterrupts()
}

func (s *RoundRobin) Result(reason StopReason, _ time.Duration) {
	// Re-enqueuing happens at the call site (mainloop), which
	// knows the pid; RoundRobin.Result only exists to satisfy the
	// interface and is where a priority-aware policy would adjust
	// bookkeeping (e.g. decaying priority on TimesliceExpired).
	_ = reason
}

func (s *RoundRobin) ExecuteKernelWork(c chip.Chip) {
	c.ServicePendingInterrupts()
}
