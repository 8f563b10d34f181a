package scheduler

import (
	"sync"
	"time"
)

// realTimer is a software stand-in for the hardware scheduler timer: a
// wall-clock deadline tracked with time.Now(). The countdown starts at
// Start and keeps running across Arm/Disarm, which only gate the interrupt,
// so RemainingUS is known from Start until Reset (§4.3).
type realTimer struct {
	mu       sync.Mutex
	us       uint32
	deadline time.Time
	started  bool
	armed    bool
}

func NewRealTimer() Timer { return &realTimer{} }

func (t *realTimer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armed = false
	t.started = false
	t.us = 0
}

func (t *realTimer) Start(us uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.us = us
	t.deadline = time.Now().Add(time.Duration(us) * time.Microsecond)
	t.started = true
}

func (t *realTimer) Arm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armed = true
}

func (t *realTimer) Disarm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armed = false
}

func (t *realTimer) RemainingUS() (uint32, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return 0, false
	}
	remaining := time.Until(t.deadline)
	if remaining <= 0 {
		return 0, true
	}
	return uint32(remaining / time.Microsecond), true
}

// dummyTimer is the cooperative-mode (timeslice_us == nil) no-op timer: it
// never reports having expired, so the dispatcher only stops a
// cooperative process when it yields, faults, or is preempted.
type dummyTimer struct{}

func NewDummyTimer() Timer { return dummyTimer{} }

func (dummyTimer) Reset()               {}
func (dummyTimer) Start(uint32)         {}
func (dummyTimer) Arm()                 {}
func (dummyTimer) Disarm()              {}
func (dummyTimer) RemainingUS() (uint32, bool) { return 0, false }
