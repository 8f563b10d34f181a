// Package watchdog implements the WatchDog collaborator (§6): a
// best-effort liveness signal the main loop tickles every iteration so an
// external supervisor (hardware watchdog timer, process supervisor) can
// detect a wedged kernel thread.
package watchdog

import (
	"sync/atomic"
	"time"
)

// WatchDog is tickled once per main-loop iteration and suspended/resumed
// around the sleep call, mirroring the source's suspend-before-WFI /
// resume-after discipline (§5).
type WatchDog interface {
	Tickle()
	Suspend()
	Resume()
}

// Null is a no-op WatchDog: the default for boards and tests with no
// external supervisor.
type Null struct{}

func (Null) Tickle()  {}
func (Null) Suspend() {}
func (Null) Resume()  {}

// Ticking tracks wall-clock time of the last Tickle/Resume and exposes
// Stale() so an admin surface can report kernel liveness without needing
// real watchdog hardware — the host-simulator analogue of a hardware WDT.
type Ticking struct {
	lastBeat  atomic.Int64 // unix nanos
	suspended atomic.Bool
}

func NewTicking() *Ticking {
	t := &Ticking{}
	t.Tickle()
	return t
}

func (t *Ticking) Tickle() { t.lastBeat.Store(time.Now().UnixNano()) }
func (t *Ticking) Suspend() { t.suspended.Store(true) }
func (t *Ticking) Resume() {
	t.suspended.Store(false)
	t.Tickle()
}

// Stale reports whether the watchdog hasn't been tickled within within,
// and is not currently suspended (a suspended watchdog is expected to be
// quiet — the main loop is asleep, not wedged).
func (t *Ticking) Stale(within time.Duration) bool {
	if t.suspended.Load() {
		return false
	}
	last := time.Unix(0, t.lastBeat.Load())
	return time.Since(last) > within
}
