// Package alarm implements a reference timer capsule: Command-driven
// alarm scheduling backed by a single upcall fired when the requested
// tick count elapses. Grounded on the teacher's SystemdService
// withCritical pattern (internal/service wrapping a mutex around every
// public operation) and adapted to drive a capsule's grant + upcall
// protocol instead of shelling out to systemctl.
package alarm

import (
	"sync"
	"time"

	"github.com/edirooss/tock-kernel/internal/process"
	"github.com/edirooss/tock-kernel/internal/scheduler"
	"github.com/edirooss/tock-kernel/internal/simchip"
	"github.com/edirooss/tock-kernel/internal/syscallapi"
	"go.uber.org/zap"
)

// Command subcommands (arbitrary but fixed, mirroring Tock's alarm driver
// shape): 0 exists, 1 read the free-running clock, 2 arm a one-shot
// alarm at now+arg0 ticks, 3 disarm.
const (
	CmdExists   uint32 = 0
	CmdNow      uint32 = 1
	CmdSetAlarm uint32 = 2
	CmdDisarm   uint32 = 3
)

// UpcallFired is the subscribe_num the alarm delivers on expiry.
const UpcallFired uint32 = 0

const ticksPerSecond = 1_000_000 // microsecond resolution

type grantState struct {
	mu    sync.Mutex
	timer *time.Timer
}

// Capsule is the alarm driver. One instance is shared by every process;
// per-process armed-timer state lives in each process's grant region.
type Capsule struct {
	driverNum uint32
	log       *zap.Logger
	chip      *simchip.Chip
	sched     *scheduler.RoundRobin
	start     time.Time

	mu  sync.Mutex
	pid map[*process.Process]process.ID
}

func New(driverNum uint32, log *zap.Logger, chip *simchip.Chip, sched *scheduler.RoundRobin) *Capsule {
	return &Capsule{
		driverNum: driverNum,
		log:       log.Named("capsule.alarm"),
		chip:      chip,
		sched:     sched,
		start:     time.Now(),
		pid:       make(map[*process.Process]process.ID),
	}
}

// RegisterProcess lets the capsule map a process back to its pid for
// re-enqueuing after an alarm fires. Board bring-up calls this once per
// admitted process; Command/AllocateGrant never create pid associations
// themselves since they only ever see the *process.Process pointer.
func (c *Capsule) RegisterProcess(pid process.ID, p *process.Process) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pid[p] = pid
}

func (c *Capsule) now() uint32 {
	return uint32(time.Since(c.start).Microseconds() % ticksPerSecond)
}

func (c *Capsule) AllocateGrant(*process.Process) syscallapi.AllocateResult {
	return syscallapi.AllocateResult{Data: &grantState{}}
}

func (c *Capsule) Command(p *process.Process, sub uint32, arg0, arg1 uintptr) syscallapi.Return {
	switch sub {
	case CmdExists:
		return syscallapi.Success()
	case CmdNow:
		return syscallapi.SuccessU32(uintptr(c.now()))
	case CmdSetAlarm:
		region, ok := p.Grants().Lookup(c.driverNum)
		if !ok {
			return syscallapi.Failure(syscallapi.NOMEM)
		}
		gs, ok := region.Data.(*grantState)
		if !ok {
			return syscallapi.Failure(syscallapi.FAIL)
		}
		dt := time.Duration(uint32(arg0)) * time.Microsecond

		gs.mu.Lock()
		if gs.timer != nil {
			gs.timer.Stop()
		}
		gs.timer = time.AfterFunc(dt, func() { c.fire(p) })
		gs.mu.Unlock()

		return syscallapi.Success()
	case CmdDisarm:
		region, ok := p.Grants().Lookup(c.driverNum)
		if !ok {
			return syscallapi.Failure(syscallapi.ALREADY)
		}
		gs, ok := region.Data.(*grantState)
		if ok {
			gs.mu.Lock()
			if gs.timer != nil {
				gs.timer.Stop()
				gs.timer = nil
			}
			gs.mu.Unlock()
		}
		return syscallapi.Success()
	default:
		return syscallapi.Failure(syscallapi.NOSUPPORT)
	}
}

// fire delivers the alarm upcall and wakes the main loop: it enqueues the
// upcall task, re-admits the process to the ready rotation (it may be
// Yielded with an otherwise-empty queue), and raises a chip interrupt so
// a sleeping main loop's atomic double-check (§4.2 step 4) observes work
// pending instead of sleeping through the wakeup.
func (c *Capsule) fire(p *process.Process) {
	region, ok := p.Grants().Lookup(c.driverNum)
	if !ok {
		return
	}
	desc := region.UpcallAt(UpcallFired)
	if desc.Null() {
		return
	}

	p.EnqueueUpcall(c.driverNum, UpcallFired, process.FunctionCallback{
		PC:        desc.FnPtr,
		Argument0: uintptr(c.now()),
		Data:      desc.AppData,
	})

	c.mu.Lock()
	pid, known := c.pid[p]
	c.mu.Unlock()
	if known {
		c.sched.Enqueue(pid)
	}
	c.chip.RaiseInterrupt()
}
