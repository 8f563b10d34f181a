// Package console implements a reference write-only console capsule:
// processes Allow a read-only buffer, Command a write of N bytes from it,
// and are notified via upcall when the (synchronous, in this simulator)
// write completes. Grounded on the teacher's zap-based structured
// logging conventions — the capsule's "hardware" is simply the kernel's
// own logger.
package console

import (
	"sync"

	"github.com/edirooss/tock-kernel/internal/grant"
	"github.com/edirooss/tock-kernel/internal/process"
	"github.com/edirooss/tock-kernel/internal/syscallapi"
	"go.uber.org/zap"
)

const (
	CmdExists uint32 = 0
	CmdWrite  uint32 = 1
)

// AllowWriteBuffer is the read-only Allow slot a process lends the bytes
// to print through.
const AllowWriteBuffer uint32 = 0

// UpcallWriteDone is the subscribe_num fired once a write completes.
const UpcallWriteDone uint32 = 0

type grantState struct{}

// Capsule is the console driver: every process shares it, writes are
// serialized through a single mutex (matching the teacher's
// SystemdService.withCritical pattern) since the underlying "device" —
// the process log — is one shared sink.
type Capsule struct {
	driverNum uint32
	log       *zap.Logger

	mu sync.Mutex
}

func New(driverNum uint32, log *zap.Logger) *Capsule {
	return &Capsule{driverNum: driverNum, log: log.Named("capsule.console")}
}

func (c *Capsule) AllocateGrant(*process.Process) syscallapi.AllocateResult {
	return syscallapi.AllocateResult{Data: &grantState{}}
}

func (c *Capsule) Command(p *process.Process, sub uint32, arg0, _ uintptr) syscallapi.Return {
	switch sub {
	case CmdExists:
		return syscallapi.Success()
	case CmdWrite:
		region, ok := p.Grants().Lookup(c.driverNum)
		if !ok {
			return syscallapi.Failure(syscallapi.NOMEM)
		}
		buf, ok := region.ROAllows[AllowWriteBuffer]
		if !ok || buf.Len == 0 {
			return syscallapi.Failure(syscallapi.INVAL)
		}
		n := arg0
		if n > buf.Len {
			n = buf.Len
		}
		data := p.ReadBytes(buf.Ptr, n)

		c.mu.Lock()
		c.log.Info("console write", zap.String("process", p.Name()), zap.ByteString("data", data))
		c.mu.Unlock()

		c.complete(p, region, uint32(n))
		return syscallapi.Success()
	default:
		return syscallapi.Failure(syscallapi.NOSUPPORT)
	}
}

// complete delivers the write-done upcall synchronously — this
// simulator's "device" never actually takes time to drain, so there is
// no deferred-completion path to model the way the alarm capsule needs
// one.
func (c *Capsule) complete(p *process.Process, region *grant.Region, n uint32) {
	desc := region.UpcallAt(UpcallWriteDone)
	if desc.Null() {
		return
	}
	p.EnqueueUpcall(c.driverNum, UpcallWriteDone, process.FunctionCallback{
		PC:        desc.FnPtr,
		Argument0: uintptr(n),
		Data:      desc.AppData,
	})
}
