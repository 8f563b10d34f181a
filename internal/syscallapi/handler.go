// Package syscallapi implements the syscall handler (§4.4): decoding and
// servicing the six syscall classes, applying the filter policy, and
// encoding return values back into process registers.
package syscallapi

import (
	"github.com/edirooss/tock-kernel/internal/grant"
	"github.com/edirooss/tock-kernel/internal/process"
	"go.uber.org/zap"
)

// Handler implements dispatcher.SyscallHandler. It is the single place
// where the six syscall classes are decoded off raw registers and
// serviced.
type Handler struct {
	Lookup Lookup
	Filter Filter
	Memop  MemopHandler
	Log    *zap.Logger
}

func New(lookup Lookup, filter Filter, memop MemopHandler, log *zap.Logger) *Handler {
	if filter == nil {
		filter = AllowAllFilter{}
	}
	if memop == nil {
		memop = NullMemopHandler{}
	}
	return &Handler{Lookup: lookup, Filter: filter, Memop: memop, Log: log.Named("syscall")}
}

// Handle services one trapped syscall and writes its return value back
// into the process's registers before returning.
func (h *Handler) Handle(pid process.ID, p *process.Process, raw process.RawSyscall) {
	switch raw.Which {
	case ClassYield:
		h.handleYield(p, raw.R0, raw.R1)
		return // Yield writes a byte, not an encoded register return
	case ClassSubscribe:
		ret := h.handleSubscribe(p, uint32(raw.R0), uint32(raw.R1), raw.R2, raw.R3)
		p.SetSyscallReturnValue(ret.Encode())
	case ClassCommand:
		ret := h.handleCommand(p, uint32(raw.R0), uint32(raw.R1), raw.R2, raw.R3)
		p.SetSyscallReturnValue(ret.Encode())
	case ClassReadWriteAllow:
		ret := h.handleReadWriteAllow(p, uint32(raw.R0), uint32(raw.R1), raw.R2, raw.R3)
		p.SetSyscallReturnValue(ret.Encode())
	case ClassReadOnlyAllow:
		ret := h.handleReadOnlyAllow(p, uint32(raw.R0), uint32(raw.R1), raw.R2, raw.R3)
		p.SetSyscallReturnValue(ret.Encode())
	case ClassUserspaceReadableAllow:
		ret := h.handleUserspaceReadableAllow(p, uint32(raw.R0), uint32(raw.R1), raw.R2, raw.R3)
		p.SetSyscallReturnValue(ret.Encode())
	case ClassExit:
		h.handleExit(p, raw.R0, raw.R1)
		return // terminal — no return value to deliver
	case ClassMemop:
		ret := h.Memop.Memop(p, raw.R0, raw.R1)
		p.SetSyscallReturnValue(ret.Encode())
	default:
		// Unrecognized syscall class: fail loudly to the process rather
		// than silently doing nothing, so a misbehaving process notices.
		p.SetSyscallReturnValue(Failure(NOSUPPORT).Encode())
	}
}

// handleYield implements §4.4.1. Invalid `which` values are a silent
// no-op: no byte write, no state transition.
func (h *Handler) handleYield(p *process.Process, which, addr uintptr) {
	switch which {
	case YieldWait:
		p.Yield()
		p.WriteByte(addr, 1)
	case YieldNoWait:
		if p.TaskQueueLen() > 0 {
			p.Yield()
			p.WriteByte(addr, 1)
		} else {
			p.WriteByte(addr, 0)
		}
	default:
		// silent no-op
	}
}

// handleExit implements §4.4 Exit.
func (h *Handler) handleExit(p *process.Process, which, code uintptr) {
	switch which {
	case ExitTerminate:
		c := int32(code)
		p.Terminate(&c)
	case ExitRestart:
		p.Terminate(nil) // terminated without a completion code; no restart is performed
	default:
		p.SetSyscallReturnValue(Failure(NOSUPPORT).Encode())
	}
}

// ensureGrant implements the lazy-allocate-retry-once protocol shared by
// Subscribe and the three Allow variants (§4.4).
func (h *Handler) ensureGrant(p *process.Process, driverNum uint32) (*grant.Region, ErrorCode) {
	if r, ok := p.Grants().Lookup(driverNum); ok {
		return r, SUCCESS
	}

	var (
		result   AllocateResult
		resolved bool
		found    bool
	)
	attempt := func() {
		h.Lookup.WithDriver(driverNum, func(d Driver) {
			if d == nil {
				return
			}
			found = true
			result = d.AllocateGrant(p)
			resolved = result.Err == nil
		})
	}

	attempt()
	if !found {
		return nil, NODEVICE
	}
	if !resolved {
		attempt() // retry exactly once
	}
	if !resolved {
		return nil, NOMEM
	}

	r := p.Grants().Allocate(driverNum)
	r.Data = result.Data
	return r, SUCCESS
}

func (h *Handler) handleSubscribe(p *process.Process, driverNum, subNum uint32, fnPtr, appdata uintptr) Return {
	if err := h.Filter.FilterSyscall(p, driverNum, ClassSubscribe); err != nil {
		return SubscribeFailure(filterErrCode(err), fnPtr, appdata)
	}
	if !p.ValidateExecutable(fnPtr) {
		return SubscribeFailure(INVAL, fnPtr, appdata)
	}

	region, errc := h.ensureGrant(p, driverNum)
	if region == nil {
		return SubscribeFailure(errc, fnPtr, appdata)
	}

	prev := region.Subscribe(subNum, grant.UpcallDescriptor{FnPtr: fnPtr, AppData: appdata})
	// Purge pending deliveries for the superseded upcall AFTER installing
	// the new one (§5 ordering guarantees).
	p.RemovePendingUpcalls(driverNum, subNum)

	return SubscribeSuccess(prev.FnPtr, prev.AppData)
}

func (h *Handler) handleCommand(p *process.Process, driverNum, subNum uint32, arg0, arg1 uintptr) Return {
	if err := h.Filter.FilterSyscall(p, driverNum, ClassCommand); err != nil {
		return Failure(filterErrCode(err))
	}

	var ret Return
	found := false
	h.Lookup.WithDriver(driverNum, func(d Driver) {
		if d == nil {
			return
		}
		found = true
		ret = d.Command(p, subNum, arg0, arg1)
	})
	if !found {
		return Failure(NODEVICE)
	}
	return ret
}

func (h *Handler) handleReadWriteAllow(p *process.Process, driverNum, subNum uint32, addr, length uintptr) Return {
	if err := h.Filter.FilterSyscall(p, driverNum, ClassReadWriteAllow); err != nil {
		return AllowReadWriteFailure(filterErrCode(err), addr, length)
	}
	if !p.ValidateReadWrite(addr, length) {
		return AllowReadWriteFailure(INVAL, addr, length)
	}
	region, errc := h.ensureGrant(p, driverNum)
	if region == nil {
		return AllowReadWriteFailure(errc, addr, length)
	}
	prev := region.SwapReadWriteAllow(subNum, grant.Buffer{Ptr: addr, Len: length})
	return AllowReadWriteSuccess(prev.Ptr, prev.Len)
}

func (h *Handler) handleReadOnlyAllow(p *process.Process, driverNum, subNum uint32, addr, length uintptr) Return {
	if err := h.Filter.FilterSyscall(p, driverNum, ClassReadOnlyAllow); err != nil {
		return AllowReadOnlyFailure(filterErrCode(err), addr, length)
	}
	if !p.ValidateReadOnly(addr, length) {
		return AllowReadOnlyFailure(INVAL, addr, length)
	}
	region, errc := h.ensureGrant(p, driverNum)
	if region == nil {
		return AllowReadOnlyFailure(errc, addr, length)
	}
	prev := region.SwapReadOnlyAllow(subNum, grant.Buffer{Ptr: addr, Len: length})
	return AllowReadOnlySuccess(prev.Ptr, prev.Len)
}

func (h *Handler) handleUserspaceReadableAllow(p *process.Process, driverNum, subNum uint32, addr, length uintptr) Return {
	if err := h.Filter.FilterSyscall(p, driverNum, ClassUserspaceReadableAllow); err != nil {
		return UserspaceReadableAllowFailure(filterErrCode(err), addr, length)
	}
	if !p.ValidateReadWrite(addr, length) {
		return UserspaceReadableAllowFailure(INVAL, addr, length)
	}
	region, errc := h.ensureGrant(p, driverNum)
	if region == nil {
		return UserspaceReadableAllowFailure(errc, addr, length)
	}
	prev := region.SwapUserspaceReadableAllow(subNum, grant.Buffer{Ptr: addr, Len: length})
	return UserspaceReadableAllowSuccess(prev.Ptr, prev.Len)
}

// filterErrCode maps a filter rejection to a process-visible error code.
// Filters in this codebase return *FilterError; any other error type maps
// to NOSUPPORT so a misbehaving filter can't crash the kernel.
func filterErrCode(err error) ErrorCode {
	if fe, ok := err.(*FilterError); ok {
		return fe.Code
	}
	return NOSUPPORT
}

// FilterError is the error type Filter implementations should return so
// filterErrCode can recover the intended process-visible code.
type FilterError struct {
	Code ErrorCode
}

func (e *FilterError) Error() string { return "syscall filtered: " + e.Code.String() }
