package process

import "time"

// Runtime is the userspace-execution collaborator: whatever actually runs
// the process's code between context switches. On real hardware this
// would be "jump to the saved PC with the MPU configured for this
// process"; in this host simulator it is a goroutine-backed stand-in (see
// internal/simchip) that blocks until the simulated process issues a
// syscall, faults, or is interrupted by the scheduler timer.
type Runtime interface {
	// SwitchTo resumes the process until it traps back into the kernel.
	// deadline is when the current timeslice ends and hasDeadline is
	// false in cooperative (dummy-timer) mode; a Runtime that can't
	// otherwise detect timeslice expiry (e.g. a tight userspace loop that
	// never calls back into the kernel) must use this to return
	// ReasonInterrupted with no further syscall.
	SwitchTo(deadline time.Time, hasDeadline bool) SwitchReturn
	// SetReturnValue installs a syscall's encoded return value into the
	// process's simulated registers, to be observed the next time its
	// code runs.
	SetReturnValue(encoded [5]uintptr)
	// WriteByte attempts to write value at addr in the process's memory.
	// Invalid addresses are silently ignored, matching Yield's set_byte
	// semantics (§9, "Unsafe userspace memory access").
	WriteByte(addr uintptr, value byte)
	// ReadBytes copies length bytes starting at addr out of the
	// process's memory — how a capsule actually consumes a read-only or
	// read-write Allow buffer it was lent.
	ReadBytes(addr uintptr, length uintptr) []byte
	// Install sets the PC/argument registers a Yielded process should
	// resume at on its next SwitchTo.
	Install(cb FunctionCallback)
}

func (p *Process) SetRuntime(r Runtime) {
	p.mu.Lock()
	p.runtime = r
	p.mu.Unlock()
}

// SwitchTo runs the process until it traps back into the kernel.
func (p *Process) SwitchTo(deadline time.Time, hasDeadline bool) SwitchReturn {
	p.mu.Lock()
	r := p.runtime
	p.mu.Unlock()
	if r == nil {
		panic("process: SwitchTo called with no Runtime installed — kernel consistency violation")
	}
	return r.SwitchTo(deadline, hasDeadline)
}

func (p *Process) SetSyscallReturnValue(encoded [5]uintptr) {
	p.mu.Lock()
	r := p.runtime
	p.mu.Unlock()
	if r != nil {
		r.SetReturnValue(encoded)
	}
}

func (p *Process) WriteByte(addr uintptr, value byte) {
	p.mu.Lock()
	r := p.runtime
	p.mu.Unlock()
	if r != nil {
		r.WriteByte(addr, value)
	}
}

func (p *Process) ReadBytes(addr uintptr, length uintptr) []byte {
	p.mu.Lock()
	r := p.runtime
	p.mu.Unlock()
	if r == nil {
		return nil
	}
	return r.ReadBytes(addr, length)
}
