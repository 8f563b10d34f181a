package simchip

import (
	"sync"
	"time"

	"github.com/edirooss/tock-kernel/internal/process"
)

// Program is simulated userspace code. It runs on its own goroutine for
// the lifetime of the process and is expected to loop internally,
// fetching its next entry point via UserContext.NextCallback — the
// simulator's stand-in for "jump to the PC set_process_function
// installed". A Program that returns is equivalent to falling off the
// end of main(): the Runtime reports process.ReasonNone, which the
// dispatcher answers with set_fault_state().
type Program func(u *UserContext)

// UserContext is the only way a Program touches the kernel: issuing
// syscalls and reading the callback most recently installed by
// set_process_function.
type UserContext struct {
	rt *Runtime
}

// Syscall traps into the kernel with the given raw registers and blocks
// until the dispatcher has processed it and installed a return value.
func (u *UserContext) Syscall(which, r0, r1, r2, r3 uintptr) [5]uintptr {
	return u.rt.syscall(process.RawSyscall{Which: which, R0: r0, R1: r1, R2: r2, R3: r3})
}

// NextCallback blocks until the kernel installs the process's next entry
// point (the kernel-synthesized init task, or a delivered upcall) and
// returns it.
func (u *UserContext) NextCallback() process.FunctionCallback {
	return <-u.rt.installCh
}

// ReadByte reads the process's simulated memory, as written by the
// kernel's Yield set_byte or any Allow buffer traffic a capsule performed
// against this process directly (out of scope for the core, provided for
// test Programs that want to assert on it).
func (u *UserContext) ReadByte(addr uintptr) byte { return u.rt.readByte(addr) }

// WriteBytes seeds the process's own simulated memory — e.g. placing a
// buffer at the address a Program is about to Allow to a capsule.
func (u *UserContext) WriteBytes(addr uintptr, data []byte) { u.rt.WriteBytes(addr, data) }

// Runtime is the process.Runtime implementation backing one simulated
// process: a single goroutine running its Program, synchronized with the
// kernel thread over unbuffered channels so exactly one side executes at
// a time — the host-process analogue of the MPU-enforced exclusivity
// between kernel and userspace.
type Runtime struct {
	program Program

	mu  sync.Mutex
	mem map[uintptr]byte

	toKernel  chan process.SwitchReturn
	toUser    chan [5]uintptr
	installCh chan process.FunctionCallback

	started bool
}

func NewRuntime(prog Program) *Runtime {
	return &Runtime{
		program:   prog,
		mem:       make(map[uintptr]byte),
		toKernel:  make(chan process.SwitchReturn),
		toUser:    make(chan [5]uintptr),
		installCh: make(chan process.FunctionCallback, 1),
	}
}

func (r *Runtime) readByte(addr uintptr) byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mem[addr]
}

func (r *Runtime) WriteByte(addr uintptr, value byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mem[addr] = value
}

func (r *Runtime) ReadBytes(addr uintptr, length uintptr) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]byte, length)
	for i := uintptr(0); i < length; i++ {
		out[i] = r.mem[addr+i]
	}
	return out
}

// WriteBytes lets a Program (test fixture) seed its own simulated memory
// — e.g. placing a string at the address it's about to Allow to a
// capsule. Not part of process.Runtime; Programs reach it through
// UserContext.WriteBytes.
func (r *Runtime) WriteBytes(addr uintptr, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, b := range data {
		r.mem[addr+uintptr(i)] = b
	}
}

func (r *Runtime) SetReturnValue(encoded [5]uintptr) {
	r.toUser <- encoded
}

// Install stages the process's next entry point. Never called twice
// before the Program has consumed the previous one — set_process_function
// is only invoked while the process is Yielded waiting on NextCallback.
func (r *Runtime) Install(cb process.FunctionCallback) {
	r.installCh <- cb
}

// syscall is called from the Program's goroutine: it hands the kernel
// thread a SwitchReturn and blocks for the encoded reply.
func (r *Runtime) syscall(raw process.RawSyscall) [5]uintptr {
	r.toKernel <- process.SwitchReturn{Reason: process.ReasonSyscallFired, Syscall: raw}
	return <-r.toUser
}

// SwitchTo implements process.Runtime. The first call launches the
// Program goroutine; every call blocks until either the goroutine traps
// into the kernel (syscall or fault) or the timeslice deadline passes.
func (r *Runtime) SwitchTo(deadline time.Time, hasDeadline bool) process.SwitchReturn {
	r.mu.Lock()
	started := r.started
	r.started = true
	r.mu.Unlock()

	if !started {
		go r.run()
	}

	if !hasDeadline {
		return <-r.toKernel
	}
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case ret := <-r.toKernel:
		return ret
	case <-timer.C:
		return process.SwitchReturn{Reason: process.ReasonInterrupted}
	}
}

func (r *Runtime) run() {
	defer func() {
		if recover() != nil {
			r.toKernel <- process.SwitchReturn{Reason: process.ReasonFault}
		}
	}()
	u := &UserContext{rt: r}
	if r.program == nil {
		r.toKernel <- process.SwitchReturn{Reason: process.ReasonFault}
		return
	}
	r.program(u)
	// Program returned: spurious exit, same as a real process falling
	// off the end of main().
	r.toKernel <- process.SwitchReturn{Reason: process.ReasonNone}
}
