package syscallapi

import "github.com/edirooss/tock-kernel/internal/process"

// AllocateResult is what a capsule's AllocateGrant hook returns: either the
// driver-private payload to install in the process's grant Region, or an
// error if the capsule declines to serve this process at all.
type AllocateResult struct {
	Data any
	Err  error
}

// Driver is a capsule's syscall-facing surface. A capsule implements this
// once and is looked up by driver number via Lookup.
type Driver interface {
	// Command services a synchronous Command syscall.
	Command(p *process.Process, sub uint32, arg0, arg1 uintptr) Return
	// AllocateGrant is invoked by the kernel the first time a process
	// touches this driver's grant region; it is called at most twice per
	// syscall that finds the region unallocated (the
	// try-allocate-retry-once protocol, §4.4).
	AllocateGrant(p *process.Process) AllocateResult
}

// Lookup is the SyscallDriverLookup abstraction (§6): `with_driver`
// resolves a driver number to its Driver, calling f with nil if absent so
// callers can distinguish "no such driver" from any other failure.
type Lookup interface {
	WithDriver(driverNum uint32, f func(d Driver))
}
