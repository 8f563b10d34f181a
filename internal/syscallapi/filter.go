package syscallapi

import "github.com/edirooss/tock-kernel/internal/process"

// Filter is consulted before dispatching Command/Subscribe/Allow syscalls
// (§4.4). Yield, Exit, and Memop are unfilterable and never passed here.
// A rejection returns an error to the process without ending its
// timeslice.
type Filter interface {
	FilterSyscall(p *process.Process, driverNum uint32, syscallClass uintptr) error
}

// AllowAllFilter accepts every syscall; the default when no board policy
// is configured.
type AllowAllFilter struct{}

func (AllowAllFilter) FilterSyscall(*process.Process, uint32, uintptr) error { return nil }
