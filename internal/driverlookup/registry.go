// Package driverlookup implements SyscallDriverLookup (§6): a static,
// board-assembled table mapping driver numbers to capsules.
package driverlookup

import (
	"sync"

	"github.com/edirooss/tock-kernel/internal/syscallapi"
)

// Registry is a concrete syscallapi.Lookup. It is built once at board
// bring-up via Register and treated as read-only afterward; the mutex
// only guards against a capsule registering itself from a background
// goroutine during startup.
type Registry struct {
	mu      sync.Mutex
	drivers map[uint32]syscallapi.Driver
}

func New() *Registry {
	return &Registry{drivers: make(map[uint32]syscallapi.Driver)}
}

// Register installs d under driverNum. Panics on a duplicate registration
// — two capsules claiming the same driver number is a board configuration
// bug, not a runtime condition to handle gracefully.
func (r *Registry) Register(driverNum uint32, d syscallapi.Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.drivers[driverNum]; exists {
		panic("driverlookup: duplicate registration for driver number")
	}
	r.drivers[driverNum] = d
}

// WithDriver implements syscallapi.Lookup.
func (r *Registry) WithDriver(driverNum uint32, f func(d syscallapi.Driver)) {
	r.mu.Lock()
	d := r.drivers[driverNum]
	r.mu.Unlock()
	f(d) // d is nil if unregistered; f must check
}
