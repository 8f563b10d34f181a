// Package chip defines the abstract hardware collaborator the core
// dispatches against. Concrete chips (simulated or, on real hardware,
// register-backed) live outside this package; the core only ever depends
// on this interface.
package chip

// MPU is the hardware memory-protection unit. Enable/Disable bracket a
// switch_to() call; Configure installs the region set for a specific
// process before Enable.
type MPU interface {
	Configure(processToken any)
	Enable()
	Disable()
}

// Chip is the per-board capability set the main loop and dispatcher need:
// interrupt bottom-half service, an MPU, and the ability to put the core
// to sleep.
type Chip interface {
	ServicePendingInterrupts()
	HasPendingInterrupts() bool
	MPU() MPU
	Sleep()
	// Atomic runs f with interrupts masked, for the main loop's
	// must-not-miss-a-wakeup double-check before sleeping (§4.2 step 4).
	Atomic(f func())
}
