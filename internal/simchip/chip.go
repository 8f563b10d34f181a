// Package simchip is the host-mode stand-in for real chip hardware: an
// MPU that only bookkeeps its configured region, an interrupt flag a test
// or capsule can raise, and sleep implemented as blocking on a
// condition variable instead of a WFI instruction.
package simchip

import (
	"sync"

	"github.com/edirooss/tock-kernel/internal/chip"
)

// MPU is a no-op memory-protection unit: there is no real address-space
// isolation in a host process, so Configure/Enable/Disable just record
// state for introspection and to keep the dispatcher's control flow
// identical to real hardware.
type MPU struct {
	mu      sync.Mutex
	enabled bool
	token   any
}

func (m *MPU) Configure(processToken any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = processToken
}

func (m *MPU) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
}

func (m *MPU) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
}

func (m *MPU) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// Chip is the host-simulated chip.Chip: a pending-interrupt flag any
// capsule or test can raise, Sleep implemented as a condition-variable
// wait instead of WFI, and Atomic implemented as taking the same lock the
// interrupt flag is guarded by — the host-process analogue of masking
// interrupts.
type Chip struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending bool
	woken   bool

	sharedMPU *MPU
}

func New() *Chip {
	c := &Chip{sharedMPU: &MPU{}}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// RaiseInterrupt marks an interrupt pending and wakes a blocked Sleep.
// Capsules (e.g. the alarm capsule's timer fire) and tests call this.
func (c *Chip) RaiseInterrupt() {
	c.mu.Lock()
	c.pending = true
	c.woken = true
	c.mu.Unlock()
	c.cond.Broadcast()
}

func (c *Chip) HasPendingInterrupts() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// ServicePendingInterrupts runs each interrupt's bottom half. In this
// simulator there is nothing to actually run per interrupt source — the
// capsule that raised the interrupt already queued its upcall directly —
// so this only clears the flag, mirroring the real chip's "bottom halves
// serviced, top-half flag cleared" contract.
func (c *Chip) ServicePendingInterrupts() {
	c.mu.Lock()
	c.pending = false
	c.mu.Unlock()
}

// MPU returns the chip's single shared MPU. Real hardware has exactly one
// MPU too; per-process configuration happens via Configure, not by
// handing out distinct instances.
func (c *Chip) MPU() chip.MPU { return c.sharedMPU }

// Sleep blocks until an interrupt is raised. It is only ever called from
// inside Atomic, which already holds c.mu — sync.Cond.Wait releases it
// for the duration of the wait and reacquires it before returning, giving
// RaiseInterrupt a chance to run concurrently.
func (c *Chip) Sleep() {
	for !c.woken {
		c.cond.Wait()
	}
	c.woken = false
}

// Atomic runs f with the chip's lock held, the host-process analogue of
// running with interrupts masked: RaiseInterrupt blocks until f returns,
// so f's pending-interrupt check and the Sleep() call inside it observe a
// consistent snapshot (§4.2 step 4, §8 scenario S6).
func (c *Chip) Atomic(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f()
}
