// Package kernel implements the Kernel object (§4.1): the static process
// table, the grant-counter/finalize state machine, the work counter, and
// the closure-iteration primitives the rest of the core is built on.
package kernel

import (
	"sync"
	"sync/atomic"

	"github.com/edirooss/tock-kernel/internal/grant"
	"github.com/edirooss/tock-kernel/internal/process"
	"go.uber.org/zap"
)

// Kernel owns the immutable-shape process table (slots may be occupied or
// empty, but the slice itself never grows after construction) plus the
// cross-cutting grant and work-counter bookkeeping every other component
// reads or mutates.
type Kernel struct {
	log *zap.Logger

	mu    sync.RWMutex
	table []*process.Process // index-aligned; nil entries are unoccupied slots

	grants  grant.Counter
	work    int64 // atomic; see Work()
	nextGen uint64 // atomic; create_process_identifier
}

// New constructs a Kernel over a process-table slice of the given size.
// Slots start empty; board bring-up populates them via SetProcess before
// running the credential checker.
func New(log *zap.Logger, slots int) *Kernel {
	return &Kernel{
		log:   log.Named("kernel"),
		table: make([]*process.Process, slots),
	}
}

// CreateProcessIdentifier returns the next generation counter value. It
// never repeats within one boot — restarted or reloaded processes always
// get a fresh one, which is what makes stale process.ID values safely
// detectable instead of silently aliasing.
func (k *Kernel) CreateProcessIdentifier() uint64 {
	return atomic.AddUint64(&k.nextGen, 1)
}

// SetProcess installs p at table index idx. Board bring-up only; not safe
// to call once the main loop is running.
func (k *Kernel) SetProcess(idx int, p *process.Process) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.table[idx] = p
}

// Slots returns the size of the process table.
func (k *Kernel) Slots() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.table)
}

// GetProcess returns the process handle for id, iff the slot is occupied
// and its generation matches id.Gen.
func (k *Kernel) GetProcess(id process.ID) (*process.Process, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if id.Index < 0 || id.Index >= len(k.table) {
		return nil, false
	}
	p := k.table[id.Index]
	if p == nil || p.Generation() != id.Gen {
		return nil, false
	}
	return p, true
}

// ProcessAt returns the process occupying table index idx (if any) along
// with its current process.ID. Used by table-order walkers — the
// credential checker FSM in particular — that need to address a slot
// directly rather than via a previously-issued ID.
func (k *Kernel) ProcessAt(idx int) (*process.Process, process.ID, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if idx < 0 || idx >= len(k.table) {
		return nil, process.ID{}, false
	}
	p := k.table[idx]
	if p == nil {
		return nil, process.ID{}, false
	}
	return p, process.ID{Index: idx, Gen: p.Generation()}, true
}

// ProcessMapOr calls f on the process at id if valid, else returns dflt.
func (k *Kernel) ProcessMapOr(id process.ID, dflt any, f func(*process.Process) any) any {
	p, ok := k.GetProcess(id)
	if !ok {
		return dflt
	}
	return f(p)
}

// ProcessEach calls f once for every occupied slot, in table order.
func (k *Kernel) ProcessEach(f func(idx int, p *process.Process)) {
	k.mu.RLock()
	snapshot := make([]*process.Process, len(k.table))
	copy(snapshot, k.table)
	k.mu.RUnlock()

	for i, p := range snapshot {
		if p != nil {
			f(i, p)
		}
	}
}

// ProcessUntil calls f for each occupied slot in table order and stops at
// the first call that returns ok == true, returning that result. If no
// call returns ok, the zero value and false are returned.
func ProcessUntil[T any](k *Kernel, f func(idx int, p *process.Process) (T, bool)) (T, bool) {
	k.mu.RLock()
	snapshot := make([]*process.Process, len(k.table))
	copy(snapshot, k.table)
	k.mu.RUnlock()

	var zero T
	for i, p := range snapshot {
		if p == nil {
			continue
		}
		if v, ok := f(i, p); ok {
			return v, true
		}
	}
	return zero, false
}

// CreateGrant registers one more grant type and returns its ordinal.
// Panics (kernel-consistency violation) if grants have already been
// finalized by GetGrantCountAndFinalize.
func (k *Kernel) CreateGrant(_ MemoryAllocationCapability) uint32 {
	n := k.grants.Register()
	k.log.Debug("grant registered", zap.Uint32("ordinal", n))
	return n
}

// GetGrantCountAndFinalize freezes the grant-type registry and returns the
// final count. Called once by the process loader before any process is
// materialized.
func (k *Kernel) GetGrantCountAndFinalize() uint32 {
	n := k.grants.GetCountAndFinalize()
	k.log.Info("grants finalized", zap.Uint32("count", n))
	return n
}

// Work returns the current outstanding-work counter.
func (k *Kernel) Work() int64 {
	return atomic.LoadInt64(&k.work)
}

// IncrementWork / DecrementWork are the externally-callable forms; they
// require an ExternalProcessCapability, restricting them to trusted core
// collaborators (the dispatcher, the credential checker) rather than
// arbitrary capsule code. Internal bookkeeping inside this package would
// use the same counter directly, but every caller in this codebase is, in
// fact, external to this package, so there is no separate internal path.
func (k *Kernel) IncrementWork(_ ExternalProcessCapability) int64 {
	return atomic.AddInt64(&k.work, 1)
}

func (k *Kernel) DecrementWork(_ ExternalProcessCapability) int64 {
	v := atomic.AddInt64(&k.work, -1)
	if v < 0 {
		panic("kernel: work counter went negative — kernel consistency violation")
	}
	return v
}

// HardfaultAllApps administratively faults every process whose state is
// Schedulable(), which includes CredentialsApproved as well as
// running/yielded processes.
// Requires a ProcessManagementCapability; used for test/recovery tooling,
// exposed at the top by the admin API behind an authenticated session.
func (k *Kernel) HardfaultAllApps(_ ProcessManagementCapability) int {
	n := 0
	k.ProcessEach(func(_ int, p *process.Process) {
		if p.State().Schedulable() {
			p.SetFaultState()
			n++
		}
	})
	k.log.Warn("hardfault_all_apps invoked", zap.Int("faulted", n))
	return n
}
