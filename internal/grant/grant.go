// Package grant implements the per-(process, driver) typed storage slab
// capsules use to hold per-process state, plus the upcall and allow-buffer
// slots that live alongside it. Grants are allocated lazily on first use
// and, as a whole, the set of registered driver numbers is finalized once
// the first process is materialized (see Counter).
package grant

import "sync"

// UpcallDescriptor identifies a registered (or cleared) upcall target.
// A zero FnPtr means "no upcall installed".
type UpcallDescriptor struct {
	FnPtr   uintptr
	AppData uintptr
}

func (d UpcallDescriptor) Null() bool { return d.FnPtr == 0 }

// Buffer is a lent (ptr, len) pair, as exchanged by the three Allow syscall
// variants. The zero value (0, 0) is the "nothing lent yet" sentinel.
type Buffer struct {
	Ptr uintptr
	Len uintptr
}

// Region is the per-(process, driver) storage slab: upcall slots, the three
// allow-buffer kinds, and an arbitrary driver-private payload installed by
// the driver's AllocateGrant hook.
type Region struct {
	mu sync.Mutex

	Upcalls    map[uint32]UpcallDescriptor
	RWAllows   map[uint32]Buffer
	ROAllows   map[uint32]Buffer
	UserAllows map[uint32]Buffer

	Data any
}

func newRegion() *Region {
	return &Region{
		Upcalls:    make(map[uint32]UpcallDescriptor),
		RWAllows:   make(map[uint32]Buffer),
		ROAllows:   make(map[uint32]Buffer),
		UserAllows: make(map[uint32]Buffer),
	}
}

// Subscribe installs fnPtr/appdata at subNum and returns the previously
// installed descriptor (the zero value if none). Subscribe never fails;
// syscallapi is responsible for rejecting invalid fn_ptr values before
// calling this.
func (r *Region) Subscribe(subNum uint32, d UpcallDescriptor) UpcallDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.Upcalls[subNum]
	if d.Null() {
		delete(r.Upcalls, subNum)
	} else {
		r.Upcalls[subNum] = d
	}
	return prev
}

func (r *Region) UpcallAt(subNum uint32) UpcallDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Upcalls[subNum]
}

func allowSwap(mu *sync.Mutex, m map[uint32]Buffer, subNum uint32, b Buffer) Buffer {
	mu.Lock()
	defer mu.Unlock()
	prev := m[subNum]
	m[subNum] = b
	return prev
}

func (r *Region) SwapReadWriteAllow(subNum uint32, b Buffer) Buffer {
	return allowSwap(&r.mu, r.RWAllows, subNum, b)
}

func (r *Region) SwapReadOnlyAllow(subNum uint32, b Buffer) Buffer {
	return allowSwap(&r.mu, r.ROAllows, subNum, b)
}

func (r *Region) SwapUserspaceReadableAllow(subNum uint32, b Buffer) Buffer {
	return allowSwap(&r.mu, r.UserAllows, subNum, b)
}

// Table is the per-process collection of Regions, one per driver number
// that has actually been touched by that process. Allocation is lazy: a
// Region is created on first Allocate.
type Table struct {
	mu      sync.Mutex
	regions map[uint32]*Region
}

func NewTable() *Table {
	return &Table{regions: make(map[uint32]*Region)}
}

// Lookup returns the existing region for driverNum, if any, without
// allocating one.
func (t *Table) Lookup(driverNum uint32) (*Region, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.regions[driverNum]
	return r, ok
}

// Allocate installs a freshly-created region for driverNum and returns it.
// Calling this for an already-allocated driverNum replaces nothing and just
// returns the existing region — allocation is idempotent from the caller's
// point of view.
func (t *Table) Allocate(driverNum uint32) *Region {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.regions[driverNum]; ok {
		return r
	}
	r := newRegion()
	t.regions[driverNum] = r
	return r
}

// Counter tracks the monotonically increasing count of grant types
// registered via create_grant (one per Register call), and enforces the finalize-once
// invariant: once the first process has been materialized, the board has
// called GetCountAndFinalize and no further registration is legal. Doing so
// anyway would silently shift every already-materialized process's grant
// layout, so it is treated as a kernel-consistency violation and aborts.
type Counter struct {
	mu        sync.Mutex
	count     uint32
	finalized bool
}

// Register records one more grant type and returns its ordinal. Panics if
// grants have already been finalized.
func (c *Counter) Register() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalized {
		panic("grant.Counter: create_grant called after finalize — kernel consistency violation")
	}
	n := c.count
	c.count++
	return n
}

// GetCountAndFinalize freezes registration and returns the final count.
// Idempotent: calling it again just returns the same count.
func (c *Counter) GetCountAndFinalize() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finalized = true
	return c.count
}

func (c *Counter) Finalized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finalized
}
