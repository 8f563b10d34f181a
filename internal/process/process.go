package process

import (
	"fmt"
	"sync"

	"github.com/edirooss/tock-kernel/internal/grant"
)

// MemRange is a half-open [Start, End) byte range in the process's flash or
// RAM address space.
type MemRange struct {
	Start uintptr
	End   uintptr
}

func (r MemRange) Contains(addr, length uintptr) bool {
	if length == 0 {
		return addr >= r.Start && addr <= r.End
	}
	end := addr + length
	if end < addr { // overflow
		return false
	}
	return addr >= r.Start && end <= r.End
}

// Layout is the static memory description of a loaded process, fixed at
// load time and never mutated afterward.
type Layout struct {
	Flash         MemRange
	IntegrityEnd  uintptr // flash offset where code ends and TBF footers begin
	AccessibleRW  MemRange
	AccessibleRO  MemRange
	Executable    MemRange // valid Subscribe fn_ptr targets
}

// RestartPolicy decides what set_fault_state() should do with a faulted
// process: terminate it for good, or restart it from its initial state.
type RestartPolicy int

const (
	RestartAlways RestartPolicy = iota
	RestartNever
)

// Process is a single loaded process's mutable kernel-side handle. All
// mutation happens from the single kernel thread (the dispatcher), so a
// plain mutex — never contended — is enough to make the Go race detector
// and `go vet` happy without claiming any real concurrency here.
type Process struct {
	mu sync.Mutex

	name   string
	layout Layout
	gen    uint64
	state  State
	policy RestartPolicy

	tasks  taskQueue
	grants *grant.Table

	shortID      ShortID
	credentialed bool // true once CredentialsPass/Fail has been recorded, exactly once

	mpuConfigured bool
	runtime       Runtime

	footerBytes []byte
}

// ShortID is the compact identifier the credential checker assigns once a
// process's footers have been checked (or found absent).
type ShortID struct {
	LocallyUnique bool
	Value         uint32 // meaningful iff !LocallyUnique
}

// Conflicts reports whether two ShortIDs collide. LocallyUnique never
// conflicts with anything, including another LocallyUnique id — it means
// "this process needs no deduplication", not "value zero". Only two
// fixed-value ids with equal Value collide.
func (a ShortID) Conflicts(b ShortID) bool {
	if a.LocallyUnique || b.LocallyUnique {
		return false
	}
	return a.Value == b.Value
}

func New(name string, layout Layout, gen uint64, policy RestartPolicy) *Process {
	return &Process{
		name:   name,
		layout: layout,
		gen:    gen,
		state:  CredentialsUnchecked,
		policy: policy,
		grants: grant.NewTable(),
	}
}

func (p *Process) Name() string { return p.name }
func (p *Process) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen
}

func (p *Process) Layout() Layout { return p.layout }

// SetFooterBytes installs the raw TBF footer bytes following the
// integrity region — board bring-up populates this from whatever loaded
// the process (flash image, test fixture, ...); the credential checker
// never sees anything below this layer.
func (p *Process) SetFooterBytes(b []byte) {
	p.mu.Lock()
	p.footerBytes = b
	p.mu.Unlock()
}

// FooterBytes returns the raw footer bytes installed by SetFooterBytes.
func (p *Process) FooterBytes() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.footerBytes
}

func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Process) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Ready reports whether the process has work to do: it is Running (about to
// be switched to), freshly CredentialsApproved (awaiting its one-time
// admission dance in Dispatch), or Yielded with a non-empty task queue.
func (p *Process) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case Running, CredentialsApproved:
		return true
	case Yielded:
		return p.tasks.len() > 0
	default:
		return false
	}
}

// MustBeSchedulable panics (kernel-consistency violation) if the process is
// not in a schedulable state. The dispatcher calls this immediately before
// acting on a process so that a scheduler bug that hands back an
// unschedulable pid is caught loudly rather than silently mis-executed.
func (p *Process) MustBeSchedulable() {
	s := p.State()
	if !s.Schedulable() {
		panic(fmt.Sprintf("process %s: scheduled while in unschedulable state %s", p.name, s))
	}
}

// EnqueueTask appends a task to the back of the process's task queue.
func (p *Process) EnqueueTask(t Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks.push(t)
}

// EnqueueInitTask installs the kernel-synthesized entry callback, run once
// after credential admission succeeds.
func (p *Process) EnqueueInitTask(pc uintptr) {
	p.EnqueueTask(Task{Kind: TaskFunctionCall, FunctionCall: FunctionCallback{PC: pc}})
}

// EnqueueUpcall delivers an upcall from a capsule as a FunctionCall task,
// tagged with its (driver, sub) origin so a later Subscribe-success can
// purge it if superseded.
func (p *Process) EnqueueUpcall(driverNum, subNum uint32, cb FunctionCallback) {
	p.EnqueueTask(Task{
		Kind:            TaskFunctionCall,
		FunctionCall:    cb,
		HasUpcallOrigin: true,
		UpcallDriverNum: driverNum,
		UpcallSubNum:    subNum,
	})
}

// TaskQueueLen reports the number of pending tasks without consuming any.
func (p *Process) TaskQueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tasks.len()
}

// RemovePendingUpcalls purges queued deliveries for (driverNum, subNum).
func (p *Process) RemovePendingUpcalls(driverNum, subNum uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks.removeUpcall(driverNum, subNum)
}

// PopTask removes and returns the head task, if any.
func (p *Process) PopTask() (Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tasks.pop()
}

// SetProcessFunction installs cb as the next thing switch_to() will resume
// at, transitioning the process to Running.
func (p *Process) SetProcessFunction(cb FunctionCallback) {
	p.mu.Lock()
	p.state = Running
	r := p.runtime
	p.mu.Unlock()
	if r != nil {
		r.Install(cb)
	}
}

// Yield transitions Running -> Yielded.
func (p *Process) Yield() {
	p.setState(Yielded)
}

// StopRequested transitions {Running,Yielded} -> {StoppedRunning,StoppedYielded}.
func (p *Process) StopRequested() {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case Running:
		p.state = StoppedRunning
	case Yielded:
		p.state = StoppedYielded
	}
}

// Resume transitions {StoppedRunning,StoppedYielded} back to {Running,Yielded}.
func (p *Process) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case StoppedRunning:
		p.state = Running
	case StoppedYielded:
		p.state = Yielded
	}
}

// SetFaultState applies the restart policy after an unrecovered fault.
func (p *Process) SetFaultState() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = Faulted
	if p.policy == RestartAlways {
		p.resetLocked()
	}
}

// Terminate moves the process to Terminated. completionCode is advisory
// (logged by callers); nil means "no explicit completion code" (restart
// request or kernel-initiated termination).
func (p *Process) Terminate(completionCode *int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = Terminated
}

// Restart resets process-local mutable state and returns the process to
// CredentialsUnchecked, so it goes through credential checking again.
// Per spec §3, a restarted process gets a fresh generation — callers are
// responsible for re-registering the process under a new ID with the
// kernel; Restart itself only resets this handle's internal state.
func (p *Process) Restart(newGen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	p.gen = newGen
}

func (p *Process) resetLocked() {
	p.tasks = taskQueue{}
	p.grants = grant.NewTable()
	p.credentialed = false
	p.state = CredentialsUnchecked
	p.mpuConfigured = false
}

// MarkCredentialsPass admits the process. May be called exactly once.
func (p *Process) MarkCredentialsPass(shortID ShortID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.credentialed {
		panic(fmt.Sprintf("process %s: credentials marked twice", p.name))
	}
	p.credentialed = true
	p.shortID = shortID
	p.state = CredentialsApproved
}

// MarkCredentialsFail rejects the process. May be called exactly once.
func (p *Process) MarkCredentialsFail() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.credentialed {
		panic(fmt.Sprintf("process %s: credentials marked twice", p.name))
	}
	p.credentialed = true
	p.state = CredentialsFailed
}

func (p *Process) ShortID() ShortID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shortID
}

// Grants returns this process's lazily-populated grant table.
func (p *Process) Grants() *grant.Table {
	return p.grants
}

// ConfigureMPU / DisableMPU record whether this process's MPU configuration
// is installed; the dispatcher calls ConfigureMPU before every switch_to()
// and enables/disables the chip's MPU itself. In this
// host simulator there is no real MPU; these exist so the dispatcher's
// control flow matches the original exactly and so a future real-hardware
// Chip implementation has an obvious seam (see internal/chip.MPU).
func (p *Process) ConfigureMPU() {
	p.mu.Lock()
	p.mpuConfigured = true
	p.mu.Unlock()
}

func (p *Process) DisableMPU() {
	p.mu.Lock()
	p.mpuConfigured = false
	p.mu.Unlock()
}

// ValidateExecutable reports whether addr lies inside the process's
// executable memory — used to validate Subscribe fn_ptr values.
func (p *Process) ValidateExecutable(addr uintptr) bool {
	if addr == 0 {
		return true // null means "unsubscribe", always legal
	}
	return p.layout.Executable.Contains(addr, 1)
}

// ValidateReadWrite / ValidateReadOnly check an Allow buffer against the
// process's accessible RAM/flash ranges.
func (p *Process) ValidateReadWrite(addr, length uintptr) bool {
	if length == 0 {
		return true
	}
	return p.layout.AccessibleRW.Contains(addr, length)
}

func (p *Process) ValidateReadOnly(addr, length uintptr) bool {
	if length == 0 {
		return true
	}
	return p.layout.AccessibleRO.Contains(addr, length) || p.layout.AccessibleRW.Contains(addr, length)
}
