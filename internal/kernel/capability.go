package kernel

// Capability markers gate privileged Kernel operations. Each is a
// zero-size, otherwise-uninteresting type; the only thing that makes it a
// capability is that possessing an instance is proof the caller is trusted
// kernel-side code. This mirrors the source kernel's sealed-trait
// capability pattern (§9): Rust's protection there is likewise social,
// not a hard technical barrier — any crate willing to write the
// corresponding `unsafe impl` can mint one, but doing so is visible and
// auditable in a code review. Go has no sealed-trait analogue, so the same
// discipline applies here: the constructors are exported and are called
// by board bring-up code (cmd/tockkernel), the admin API's hardfault
// handler and tests.
type (
	ProcessManagementCapability struct{}
	MemoryAllocationCapability  struct{}
	ExternalProcessCapability   struct{}
	MainLoopCapability          struct{}
	ProcessInitCapability       struct{}
	ProcessApprovalCapability   struct{}
)

func NewProcessManagementCapability() ProcessManagementCapability { return ProcessManagementCapability{} }
func NewMemoryAllocationCapability() MemoryAllocationCapability   { return MemoryAllocationCapability{} }
func NewExternalProcessCapability() ExternalProcessCapability     { return ExternalProcessCapability{} }
func NewMainLoopCapability() MainLoopCapability                   { return MainLoopCapability{} }
func NewProcessInitCapability() ProcessInitCapability             { return ProcessInitCapability{} }
func NewProcessApprovalCapability() ProcessApprovalCapability     { return ProcessApprovalCapability{} }
