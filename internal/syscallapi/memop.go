package syscallapi

import "github.com/edirooss/tock-kernel/internal/process"

// MemopHandler services the Memop syscall class (brk/sbrk/heap-stack
// bounds reporting). This is explicitly out of the core's scope (§1,
// §4.4) — the core only needs somewhere to delegate to; the actual memory
// layout bookkeeping lives in whatever board-specific implementation is
// wired in.
type MemopHandler interface {
	Memop(p *process.Process, op uintptr, arg uintptr) Return
}

// NullMemopHandler answers every memop with NOSUPPORT. Adequate for board
// configurations (and this repository's tests) that never call brk/sbrk.
type NullMemopHandler struct{}

func (NullMemopHandler) Memop(*process.Process, uintptr, uintptr) Return {
	return Failure(NOSUPPORT)
}
