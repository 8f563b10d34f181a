package process

import "fmt"

// ID is a stable process capability: an index into the kernel's static
// process-table slice plus the generation counter stamped on the process
// occupying that slot when the ID was issued. A lookup is valid iff the
// slot is occupied and its stored generation equals Gen — this is what
// makes restart/relocation safe: a stale ID referring to a slot that has
// since been reused by a different process never aliases onto it.
type ID struct {
	Index int
	Gen   uint64
}

func (id ID) String() string {
	return fmt.Sprintf("Process(#%d/gen=%d)", id.Index, id.Gen)
}
