// Package process models a loaded user process: its lifecycle state, its
// flash/RAM extents, its task queue, and the operations the dispatcher and
// syscall handler use to drive it.
package process

import "fmt"

// State is the exhaustive lifecycle of a loaded process.
//
//	CredentialsUnchecked -> CredentialsApproved | CredentialsFailed -> Running
//	  <-> Yielded <-> StoppedRunning/StoppedYielded -> Faulted | Terminated
type State int

const (
	CredentialsUnchecked State = iota
	CredentialsApproved
	CredentialsFailed
	Running
	Yielded
	StoppedRunning
	StoppedYielded
	Faulted
	Terminated
)

func (s State) String() string {
	switch s {
	case CredentialsUnchecked:
		return "CredentialsUnchecked"
	case CredentialsApproved:
		return "CredentialsApproved"
	case CredentialsFailed:
		return "CredentialsFailed"
	case Running:
		return "Running"
	case Yielded:
		return "Yielded"
	case StoppedRunning:
		return "StoppedRunning"
	case StoppedYielded:
		return "StoppedYielded"
	case Faulted:
		return "Faulted"
	case Terminated:
		return "Terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Schedulable reports whether the dispatcher may run a process in this
// state. Only Running, Yielded and CredentialsApproved are schedulable;
// every other state is a dead end reached only by the credential checker,
// the syscall handler, or the fault hook.
func (s State) Schedulable() bool {
	switch s {
	case Running, Yielded, CredentialsApproved:
		return true
	default:
		return false
	}
}
