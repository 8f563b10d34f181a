package credcheck

import (
	"context"

	"github.com/edirooss/tock-kernel/internal/process"
)

// CheckOutcome is the result a CredentialsCheckingPolicy delivers for one
// credential footer (§4.5 "Async completion").
type CheckOutcome int

const (
	// Accept admits the process; ShortID is taken from the callback.
	Accept CheckOutcome = iota
	// Pass means this footer carries nothing the policy cares about;
	// advance to the next footer without deciding the process.
	Pass
	// Reject fails the process outright.
	Reject
)

// Policy is CredentialsCheckingPolicy (§6): a pluggable, possibly
// asynchronous judge of a process's credential footers.
//
// CheckCredentials may invoke done either synchronously, before
// returning, or later from another goroutine; the FSM driving this
// interface tolerates both (see fsm.go) without recursing either way.
type Policy interface {
	// RequiresCredentials reports whether a process with zero credential
	// footers should be rejected (true) or admitted with
	// ShortID.LocallyUnique (false) — the PastLastFooter branch of §4.5.
	RequiresCredentials() bool

	// CheckCredentials judges one credential-bearing footer. done must be
	// called exactly once.
	CheckCredentials(ctx context.Context, p *process.Process, footer FooterTLV, done func(outcome CheckOutcome, shortID process.ShortID, err error))
}

// AcceptAllPolicy admits every process unconditionally: the first
// credential footer found is Accept'ed with a locally-unique short ID,
// and a footerless process is admitted too (RequiresCredentials is
// false). Suitable for development boards and tests.
type AcceptAllPolicy struct {
	ids *ShortIDAllocator
}

func NewAcceptAllPolicy() *AcceptAllPolicy {
	return &AcceptAllPolicy{ids: NewShortIDAllocator()}
}

func (p *AcceptAllPolicy) RequiresCredentials() bool { return false }

func (p *AcceptAllPolicy) CheckCredentials(_ context.Context, _ *process.Process, _ FooterTLV, done func(CheckOutcome, process.ShortID, error)) {
	done(Accept, p.ids.Next(), nil)
}
