// Package credcheck implements the credential checker FSM (§4.5): walking
// each loaded process's TBF footers against a pluggable Policy and
// admitting or rejecting it exactly once.
package credcheck

import (
	"context"

	"github.com/edirooss/tock-kernel/internal/kernel"
	"github.com/edirooss/tock-kernel/internal/process"
	"go.uber.org/zap"
)

// FSM walks the kernel's process table in order, judging each process's
// footers against Policy. Per spec §9 open question 2, the reference
// source drives this via self-recursive callbacks; here the walk is a
// plain for-loop and asynchronous completion is collapsed into a channel
// receive, so there is no call stack to grow however many footers or
// processes are walked.
type FSM struct {
	log    *zap.Logger
	kernel *kernel.Kernel
	policy Policy
	cap    kernel.ExternalProcessCapability
}

func New(log *zap.Logger, k *kernel.Kernel, policy Policy, cap kernel.ExternalProcessCapability) *FSM {
	if log == nil {
		log = zap.NewNop()
	}
	return &FSM{log: log.Named("credcheck"), kernel: k, policy: policy, cap: cap}
}

type checkResult struct {
	outcome CheckOutcome
	shortID process.ShortID
	err     error
}

// Run walks every occupied process-table slot to completion: each process
// ends in exactly one of CredentialsPass or CredentialsFail (§8 property
// 7) before Run returns, provided Policy.CheckCredentials always
// eventually calls done. The one exception is a process whose footer
// region is malformed (ErrBadFooter): it is abandoned and stays
// CredentialsUnchecked.
func (f *FSM) Run(ctx context.Context) {
	for idx := 0; idx < f.kernel.Slots(); idx++ {
		p, _, ok := f.kernel.ProcessAt(idx)
		if !ok {
			continue // NoProcess (§4.5): advance
		}
		if p.State() != process.CredentialsUnchecked {
			continue // already resolved by a prior boot stage
		}
		f.walkProcess(ctx, p)
	}
}

// walkProcess repeatedly parses the next footer TLV and reacts, looping
// instead of recursing even when Policy resolves synchronously.
func (f *FSM) walkProcess(ctx context.Context, p *process.Process) {
	footers := p.FooterBytes()
	offset := 0

	for {
		tlv, err := ParseFooterTLV(footers, offset, len(footers))
		if err != nil {
			switch err {
			case ErrNotEnoughFlash:
				// PastLastFooter: apply policy's "no credentials present" rule.
				if f.policy.RequiresCredentials() {
					p.MarkCredentialsFail()
					f.log.Info("process rejected: no credentials found", zap.String("name", p.Name()))
				} else {
					p.MarkCredentialsPass(process.ShortID{LocallyUnique: true})
					f.kernel.IncrementWork(f.cap)
				}
			case ErrBadFooter:
				// Malformed footer: abandon the whole process. The source
				// leaves it in CredentialsUnchecked forever in this case;
				// preserved here rather than inventing a new terminal state.
				f.log.Warn("process abandoned: malformed footer", zap.String("name", p.Name()))
			}
			return
		}

		if !IsCredentialType(tlv.Type) {
			// FooterNotCheckable: skip footer, try next.
			offset = tlv.NextOffset
			continue
		}

		resultCh := make(chan checkResult, 1)
		f.policy.CheckCredentials(ctx, p, tlv, func(outcome CheckOutcome, shortID process.ShortID, err error) {
			resultCh <- checkResult{outcome, shortID, err}
		})
		// Suspends here exactly as §5 describes, whether the policy
		// resolved synchronously (channel is already readable) or the
		// completion arrives later from another goroutine.
		res := <-resultCh

		switch res.outcome {
		case Accept:
			p.MarkCredentialsPass(res.shortID)
			f.kernel.IncrementWork(f.cap)
			f.log.Info("process admitted", zap.String("name", p.Name()))
			return
		case Reject:
			p.MarkCredentialsFail()
			f.log.Info("process rejected by policy", zap.String("name", p.Name()))
			return
		case Pass:
			if res.err != nil {
				f.log.Debug("credential check error treated as pass", zap.Error(res.err), zap.String("name", p.Name()))
			}
			offset = tlv.NextOffset
			continue
		}
	}
}
