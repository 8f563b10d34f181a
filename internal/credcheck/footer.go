package credcheck

import (
	"encoding/binary"
	"errors"
)

// FooterTLV is one parsed TLV record from a process's footer region.
type FooterTLV struct {
	Type    uint16
	Payload []byte

	// Offset of the byte immediately following this record, relative to
	// the start of the footer region — where the next parse attempt
	// should resume.
	NextOffset int
}

// ErrNotEnoughFlash means the remaining footer bytes are too short to hold
// even a TLV header — this is the benign "we've walked off the end of the
// footers" case (§4.5 PastLastFooter), not a malformed record.
var ErrNotEnoughFlash = errors.New("credcheck: not enough flash remaining for footer TLV")

// ErrBadFooter wraps any other footer parse failure: a malformed header or
// a length field whose payload would overrun the process's flash end.
// Per spec §9 open question 3, this is intentionally NOT folded into
// ErrNotEnoughFlash — a footer that parses cleanly but whose declared
// length overruns the end of flash abandons the whole process rather than
// being treated as "no more footers".
var ErrBadFooter = errors.New("credcheck: malformed footer TLV")

// ParseFooterTLV parses one TLV record from footers[offset:], where
// flashEnd is the absolute length footers is allowed to span (footers is
// already sliced to [integrityEnd, flashEnd), so flashEnd == len(footers)
// in that coordinate system — kept as a parameter so callers can pass the
// absolute flash bound explicitly and catch a mismatched slice).
func ParseFooterTLV(footers []byte, offset int, flashEnd int) (FooterTLV, error) {
	const headerLen = 4 // type:u16 + length:u16

	if offset < 0 || offset > len(footers) {
		return FooterTLV{}, ErrBadFooter
	}
	remaining := footers[offset:]
	if len(remaining) < headerLen {
		return FooterTLV{}, ErrNotEnoughFlash
	}

	typ := binary.LittleEndian.Uint16(remaining[0:2])
	length := binary.LittleEndian.Uint16(remaining[2:4])

	payloadStart := offset + headerLen
	payloadEnd := payloadStart + int(length)

	if payloadEnd > len(footers) || payloadEnd > flashEnd {
		// Parses structurally fine, but its payload would run past the
		// end of flash: BadFooter, not NotEnoughFlash (§9 open question 3).
		return FooterTLV{}, ErrBadFooter
	}
	if len(remaining) < headerLen+int(length) {
		return FooterTLV{}, ErrNotEnoughFlash
	}

	return FooterTLV{
		Type:       typ,
		Payload:    footers[payloadStart:payloadEnd],
		NextOffset: payloadEnd,
	}, nil
}

// Credential TLV types recognized by the reference checking policies.
// Capsule-specific footer types outside this range are walked past
// (FooterNotCheckable) rather than rejected.
const (
	FooterTypePadding           uint16 = 0
	FooterTypeRSA4096PublicKey  uint16 = 1
	FooterTypeRSA4096Signature  uint16 = 2
	FooterTypeSHA256Credentials uint16 = 3
	FooterTypeSHA384Credentials uint16 = 4
	FooterTypeSHA512Credentials uint16 = 5
)

func IsCredentialType(t uint16) bool {
	switch t {
	case FooterTypeRSA4096PublicKey, FooterTypeRSA4096Signature,
		FooterTypeSHA256Credentials, FooterTypeSHA384Credentials, FooterTypeSHA512Credentials:
		return true
	default:
		return false
	}
}
