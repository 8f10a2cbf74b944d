package ir

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Address identifies a party (employer or employee).
// Addresses are opaque: the ledger only compares them for equality.
type Address string

// addressForbidden are characters that would break the plaintext record
// format ("{ owner: x.private, ... }").
const addressForbidden = "{}:,\""

// Validate reports whether the address can appear in a record.
func (a Address) Validate() error {
	if a == "" {
		return fmt.Errorf("address is empty")
	}
	if strings.ContainsAny(string(a), addressForbidden) {
		return fmt.Errorf("address %q contains one of %q", a, addressForbidden)
	}
	if strings.IndexFunc(string(a), isSpace) >= 0 {
		return fmt.Errorf("address %q contains whitespace", a)
	}
	// Canonical JSON hashes strings in NFC, so a non-NFC address would share
	// an ID with its NFC form while comparing unequal to it.
	if !norm.NFC.IsNormalString(string(a)) {
		return fmt.Errorf("address %q is not NFC normalized", a)
	}
	return nil
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
}

// StreamRecord is one version of a salary stream.
//
// Rate, MaxAmount, StartTime, Employer and Employee are fixed at issuance.
// ClaimedAmount is the only field that differs between versions of a stream,
// and it only grows. A record is consumed at most once; consuming it yields
// Version+1 with a new Nonce and therefore a new ID.
type StreamRecord struct {
	ID            string  `json:"id"`         // Content-addressed hash
	StreamKey     string  `json:"stream_key"` // Same for every version of a stream
	Version       uint32  `json:"version"`    // 0 at issuance
	Owner         Address `json:"owner"`
	Employer      Address `json:"employer"`
	Employee      Address `json:"employee"`
	Rate          uint64  `json:"rate"`       // value per unit of height
	MaxAmount     uint64  `json:"max_amount"` // lifetime cap
	StartTime     uint32  `json:"start_time"` // height accrual begins at
	ClaimedAmount uint64  `json:"claimed_amount"`
	Predecessor   string  `json:"predecessor,omitempty"` // ID of the consumed version
	Nonce         string  `json:"nonce"`
}

// Remaining returns the part of MaxAmount not yet paid out.
func (r StreamRecord) Remaining() uint64 {
	if r.ClaimedAmount >= r.MaxAmount {
		return 0
	}
	return r.MaxAmount - r.ClaimedAmount
}

// Exhausted reports whether the whole cap has been paid out.
func (r StreamRecord) Exhausted() bool {
	return r.ClaimedAmount >= r.MaxAmount
}

// PaymentOutput transfers a claimed amount to the employee.
// It is created on every successful claim and not tracked further by the
// settlement rules.
type PaymentOutput struct {
	ID        string  `json:"id"`         // Content-addressed hash
	StreamKey string  `json:"stream_key"` // Stream the payment was drawn from
	Source    string  `json:"source"`     // ID of the consumed StreamRecord
	Owner     Address `json:"owner"`
	Amount    uint64  `json:"amount"`
	Nonce     string  `json:"nonce"`
}
