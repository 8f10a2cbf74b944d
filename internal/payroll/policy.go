package payroll

import (
	"fmt"

	"github.com/jetrpay/streampay/internal/ir"
)

// Custody decides who owns a freshly issued stream record.
type Custody string

const (
	// CustodyEmployer leaves the version 0 record with the employer. The first
	// claim hands ownership to the employee.
	CustodyEmployer Custody = "employer"

	// CustodyEmployee gives the version 0 record straight to the employee.
	CustodyEmployee Custody = "employee"
)

// Overflow decides what happens when rate*elapsed does not fit in a u64.
type Overflow string

const (
	// OverflowSaturate treats an overflowing product as max_amount.
	OverflowSaturate Overflow = "saturate"

	// OverflowReject fails the claim with ErrCodeArithmeticOverflow.
	OverflowReject Overflow = "reject"
)

// Policy holds the settlement choices that the stream terms leave open.
type Policy struct {
	InitialCustody Custody  `json:"initial_custody"`
	Overflow       Overflow `json:"overflow"`

	// EmitExhausted makes the final claim emit a terminal successor with
	// claimed_amount == max_amount instead of omitting it.
	EmitExhausted bool `json:"emit_exhausted"`
}

// DefaultPolicy returns employer custody, saturating overflow and no terminal
// successor.
func DefaultPolicy() Policy {
	return Policy{
		InitialCustody: CustodyEmployer,
		Overflow:       OverflowSaturate,
	}
}

// withDefaults fills empty fields from DefaultPolicy.
func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.InitialCustody == "" {
		p.InitialCustody = def.InitialCustody
	}
	if p.Overflow == "" {
		p.Overflow = def.Overflow
	}
	return p
}

// Validate checks that every policy field holds a known value. Empty fields
// are valid and mean "default".
func (p Policy) Validate() error {
	p = p.withDefaults()
	switch p.InitialCustody {
	case CustodyEmployer, CustodyEmployee:
	default:
		return fmt.Errorf("invalid initial custody %q: must be %q or %q", p.InitialCustody, CustodyEmployer, CustodyEmployee)
	}
	switch p.Overflow {
	case OverflowSaturate, OverflowReject:
	default:
		return fmt.Errorf("invalid overflow policy %q: must be %q or %q", p.Overflow, OverflowSaturate, OverflowReject)
	}
	return nil
}

// Settler applies the settlement rules under a fixed Policy.
// A Settler holds no mutable state and is safe for concurrent use.
type Settler struct {
	policy Policy
}

// New creates a Settler. Empty policy fields take their defaults.
func New(policy Policy) (*Settler, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Settler{policy: policy.withDefaults()}, nil
}

// Policy returns the effective policy.
func (s *Settler) Policy() Policy {
	return s.policy
}

var defaultSettler = &Settler{policy: DefaultPolicy()}

// CreateStream issues a stream under DefaultPolicy.
func CreateStream(caller, employee ir.Address, rate, maxAmount uint64, startTime uint32, nonce string) (ir.StreamRecord, error) {
	return defaultSettler.CreateStream(caller, employee, rate, maxAmount, startTime, nonce)
}

// ClaimSalary claims from a stream under DefaultPolicy.
func ClaimSalary(caller ir.Address, stream ir.StreamRecord, claimAmount uint64, currentHeight uint32) (ClaimResult, error) {
	return defaultSettler.ClaimSalary(caller, stream, claimAmount, currentHeight)
}
