package payroll

import (
	"github.com/jetrpay/streampay/internal/ir"
)

// CreateStream issues version 0 of a new stream.
//
// The caller is the employer. The nonce makes two streams with identical terms
// distinct; the ledger draws it from a NonceGenerator. Fails with
// ErrCodeUnauthorized if the caller is not a usable identity and
// ErrCodeInvalidTerms if rate or maxAmount is zero, the employee is not a
// usable identity, or the nonce is empty.
func (s *Settler) CreateStream(caller, employee ir.Address, rate, maxAmount uint64, startTime uint32, nonce string) (ir.StreamRecord, error) {
	if err := caller.Validate(); err != nil {
		return ir.StreamRecord{}, newError(ErrCodeUnauthorized, "", "issuer: %v", err)
	}
	if err := employee.Validate(); err != nil {
		return ir.StreamRecord{}, newError(ErrCodeInvalidTerms, "", "employee: %v", err)
	}
	if rate == 0 {
		return ir.StreamRecord{}, newError(ErrCodeInvalidTerms, "", "rate must be greater than zero")
	}
	if maxAmount == 0 {
		return ir.StreamRecord{}, newError(ErrCodeInvalidTerms, "", "max amount must be greater than zero")
	}
	if nonce == "" {
		return ir.StreamRecord{}, newError(ErrCodeInvalidTerms, "", "nonce is required")
	}

	key, err := ir.StreamKey(caller, employee, rate, maxAmount, startTime, nonce)
	if err != nil {
		return ir.StreamRecord{}, newError(ErrCodeInvalidTerms, "", "%v", err)
	}

	owner := caller
	if s.policy.InitialCustody == CustodyEmployee {
		owner = employee
	}

	rec, err := ir.StreamRecord{
		StreamKey:     key,
		Version:       0,
		Owner:         owner,
		Employer:      caller,
		Employee:      employee,
		Rate:          rate,
		MaxAmount:     maxAmount,
		StartTime:     startTime,
		ClaimedAmount: 0,
		Nonce:         nonce,
	}.Seal()
	if err != nil {
		return ir.StreamRecord{}, newError(ErrCodeInvalidTerms, "", "%v", err)
	}
	return rec, nil
}
