package payroll

import (
	"math"
	"strconv"

	"github.com/google/uuid"

	"github.com/jetrpay/streampay/internal/ir"
)

// nonceNamespace scopes derived nonces (UUIDv5) to streampay.
var nonceNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("streampay.nonce.v1"))

// Nonce purposes. A successor and its payment are both derived from the
// consumed record's ID, so each needs its own label.
const (
	noncePurposeSuccessor = "successor"
	noncePurposePayment   = "payment"
)

// DeriveNonce returns the deterministic nonce for an output of consuming the
// record with the given ID.
func DeriveNonce(consumedID, purpose string) string {
	return uuid.NewSHA1(nonceNamespace, []byte(purpose+":"+consumedID)).String()
}

// ClaimResult is the outcome of a successful claim.
type ClaimResult struct {
	// Consumed is the presented record. The store must never accept it again.
	Consumed ir.StreamRecord `json:"consumed"`

	// Payment transfers the claimed amount to the employee.
	Payment ir.PaymentOutput `json:"payment"`

	// Successor carries the unclaimed remainder. Nil when the claim exhausted
	// the stream, unless Policy.EmitExhausted is set.
	Successor *ir.StreamRecord `json:"successor,omitempty"`

	// Accrual is the entitlement computed before the claim was applied.
	Accrual Accrual `json:"accrual"`
}

// Exhausted reports whether this claim paid out the rest of the cap.
func (r ClaimResult) Exhausted() bool {
	return r.Consumed.ClaimedAmount+r.Payment.Amount >= r.Consumed.MaxAmount
}

// ClaimSalary consumes stream and pays claimAmount to the employee.
//
// Checks run in a fixed order and the first failure wins:
//
//  1. INVALID_RECORD        ID does not match content, or claimed > max
//  2. UNAUTHORIZED          caller is not the recorded employee
//  3. EXHAUSTED             claimed == max
//  4. ZERO_CLAIM            claimAmount == 0
//  5. STREAM_NOT_STARTED    currentHeight < start_time
//  6. ARITHMETIC_OVERFLOW   rate*elapsed overflows and policy is reject
//  7. INSUFFICIENT_ACCRUAL  claimAmount > accrued_total - claimed
//
// On success the successor has claimed_amount + claimAmount, version + 1,
// owner = employee and a nonce derived from the consumed ID.
func (s *Settler) ClaimSalary(caller ir.Address, stream ir.StreamRecord, claimAmount uint64, currentHeight uint32) (ClaimResult, error) {
	if err := stream.Verify(); err != nil {
		return ClaimResult{}, newError(ErrCodeInvalidRecord, stream.ID, "%v", err)
	}
	if stream.ClaimedAmount > stream.MaxAmount {
		return ClaimResult{}, newError(ErrCodeInvalidRecord, stream.ID,
			"claimed amount %d exceeds max amount %d", stream.ClaimedAmount, stream.MaxAmount)
	}
	if caller != stream.Employee {
		return ClaimResult{}, newError(ErrCodeUnauthorized, stream.ID,
			"caller %q is not the stream employee", caller)
	}
	if stream.Exhausted() {
		return ClaimResult{}, newError(ErrCodeExhausted, stream.ID,
			"stream has paid out its max amount %d", stream.MaxAmount)
	}
	if claimAmount == 0 {
		return ClaimResult{}, newError(ErrCodeZeroClaim, stream.ID, "claim amount must be greater than zero")
	}

	accrual, err := s.Accrue(stream, currentHeight)
	if err != nil {
		return ClaimResult{}, err
	}
	if claimAmount > accrual.Available {
		e := newError(ErrCodeInsufficientAccrual, stream.ID,
			"claim %d exceeds available %d at height %d", claimAmount, accrual.Available, currentHeight)
		e.Details = map[string]string{
			"requested":     strconv.FormatUint(claimAmount, 10),
			"available":     strconv.FormatUint(accrual.Available, 10),
			"accrued_total": strconv.FormatUint(accrual.AccruedTotal, 10),
			"claimed":       strconv.FormatUint(accrual.Claimed, 10),
		}
		return ClaimResult{}, e
	}
	if stream.Version == math.MaxUint32 {
		return ClaimResult{}, newError(ErrCodeArithmeticOverflow, stream.ID, "version counter exhausted")
	}

	// claimAmount <= available <= max - claimed, so this cannot overflow.
	claimed := stream.ClaimedAmount + claimAmount

	payment, err := ir.PaymentOutput{
		StreamKey: stream.StreamKey,
		Source:    stream.ID,
		Owner:     stream.Employee,
		Amount:    claimAmount,
		Nonce:     DeriveNonce(stream.ID, noncePurposePayment),
	}.Seal()
	if err != nil {
		return ClaimResult{}, newError(ErrCodeInvalidRecord, stream.ID, "%v", err)
	}

	result := ClaimResult{
		Consumed: stream,
		Payment:  payment,
		Accrual:  accrual,
	}

	if claimed == stream.MaxAmount && !s.policy.EmitExhausted {
		return result, nil
	}

	next := stream
	next.ID = ""
	next.Version = stream.Version + 1
	next.Owner = stream.Employee
	next.ClaimedAmount = claimed
	next.Predecessor = stream.ID
	next.Nonce = DeriveNonce(stream.ID, noncePurposeSuccessor)

	successor, err := next.Seal()
	if err != nil {
		return ClaimResult{}, newError(ErrCodeInvalidRecord, stream.ID, "%v", err)
	}
	result.Successor = &successor
	return result, nil
}
