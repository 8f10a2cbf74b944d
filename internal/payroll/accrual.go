package payroll

import (
	"math/bits"

	"github.com/jetrpay/streampay/internal/ir"
)

// Accrual is a stream's entitlement at one height.
type Accrual struct {
	Height       uint32 `json:"height"`
	Elapsed      uint32 `json:"elapsed"`       // height - start_time
	AccruedTotal uint64 `json:"accrued_total"` // min(rate*elapsed, max_amount)
	Claimed      uint64 `json:"claimed"`
	Available    uint64 `json:"available"` // accrued_total - claimed, floored at 0
	Remaining    uint64 `json:"remaining"` // max_amount - claimed
	Saturated    bool   `json:"saturated"` // rate*elapsed overflowed u64
}

// accruedTotal returns min(rate*elapsed, maxAmount) and whether the product
// overflowed u64.
func accruedTotal(rate uint64, elapsed uint32, maxAmount uint64) (uint64, bool) {
	hi, lo := bits.Mul64(rate, uint64(elapsed))
	if hi != 0 {
		return maxAmount, true
	}
	return min(lo, maxAmount), false
}

// Accrue computes the entitlement of rec at height without claiming anything.
//
// Fails with ErrCodeStreamNotStarted before start_time, ErrCodeInvalidRecord
// if claimed exceeds max, and ErrCodeArithmeticOverflow when the product
// overflows under OverflowReject.
func (s *Settler) Accrue(rec ir.StreamRecord, height uint32) (Accrual, error) {
	if rec.ClaimedAmount > rec.MaxAmount {
		return Accrual{}, newError(ErrCodeInvalidRecord, rec.ID,
			"claimed amount %d exceeds max amount %d", rec.ClaimedAmount, rec.MaxAmount)
	}
	if height < rec.StartTime {
		return Accrual{}, newError(ErrCodeStreamNotStarted, rec.ID,
			"current height %d is before start time %d", height, rec.StartTime)
	}

	elapsed := height - rec.StartTime
	total, overflowed := accruedTotal(rec.Rate, elapsed, rec.MaxAmount)
	if overflowed && s.policy.Overflow == OverflowReject {
		return Accrual{}, newError(ErrCodeArithmeticOverflow, rec.ID,
			"rate %d * elapsed %d overflows u64", rec.Rate, elapsed)
	}

	var available uint64
	if total > rec.ClaimedAmount {
		available = total - rec.ClaimedAmount
	}

	return Accrual{
		Height:       height,
		Elapsed:      elapsed,
		AccruedTotal: total,
		Claimed:      rec.ClaimedAmount,
		Available:    available,
		Remaining:    rec.Remaining(),
		Saturated:    overflowed,
	}, nil
}

// Accrue computes an accrual under DefaultPolicy.
func Accrue(rec ir.StreamRecord, height uint32) (Accrual, error) {
	return defaultSettler.Accrue(rec, height)
}
