package ledger

import (
	"errors"

	"github.com/jetrpay/streampay/internal/payroll"
	"github.com/jetrpay/streampay/internal/store"
)

// Outcome names used for errors raised outside the settlement rules.
// Settlement failures use their payroll.ErrorCode.
const (
	OutcomeOK             = "OK"
	OutcomeRecordNotFound = "RECORD_NOT_FOUND"
	OutcomeRecordConsumed = "RECORD_CONSUMED"
	OutcomeHeightAhead    = "HEIGHT_AHEAD"
	OutcomeHeightRegress  = "HEIGHT_REGRESSED"
	OutcomeHeightDecrease = "HEIGHT_DECREASE"
	OutcomeDuplicate      = "DUPLICATE_STREAM"
	OutcomeHeightFixed    = "HEIGHT_FIXED"
	OutcomeInternal       = "INTERNAL"
)

// Outcome classifies the error returned by a Ledger operation.
// A nil error is OutcomeOK; unknown errors are OutcomeInternal.
func Outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	if code := payroll.CodeOf(err); code != "" {
		return string(code)
	}
	switch {
	case errors.Is(err, store.ErrRecordNotFound):
		return OutcomeRecordNotFound
	case errors.Is(err, store.ErrRecordConsumed):
		return OutcomeRecordConsumed
	case errors.Is(err, store.ErrHeightDecrease):
		return OutcomeHeightDecrease
	case errors.Is(err, ErrHeightAhead):
		return OutcomeHeightAhead
	case errors.Is(err, ErrHeightRegressed):
		return OutcomeHeightRegress
	case errors.Is(err, ErrDuplicateStream):
		return OutcomeDuplicate
	case errors.Is(err, ErrHeightFixed):
		return OutcomeHeightFixed
	default:
		return OutcomeInternal
	}
}
