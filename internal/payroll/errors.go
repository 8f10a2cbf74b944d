package payroll

import (
	"errors"
	"fmt"
)

// SettlementError is returned by every rejected issuance or claim.
//
// All settlement errors are local, synchronous validation failures. None are
// retryable with the same inputs, and none leave partial state behind.
type SettlementError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// RecordID identifies the presented record (claims only).
	RecordID string

	// Details contains additional context such as requested vs available.
	Details map[string]string
}

// ErrorCode categorizes settlement errors.
type ErrorCode string

const (
	// ErrCodeInvalidTerms indicates rate, max amount, employee or nonce are unusable.
	ErrCodeInvalidTerms ErrorCode = "INVALID_TERMS"

	// ErrCodeStreamNotStarted indicates current height is before start time.
	ErrCodeStreamNotStarted ErrorCode = "STREAM_NOT_STARTED"

	// ErrCodeZeroClaim indicates a claim of zero.
	ErrCodeZeroClaim ErrorCode = "ZERO_CLAIM"

	// ErrCodeInsufficientAccrual indicates the claim exceeds what is available.
	ErrCodeInsufficientAccrual ErrorCode = "INSUFFICIENT_ACCRUAL"

	// ErrCodeExhausted indicates the stream has already paid out its cap.
	ErrCodeExhausted ErrorCode = "EXHAUSTED"

	// ErrCodeUnauthorized indicates the caller may not act on the record.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// ErrCodeInvalidRecord indicates the record's ID does not match its content
	// or its fields violate claimed <= max.
	ErrCodeInvalidRecord ErrorCode = "INVALID_RECORD"

	// ErrCodeArithmeticOverflow indicates rate*elapsed overflowed under the
	// reject overflow policy, or the version counter ran out.
	ErrCodeArithmeticOverflow ErrorCode = "ARITHMETIC_OVERFLOW"
)

// Sentinels for errors.Is. Any *SettlementError with the same Code matches.
var (
	ErrInvalidTerms        = &SettlementError{Code: ErrCodeInvalidTerms}
	ErrStreamNotStarted    = &SettlementError{Code: ErrCodeStreamNotStarted}
	ErrZeroClaim           = &SettlementError{Code: ErrCodeZeroClaim}
	ErrInsufficientAccrual = &SettlementError{Code: ErrCodeInsufficientAccrual}
	ErrExhausted           = &SettlementError{Code: ErrCodeExhausted}
	ErrUnauthorized        = &SettlementError{Code: ErrCodeUnauthorized}
	ErrInvalidRecord       = &SettlementError{Code: ErrCodeInvalidRecord}
	ErrArithmeticOverflow  = &SettlementError{Code: ErrCodeArithmeticOverflow}
)

// Error implements the error interface.
func (e *SettlementError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	if e.RecordID != "" {
		return fmt.Sprintf("%s: %s (record=%s)", e.Code, e.Message, e.RecordID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *SettlementError carrying the same code.
func (e *SettlementError) Is(target error) bool {
	t, ok := target.(*SettlementError)
	return ok && t.Code == e.Code
}

// CodeOf returns the settlement error code carried by err, or "" if err is
// not a settlement error. Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var se *SettlementError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsCode reports whether err is a settlement error with the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

func newError(code ErrorCode, recordID, format string, args ...any) *SettlementError {
	return &SettlementError{
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		RecordID: recordID,
	}
}
