package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainStream       = "streampay/stream/v" + RecordVersion
	DomainStreamRecord = "streampay/stream-record/v" + RecordVersion
	DomainPayment      = "streampay/payment/v" + RecordVersion
)

// ErrIDMismatch is returned by Verify when a record's ID does not match its
// content.
var ErrIDMismatch = errors.New("record id does not match record content")

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func hashObject(domain string, obj Object) (string, error) {
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", err
	}
	return hashWithDomain(domain, canonical), nil
}

// StreamKey computes the identity shared by every version of a stream: the
// immutable terms plus the issuance nonce.
func StreamKey(employer, employee Address, rate, maxAmount uint64, startTime uint32, nonce string) (string, error) {
	key, err := hashObject(DomainStream, Object{
		"employer":   employer,
		"employee":   employee,
		"rate":       U64(rate),
		"max_amount": U64(maxAmount),
		"start_time": U32(startTime),
		"nonce":      nonce,
	})
	if err != nil {
		return "", fmt.Errorf("StreamKey: failed to marshal: %w", err)
	}
	return key, nil
}

// CanonicalFields returns every field except ID, in the form that is hashed.
func (r StreamRecord) CanonicalFields() Object {
	return Object{
		"stream_key":     r.StreamKey,
		"version":        U32(r.Version),
		"owner":          r.Owner,
		"employer":       r.Employer,
		"employee":       r.Employee,
		"rate":           U64(r.Rate),
		"max_amount":     U64(r.MaxAmount),
		"start_time":     U32(r.StartTime),
		"claimed_amount": U64(r.ClaimedAmount),
		"predecessor":    r.Predecessor,
		"nonce":          r.Nonce,
	}
}

// StreamRecordID computes the content-addressed ID for a stream record.
// The ID field itself is ignored.
func StreamRecordID(r StreamRecord) (string, error) {
	id, err := hashObject(DomainStreamRecord, r.CanonicalFields())
	if err != nil {
		return "", fmt.Errorf("StreamRecordID: failed to marshal: %w", err)
	}
	return id, nil
}

// Seal returns a copy of r with ID set from its content.
func (r StreamRecord) Seal() (StreamRecord, error) {
	id, err := StreamRecordID(r)
	if err != nil {
		return StreamRecord{}, err
	}
	r.ID = id
	return r, nil
}

// Verify checks that every address is valid, that r.ID matches r's content
// and, for a version 0 record, that StreamKey matches the terms and nonce it
// was issued with.
func (r StreamRecord) Verify() error {
	for _, a := range []Address{r.Owner, r.Employer, r.Employee} {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("stream record %s: %w", r.ID, err)
		}
	}
	id, err := StreamRecordID(r)
	if err != nil {
		return err
	}
	if id != r.ID {
		return fmt.Errorf("stream record %s: %w", r.ID, ErrIDMismatch)
	}
	if r.Version == 0 {
		if r.Predecessor != "" {
			return fmt.Errorf("stream record %s: version 0 has predecessor %s", r.ID, r.Predecessor)
		}
		key, err := StreamKey(r.Employer, r.Employee, r.Rate, r.MaxAmount, r.StartTime, r.Nonce)
		if err != nil {
			return err
		}
		if key != r.StreamKey {
			return fmt.Errorf("stream record %s: stream key does not match issuance terms: %w", r.ID, ErrIDMismatch)
		}
	}
	return nil
}

// CanonicalFields returns every payment field except ID.
func (p PaymentOutput) CanonicalFields() Object {
	return Object{
		"stream_key": p.StreamKey,
		"source":     p.Source,
		"owner":      p.Owner,
		"amount":     U64(p.Amount),
		"nonce":      p.Nonce,
	}
}

// PaymentID computes the content-addressed ID for a payment output.
func PaymentID(p PaymentOutput) (string, error) {
	id, err := hashObject(DomainPayment, p.CanonicalFields())
	if err != nil {
		return "", fmt.Errorf("PaymentID: failed to marshal: %w", err)
	}
	return id, nil
}

// Seal returns a copy of p with ID set from its content.
func (p PaymentOutput) Seal() (PaymentOutput, error) {
	id, err := PaymentID(p)
	if err != nil {
		return PaymentOutput{}, err
	}
	p.ID = id
	return p, nil
}

// Verify checks that p.ID matches p's content.
func (p PaymentOutput) Verify() error {
	if err := p.Owner.Validate(); err != nil {
		return fmt.Errorf("payment %s: %w", p.ID, err)
	}
	id, err := PaymentID(p)
	if err != nil {
		return err
	}
	if id != p.ID {
		return fmt.Errorf("payment %s: %w", p.ID, ErrIDMismatch)
	}
	return nil
}

// MustSeal is like Seal but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustSeal(r StreamRecord) StreamRecord {
	sealed, err := r.Seal()
	if err != nil {
		panic(err)
	}
	return sealed
}
