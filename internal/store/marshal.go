package store

import (
	"encoding/json"
	"fmt"

	"github.com/jetrpay/streampay/internal/ir"
)

// marshalRecord converts a record to canonical JSON TEXT for storage.
// The body carries the ID next to the hashed fields.
func marshalRecord(rec ir.StreamRecord) (string, error) {
	obj := rec.CanonicalFields()
	obj["id"] = rec.ID
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	return string(data), nil
}

// marshalPayment converts a payment to canonical JSON TEXT for storage.
func marshalPayment(p ir.PaymentOutput) (string, error) {
	obj := p.CanonicalFields()
	obj["id"] = p.ID
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("marshal payment: %w", err)
	}
	return string(data), nil
}

// unmarshalFields parses a stored body. Every value in a body is a string:
// numbers are typed literals such as "10u64".
func unmarshalFields(data string) (map[string]string, error) {
	var fields map[string]string
	if err := json.Unmarshal([]byte(data), &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// unmarshalRecord parses canonical JSON TEXT back into a record.
// The ID is taken as stored; integrity is checked by the caller.
func unmarshalRecord(data string) (ir.StreamRecord, error) {
	f, err := unmarshalFields(data)
	if err != nil {
		return ir.StreamRecord{}, fmt.Errorf("unmarshal record: %w", err)
	}

	rec := ir.StreamRecord{
		ID:          f["id"],
		StreamKey:   f["stream_key"],
		Owner:       ir.Address(f["owner"]),
		Employer:    ir.Address(f["employer"]),
		Employee:    ir.Address(f["employee"]),
		Predecessor: f["predecessor"],
		Nonce:       f["nonce"],
	}

	u64s := []struct {
		key string
		dst *uint64
	}{
		{"rate", &rec.Rate},
		{"max_amount", &rec.MaxAmount},
		{"claimed_amount", &rec.ClaimedAmount},
	}
	for _, field := range u64s {
		v, err := ir.ParseU64(f[field.key])
		if err != nil {
			return ir.StreamRecord{}, fmt.Errorf("unmarshal record: %s: %w", field.key, err)
		}
		*field.dst = v
	}

	u32s := []struct {
		key string
		dst *uint32
	}{
		{"version", &rec.Version},
		{"start_time", &rec.StartTime},
	}
	for _, field := range u32s {
		v, err := ir.ParseU32(f[field.key])
		if err != nil {
			return ir.StreamRecord{}, fmt.Errorf("unmarshal record: %s: %w", field.key, err)
		}
		*field.dst = v
	}

	return rec, nil
}

// unmarshalPayment parses canonical JSON TEXT back into a payment.
func unmarshalPayment(data string) (ir.PaymentOutput, error) {
	f, err := unmarshalFields(data)
	if err != nil {
		return ir.PaymentOutput{}, fmt.Errorf("unmarshal payment: %w", err)
	}

	amount, err := ir.ParseU64(f["amount"])
	if err != nil {
		return ir.PaymentOutput{}, fmt.Errorf("unmarshal payment: amount: %w", err)
	}

	return ir.PaymentOutput{
		ID:        f["id"],
		StreamKey: f["stream_key"],
		Source:    f["source"],
		Owner:     ir.Address(f["owner"]),
		Amount:    amount,
		Nonce:     f["nonce"],
	}, nil
}
