// Package plaintext reads and writes records in the Leo-style text form
// printed by the record-based runtime the payroll program was written for:
//
//	{
//	  owner: aleo1xyz.private,
//	  rate: 10u64.private,
//	  ...
//	  _nonce: 0190b5c2-....public
//	}
//
// Integers carry their type suffix (u64, u32) and every value carries a
// visibility suffix. Parsing recomputes the record ID and rejects text whose
// _id does not match its fields.
package plaintext

import (
	"fmt"
	"strings"

	"github.com/jetrpay/streampay/internal/ir"
)

// Visibility suffixes.
const (
	Private = "private"
	Public  = "public"
)

type field struct {
	key        string
	value      string
	visibility string
}

func format(fields []field) string {
	var b strings.Builder
	b.WriteString("{\n")
	for i, f := range fields {
		fmt.Fprintf(&b, "  %s: %s.%s", f.key, f.value, f.visibility)
		if i < len(fields)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString("}")
	return b.String()
}

// FormatRecord renders a stream record. Terms and amounts are private;
// bookkeeping fields are public.
func FormatRecord(rec ir.StreamRecord) string {
	fields := []field{
		{"owner", string(rec.Owner), Private},
		{"employer", string(rec.Employer), Private},
		{"employee", string(rec.Employee), Private},
		{"rate", ir.U64(rec.Rate), Private},
		{"max_amount", ir.U64(rec.MaxAmount), Private},
		{"start_time", ir.U32(rec.StartTime), Private},
		{"claimed_amount", ir.U64(rec.ClaimedAmount), Private},
		{"version", ir.U32(rec.Version), Public},
		{"stream_key", rec.StreamKey, Public},
	}
	if rec.Predecessor != "" {
		fields = append(fields, field{"predecessor", rec.Predecessor, Public})
	}
	fields = append(fields,
		field{"_nonce", rec.Nonce, Public},
		field{"_id", rec.ID, Public},
	)
	return format(fields)
}

// FormatPayment renders a payment output.
func FormatPayment(p ir.PaymentOutput) string {
	return format([]field{
		{"owner", string(p.Owner), Private},
		{"amount", ir.U64(p.Amount), Private},
		{"stream_key", p.StreamKey, Public},
		{"source", p.Source, Public},
		{"_nonce", p.Nonce, Public},
		{"_id", p.ID, Public},
	})
}

// parse extracts the first {...} block of text into key/value pairs.
// Visibility suffixes are stripped. Surrounding text is ignored.
func parse(text string, known map[string]bool) (map[string]string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, fmt.Errorf("no record block found")
	}
	end := strings.IndexByte(text[start:], '}')
	if end < 0 {
		return nil, fmt.Errorf("unterminated record block")
	}
	body := text[start+1 : start+end]

	out := make(map[string]string)
	for _, entry := range strings.Split(body, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, value, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("entry %q: missing ':'", entry)
		}
		key = strings.TrimSpace(key)
		value = stripVisibility(strings.TrimSpace(value))
		if !known[key] {
			return nil, fmt.Errorf("unknown field %q", key)
		}
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("duplicate field %q", key)
		}
		out[key] = value
	}
	return out, nil
}

func stripVisibility(v string) string {
	for _, vis := range []string{Private, Public} {
		if s, ok := strings.CutSuffix(v, "."+vis); ok {
			return s
		}
	}
	return v
}

func requireFields(fields map[string]string, keys ...string) error {
	for _, k := range keys {
		if _, ok := fields[k]; !ok {
			return fmt.Errorf("missing field %q", k)
		}
	}
	return nil
}

var recordFields = map[string]bool{
	"owner": true, "employer": true, "employee": true,
	"rate": true, "max_amount": true, "start_time": true, "claimed_amount": true,
	"version": true, "stream_key": true, "predecessor": true,
	"_nonce": true, "_id": true,
}

// ParseRecord parses a stream record and verifies its ID.
func ParseRecord(text string) (ir.StreamRecord, error) {
	f, err := parse(text, recordFields)
	if err != nil {
		return ir.StreamRecord{}, fmt.Errorf("parse record: %w", err)
	}
	if err := requireFields(f, "owner", "employer", "employee", "rate", "max_amount",
		"start_time", "claimed_amount", "version", "stream_key", "_nonce", "_id"); err != nil {
		return ir.StreamRecord{}, fmt.Errorf("parse record: %w", err)
	}

	rec := ir.StreamRecord{
		ID:          f["_id"],
		StreamKey:   f["stream_key"],
		Owner:       ir.Address(f["owner"]),
		Employer:    ir.Address(f["employer"]),
		Employee:    ir.Address(f["employee"]),
		Predecessor: f["predecessor"],
		Nonce:       f["_nonce"],
	}
	if rec.Rate, err = ir.ParseU64(f["rate"]); err != nil {
		return ir.StreamRecord{}, fmt.Errorf("parse record: rate: %w", err)
	}
	if rec.MaxAmount, err = ir.ParseU64(f["max_amount"]); err != nil {
		return ir.StreamRecord{}, fmt.Errorf("parse record: max_amount: %w", err)
	}
	if rec.ClaimedAmount, err = ir.ParseU64(f["claimed_amount"]); err != nil {
		return ir.StreamRecord{}, fmt.Errorf("parse record: claimed_amount: %w", err)
	}
	if rec.StartTime, err = ir.ParseU32(f["start_time"]); err != nil {
		return ir.StreamRecord{}, fmt.Errorf("parse record: start_time: %w", err)
	}
	if rec.Version, err = ir.ParseU32(f["version"]); err != nil {
		return ir.StreamRecord{}, fmt.Errorf("parse record: version: %w", err)
	}

	if err := rec.Verify(); err != nil {
		return ir.StreamRecord{}, fmt.Errorf("parse record: %w", err)
	}
	return rec, nil
}

var paymentFields = map[string]bool{
	"owner": true, "amount": true, "stream_key": true, "source": true,
	"_nonce": true, "_id": true,
}

// ParsePayment parses a payment output and verifies its ID.
func ParsePayment(text string) (ir.PaymentOutput, error) {
	f, err := parse(text, paymentFields)
	if err != nil {
		return ir.PaymentOutput{}, fmt.Errorf("parse payment: %w", err)
	}
	if err := requireFields(f, "owner", "amount", "stream_key", "source", "_nonce", "_id"); err != nil {
		return ir.PaymentOutput{}, fmt.Errorf("parse payment: %w", err)
	}

	amount, err := ir.ParseU64(f["amount"])
	if err != nil {
		return ir.PaymentOutput{}, fmt.Errorf("parse payment: amount: %w", err)
	}
	p := ir.PaymentOutput{
		ID:        f["_id"],
		StreamKey: f["stream_key"],
		Source:    f["source"],
		Owner:     ir.Address(f["owner"]),
		Amount:    amount,
		Nonce:     f["_nonce"],
	}
	if err := p.Verify(); err != nil {
		return ir.PaymentOutput{}, fmt.Errorf("parse payment: %w", err)
	}
	return p, nil
}
