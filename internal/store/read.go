package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jetrpay/streampay/internal/ir"
)

// StoredRecord is a record together with its lifecycle in the store.
type StoredRecord struct {
	Record ir.StreamRecord
	Height uint32 // height at which the record was produced
	Seq    int64

	Consumed       bool
	ConsumedHeight uint32
	ConsumedSeq    int64
	PaymentID      string
	SuccessorID    string // empty when consumption was terminal
}

// StoredPayment is a payment together with the height it was emitted at.
type StoredPayment struct {
	Payment ir.PaymentOutput
	Height  uint32
	Seq     int64
}

const recordColumns = `
	r.body, r.height, r.seq,
	c.record_id IS NOT NULL, COALESCE(c.height, 0), COALESCE(c.seq, 0),
	COALESCE(c.payment_id, ''), COALESCE(c.successor_id, '')
`

// ReadRecord retrieves a single record by ID.
// Returns ErrRecordNotFound if no such record exists.
func (s *Store) ReadRecord(ctx context.Context, id string) (StoredRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM records r
		LEFT JOIN consumptions c ON c.record_id = r.id
		WHERE r.id = ?
	`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredRecord{}, fmt.Errorf("read record %s: %w", id, ErrRecordNotFound)
	}
	if err != nil {
		return StoredRecord{}, fmt.Errorf("read record %s: %w", id, err)
	}
	return rec, nil
}

// ReadChain returns every stored version of a stream, oldest first.
// Returns an empty slice (not nil) for an unknown stream key.
func (s *Store) ReadChain(ctx context.Context, streamKey string) ([]StoredRecord, error) {
	return s.queryRecords(ctx, "read chain", `
		SELECT `+recordColumns+`
		FROM records r
		LEFT JOIN consumptions c ON c.record_id = r.id
		WHERE r.stream_key = ?
		ORDER BY r.version ASC
	`, streamKey)
}

// ListUnspent returns records not yet consumed, ordered by seq.
// An empty owner lists unspent records of every owner.
func (s *Store) ListUnspent(ctx context.Context, owner ir.Address) ([]StoredRecord, error) {
	return s.queryRecords(ctx, "list unspent", `
		SELECT `+recordColumns+`
		FROM records r
		LEFT JOIN consumptions c ON c.record_id = r.id
		WHERE c.record_id IS NULL AND (? = '' OR r.owner = ?)
		ORDER BY r.seq ASC, r.id COLLATE BINARY ASC
	`, string(owner), string(owner))
}

// ReadPayment retrieves a single payment by ID.
// Returns ErrRecordNotFound if no such payment exists.
func (s *Store) ReadPayment(ctx context.Context, id string) (StoredPayment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT body, height, seq FROM payments WHERE id = ?
	`, id)

	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredPayment{}, fmt.Errorf("read payment %s: %w", id, ErrRecordNotFound)
	}
	if err != nil {
		return StoredPayment{}, fmt.Errorf("read payment %s: %w", id, err)
	}
	return p, nil
}

// ReadPayments returns the payments emitted by one stream, ordered by seq.
func (s *Store) ReadPayments(ctx context.Context, streamKey string) ([]StoredPayment, error) {
	return s.queryPayments(ctx, "read payments", `
		SELECT body, height, seq FROM payments
		WHERE stream_key = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, streamKey)
}

// ListPayments returns payments owned by owner, ordered by seq.
// An empty owner lists every payment.
func (s *Store) ListPayments(ctx context.Context, owner ir.Address) ([]StoredPayment, error) {
	return s.queryPayments(ctx, "list payments", `
		SELECT body, height, seq FROM payments
		WHERE ? = '' OR owner = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, string(owner), string(owner))
}

// ListStreamKeys returns every stream key in issuance order.
func (s *Store) ListStreamKeys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stream_key FROM streams
		ORDER BY seq ASC, stream_key COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list stream keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan stream key: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stream keys: %w", err)
	}
	return keys, nil
}

func (s *Store) queryRecords(ctx context.Context, op, query string, args ...any) ([]StoredRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	records := []StoredRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate: %w", op, err)
	}
	return records, nil
}

func (s *Store) queryPayments(ctx context.Context, op, query string, args ...any) ([]StoredPayment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	payments := []StoredPayment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		payments = append(payments, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate: %w", op, err)
	}
	return payments, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (StoredRecord, error) {
	var sr StoredRecord
	var body string
	if err := row.Scan(
		&body, &sr.Height, &sr.Seq,
		&sr.Consumed, &sr.ConsumedHeight, &sr.ConsumedSeq,
		&sr.PaymentID, &sr.SuccessorID,
	); err != nil {
		return StoredRecord{}, err
	}

	rec, err := unmarshalRecord(body)
	if err != nil {
		return StoredRecord{}, err
	}
	sr.Record = rec
	return sr, nil
}

func scanPayment(row scanner) (StoredPayment, error) {
	var sp StoredPayment
	var body string
	if err := row.Scan(&body, &sp.Height, &sp.Seq); err != nil {
		return StoredPayment{}, err
	}

	p, err := unmarshalPayment(body)
	if err != nil {
		return StoredPayment{}, err
	}
	sp.Payment = p
	return sp, nil
}
