package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jetrpay/streampay/internal/ir"
)

// Settlement is everything one successful claim writes.
type Settlement struct {
	Consumed  ir.StreamRecord
	Payment   ir.PaymentOutput
	Successor *ir.StreamRecord // nil when the claim exhausted the stream
	Height    uint32
	Seq       int64
}

// IssueStream stores version 0 of a new stream.
// Returns inserted=false if a stream with the same key already exists; the
// existing stream is left untouched.
func (s *Store) IssueStream(ctx context.Context, rec ir.StreamRecord, height uint32, seq int64) (inserted bool, err error) {
	if rec.Version != 0 {
		return false, fmt.Errorf("issue stream: record %s has version %d, want 0", rec.ID, rec.Version)
	}

	body, err := marshalRecord(rec)
	if err != nil {
		return false, fmt.Errorf("issue stream: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("issue stream: begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO streams (stream_key, employer, employee, genesis_id, seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(stream_key) DO NOTHING
	`, rec.StreamKey, string(rec.Employer), string(rec.Employee), rec.ID, seq)
	if err != nil {
		return false, fmt.Errorf("issue stream: insert stream: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("issue stream: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	if err := insertRecord(ctx, tx, rec, body, height, seq); err != nil {
		return false, fmt.Errorf("issue stream: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("issue stream: commit: %w", err)
	}
	return true, nil
}

// Settle atomically consumes a record and writes its payment and successor.
//
// The consumption row is inserted first and claims the record via its
// primary key. If the record was already consumed, Settle returns
// ErrRecordConsumed and writes nothing. If the record was never stored it
// returns ErrRecordNotFound.
func (s *Store) Settle(ctx context.Context, st Settlement) error {
	if st.Payment.Source != st.Consumed.ID {
		return fmt.Errorf("settle: payment source %s does not match consumed record %s", st.Payment.Source, st.Consumed.ID)
	}

	paymentBody, err := marshalPayment(st.Payment)
	if err != nil {
		return fmt.Errorf("settle: %w", err)
	}

	var successorID sql.NullString
	var successorBody string
	if st.Successor != nil {
		if st.Successor.Predecessor != st.Consumed.ID {
			return fmt.Errorf("settle: successor predecessor %s does not match consumed record %s", st.Successor.Predecessor, st.Consumed.ID)
		}
		successorID = sql.NullString{String: st.Successor.ID, Valid: true}
		successorBody, err = marshalRecord(*st.Successor)
		if err != nil {
			return fmt.Errorf("settle: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("settle: begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM records WHERE id = ?`, st.Consumed.ID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("settle: record %s: %w", st.Consumed.ID, ErrRecordNotFound)
	}
	if err != nil {
		return fmt.Errorf("settle: lookup record: %w", err)
	}

	// Step 1: claim the record (single use via primary key)
	result, err := tx.ExecContext(ctx, `
		INSERT INTO consumptions (record_id, payment_id, successor_id, height, seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(record_id) DO NOTHING
	`, st.Consumed.ID, st.Payment.ID, successorID, st.Height, st.Seq)
	if err != nil {
		return fmt.Errorf("settle: insert consumption: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("settle: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("settle: record %s: %w", st.Consumed.ID, ErrRecordConsumed)
	}

	// Step 2: payment
	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (id, stream_key, source_id, owner, body, height, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, st.Payment.ID, st.Payment.StreamKey, st.Payment.Source, string(st.Payment.Owner), paymentBody, st.Height, st.Seq)
	if err != nil {
		return fmt.Errorf("settle: write payment: %w", err)
	}

	// Step 3: successor
	if st.Successor != nil {
		if err := insertRecord(ctx, tx, *st.Successor, successorBody, st.Height, st.Seq); err != nil {
			return fmt.Errorf("settle: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("settle: commit: %w", err)
	}
	return nil
}

func insertRecord(ctx context.Context, tx *sql.Tx, rec ir.StreamRecord, body string, height uint32, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO records (id, stream_key, version, owner, body, height, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.StreamKey, rec.Version, string(rec.Owner), body, height, seq)
	if err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}
