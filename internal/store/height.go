package store

import (
	"context"
	"fmt"
)

// CurrentHeight returns the persisted chain height. A fresh store is at 0.
func (s *Store) CurrentHeight(ctx context.Context) (uint32, error) {
	var h uint32
	if err := s.db.QueryRowContext(ctx, `SELECT height FROM chain_height WHERE id = 1`).Scan(&h); err != nil {
		return 0, fmt.Errorf("current height: %w", err)
	}
	return h, nil
}

// AdvanceHeight moves the persisted height to h.
// Setting the current height again is a no-op; moving backwards returns
// ErrHeightDecrease.
func (s *Store) AdvanceHeight(ctx context.Context, h uint32) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE chain_height SET height = ? WHERE id = 1 AND height <= ?
	`, h, h)
	if err != nil {
		return fmt.Errorf("advance height: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("advance height: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("advance height to %d: %w", h, ErrHeightDecrease)
	}
	return nil
}
