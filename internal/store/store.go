package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

var (
	// ErrRecordNotFound is returned when no record or payment has the given ID.
	ErrRecordNotFound = errors.New("record not found")

	// ErrRecordConsumed is returned by Settle when the record was already
	// consumed. The first consumer wins; every later attempt gets this error.
	ErrRecordConsumed = errors.New("record already consumed")

	// ErrHeightDecrease is returned when the stored height would move backwards.
	ErrHeightDecrease = errors.New("height cannot decrease")
)

// Store is the durable record store for salary streams.
type Store struct {
	db *sql.DB
}

// dsnPragmas are applied by go-sqlite3 on every new connection.
const dsnPragmas = "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"

// Open creates or opens the ledger database at path and brings its schema up
// to date. Opening an existing ledger keeps its records and height.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?"+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	// One connection: SQLite has a single writer and Settle relies on it.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// migrations[i] upgrades a database at user_version i to i+1. The base
// schema is applied first and is idempotent.
var migrations = []string{
	`CREATE INDEX IF NOT EXISTS idx_records_owner ON records(owner, seq);
	 CREATE INDEX IF NOT EXISTS idx_payments_owner ON payments(owner, seq);`,
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	for ; version < len(migrations); version++ {
		if _, err := db.Exec(migrations[version]); err != nil {
			return fmt.Errorf("migrate to v%d: %w", version+1, err)
		}
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", version+1)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

// LastSeq returns the highest seq number used in the store.
// The ledger resumes its logical clock from here.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(
			(SELECT COALESCE(MAX(seq), 0) FROM records),
			(SELECT COALESCE(MAX(seq), 0) FROM consumptions)
		)
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return seq, nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
