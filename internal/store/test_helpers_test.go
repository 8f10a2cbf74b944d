package store

import (
	"path/filepath"
	"testing"

	"github.com/jetrpay/streampay/internal/ir"
	"github.com/jetrpay/streampay/internal/payroll"
)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestStream issues a stream paying 10 per block up to 1000.
func createTestStream(t *testing.T, nonce string) ir.StreamRecord {
	t.Helper()
	rec, err := payroll.CreateStream("acme", "bob", 10, 1000, 0, nonce)
	if err != nil {
		t.Fatalf("CreateStream() failed: %v", err)
	}
	return rec
}

// createTestClaim claims amount from rec at height.
func createTestClaim(t *testing.T, rec ir.StreamRecord, amount uint64, height uint32, seq int64) Settlement {
	t.Helper()
	res, err := payroll.ClaimSalary("bob", rec, amount, height)
	if err != nil {
		t.Fatalf("ClaimSalary() failed: %v", err)
	}
	return Settlement{
		Consumed:  res.Consumed,
		Payment:   res.Payment,
		Successor: res.Successor,
		Height:    height,
		Seq:       seq,
	}
}
