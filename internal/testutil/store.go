package testutil

import (
	"path/filepath"
	"testing"

	"github.com/jetrpay/streampay/internal/store"
)

// OpenStore opens a fresh SQLite store in a per-test temp directory and
// closes it when the test ends.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "streampay.db")
	st, err := store.Open(path)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Errorf("close test store: %v", err)
		}
	})
	return st
}
