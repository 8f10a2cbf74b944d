package ledger

import (
	"sync"

	"github.com/google/uuid"
)

// NonceGenerator supplies issuance nonces. Two streams with identical terms
// differ only by nonce, so every call must return a fresh value.
// Implemented by UUIDv7Nonces (production) and FixedNonces (tests).
type NonceGenerator interface {
	Generate() string
}

// UUIDv7Nonces generates time-sortable UUIDv7 nonces.
//
// UUIDv7Nonces is stateless and safe for concurrent use.
type UUIDv7Nonces struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Nonces) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedNonces returns predetermined nonces in order.
//
// FixedNonces is safe for concurrent use.
type FixedNonces struct {
	mu     sync.Mutex
	nonces []string
	idx    int
}

// NewFixedNonces creates a generator that returns nonces in order.
//
//	gen := NewFixedNonces("n-1", "n-2")
//	gen.Generate() // "n-1"
//	gen.Generate() // "n-2"
//	gen.Generate() // panic: all nonces exhausted
func NewFixedNonces(nonces ...string) *FixedNonces {
	return &FixedNonces{nonces: nonces}
}

// Generate returns the next predetermined nonce.
//
// Panics if all nonces have been consumed. A test that issues more streams
// than it configured is misconfigured.
func (g *FixedNonces) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.nonces) {
		panic("FixedNonces: all nonces exhausted")
	}
	nonce := g.nonces[g.idx]
	g.idx++
	return nonce
}
