package testutil

import (
	"fmt"
	"sync"
)

// SequentialNonces generates "<prefix>-1", "<prefix>-2", ... forever.
//
// The same prefix always yields the same sequence, so a scenario replayed
// with a fresh SequentialNonces produces byte-identical record IDs.
// Satisfies ledger.NonceGenerator.
//
// Thread-safety: all methods are safe for concurrent use.
type SequentialNonces struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialNonces creates a generator. An empty prefix means "nonce".
func NewSequentialNonces(prefix string) *SequentialNonces {
	if prefix == "" {
		prefix = "nonce"
	}
	return &SequentialNonces{prefix: prefix}
}

// Generate returns the next nonce in the sequence.
func (g *SequentialNonces) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Reset restarts the sequence. The next call to Generate returns "<prefix>-1".
func (g *SequentialNonces) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
