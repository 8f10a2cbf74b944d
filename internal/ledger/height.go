package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/jetrpay/streampay/internal/store"
)

// HeightOracle reports the current chain height. Heights never decrease.
// Implemented by ManualHeight (tests, harness) and *store.Store (CLI).
type HeightOracle interface {
	CurrentHeight(ctx context.Context) (uint32, error)
}

var (
	_ HeightOracle = (*ManualHeight)(nil)
	_ HeightOracle = (*store.Store)(nil)
)

// ManualHeight is an in-memory height that only moves when told to.
//
// ManualHeight is safe for concurrent use.
type ManualHeight struct {
	mu     sync.Mutex
	height uint32
}

// NewManualHeight creates an oracle at the given height.
func NewManualHeight(start uint32) *ManualHeight {
	return &ManualHeight{height: start}
}

// CurrentHeight returns the current height. It never fails.
func (m *ManualHeight) CurrentHeight(context.Context) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.height, nil
}

// AdvanceHeight moves the height to h. Moving backwards is an error.
func (m *ManualHeight) AdvanceHeight(_ context.Context, h uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h < m.height {
		return fmt.Errorf("advance height from %d to %d: %w", m.height, h, store.ErrHeightDecrease)
	}
	m.height = h
	return nil
}
