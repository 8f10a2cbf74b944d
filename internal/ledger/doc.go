// Package ledger persists salary streams on top of the settlement rules.
//
// The ledger is the glue between internal/payroll (pure settlement rules) and
// internal/store (single-use record storage). Each operation:
//  1. Reads the chain height from a HeightOracle
//  2. Runs the pure payroll operation
//  3. Writes every output in one store transaction
//
// Nothing is retried. A claim that loses a race for its record fails with
// store.ErrRecordConsumed and leaves no trace.
//
// LOGICAL CLOCK:
// Every write is stamped with a seq from Clock.Next(). The clock resumes from
// the store's highest seq, so listings are ordered the same way across
// processes. Wall-clock time is never used for ordering.
//
// HEIGHT:
// Claims may not name a height ahead of the oracle (ErrHeightAhead) or below
// the height at which the presented record was produced (ErrHeightRegressed).
package ledger
