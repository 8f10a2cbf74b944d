// Package store provides SQLite-backed durable storage for salary streams.
//
// The store is append-only:
//   - Streams: one row per issued stream, keyed by stream key
//   - Records: every version of every stream, keyed by content-addressed ID
//   - Consumptions: one row per spent record (the single-use guard)
//   - Payments: one row per claim, unique per consumed record
//
// # Single Use
//
// A record is spent by inserting its ID into consumptions inside the same
// transaction that writes the payment and the successor. The insert uses
// ON CONFLICT DO NOTHING and checks RowsAffected: the first consumer wins,
// everyone else gets ErrRecordConsumed and nothing is written.
//
// # Ordering
//
// All listings use seq (the ledger's logical clock), never timestamps:
// ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Record bodies are stored as RFC 8785 canonical JSON produced by
// internal/ir, so a stored record re-hashes to its ID byte for byte.
package store
