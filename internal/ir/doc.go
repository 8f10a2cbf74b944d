// Package ir provides the canonical record types for streampay.
//
// This package contains the record model and its content-addressed identity.
// All other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Records are values. A StreamRecord is never mutated; a claim produces a
//     new version with a new ID.
//   - IDs are SHA-256 over RFC 8785 canonical JSON with a domain prefix, so the
//     same fields always hash to the same ID and any edit changes it.
//   - Amounts are u64 and heights u32. Canonical JSON carries them as typed
//     literals ("10u64", "100u32") so values above 2^53 survive every decoder.
//   - No floats anywhere.
package ir
