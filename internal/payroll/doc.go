// Package payroll implements the settlement rules for salary streams.
//
// Two operations make up the whole surface:
//
//	CreateStream(caller, employee, rate, maxAmount, startTime, nonce) -> StreamRecord
//	ClaimSalary(caller, stream, claimAmount, currentHeight) -> (PaymentOutput, *StreamRecord)
//
// Both are pure functions of their inputs. They perform no I/O, keep no
// shared state, never log and never retry. Single use of a consumed record is
// the record store's job (see internal/store); this package only makes sure
// every successor has a fresh identity so a replayed record can be detected by
// ID.
//
// Lifecycle of one stream:
//
//	Created --claim--> PartiallyClaimed --claim--> ... --claim--> Exhausted
//
// Created and PartiallyClaimed share one record shape and differ only in
// ClaimedAmount. Exhausted is terminal: by default no successor is emitted.
//
// Arithmetic is unsigned and checked. rate*elapsed is computed with
// math/bits.Mul64; a product that overflows u64 is treated as max_amount
// unless the policy says to reject it.
package payroll
