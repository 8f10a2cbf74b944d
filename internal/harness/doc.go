// Package harness runs YAML scenarios against a real salary-stream ledger.
//
// Each scenario gets a fresh in-memory store, a manually advanced height
// and deterministic issuance nonces, so the same file always produces the
// same trace and the same record IDs.
//
// # Scenario Format
//
//	name: partial_claim
//	description: "Claim part of what has accrued"
//	policy:                      # optional, defaults shown
//	  initial_custody: employer  # or employee
//	  overflow: saturate         # or reject
//	  emit_exhausted: false
//	setup:
//	  - action: create_stream
//	    as: s
//	    args: { caller: acme, employee: bob, rate: 10, max_amount: 10000, start_time: 0 }
//	  - action: advance_height
//	    args: { height: 100 }
//	flow:
//	  - invoke: claim_salary
//	    args: { caller: bob, stream: s, amount: 50, height: 100 }
//	    expect:
//	      case: OK
//	      result: { payment: 50, claimed_amount: 50 }
//	  - invoke: claim_salary
//	    args: { caller: bob, stream: s@0, amount: 50 }
//	    expect: { case: RECORD_CONSUMED }
//	assertions:
//	  - type: payment_total
//	    owner: bob
//	    amount: 50
//
// A stream reference is a label ("s", the latest version the scenario has
// seen) or "label@version" for an older version. Numbers may be written as
// typed literals ("10u64", "100u32").
//
// Expected cases are "OK", a settlement code (ZERO_CLAIM,
// INSUFFICIENT_ACCRUAL, ...) or a ledger outcome (RECORD_CONSUMED,
// HEIGHT_AHEAD, ...); see ledger.Outcome.
//
// # Assertion Types
//
//   - trace_count: an action (optionally with a case) ran exactly N times
//   - trace_order: actions ran in the given order
//   - payment_total: stored payments sum to an amount
//   - unspent_count: an owner holds exactly N unconsumed records
//   - final_state: a stream's audit view matches the expected fields
//   - audit_clean: the chain audit finds no problems
//
// # Golden Traces
//
// RunWithGolden compares the canonical JSON trace against
// testdata/golden/<name>.golden using goldie. Traces carry no record IDs.
package harness
