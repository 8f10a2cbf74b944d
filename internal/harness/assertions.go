package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/jetrpay/streampay/internal/ir"
	"github.com/jetrpay/streampay/internal/ledger"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %v -> %s\n", event.Seq, event.Action, event.Args, event.Case)
		}
	}

	return buf.String()
}

// assertTraceCount checks that the action (optionally with a given case)
// appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Action != assertion.Action {
			continue
		}
		if assertion.Case != "" && event.Case != assertion.Case {
			continue
		}
		count++
	}

	if count != assertion.Count {
		what := assertion.Action
		if assertion.Case != "" {
			what += " with case " + assertion.Case
		}
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, what),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertTraceOrder checks that actions appear in the specified order.
// Actions don't need to be consecutive, and each expected action matches a
// step after the one matched by its predecessor.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	pos := 0
	for _, want := range assertion.Actions {
		found := false
		for pos < len(trace) {
			event := trace[pos]
			pos++
			if event.Action == want {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", assertion.Actions),
				Actual:   fmt.Sprintf("no %s after the preceding actions", want),
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertPaymentTotal sums stored payments, filtered by owner and stream.
func assertPaymentTotal(actx *AssertionContext, assertion Assertion) error {
	payments, err := actx.Ledger.Payments(actx.Ctx, ir.Address(assertion.Owner))
	if err != nil {
		return fmt.Errorf("payment_total: %w", err)
	}

	streamKey := actx.Streams[assertion.Stream]
	var total uint64
	for _, p := range payments {
		if assertion.Stream != "" && p.Payment.StreamKey != streamKey {
			continue
		}
		total += p.Payment.Amount
	}

	if total != assertion.Amount {
		return &AssertionError{
			Type:     AssertPaymentTotal,
			Expected: fmt.Sprintf("payments totalling %d%s", assertion.Amount, describeFilter(assertion)),
			Actual:   fmt.Sprintf("%d across %d payments", total, len(payments)),
		}
	}
	return nil
}

// assertUnspentCount counts unconsumed records held by an owner.
func assertUnspentCount(actx *AssertionContext, assertion Assertion) error {
	unspent, err := actx.Ledger.Unspent(actx.Ctx, ir.Address(assertion.Owner))
	if err != nil {
		return fmt.Errorf("unspent_count: %w", err)
	}

	streamKey := actx.Streams[assertion.Stream]
	count := 0
	for _, r := range unspent {
		if assertion.Stream != "" && r.Record.StreamKey != streamKey {
			continue
		}
		count++
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertUnspentCount,
			Expected: fmt.Sprintf("%d unspent records%s", assertion.Count, describeFilter(assertion)),
			Actual:   fmt.Sprintf("%d unspent records", count),
		}
	}
	return nil
}

// assertFinalState compares a stream's snapshot against expected values
// using subset semantics.
func assertFinalState(result *Result, assertion Assertion) error {
	state, ok := result.State[assertion.Stream].(map[string]any)
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("state for stream %q", assertion.Stream),
			Actual:   "stream not in final state",
		}
	}

	for _, key := range sortedKeys(assertion.Expect) {
		expected := assertion.Expect[key]
		actual, exists := state[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in state: %v", key, sortedKeys(state)),
			}
		}
		if !valuesEqual(actual, expected) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s.%s = %v", assertion.Stream, key, expected),
				Actual:   fmt.Sprintf("%s.%s = %v", assertion.Stream, key, actual),
			}
		}
	}
	return nil
}

// assertAuditClean runs the chain audit on one stream, or every labelled
// stream when none is named.
func assertAuditClean(actx *AssertionContext, assertion Assertion) error {
	labels := []string{assertion.Stream}
	if assertion.Stream == "" {
		labels = sortedKeys(actx.Streams)
	}

	for _, label := range labels {
		report, err := actx.Ledger.Audit(actx.Ctx, actx.Streams[label])
		if err != nil {
			return fmt.Errorf("audit_clean: stream %q: %w", label, err)
		}
		if !report.OK() {
			return &AssertionError{
				Type:     AssertAuditClean,
				Expected: fmt.Sprintf("stream %q passes audit", label),
				Actual:   strings.Join(report.Problems, "; "),
			}
		}
	}
	return nil
}

func describeFilter(a Assertion) string {
	var parts []string
	if a.Owner != "" {
		parts = append(parts, "owner "+a.Owner)
	}
	if a.Stream != "" {
		parts = append(parts, "stream "+a.Stream)
	}
	if len(parts) == 0 {
		return ""
	}
	return " for " + strings.Join(parts, ", ")
}

// valuesEqual compares a produced value with a YAML-parsed expectation.
// YAML integers arrive as int while the harness produces uint64, so values
// are compared by their printed form.
func valuesEqual(actual, expected interface{}) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}
	return fmt.Sprint(actual) == fmt.Sprint(expected)
}

// AssertionContext provides ledger access for state assertions.
type AssertionContext struct {
	Ledger  *ledger.Ledger
	Ctx     context.Context
	Streams map[string]string // label -> stream key
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// Assertions that read stored state need actx.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertFinalState:
			err = assertFinalState(result, assertion)
		case AssertPaymentTotal, AssertUnspentCount, AssertAuditClean:
			if actx == nil || actx.Ledger == nil {
				err = fmt.Errorf("assertion[%d]: %s requires ledger context", i, assertion.Type)
				break
			}
			switch assertion.Type {
			case AssertPaymentTotal:
				err = assertPaymentTotal(actx, assertion)
			case AssertUnspentCount:
				err = assertUnspentCount(actx, assertion)
			default:
				err = assertAuditClean(actx, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
