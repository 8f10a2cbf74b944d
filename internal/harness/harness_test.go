package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, content string) *Scenario {
	t.Helper()
	scenario, err := ParseScenario([]byte(content))
	require.NoError(t, err)
	return scenario
}

func TestRun_ExampleScenariosPass(t *testing.T) {
	files, err := Discover("testdata/scenarios")
	require.NoError(t, err)

	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			scenario, err := LoadScenario(file)
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_MinimalScenario(t *testing.T) {
	result, err := Run(mustParse(t, minimalScenario))
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 2)

	create := result.Trace[0]
	assert.Equal(t, int64(1), create.Seq)
	assert.Equal(t, ActionCreateStream, create.Action)
	assert.Equal(t, "s", create.Label)
	assert.Equal(t, "OK", create.Case)
	assert.Equal(t, "acme", create.Result["owner"])

	claim := result.Trace[1]
	assert.Equal(t, int64(2), claim.Seq)
	assert.Equal(t, "ZERO_CLAIM", claim.Case)
	assert.Equal(t, uint64(0), claim.Args["height"], "height defaults to the current height")
	assert.Nil(t, claim.Result)
}

func TestRun_ReportsWrongCase(t *testing.T) {
	scenario := mustParse(t, `
name: wrong_case
description: "Expects OK where the claim is rejected"
setup:
  - action: create_stream
    as: s
    args: { caller: acme, employee: bob, rate: 10, max_amount: 1000 }
flow:
  - invoke: claim_salary
    args: { caller: bob, stream: s, amount: 5 }
assertions:
  - type: payment_total
    amount: 0
`)

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected case OK, got INSUFFICIENT_ACCRUAL")
	assert.Contains(t, result.Errors[0], "available=0")
}

func TestRun_ReportsWrongResult(t *testing.T) {
	scenario := mustParse(t, `
name: wrong_result
description: "Expects the wrong claimed amount"
setup:
  - action: create_stream
    as: s
    args: { caller: acme, employee: bob, rate: 10, max_amount: 1000 }
  - action: advance_height
    args: { height: 10 }
flow:
  - invoke: claim_salary
    args: { caller: bob, stream: s, amount: 5 }
    expect:
      case: OK
      result: { claimed_amount: 6, bonus: 1 }
assertions:
  - type: payment_total
    amount: 5
`)

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], `result field "bonus" missing`)
	assert.Contains(t, result.Errors[1], `result field "claimed_amount" = 5, expected 6`)
}

func TestRun_ReportsFailedAssertion(t *testing.T) {
	scenario := mustParse(t, minimalScenario+`
  - type: unspent_count
    owner: bob
    count: 1
`)

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Assertion failed: unspent_count")
}

func TestRun_SetupMustSucceed(t *testing.T) {
	scenario := mustParse(t, `
name: bad_setup
description: "Setup claim before anything accrued"
setup:
  - action: create_stream
    as: s
    args: { caller: acme, employee: bob, rate: 10, max_amount: 1000 }
  - action: claim_salary
    args: { caller: bob, stream: s, amount: 5 }
flow:
  - invoke: advance_height
    args: { height: 1 }
assertions:
  - type: audit_clean
`)

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup step 1 (claim_salary): got INSUFFICIENT_ACCRUAL")
}

func TestRun_BrokenStepsAbort(t *testing.T) {
	tests := []struct {
		name    string
		step    string
		wantErr string
	}{
		{"unseen version", "{ invoke: claim_salary, args: { caller: bob, stream: s@4, amount: 1 } }", "has no version 4"},
		{"negative amount", "{ invoke: claim_salary, args: { caller: bob, stream: s, amount: -1 } }", "is negative"},
		{"height too large", "{ invoke: advance_height, args: { height: 4294967296 } }", "does not fit in u32"},
		{"unknown arg", "{ invoke: advance_height, args: { height: 1, speed: 2 } }", `unknown arg "speed"`},
		{"bad literal", "{ invoke: claim_salary, args: { caller: bob, stream: s, amount: ten } }", `arg "amount"`},
		{"caller not a string", "{ invoke: claim_salary, args: { caller: 7, stream: s, amount: 1 } }", "expected a string"},
		{"missing amount", "{ invoke: claim_salary, args: { caller: bob, stream: s } }", `arg "amount" is required`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenario := mustParse(t, `
name: broken
description: d
setup:
  - action: create_stream
    as: s
    args: { caller: acme, employee: bob, rate: 10, max_amount: 1000 }
flow:
  - `+tt.step+`
assertions:
  - type: audit_clean
`)
			_, err := Run(scenario)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRun_StateSnapshot(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/stale_record.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)

	state, ok := result.State["s"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, uint64(3), state["versions"])
	assert.Equal(t, uint64(2), state["payments"])
	assert.Equal(t, uint64(100), state["paid"])
	assert.Equal(t, "bob", state["owner"])
	assert.Equal(t, false, state["consumed"])
	assert.Equal(t, true, state["ok"])
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/exhaust_terminal.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := MarshalTrace(scenario.Name, first)
	require.NoError(t, err)
	b, err := MarshalTrace(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_TypedLiterals(t *testing.T) {
	scenario := mustParse(t, `
name: literals
description: "Typed literals and plain integers are interchangeable"
setup:
  - action: create_stream
    as: s
    args: { caller: acme, employee: bob, rate: 10u64, max_amount: "1000", start_time: 5u32 }
  - action: advance_height
    args: { height: 15u32 }
flow:
  - invoke: claim_salary
    args: { caller: bob, stream: s, amount: 100u64 }
    expect:
      case: OK
      result: { payment: 100 }
assertions:
  - type: payment_total
    amount: 100
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, uint64(5), result.Trace[0].Args["start_time"])
}
