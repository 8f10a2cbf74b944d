package harness

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_ScenarioA(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/scenario_a_partial_claim.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunWithGolden_ScenarioB(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/scenario_b_insufficient_accrual.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestMarshalTrace_Canonical(t *testing.T) {
	result := NewResult()
	result.AddTrace(TraceEvent{
		Seq:    1,
		Action: ActionAdvanceHeight,
		Args:   map[string]any{"height": uint64(7)},
		Case:   "OK",
	})
	result.AddTrace(TraceEvent{
		Seq:    2,
		Action: ActionClaimSalary,
		Args:   map[string]any{"stream": "s", "amount": uint64(1), "caller": "bob", "height": uint64(7)},
		Case:   "ZERO_CLAIM",
		Result: map[string]any{},
	})

	data, err := MarshalTrace("canonical", result)
	require.NoError(t, err)

	want := `{"scenario_name":"canonical","trace":[` +
		`{"action":"advance_height","args":{"height":7},"case":"OK","seq":1},` +
		`{"action":"claim_salary","args":{"amount":1,"caller":"bob","height":7,"stream":"s"},"case":"ZERO_CLAIM","seq":2}]}`
	assert.Equal(t, want, string(data))
}

func TestMarshalTrace_NoRecordIDs(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/exhaust_terminal.yaml")
	require.NoError(t, err)
	result, err := Run(scenario)
	require.NoError(t, err)

	data, err := MarshalTrace(scenario.Name, result)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), "_id"))
	assert.False(t, strings.Contains(string(data), "nonce"))
}
