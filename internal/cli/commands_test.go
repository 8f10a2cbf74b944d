package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jetrpay/streampay/internal/ir"
	"github.com/jetrpay/streampay/internal/ledger"
	"github.com/jetrpay/streampay/internal/payroll"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeWithInput(t, "", args...)
}

func executeWithInput(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func dbPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "ledger.db")
}

type rawResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

func decodeResponse(t *testing.T, out string) rawResponse {
	t.Helper()
	var resp rawResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp
}

func decodeData[T any](t *testing.T, out string) T {
	t.Helper()
	resp := decodeResponse(t, out)
	require.Equal(t, "ok", resp.Status, "output: %s", out)
	var v T
	require.NoError(t, json.Unmarshal(resp.Data, &v))
	return v
}

func decodeRecord(t *testing.T, out string) ir.StreamRecord {
	t.Helper()
	return decodeData[ir.StreamRecord](t, out)
}

func createStream(t *testing.T, db string, rate, maxAmount string) ir.StreamRecord {
	t.Helper()
	out, err := execute(t, "--db", db, "--format", "json",
		"create-stream", "--caller", "acme", "--employee", "bob", "--rate", rate, "--max-amount", maxAmount)
	require.NoError(t, err)
	return decodeRecord(t, out)
}

func TestCreateStreamCommand_JSON(t *testing.T) {
	db := dbPath(t)
	rec := createStream(t, db, "10", "1000u64")

	assert.NotEmpty(t, rec.ID)
	assert.NotEmpty(t, rec.StreamKey)
	assert.Equal(t, uint32(0), rec.Version)
	assert.Equal(t, ir.Address("acme"), rec.Owner)
	assert.Equal(t, ir.Address("bob"), rec.Employee)
	assert.Equal(t, uint64(10), rec.Rate)
	assert.Equal(t, uint64(1000), rec.MaxAmount)
	assert.Equal(t, uint64(0), rec.ClaimedAmount)
	assert.NoError(t, rec.Verify())
}

func TestCreateStreamCommand_Text(t *testing.T) {
	out, err := execute(t, "--db", dbPath(t),
		"create-stream", "--caller", "acme", "--employee", "bob", "--rate", "10", "--max-amount", "1000", "--start-time", "5u32")
	require.NoError(t, err)

	assert.Contains(t, out, "✓ Stream issued")
	assert.Contains(t, out, "rate: 10u64.private")
	assert.Contains(t, out, "start_time: 5u32.private")
	assert.Contains(t, out, "version: 0u32.public")
}

func TestCreateStreamCommand_Rejected(t *testing.T) {
	out, err := execute(t, "--db", dbPath(t), "--format", "json",
		"create-stream", "--caller", "acme", "--employee", "bob", "--rate", "0", "--max-amount", "1000")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse(t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeSettlement, resp.Error.Code)
	details, ok := resp.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, string(payroll.ErrCodeInvalidTerms), details["outcome"])
}

func TestCreateStreamCommand_BadArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad rate", []string{"--rate", "ten", "--max-amount", "1"}, "--rate"},
		{"bad max", []string{"--rate", "1", "--max-amount", "-1"}, "--max-amount"},
		{"start too large", []string{"--rate", "1", "--max-amount", "1", "--start-time", "4294967296"}, "--start-time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--db", dbPath(t), "create-stream", "--caller", "acme", "--employee", "bob"}, tt.args...)
			out, err := execute(t, args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "Error [E004]")
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestCreateStreamCommand_MissingFlags(t *testing.T) {
	_, err := execute(t, "--db", dbPath(t), "create-stream", "--caller", "acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestClaimSalaryCommand_Flow(t *testing.T) {
	db := dbPath(t)
	rec := createStream(t, db, "10", "1000")

	_, err := execute(t, "--db", db, "advance-height", "10")
	require.NoError(t, err)

	// Partial claim at the current height.
	out, err := execute(t, "--db", db, "--format", "json",
		"claim-salary", "--id", rec.ID, "--caller", "bob", "--amount", "50")
	require.NoError(t, err)
	claim := decodeData[ClaimView](t, out)
	assert.Equal(t, rec.ID, claim.Consumed)
	assert.Equal(t, uint64(50), claim.Payment.Amount)
	assert.Equal(t, ir.Address("bob"), claim.Payment.Owner)
	assert.Equal(t, uint32(10), claim.Height)
	assert.Equal(t, uint64(100), claim.Accrual.AccruedTotal)
	assert.False(t, claim.Exhausted)
	require.NotNil(t, claim.Successor)
	successor := *claim.Successor
	assert.Equal(t, uint32(1), successor.Version)
	assert.Equal(t, uint64(50), successor.ClaimedAmount)
	assert.Equal(t, ir.Address("bob"), successor.Owner)

	// The consumed version cannot be claimed again.
	out, err = execute(t, "--db", db, "--format", "json",
		"claim-salary", "--id", rec.ID, "--caller", "bob", "--amount", "1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	resp := decodeResponse(t, out)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeConsumed, resp.Error.Code)

	// The successor only has 50 left at this height.
	out, err = execute(t, "--db", db, "--format", "json",
		"claim-salary", "--id", successor.ID, "--caller", "bob", "--amount", "100")
	require.Error(t, err)
	resp = decodeResponse(t, out)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeSettlement, resp.Error.Code)
	details, ok := resp.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "INSUFFICIENT_ACCRUAL", details["outcome"])
	assert.Equal(t, "100", details["requested"])
	assert.Equal(t, "50", details["available"])

	// A height beyond the ledger's is refused.
	out, err = execute(t, "--db", db, "--format", "json",
		"claim-salary", "--id", successor.ID, "--caller", "bob", "--amount", "1", "--height", "11")
	require.Error(t, err)
	resp = decodeResponse(t, out)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeHeight, resp.Error.Code)
	assert.Equal(t, ledger.OutcomeHeightAhead, resp.Error.Details.(map[string]any)["outcome"])

	// Queries see the settled state.
	out, err = execute(t, "--db", db, "--format", "json", "records", "--owner", "bob")
	require.NoError(t, err)
	records := decodeData[[]RecordView](t, out)
	require.Len(t, records, 1)
	assert.Equal(t, successor.ID, records[0].Record.ID)
	assert.Equal(t, uint32(10), records[0].Height)

	out, err = execute(t, "--db", db, "--format", "json", "payments")
	require.NoError(t, err)
	payments := decodeData[[]PaymentView](t, out)
	require.Len(t, payments, 1)
	assert.Equal(t, claim.Payment.ID, payments[0].Payment.ID)

	out, err = execute(t, "--db", db, "--format", "json", "show", rec.ID)
	require.NoError(t, err)
	view := decodeData[RecordView](t, out)
	assert.True(t, view.Consumed)
	assert.Equal(t, claim.Payment.ID, view.PaymentID)
	assert.Equal(t, successor.ID, view.SuccessorID)

	out, err = execute(t, "--db", db, "--format", "json", "accrued", successor.ID, "--height", "20")
	require.NoError(t, err)
	acc := decodeData[payroll.Accrual](t, out)
	assert.Equal(t, uint64(200), acc.AccruedTotal)
	assert.Equal(t, uint64(150), acc.Available)
	assert.Equal(t, uint64(950), acc.Remaining)

	out, err = execute(t, "--db", db, "--format", "json", "audit")
	require.NoError(t, err)
	audit := decodeData[AuditResult](t, out)
	require.Len(t, audit.Reports, 1)
	assert.Equal(t, 1, audit.Passed)
	assert.Equal(t, uint64(50), audit.Reports[0].Paid)
}

func TestClaimSalaryCommand_PlaintextRecord(t *testing.T) {
	db := dbPath(t)
	rec := createStream(t, db, "10", "100")
	_, err := execute(t, "--db", db, "advance-height", "10")
	require.NoError(t, err)

	// show prints the record in a form claim-salary reads back from stdin.
	shown, err := execute(t, "--db", db, "show", rec.ID)
	require.NoError(t, err)
	assert.Contains(t, shown, "status: unspent")

	out, err := executeWithInput(t, shown, "--db", db,
		"claim-salary", "--record", "-", "--caller", "bob", "--amount", "100u64")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Claimed 100 at height 10")
	assert.Contains(t, out, "amount: 100u64.private")
	assert.Contains(t, out, "Stream exhausted: no successor record.")

	out, err = execute(t, "--db", db, "audit")
	require.NoError(t, err)
	assert.Contains(t, out, "paid=100/100 exhausted")
	assert.Contains(t, out, "Audit Summary: 1 passed, 0 failed, 1 total")
}

func TestClaimSalaryCommand_TamperedPlaintext(t *testing.T) {
	db := dbPath(t)
	rec := createStream(t, db, "10", "100")

	shown, err := execute(t, "--db", db, "show", rec.ID)
	require.NoError(t, err)
	tampered := strings.Replace(shown, "rate: 10u64", "rate: 99u64", 1)

	out, err := execute(t, "--db", db, "claim-salary", "--record", tampered, "--caller", "bob", "--amount", "1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E004]")
}

func TestClaimSalaryCommand_RecordOrID(t *testing.T) {
	db := dbPath(t)

	_, err := execute(t, "--db", db, "claim-salary", "--caller", "bob", "--amount", "1")
	require.Error(t, err)

	_, err = execute(t, "--db", db, "claim-salary", "--id", "a", "--record", "b", "--caller", "bob", "--amount", "1")
	require.Error(t, err)
}

func TestClaimSalaryCommand_UnknownID(t *testing.T) {
	out, err := execute(t, "--db", dbPath(t), "claim-salary", "--id", "nope", "--caller", "bob", "--amount", "1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]")
}

func TestShowCommand_Payment(t *testing.T) {
	db := dbPath(t)
	rec := createStream(t, db, "1", "10")
	_, err := execute(t, "--db", db, "advance-height", "3")
	require.NoError(t, err)

	out, err := execute(t, "--db", db, "--format", "json", "claim-salary", "--id", rec.ID, "--caller", "bob", "--amount", "3")
	require.NoError(t, err)
	claim := decodeData[ClaimView](t, out)

	out, err = execute(t, "--db", db, "show", claim.Payment.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "amount: 3u64.private")
	assert.Contains(t, out, "emitted at height 3")
}

func TestShowCommand_NotFound(t *testing.T) {
	out, err := execute(t, "--db", dbPath(t), "--format", "json", "show", "missing")
	require.Error(t, err)
	resp := decodeResponse(t, out)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}

func TestListCommands_Empty(t *testing.T) {
	db := dbPath(t)

	out, err := execute(t, "--db", db, "records")
	require.NoError(t, err)
	assert.Contains(t, out, "No unspent records.")

	out, err = execute(t, "--db", db, "payments")
	require.NoError(t, err)
	assert.Contains(t, out, "No payments.")

	out, err = execute(t, "--db", db, "audit")
	require.NoError(t, err)
	assert.Contains(t, out, "No streams found.")
}

func TestRecordsCommand_Text(t *testing.T) {
	db := dbPath(t)
	rec := createStream(t, db, "10", "1000")

	out, err := execute(t, "--db", db, "records", "--owner", "acme")
	require.NoError(t, err)
	assert.Contains(t, out, rec.ID)
	assert.Contains(t, out, "claimed=0/1000")

	out, err = execute(t, "--db", db, "records", "--owner", "bob")
	require.NoError(t, err)
	assert.Contains(t, out, "No unspent records.")
}

func TestHeightCommands(t *testing.T) {
	db := dbPath(t)

	out, err := execute(t, "--db", db, "height")
	require.NoError(t, err)
	assert.Equal(t, "0\n", out)

	out, err = execute(t, "--db", db, "advance-height", "25u32")
	require.NoError(t, err)
	assert.Contains(t, out, "Height is now 25")

	out, err = execute(t, "--db", db, "--format", "json", "height")
	require.NoError(t, err)
	assert.Equal(t, HeightView{Height: 25}, decodeData[HeightView](t, out))

	out, err = execute(t, "--db", db, "advance-height", "7")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E203]")

	_, err = execute(t, "--db", db, "advance-height", "soon")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestAccruedCommand_Text(t *testing.T) {
	db := dbPath(t)
	rec := createStream(t, db, "10", "1000")

	out, err := execute(t, "--db", db, "accrued", rec.ID, "--height", "30")
	require.NoError(t, err)
	assert.Contains(t, out, "accrued total: 300")
	assert.Contains(t, out, "available:     300")
	assert.Contains(t, out, "remaining:     1000")
}

func TestAuditCommand_UnknownStream(t *testing.T) {
	out, err := execute(t, "--db", dbPath(t), "audit", "no-such-stream")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]")
}

func TestDatabaseOpenFailure(t *testing.T) {
	out, err := execute(t, "--db", filepath.Join(t.TempDir(), "missing", "dir", "ledger.db"), "height")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E003]")
}
