package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jetrpay/streampay/internal/payroll"
	"github.com/jetrpay/streampay/internal/store"
)

func TestAuditCleanChain(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rec, err := f.ledger.CreateStream(ctx, employer, employee, 10, 1000, 0)
	require.NoError(t, err)
	f.advance(t, 100)

	res, err := f.ledger.ClaimSalary(ctx, employee, rec, 300, 50)
	require.NoError(t, err)
	_, err = f.ledger.ClaimSalary(ctx, employee, *res.Successor, 200, 100)
	require.NoError(t, err)

	report, err := f.ledger.Audit(ctx, rec.StreamKey)
	require.NoError(t, err)
	assert.True(t, report.OK(), "problems: %v", report.Problems)
	assert.Equal(t, 3, report.Versions)
	assert.Equal(t, 2, report.Payments)
	assert.Equal(t, uint64(500), report.Paid)
	assert.Equal(t, uint64(500), report.Claimed)
	assert.False(t, report.Exhausted)
}

func TestAuditExhaustedChain(t *testing.T) {
	for _, emit := range []bool{false, true} {
		t.Run(map[bool]string{false: "omitted", true: "terminal record"}[emit], func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, WithPolicy(payroll.Policy{EmitExhausted: emit}))

			rec, err := f.ledger.CreateStream(ctx, employer, employee, 10, 1000, 0)
			require.NoError(t, err)
			f.advance(t, 1000)

			res, err := f.ledger.ClaimSalary(ctx, employee, rec, 400, 40)
			require.NoError(t, err)
			_, err = f.ledger.ClaimSalary(ctx, employee, *res.Successor, 600, 1000)
			require.NoError(t, err)

			report, err := f.ledger.Audit(ctx, rec.StreamKey)
			require.NoError(t, err)
			assert.True(t, report.OK(), "problems: %v", report.Problems)
			assert.True(t, report.Exhausted)
			assert.Equal(t, uint64(1000), report.Paid)
		})
	}
}

func TestAuditUnknownStream(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.Audit(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrRecordNotFound)
}
