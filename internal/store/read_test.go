package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadChain(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	rec := createTestStream(t, "n1")
	_, err := s.IssueStream(ctx, rec, 0, 1)
	require.NoError(t, err)

	first := createTestClaim(t, rec, 100, 10, 2)
	require.NoError(t, s.Settle(ctx, first))
	second := createTestClaim(t, *first.Successor, 50, 20, 3)
	require.NoError(t, s.Settle(ctx, second))

	chain, err := s.ReadChain(ctx, rec.StreamKey)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	for i, sr := range chain {
		assert.Equal(t, uint32(i), sr.Record.Version)
	}
	assert.Equal(t, rec.ID, chain[1].Record.Predecessor)
	assert.Equal(t, uint64(150), chain[2].Record.ClaimedAmount)
	assert.True(t, chain[0].Consumed)
	assert.True(t, chain[1].Consumed)
	assert.False(t, chain[2].Consumed)

	payments, err := s.ReadPayments(ctx, rec.StreamKey)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, uint64(100), payments[0].Payment.Amount)
	assert.Equal(t, uint64(50), payments[1].Payment.Amount)
	assert.Equal(t, uint32(20), payments[1].Height)
}

func TestReadChain_UnknownKey(t *testing.T) {
	s := createTestStore(t)
	chain, err := s.ReadChain(context.Background(), "nope")
	require.NoError(t, err)
	assert.NotNil(t, chain)
	assert.Empty(t, chain)
}

func TestReadRecord_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadRecord(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	_, err = s.ReadPayment(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestListUnspentAndPayments(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	a := createTestStream(t, "a")
	b := createTestStream(t, "b")
	_, err := s.IssueStream(ctx, a, 0, 1)
	require.NoError(t, err)
	_, err = s.IssueStream(ctx, b, 0, 2)
	require.NoError(t, err)

	// Both streams start in employer custody.
	unspent, err := s.ListUnspent(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, unspent, 2)
	assert.Equal(t, a.ID, unspent[0].Record.ID)
	assert.Equal(t, b.ID, unspent[1].Record.ID)

	st := createTestClaim(t, a, 10, 5, 3)
	require.NoError(t, s.Settle(ctx, st))

	unspent, err = s.ListUnspent(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, unspent, 1)
	assert.Equal(t, b.ID, unspent[0].Record.ID)

	unspent, err = s.ListUnspent(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, unspent, 1)
	assert.Equal(t, st.Successor.ID, unspent[0].Record.ID)

	all, err := s.ListUnspent(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	payments, err := s.ListPayments(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, uint64(10), payments[0].Payment.Amount)

	none, err := s.ListPayments(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, none)

	keys, err := s.ListStreamKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{a.StreamKey, b.StreamKey}, keys)

	last, err := s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), last)
}

func TestLastSeq_Empty(t *testing.T) {
	s := createTestStore(t)
	seq, err := s.LastSeq(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)
}

func TestUnmarshalRecord_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"missing rate", `{"id":"x","max_amount":"1u64","claimed_amount":"0u64","version":"0u32","start_time":"0u32"}`},
		{"bad version", `{"id":"x","rate":"1u64","max_amount":"1u64","claimed_amount":"0u64","version":"v","start_time":"0u32"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := unmarshalRecord(tt.body)
			assert.Error(t, err)
		})
	}
}
