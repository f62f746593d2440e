package points

import (
	"testing"

	"github.com/canopy-network/canopyx-points/pkg/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSnapshotQuery_Bracket(t *testing.T) {
	query, args, err := buildSnapshotQuery(ledger.SnapshotQuery{
		Filters: []ledger.Filter{
			{Field: ledger.FieldAccountID, Op: ledger.OpEq, Value: "holding:1:alice"},
			{Field: ledger.FieldFilledAt, Op: ledger.OpLte, Value: int64(4600)},
		},
		OrderBy: ledger.FieldFilledAt,
		Desc:    true,
		Limit:   2,
	})
	require.NoError(t, err)

	assert.Contains(t, query, " FROM snapshots WHERE account_id = $1 AND filled_at <= $2")
	assert.Contains(t, query, "ORDER BY filled_at DESC, sequence DESC LIMIT 2")
	assert.Equal(t, []any{"holding:1:alice", int64(4600)}, args)
}

func TestBuildSnapshotQuery_SequenceValuesAreSigned(t *testing.T) {
	query, args, err := buildSnapshotQuery(ledger.SnapshotQuery{
		Filters: []ledger.Filter{
			{Field: ledger.FieldAccountID, Op: ledger.OpEq, Value: "a"},
			{Field: ledger.FieldSequence, Op: ledger.OpGt, Value: uint64(7)},
		},
	})
	require.NoError(t, err)

	assert.Contains(t, query, "sequence > $2")
	assert.Contains(t, query, "ORDER BY sequence ASC")
	assert.NotContains(t, query, "LIMIT")
	assert.Equal(t, []any{"a", int64(7)}, args)
}

func TestBuildSnapshotQuery_NoFilters(t *testing.T) {
	query, args, err := buildSnapshotQuery(ledger.SnapshotQuery{})
	require.NoError(t, err)
	assert.NotContains(t, query, "WHERE")
	assert.Empty(t, args)
}

func TestBuildSnapshotQuery_RejectsInvalid(t *testing.T) {
	_, _, err := buildSnapshotQuery(ledger.SnapshotQuery{
		Filters: []ledger.Filter{{Field: "balance; DROP TABLE snapshots", Op: ledger.OpEq, Value: "x"}},
	})
	assert.ErrorIs(t, err, ledger.ErrInvalidQuery)
}
