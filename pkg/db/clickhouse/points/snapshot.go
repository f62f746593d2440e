package points

import (
	"context"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/canopy-network/canopyx-points/pkg/ledger"
)

const snapshotColumns = "account_id, sequence, filled_at, balance, cumulative_balance_seconds, last_update_time, updated_at"

func (db *DB) GetSnapshot(ctx context.Context, accountID string, sequence uint64) (*ledger.Snapshot, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM "%s"."%s" FINAL
		WHERE account_id = ? AND sequence = ?
		LIMIT 1
	`, snapshotColumns, db.Name, SnapshotsTableName)

	var rows []ledger.Snapshot
	if err := db.SelectWithFinal(ctx, &rows, query, accountID, sequence); err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (db *DB) UpsertSnapshot(ctx context.Context, snapshot *ledger.Snapshot) error {
	query := fmt.Sprintf(`INSERT INTO "%s"."%s" (%s) VALUES`, db.Name, SnapshotsTableName, snapshotColumns)
	batch, err := db.PrepareBatch(ctx, query)
	if err != nil {
		return err
	}
	defer func(batch driver.Batch) {
		_ = batch.Abort()
	}(batch)

	err = batch.Append(
		snapshot.AccountID,
		snapshot.Sequence,
		snapshot.FilledAt,
		snapshot.Balance,
		snapshot.CumulativeBalanceSeconds,
		snapshot.LastUpdateTime,
		snapshot.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return batch.Send()
}

func (db *DB) ListSnapshots(ctx context.Context, q ledger.SnapshotQuery) ([]ledger.Snapshot, error) {
	query, args, err := buildSnapshotQuery(db.Name, q)
	if err != nil {
		return nil, err
	}

	var rows []ledger.Snapshot
	if err := db.SelectWithFinal(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return rows, nil
}

// buildSnapshotQuery renders q against the FINAL view of the snapshots
// table. Field and operator names are validated before being spliced in.
func buildSnapshotQuery(database string, q ledger.SnapshotQuery) (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	var (
		sb   strings.Builder
		args []any
	)
	fmt.Fprintf(&sb, `SELECT %s FROM "%s"."%s" FINAL`, snapshotColumns, database, SnapshotsTableName)

	for i, f := range q.Filters {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		fmt.Fprintf(&sb, "%s %s ?", f.Field, f.Op)
		args = append(args, f.Value)
	}

	orderBy := q.OrderBy
	if orderBy == "" {
		orderBy = ledger.FieldSequence
	}
	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	fmt.Fprintf(&sb, " ORDER BY %s %s", orderBy, dir)
	if orderBy != ledger.FieldSequence {
		fmt.Fprintf(&sb, ", sequence %s", dir)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}
	return sb.String(), args, nil
}
