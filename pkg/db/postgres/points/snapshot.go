package points

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/canopy-network/canopyx-points/pkg/db/postgres"
	"github.com/canopy-network/canopyx-points/pkg/ledger"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// initSnapshots creates the snapshots table. The primary key serves point
// lookups by sequence, the filled_at index serves bracketing.
func (db *DB) initSnapshots(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS snapshots (
			account_id TEXT NOT NULL,
			sequence BIGINT NOT NULL,
			filled_at BIGINT NOT NULL,
			balance NUMERIC(20,0) NOT NULL DEFAULT 0,
			cumulative_balance_seconds NUMERIC(78,0) NOT NULL DEFAULT 0,
			last_update_time BIGINT NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
			PRIMARY KEY (account_id, sequence)
		);

		CREATE INDEX IF NOT EXISTS idx_snapshots_filled_at ON snapshots(account_id, filled_at);
	`

	return db.Exec(ctx, query)
}

const snapshotColumns = `account_id, sequence, filled_at, balance::text,
		       cumulative_balance_seconds::text, last_update_time, updated_at`

func (db *DB) GetSnapshot(ctx context.Context, accountID string, sequence uint64) (*ledger.Snapshot, error) {
	query := `SELECT ` + snapshotColumns + `
		FROM snapshots
		WHERE account_id = $1 AND sequence = $2
	`

	snap, err := scanSnapshot(db.exec.QueryRow(ctx, query, accountID, int64(sequence)))
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return snap, nil
}

func (db *DB) UpsertSnapshot(ctx context.Context, snapshot *ledger.Snapshot) error {
	query := `
		INSERT INTO snapshots (
			account_id, sequence, filled_at, balance,
			cumulative_balance_seconds, last_update_time, updated_at
		) VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7)
		ON CONFLICT (account_id, sequence) DO UPDATE SET
			balance = EXCLUDED.balance,
			cumulative_balance_seconds = EXCLUDED.cumulative_balance_seconds,
			last_update_time = EXCLUDED.last_update_time,
			updated_at = EXCLUDED.updated_at
	`

	_, err := db.exec.Exec(ctx, query,
		snapshot.AccountID,
		int64(snapshot.Sequence),
		snapshot.FilledAt,
		strconv.FormatUint(snapshot.Balance, 10),
		snapshot.CumulativeBalanceSeconds.String(),
		snapshot.LastUpdateTime,
		snapshot.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

func (db *DB) ListSnapshots(ctx context.Context, q ledger.SnapshotQuery) ([]ledger.Snapshot, error) {
	query, args, err := buildSnapshotQuery(q)
	if err != nil {
		return nil, err
	}

	rows, err := db.exec.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var out []ledger.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		out = append(out, *snap)
	}
	return out, rows.Err()
}

// buildSnapshotQuery renders q as a parameterized SELECT. Field and
// operator names come from closed sets checked by Validate, so they are
// safe to splice into the statement.
func buildSnapshotQuery(q ledger.SnapshotQuery) (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString("SELECT ")
	sb.WriteString(snapshotColumns)
	sb.WriteString(" FROM snapshots")

	for i, f := range q.Filters {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		value := f.Value
		if seq, ok := value.(uint64); ok {
			value = int64(seq)
		}
		args = append(args, value)
		fmt.Fprintf(&sb, "%s %s $%d", f.Field, f.Op, len(args))
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

func scanSnapshot(row pgx.Row) (*ledger.Snapshot, error) {
	var (
		snap       ledger.Snapshot
		sequence   int64
		balance    string
		cumulative string
	)
	if err := row.Scan(
		&snap.AccountID, &sequence, &snap.FilledAt, &balance,
		&cumulative, &snap.LastUpdateTime, &snap.UpdatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	snap.Sequence = uint64(sequence)
	if snap.Balance, err = strconv.ParseUint(balance, 10, 64); err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}
	if snap.CumulativeBalanceSeconds, err = decimal.NewFromString(cumulative); err != nil {
		return nil, fmt.Errorf("parse cumulative balance-seconds: %w", err)
	}
	return &snap, nil
}
