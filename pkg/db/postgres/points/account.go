package points

import (
	"context"
	"fmt"
	"strconv"

	"github.com/canopy-network/canopyx-points/pkg/db/postgres"
	"github.com/canopy-network/canopyx-points/pkg/ledger"
	"github.com/shopspring/decimal"
)

// initAccounts creates the accounts table. Balances are unsigned 64-bit, so
// they do not fit BIGINT and are kept as NUMERIC like the balance-seconds.
func (db *DB) initAccounts(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS accounts (
			account_id TEXT PRIMARY KEY,
			balance NUMERIC(20,0) NOT NULL DEFAULT 0,
			first_observation_time BIGINT NOT NULL,
			last_observation_time BIGINT NOT NULL,
			cumulative_balance_seconds NUMERIC(78,0) NOT NULL DEFAULT 0,
			snapshot_count BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL
		);
	`

	return db.Exec(ctx, query)
}

func (db *DB) GetAccount(ctx context.Context, id string) (*ledger.Account, error) {
	query := `
		SELECT account_id, balance::text, first_observation_time, last_observation_time,
		       cumulative_balance_seconds::text, snapshot_count, updated_at
		FROM accounts
		WHERE account_id = $1
	`

	var (
		acc        ledger.Account
		balance    string
		cumulative string
		count      int64
	)
	err := db.exec.QueryRow(ctx, query, id).Scan(
		&acc.ID, &balance, &acc.FirstObservationTime, &acc.LastObservationTime,
		&cumulative, &count, &acc.UpdatedAt,
	)
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if acc.Balance, err = strconv.ParseUint(balance, 10, 64); err != nil {
		return nil, fmt.Errorf("parse balance of %s: %w", id, err)
	}
	if acc.CumulativeBalanceSeconds, err = decimal.NewFromString(cumulative); err != nil {
		return nil, fmt.Errorf("parse cumulative balance-seconds of %s: %w", id, err)
	}
	acc.SnapshotCount = uint64(count)
	return &acc, nil
}

func (db *DB) UpsertAccount(ctx context.Context, account *ledger.Account) error {
	query := `
		INSERT INTO accounts (
			account_id, balance, first_observation_time, last_observation_time,
			cumulative_balance_seconds, snapshot_count, updated_at
		) VALUES ($1, $2::numeric, $3, $4, $5::numeric, $6, $7)
		ON CONFLICT (account_id) DO UPDATE SET
			balance = EXCLUDED.balance,
			last_observation_time = EXCLUDED.last_observation_time,
			cumulative_balance_seconds = EXCLUDED.cumulative_balance_seconds,
			snapshot_count = EXCLUDED.snapshot_count,
			updated_at = EXCLUDED.updated_at
	`

	_, err := db.exec.Exec(ctx, query,
		account.ID,
		strconv.FormatUint(account.Balance, 10),
		account.FirstObservationTime,
		account.LastObservationTime,
		account.CumulativeBalanceSeconds.String(),
		int64(account.SnapshotCount),
		account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}
