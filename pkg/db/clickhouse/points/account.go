package points

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/canopy-network/canopyx-points/pkg/ledger"
)

func (db *DB) GetAccount(ctx context.Context, id string) (*ledger.Account, error) {
	query := fmt.Sprintf(`
		SELECT account_id, balance, first_observation_time, last_observation_time,
		       cumulative_balance_seconds, snapshot_count, updated_at
		FROM "%s"."%s" FINAL
		WHERE account_id = ?
		LIMIT 1
	`, db.Name, AccountsTableName)

	var rows []ledger.Account
	if err := db.SelectWithFinal(ctx, &rows, query, id); err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (db *DB) UpsertAccount(ctx context.Context, account *ledger.Account) error {
	query := fmt.Sprintf(
		`INSERT INTO "%s"."%s" (account_id, balance, first_observation_time, last_observation_time, cumulative_balance_seconds, snapshot_count, updated_at) VALUES`,
		db.Name, AccountsTableName,
	)
	batch, err := db.PrepareBatch(ctx, query)
	if err != nil {
		return err
	}
	defer func(batch driver.Batch) {
		_ = batch.Abort()
	}(batch)

	err = batch.Append(
		account.ID,
		account.Balance,
		account.FirstObservationTime,
		account.LastObservationTime,
		account.CumulativeBalanceSeconds,
		account.SnapshotCount,
		account.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return batch.Send()
}
