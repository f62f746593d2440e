package points

import (
	"context"
	"fmt"
	"time"

	"github.com/canopy-network/canopyx-points/pkg/db/clickhouse"
	"github.com/canopy-network/canopyx-points/pkg/ledger"
	"go.uber.org/zap"
)

const (
	AccountsTableName  = "accounts"
	SnapshotsTableName = "snapshots"
)

// DB is the ClickHouse ledger store. Both tables are ReplacingMergeTree, so
// an upsert is an insert and reads use FINAL. Rows are versioned by event
// time, which only moves forward per key; equal versions keep the last
// insert, and one account's writes are sequential.
// There are no multi-statement transactions; see ledger.Ledger for the
// write order that keeps a partial failure recoverable.
type DB struct {
	clickhouse.Client
	Name string
}

var (
	_ ledger.Store  = (*DB)(nil)
	_ ledger.Pinger = (*DB)(nil)
)

// New connects to ClickHouse and creates the points database and tables if needed.
func New(ctx context.Context, logger *zap.Logger, name string, poolConfig *clickhouse.PoolConfig) (*DB, error) {
	dbName := clickhouse.SanitizeName(name)

	client, err := clickhouse.New(ctx, logger.With(
		zap.String("db", dbName),
		zap.String("component", poolConfig.Component),
	), dbName, poolConfig)
	if err != nil {
		return nil, err
	}

	db := &DB{Client: client, Name: dbName}
	if err := db.InitializeDB(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return db, nil
}

// InitializeDB ensures the database and its tables exist.
func (db *DB) InitializeDB(ctx context.Context) error {
	initStart := time.Now()

	if err := db.CreateDbIfNotExists(ctx, db.Name); err != nil {
		return fmt.Errorf("failed to create database %s: %w", db.Name, err)
	}
	for _, query := range db.schema() {
		if err := db.Exec(ctx, query); err != nil {
			return fmt.Errorf("init %s: %w", db.Name, err)
		}
	}

	db.Logger.Info("Points database initialized",
		zap.String("database", db.Name),
		zap.Duration("duration", time.Since(initStart)))
	return nil
}

// schema returns the CREATE statements for both tables. Snapshots are ordered
// by (account_id, sequence) for point lookups and carry a minmax skip index
// on filled_at for bracketing.
func (db *DB) schema() []string {
	return []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS "%s"."%s" %s (
				account_id String,
				balance UInt64,
				first_observation_time Int64,
				last_observation_time Int64,
				cumulative_balance_seconds Decimal256(0),
				snapshot_count UInt64,
				updated_at DateTime64(6)
			) ENGINE = %s
			ORDER BY account_id
		`, db.Name, AccountsTableName, db.OnCluster(), db.Engine(clickhouse.ReplacingMergeTree, "last_observation_time")),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS "%s"."%s" %s (
				account_id String,
				sequence UInt64,
				filled_at Int64,
				balance UInt64,
				cumulative_balance_seconds Decimal256(0),
				last_update_time Int64,
				updated_at DateTime64(6),
				INDEX idx_filled_at filled_at TYPE minmax GRANULARITY 4
			) ENGINE = %s
			ORDER BY (account_id, sequence)
		`, db.Name, SnapshotsTableName, db.OnCluster(), db.Engine(clickhouse.ReplacingMergeTree, "last_update_time")),
	}
}

// DatabaseName returns the name of the points database
func (db *DB) DatabaseName() string {
	return db.Name
}
