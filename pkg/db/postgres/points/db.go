package points

import (
	"context"
	"fmt"
	"time"

	"github.com/canopy-network/canopyx-points/pkg/db/postgres"
	"github.com/canopy-network/canopyx-points/pkg/ledger"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// DB is the PostgreSQL ledger store. It implements ledger.Store,
// ledger.Transactor and ledger.Pinger.
type DB struct {
	postgres.Client
	Name string

	// exec is the pool, or the open transaction inside InTx.
	exec postgres.Executor
}

var (
	_ ledger.Store      = (*DB)(nil)
	_ ledger.Transactor = (*DB)(nil)
	_ ledger.Pinger     = (*DB)(nil)
)

// New connects to the points database, creating it and its tables if needed.
func New(ctx context.Context, logger *zap.Logger, name string, poolConfig *postgres.PoolConfig) (*DB, error) {
	client, err := postgres.New(ctx, logger.With(
		zap.String("db", name),
		zap.String("component", poolConfig.Component),
	), name, poolConfig)
	if err != nil {
		return nil, err
	}

	db := &DB{Client: client, Name: name, exec: client.Pool}
	if err := db.InitializeDB(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return db, nil
}

// InitializeDB ensures the tables and indexes exist.
func (db *DB) InitializeDB(ctx context.Context) error {
	initStart := time.Now()

	initOps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"accounts", db.initAccounts},
		{"snapshots", db.initSnapshots},
	}
	for _, op := range initOps {
		db.Logger.Debug("Initializing table", zap.String("table", op.name))
		if err := op.fn(ctx); err != nil {
			return fmt.Errorf("init %s: %w", op.name, err)
		}
	}

	db.Logger.Info("Points database initialized",
		zap.String("database", db.Name),
		zap.Duration("duration", time.Since(initStart)))
	return nil
}

// InTx runs fn with a store bound to a single transaction. The transaction
// commits when fn returns nil and rolls back otherwise.
func (db *DB) InTx(ctx context.Context, fn func(tx ledger.Store) error) error {
	return db.BeginFunc(ctx, func(tx pgx.Tx) error {
		return fn(&DB{Client: db.Client, Name: db.Name, exec: tx})
	})
}

// DatabaseName returns the name of the points database
func (db *DB) DatabaseName() string {
	return db.Name
}
