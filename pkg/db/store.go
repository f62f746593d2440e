// Package db selects and opens the ledger store configured for the process.
package db

import (
	"context"
	"fmt"

	"github.com/canopy-network/canopyx-points/pkg/db/clickhouse"
	chpoints "github.com/canopy-network/canopyx-points/pkg/db/clickhouse/points"
	"github.com/canopy-network/canopyx-points/pkg/db/memory"
	"github.com/canopy-network/canopyx-points/pkg/db/postgres"
	pgpoints "github.com/canopy-network/canopyx-points/pkg/db/postgres/points"
	"github.com/canopy-network/canopyx-points/pkg/ledger"
	"github.com/canopy-network/canopyx-points/pkg/utils"
	"go.uber.org/zap"
)

const (
	BackendMemory     = "memory"
	BackendPostgres   = "postgres"
	BackendClickHouse = "clickhouse"
)

// LedgerStore is an open store plus the function that releases it.
type LedgerStore struct {
	ledger.Store
	Backend string
	Close   func()
}

// NewLedgerStore opens the backend named by STORE_BACKEND for component
// ("indexer" or "query"), which only affects connection pool sizing.
func NewLedgerStore(ctx context.Context, logger *zap.Logger, component string) (*LedgerStore, error) {
	backend := utils.Env("STORE_BACKEND", BackendPostgres)
	logger.Info("Opening ledger store", zap.String("backend", backend), zap.String("component", component))

	switch backend {
	case BackendMemory:
		return &LedgerStore{Store: memory.New(), Backend: backend, Close: func() {}}, nil

	case BackendPostgres:
		name := utils.Env("POSTGRES_DB", "canopyx_points")
		store, err := pgpoints.New(ctx, logger, name, postgres.GetPoolConfigForComponent(component))
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return &LedgerStore{Store: store, Backend: backend, Close: store.Close}, nil

	case BackendClickHouse:
		name := utils.Env("CLICKHOUSE_DB", "canopyx_points")
		store, err := chpoints.New(ctx, logger, name, clickhouse.GetPoolConfigForComponent(component))
		if err != nil {
			return nil, fmt.Errorf("open clickhouse store: %w", err)
		}
		closeFn := func() {
			if err := store.Close(); err != nil {
				logger.Warn("Failed to close clickhouse store", zap.Error(err))
			}
		}
		return &LedgerStore{Store: store, Backend: backend, Close: closeFn}, nil

	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", backend)
	}
}

// Ping checks the store when it supports it.
func (s *LedgerStore) Ping(ctx context.Context) error {
	if p, ok := s.Store.(ledger.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
