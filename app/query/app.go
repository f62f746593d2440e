package query

import (
	"context"

	"github.com/canopy-network/canopyx-points/app/query/types"
	"github.com/canopy-network/canopyx-points/pkg/db"
	"github.com/canopy-network/canopyx-points/pkg/ledger"
	"github.com/canopy-network/canopyx-points/pkg/logging"
	"github.com/canopy-network/canopyx-points/pkg/redis"
	"github.com/canopy-network/canopyx-points/pkg/utils"
	"go.uber.org/zap"
)

// Initialize initializes the application.
func Initialize(ctx context.Context) *types.App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr'
		panic(err)
	}

	store, err := db.NewLedgerStore(ctx, logger, "query")
	if err != nil {
		logger.Fatal("Unable to open ledger store", zap.Error(err))
	}

	// Initialize Redis client for real-time WebSocket events (optional)
	var redisClient *redis.Client
	if utils.EnvBool("REDIS_ENABLED", true) {
		redisClient, err = redis.NewClient(ctx, logger)
		if err != nil {
			logger.Warn("Failed to initialize Redis client - WebSocket real-time events will be disabled",
				zap.Error(err))
			redisClient = nil
		} else {
			logger.Info("Redis client initialized for WebSocket real-time events")
		}
	} else {
		logger.Info("Redis disabled - WebSocket real-time events will not be available")
	}

	return &types.App{
		Store:         store,
		Ledger:        ledger.New(store.Store, logger),
		RedisClient:   redisClient,
		NotifyChannel: utils.Env("NOTIFY_CHANNEL", "canopy:points:account.updated"),
		Logger:        logger,
	}
}
