package types

import (
	"context"
	"net/http"
	"time"

	"github.com/canopy-network/canopyx-points/pkg/db"
	"github.com/canopy-network/canopyx-points/pkg/ledger"
	"github.com/canopy-network/canopyx-points/pkg/redis"
	"go.uber.org/zap"
)

type App struct {
	Store  *db.LedgerStore
	Ledger *ledger.Ledger

	// RedisClient feeds the websocket; nil disables it.
	RedisClient *redis.Client
	// NotifyChannel is the prefix of the per-account update channels.
	NotifyChannel string

	// Zap Logger
	Logger *zap.Logger
	// Server represents the HTTP server instance used to handle incoming client requests and manage HTTP routes.
	Server *http.Server
}

// Start starts the application.
func (a *App) Start(ctx context.Context) {
	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = a.Server.Shutdown(shutdownCtx)

	a.Store.Close()
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Logger.Error("Failed to close Redis client", zap.Error(err))
		}
	}
	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("さようなら!")
}
