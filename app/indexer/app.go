package indexer

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/canopy-network/canopyx-points/pkg/db"
	"github.com/canopy-network/canopyx-points/pkg/identity"
	"github.com/canopy-network/canopyx-points/pkg/ledger"
	"github.com/canopy-network/canopyx-points/pkg/logging"
	"github.com/canopy-network/canopyx-points/pkg/processor"
	"github.com/canopy-network/canopyx-points/pkg/redis"
	"github.com/canopy-network/canopyx-points/pkg/utils"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	DefaultStream  = "canopy:points:balance-events"
	DefaultGroup   = "points-ledger"
	DefaultChannel = "canopy:points:account.updated"
)

// App consumes balance events from Redis and applies them to the ledger.
type App struct {
	RedisClient *redis.Client
	Store       *db.LedgerStore
	Ledger      *ledger.Ledger
	Processor   *processor.Processor
	Consumer    *redis.StreamConsumer

	// Cron logs processor stats every CronSpec tick.
	Cron     *cron.Cron
	CronSpec string

	Logger *zap.Logger
}

// Start consumes until the context is canceled.
func (a *App) Start(ctx context.Context) {
	a.Cron.Start()
	a.Logger.Info("Stats cron started", zap.String("cronSpec", a.CronSpec))

	err := a.Consumer.RunBatch(ctx, a.Processor.HandleBatch)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error("Stream consumer stopped", zap.Error(err))
	}
	a.Stop()
}

// Stop releases the worker pool, the store and the Redis connection.
func (a *App) Stop() {
	if a.Cron != nil {
		<-a.Cron.Stop().Done()
	}
	a.Processor.Stop()
	a.LogStats()
	a.Store.Close()
	if err := a.RedisClient.Close(); err != nil {
		a.Logger.Warn("Failed to close Redis client", zap.Error(err))
	}
	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("さようなら!")
}

// LogStats writes the processor counters to the log.
func (a *App) LogStats() {
	s := a.Processor.Stats.Snapshot()
	a.Logger.Info("Processor stats",
		zap.Int64("received", s.Received),
		zap.Int64("applied", s.Applied),
		zap.Int64("skipped", s.Skipped),
		zap.Int64("malformed", s.Malformed),
		zap.Int64("outOfOrder", s.OutOfOrder),
		zap.Int64("failed", s.Failed),
		zap.Int64("snapshotsOpened", s.SnapshotsOpened),
		zap.Int64("clamped", s.Clamped))
}

// SetupScheduler registers the stats job.
func (a *App) SetupScheduler(cronSpec string) error {
	logger := cronLogger{a.Logger.Sugar()}
	a.Cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(logger)))
	a.CronSpec = cronSpec
	_, err := a.Cron.AddFunc(cronSpec, a.LogStats)
	return err
}

// Initialize initializes the application.
func Initialize(ctx context.Context) *App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr'
		panic(err)
	}

	store, err := db.NewLedgerStore(ctx, logger, "indexer")
	if err != nil {
		logger.Fatal("Unable to open ledger store", zap.Error(err))
	}

	redisClient, err := redis.NewClient(ctx, logger)
	if err != nil {
		logger.Fatal("Unable to connect to Redis", zap.Error(err))
	}

	resolver, err := identity.NewFromEnv()
	if err != nil {
		logger.Fatal("Unable to build identity resolver", zap.Error(err))
	}

	var notifier processor.Notifier
	if utils.EnvBool("NOTIFY_ENABLED", true) {
		notifier = &processor.RedisNotifier{
			Client: redisClient,
			Prefix: utils.Env("NOTIFY_CHANNEL", DefaultChannel),
			Logger: logger,
		}
	}

	l := ledger.New(store.Store, logger)
	lanes := utils.EnvInt("PROCESSOR_LANES", processor.DefaultLanes)
	proc := processor.New(l, resolver, notifier, logger, processor.Config{
		Lanes:   lanes,
		Workers: utils.EnvInt("PROCESSOR_WORKERS", lanes),
	})

	hostname, _ := os.Hostname()
	consumer, err := redis.NewStreamConsumer(redisClient, redis.StreamConsumerConfig{
		Stream:   utils.Env("EVENTS_STREAM", DefaultStream),
		Group:    utils.Env("EVENTS_GROUP", DefaultGroup),
		Consumer: utils.Env("EVENTS_CONSUMER", hostname),
		Count:    utils.EnvInt64("EVENTS_BATCH", 100),
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("Unable to create stream consumer", zap.Error(err))
	}

	app := &App{
		RedisClient: redisClient,
		Store:       store,
		Ledger:      l,
		Processor:   proc,
		Consumer:    consumer,
		Logger:      logger,
	}
	if err := app.SetupScheduler(utils.Env("STATS_CRON", "@every 1m")); err != nil {
		logger.Fatal("Unable to schedule stats job", zap.Error(err))
	}

	return app
}

// cronLogger routes cron's own messages through zap.
type cronLogger struct {
	*zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.Errorw(msg, append(keysAndValues, "error", err)...)
}
