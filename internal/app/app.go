// Package app wires config, storage and the bus for the binaries.
package app

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/richardliu001/lending-eventbus/internal/cache"
	"github.com/richardliu001/lending-eventbus/internal/config"
	"github.com/richardliu001/lending-eventbus/internal/eventbus"
	"github.com/richardliu001/lending-eventbus/internal/handlers"
	"github.com/richardliu001/lending-eventbus/internal/repo"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// App holds the wired components of one process.
type App struct {
	Cfg   *config.Config
	Log   *zap.SugaredLogger
	DB    *gorm.DB
	Repo  *repo.Repository
	Redis *redis.Client
	Kafka *kafka.Writer
	Bus   *eventbus.Bus
}

// New returns a process ready to publish: storage is open, the built-in
// handlers are subscribed and sequence counters are seeded.
func New(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*App, error) {
	a, err := Open(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if err := a.Start(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Open connects postgres (and redis / kafka when configured), migrates the
// bus tables and builds a bus with no handlers. It is enough for reading the
// event log and sweeping; Publish needs Start first.
func Open(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*App, error) {
	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	a := &App{Cfg: cfg, Log: log, DB: gdb, Repo: repo.NewRepository(gdb, log)}
	if err := a.Repo.Migrate(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}

	if cfg.Redis.Addr != "" {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}

	if len(cfg.Kafka.Brokers) > 0 {
		a.Kafka = &kafka.Writer{
			Addr:     kafka.TCP(cfg.Kafka.Brokers...),
			Topic:    cfg.Kafka.Topic,
			Balancer: &kafka.Hash{},
		}
	}

	alloc, err := a.allocator()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Bus = eventbus.New(a.Repo, log, eventbus.WithAllocator(alloc))
	return a, nil
}

// Start subscribes the built-in handlers and seeds the sequence counters.
func (a *App) Start(ctx context.Context) error {
	cfg := a.Cfg
	deps := handlers.Deps{Redis: a.Redis, Log: a.Log}
	if a.Kafka != nil {
		deps.Kafka = a.Kafka
	}
	opts := handlers.Options{ForwardEventTypes: cfg.Kafka.ForwardEventTypes}
	if cfg.EventBus.FundReviewThreshold != "" {
		th, err := decimal.NewFromString(cfg.EventBus.FundReviewThreshold)
		if err != nil {
			return fmt.Errorf("eventbus.fund_review_threshold: %w", err)
		}
		opts.FundReviewThreshold = th
	}
	if err := handlers.Bootstrap(ctx, a.Bus, deps, opts); err != nil {
		return fmt.Errorf("bootstrap handlers: %w", err)
	}

	if err := a.Bus.InitializeSequenceCounters(ctx); err != nil {
		return fmt.Errorf("init sequence counters: %w", err)
	}
	return nil
}

// gormConfig is shared by every binary. TranslateError turns unique
// violations into gorm.ErrDuplicatedKey, which the store maps to sequence
// conflicts.
func gormConfig() *gorm.Config {
	return &gorm.Config{PrepareStmt: true, TranslateError: true}
}

func (a *App) allocator() (eventbus.SequenceAllocator, error) {
	switch a.Cfg.EventBus.SequenceBackend {
	case config.SequenceMemory:
		a.Log.Warn("in-memory sequence allocator: run a single publishing process only")
		return eventbus.NewMemoryAllocator(), nil
	case config.SequencePostgres:
		return repo.NewSequenceAllocator(a.DB), nil
	case config.SequenceRedis:
		if a.Redis == nil {
			return nil, fmt.Errorf("redis sequence backend without redis client")
		}
		return cache.NewRedisSequenceAllocator(a.Redis), nil
	}
	return nil, fmt.Errorf("unknown sequence backend %q", a.Cfg.EventBus.SequenceBackend)
}

// Close releases network clients.
func (a *App) Close() {
	if a.Kafka != nil {
		if err := a.Kafka.Close(); err != nil {
			a.Log.Warnf("close kafka writer: %v", err)
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
