package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/richardliu001/lending-eventbus/internal/app"
	"github.com/richardliu001/lending-eventbus/internal/config"
	"github.com/richardliu001/lending-eventbus/internal/logger"
)

// The poller marks events left pending by a crashed or failed publisher as
// failed. It never dispatches, so it needs no handlers.
func main() {
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer a.Close()
	bus := a.Bus

	ticker := time.NewTicker(cfg.Sweeper.Interval)
	defer ticker.Stop()

	log.Infof("eventbus-poller started, stale after %s", cfg.Sweeper.StaleAfter)
	for {
		select {
		case <-ctx.Done():
			log.Info("eventbus-poller stopping")
			return
		case <-ticker.C:
			n, err := bus.SweepStale(ctx, cfg.Sweeper.StaleAfter, cfg.Sweeper.BatchSize)
			if err != nil {
				log.Errorf("sweep: %v", err)
				continue
			}
			if n > 0 {
				log.Infof("%d stale events marked failed", n)
			}
		}
	}
}
