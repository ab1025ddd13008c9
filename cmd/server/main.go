package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/richardliu001/lending-eventbus/internal/app"
	"github.com/richardliu001/lending-eventbus/internal/config"
	"github.com/richardliu001/lending-eventbus/internal/logger"
	httptransport "github.com/richardliu001/lending-eventbus/internal/transport/http"
)

func main() {
	// 1. load config
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. storage, handlers, sequence counters
	a, err := app.New(context.Background(), cfg, log)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer a.Close()

	// 4. gin router
	router := httptransport.NewRouter(a.Bus, cfg.RateLimit, log)

	// 5. serve
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Infof("eventbus admin listening on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
