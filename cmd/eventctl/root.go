package main

import (
	"context"
	"fmt"
	"os"

	"github.com/richardliu001/lending-eventbus/internal/app"
	"github.com/richardliu001/lending-eventbus/internal/config"
	"github.com/richardliu001/lending-eventbus/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	debug   bool

	rootCmd = &cobra.Command{
		Use:   "eventctl",
		Short: "Operate the lending domain event bus",
		Long: `eventctl inspects and maintains the domain event log.

Commands:
- history: print an aggregate's events in sequence order
- replay: run the current handlers again over an aggregate's history
- handlers: list handler registrations with statistics
- sweep: mark long-pending events as failed`,
		SilenceUsage: true,
	}
)

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "internal/config/config.yaml", "config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(handlersCmd)
	rootCmd.AddCommand(sweepCmd)
}

// open connects to the event store without subscribing any handler, so
// inspecting the log never touches handler registrations.
func open(ctx context.Context) (*app.App, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.Open(ctx, cfg, log)
}

// openWithHandlers wires the same components as the server, handlers
// included, so replay runs the real callbacks.
func openWithHandlers(ctx context.Context) (*app.App, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, log)
}

func loadConfig() (*config.Config, *zap.SugaredLogger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if debug {
		cfg.Log.Level = "debug"
	}
	log, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}
