// Command sweep runs the invoice aging and recurring generation sweeps once
// and exits, for deployments that schedule them with an external cron.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"finance/internal/app"
	"finance/internal/config"
	"finance/internal/db"
	"finance/internal/observability"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("load config: " + err.Error())
	}
	logger := observability.NewLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect database", zap.Error(err))
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine := app.New(cfg, database, logger)
	if err := engine.Scheduler.RunOnce(ctx); err != nil {
		logger.Error("sweep finished with errors", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("sweep finished")
}
