package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"stock_fundamentals/pkg/core/config"
	"stock_fundamentals/pkg/core/extract"
	"stock_fundamentals/pkg/core/logging"
	"stock_fundamentals/pkg/core/pipeline"
	"stock_fundamentals/pkg/core/store"

	"go.uber.org/zap"
)

// Rebuilds yearly fundamentals from stored pages, e.g. after a change to the
// extraction rules. Nothing is fetched.
func main() {
	path := os.Getenv("STONKS_CONFIG")
	if path == "" {
		path = "config/loader.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Error building logger: %v", err)
	}
	defer logger.Sync()

	if err := cfg.RequireDatabase(); err != nil {
		logger.Fatal("database not configured", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		logger.Fatal("failed to apply schema", zap.Error(err))
	}

	summary, err := pipeline.NewReextractor(db, extract.NewDatasetBuilder(logger), logger).Run(ctx)
	if err != nil {
		logger.Fatal("re-extraction aborted", zap.Error(err))
	}
	logger.Info("re-extraction finished",
		zap.String("run_id", summary.RunID.String()),
		zap.Int64("processed", summary.Processed),
		zap.Int64("doubtful", summary.Doubtful),
		zap.Int64("failed", summary.Failed))
}
