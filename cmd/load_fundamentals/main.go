package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"stock_fundamentals/pkg/core/config"
	"stock_fundamentals/pkg/core/extract"
	"stock_fundamentals/pkg/core/ingest"
	"stock_fundamentals/pkg/core/logging"
	"stock_fundamentals/pkg/core/pipeline"
	"stock_fundamentals/pkg/core/proxy"
	"stock_fundamentals/pkg/core/store"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(configPath())
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

	idx, err := db.GetIndex(ctx, cfg.Loader.Index)
	if err != nil {
		logger.Fatal("failed to look up index", zap.String("index", cfg.Loader.Index), zap.Error(err))
	}

	pool, err := proxy.Load(cfg.Proxy)
	if err != nil {
		logger.Fatal("failed to load proxies", zap.Error(err))
	}
	logger.Info("proxy pool ready", zap.Int("proxies", pool.Len()))

	loader := pipeline.NewFundamentalsLoader(cfg.Loader, db, db,
		ingest.NewFetcher(cfg.Fetch, pool, logger),
		extract.NewDatasetBuilder(logger),
		logger)

	summary, err := loader.Run(ctx, idx.ID)
	if summary != nil {
		logger.Info("fundamentals load finished",
			zap.String("run_id", summary.RunID.String()),
			zap.Int64("processed", summary.Processed),
			zap.Int64("skipped", summary.Skipped),
			zap.Int64("doubtful", summary.Doubtful),
			zap.Int64("failed", summary.Failed))
	}
	if err != nil {
		logger.Fatal("fundamentals load aborted", zap.Error(err))
	}
}

func configPath() string {
	if p := os.Getenv("STONKS_CONFIG"); p != "" {
		return p
	}
	return "config/loader.yaml"
}
