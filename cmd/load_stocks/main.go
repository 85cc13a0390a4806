package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"stock_fundamentals/pkg/core/config"
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

	pool, err := proxy.Load(cfg.Proxy)
	if err != nil {
		logger.Fatal("failed to load proxies", zap.Error(err))
	}
	fetcher := ingest.NewFetcher(cfg.Fetch, pool, logger)

	loader := pipeline.NewStockLoader(db,
		ingest.NewConstituentLoader(fetcher),
		ingest.NewSearchClient(cfg.Fetch, fetcher),
		logger)

	summary, err := loader.Run(ctx, cfg.Loader.Index)
	if err != nil {
		logger.Fatal("stock load failed", zap.String("index", cfg.Loader.Index), zap.Error(err))
	}
	logger.Info("stock load finished",
		zap.Int64("index_id", summary.IndexID),
		zap.Int("fetched", summary.Fetched),
		zap.Int("inserted", summary.Inserted),
		zap.Int("resolved", summary.Resolved),
		zap.Int("unresolved", summary.Unresolved))
}

func configPath() string {
	if p := os.Getenv("STONKS_CONFIG"); p != "" {
		return p
	}
	return "config/loader.yaml"
}
