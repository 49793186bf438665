// Package main is the entry point for the fulfillsync reconciliation
// worker. It runs the pipeline once and exits, or keeps re-running it on
// an interval when one is configured.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fulfillsync/internal/config"
	"fulfillsync/internal/infrastructure/storage/postgres"
	"fulfillsync/internal/infrastructure/storage/postgres/catalog_repo"
	"fulfillsync/internal/infrastructure/storage/postgres/document_repo"
	"fulfillsync/internal/pipeline"
	"fulfillsync/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.App.LogLevel,
		Development: cfg.App.Env == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithLogger(ctx, log)

	log.Info("starting fulfillsync worker")

	poolCfg := postgres.DefaultPoolConfig(cfg.DB.URL)
	poolCfg.MaxConns = cfg.DB.MaxConns
	poolCfg.MinConns = cfg.DB.MinConns

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	tm := postgres.NewTxManager(pool)

	runStore, err := postgres.NewRunStore(tm)
	if err != nil {
		log.Fatalw("failed to create run store", "error", err)
	}

	service := pipeline.NewService(
		pipeline.ServiceConfig{
			Runner: pipeline.RunnerConfig{
				SeedSearchCode:    cfg.Pipeline.SeedSearchCode,
				MapConcurrency:    cfg.Pipeline.MapConcurrency,
				ReduceConcurrency: cfg.Pipeline.ReduceConcurrency,
			},
			TaxChannel:        cfg.Pipeline.TaxChannel,
			ReversalAccountID: cfg.Pipeline.ReversalAccountID,
		},
		document_repo.NewOrderRepo(tm),
		document_repo.NewShipmentRepo(tm),
		catalog_repo.NewLocationRepo(tm),
		document_repo.NewReversalRepo(tm),
		postgres.NewSeedStore(tm),
		runStore,
	)

	go handleSignals(cancel, log)

	if cfg.Pipeline.Interval <= 0 {
		if _, err := service.Execute(ctx); err != nil {
			log.Fatalw("pipeline run failed", "error", err)
		}
		log.Info("worker finished")
		return
	}

	runLoop(ctx, service, pool, cfg.Pipeline.Interval, log)
	log.Info("worker stopped")
}

// runLoop re-runs the pipeline on a ticker until the context is
// cancelled. A failed run is logged and the next tick tries again; the
// idempotency flags make the retry safe.
func runLoop(ctx context.Context, service *pipeline.Service, pool *postgres.Pool, interval time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := service.Execute(ctx); err != nil {
			log.Errorw("pipeline run failed", "error", err)
		}
		postgres.LogPoolStats(ctx, pool)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func handleSignals(cancel context.CancelFunc, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down worker...")
	cancel()
}
