// Package main is the entry point for the fulfillsync ops API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fulfillsync/internal/auth"
	"fulfillsync/internal/config"
	v1 "fulfillsync/internal/infrastructure/http/v1"
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

	ctx := logger.WithLogger(context.Background(), log)
	log.Info("starting fulfillsync server")

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

	jwtService := auth.NewJWTService(auth.DefaultJWTConfig(cfg.HTTP.JWTSecret))

	router := v1.NewRouter(v1.RouterConfig{
		Pool:            pool,
		Logger:          log,
		JWTValidator:    jwtService,
		PipelineService: service,
		RunStore:        runStore,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infow("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("forced shutdown", "error", err)
	}

	log.Info("server stopped")
}
