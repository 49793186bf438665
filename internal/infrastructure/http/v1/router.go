// Package v1 provides the ops HTTP API, version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"fulfillsync/internal/infrastructure/http/v1/handlers"
	"fulfillsync/internal/infrastructure/http/v1/middleware"
	"fulfillsync/internal/infrastructure/storage/postgres"
	"fulfillsync/internal/pipeline"
	"fulfillsync/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	Pool         *postgres.Pool
	Logger       *logger.Logger
	JWTValidator middleware.JWTValidator

	PipelineService *pipeline.Service
	RunStore        *postgres.RunStore
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Order matters: recovery outermost, then trace so everything below
	// logs with correlation ids.
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	api := router.Group("/api/v1")
	api.Use(middleware.Auth(cfg.JWTValidator))
	{
		runsHandler := handlers.NewRunsHandler(cfg.PipelineService, cfg.RunStore)
		runs := api.Group("/runs")
		{
			runs.GET("", middleware.RequireRole("ops", "admin"), runsHandler.List)
			runs.GET("/:id", middleware.RequireRole("ops", "admin"), runsHandler.Get)
			runs.POST("", middleware.RequireRole("admin"), runsHandler.Trigger)
		}
	}

	return router
}
