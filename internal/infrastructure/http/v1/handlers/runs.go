package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fulfillsync/internal/core/apperror"
	"fulfillsync/internal/core/id"
	"fulfillsync/internal/infrastructure/storage/postgres"
	"fulfillsync/internal/pipeline"
	"fulfillsync/pkg/logger"
)

// RunsHandler exposes pipeline run records and a manual trigger.
type RunsHandler struct {
	service *pipeline.Service
	store   *postgres.RunStore
}

// NewRunsHandler creates a runs handler.
func NewRunsHandler(service *pipeline.Service, store *postgres.RunStore) *RunsHandler {
	return &RunsHandler{service: service, store: store}
}

// List returns the most recent runs, newest first.
// GET /api/v1/runs?limit=50
func (h *RunsHandler) List(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			_ = c.Error(apperror.NewValidation("limit must be an integer between 1 and 500"))
			return
		}
		limit = parsed
	}

	runs, err := h.store.ListRuns(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": runs, "count": len(runs)})
}

// Get returns one run with its error entries.
// GET /api/v1/runs/:id
func (h *RunsHandler) Get(c *gin.Context) {
	runID, err := id.Parse(c.Param("id"))
	if err != nil {
		_ = c.Error(apperror.NewValidation("invalid run id").WithDetail("id", c.Param("id")))
		return
	}

	run, entries, err := h.store.GetRun(c.Request.Context(), runID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"run": run, "errors": entries})
}

// Trigger starts a pipeline run in the background.
// POST /api/v1/runs
func (h *RunsHandler) Trigger(c *gin.Context) {
	// Detach from the request: the run outlives the HTTP exchange.
	go func() {
		ctx := context.Background()
		if _, err := h.service.Execute(ctx); err != nil {
			logger.Error(ctx, "triggered run failed", "error", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}
