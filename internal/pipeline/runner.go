package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"fulfillsync/internal/core/apperror"
	appctx "fulfillsync/internal/core/context"
	"fulfillsync/internal/core/id"
	"fulfillsync/pkg/logger"
)

var runnerTracer = otel.Tracer("fulfillsync/pipeline/runner")

// SeedSource yields the candidate order ids for a run, selected by a
// named seed search.
type SeedSource interface {
	CandidateOrders(ctx context.Context, code string) ([]id.ID, error)
}

// RunStore persists run records with their error entries.
type RunStore interface {
	SaveRun(ctx context.Context, run *Run, entries []Entry) error
}

// Run is the persisted record of one pipeline run.
type Run struct {
	ID             id.ID     `json:"id" db:"id"`
	SeedSearchCode string    `json:"seedSearchCode" db:"seed_search_code"`
	StartedAt      time.Time `json:"startedAt" db:"started_at"`
	FinishedAt     time.Time `json:"finishedAt" db:"finished_at"`

	OrdersSeen       int `json:"ordersSeen" db:"orders_seen"`
	ShipmentsCreated int `json:"shipmentsCreated" db:"shipments_created"`
	ReversalsCreated int `json:"reversalsCreated" db:"reversals_created"`

	Summary Summary `json:"summary" db:"-"`
}

// RunnerConfig holds the runner's tuning knobs.
type RunnerConfig struct {
	// SeedSearchCode names the stored search selecting candidate orders.
	// Empty is a fatal configuration error: running against an undefined
	// dataset would silently process nothing.
	SeedSearchCode string

	MapConcurrency    int
	ReduceConcurrency int
}

// Runner orchestrates one full pipeline run: seed, map over orders,
// regroup by shipment, reduce over shipments, audit.
type Runner struct {
	cfg      RunnerConfig
	seeds    SeedSource
	grouping *GroupingStage
	reversal *ReversalStage
	audit    *AuditStage
	errs     *ErrorLog
	runs     RunStore // optional
}

// NewRunner creates a runner. runs may be nil when run records are not
// persisted (tests, one-shot invocations against a dry database).
func NewRunner(
	cfg RunnerConfig,
	seeds SeedSource,
	grouping *GroupingStage,
	reversal *ReversalStage,
	audit *AuditStage,
	errs *ErrorLog,
	runs RunStore,
) *Runner {
	return &Runner{
		cfg:      cfg,
		seeds:    seeds,
		grouping: grouping,
		reversal: reversal,
		audit:    audit,
		errs:     errs,
		runs:     runs,
	}
}

// Run executes one full pipeline run and returns its record. Only two
// things fail a run outright: a missing seed search configuration and a
// failure to load the seed dataset. Everything downstream degrades to
// error entries.
func (r *Runner) Run(ctx context.Context) (*Run, error) {
	if r.cfg.SeedSearchCode == "" {
		return nil, apperror.NewConfig("seed search code is not configured")
	}

	run := &Run{
		ID:             id.New(),
		SeedSearchCode: r.cfg.SeedSearchCode,
		StartedAt:      time.Now().UTC(),
	}

	trace := appctx.NewTraceContext()
	trace.RunID = run.ID.String()
	ctx = appctx.WithTrace(ctx, trace)

	ctx, span := runnerTracer.Start(ctx, "pipeline.run")
	defer span.End()
	span.SetAttributes(attribute.String("run.id", run.ID.String()))

	orderIDs, err := r.seeds.CandidateOrders(ctx, r.cfg.SeedSearchCode)
	if err != nil {
		return nil, fmt.Errorf("load seed dataset %q: %w", r.cfg.SeedSearchCode, err)
	}
	run.OrdersSeen = len(orderIDs)

	logger.Info(ctx, "pipeline run started",
		"seed_search", r.cfg.SeedSearchCode, "orders", len(orderIDs))

	records := r.mapPhase(ctx, orderIDs)
	unique := r.regroup(records)
	run.ShipmentsCreated = len(unique)
	run.ReversalsCreated = r.reducePhase(ctx, unique)

	run.Summary = r.audit.Summarize(ctx, r.errs.Entries())
	run.FinishedAt = time.Now().UTC()

	if r.runs != nil {
		if err := r.runs.SaveRun(ctx, run, r.errs.Entries()); err != nil {
			logger.Error(ctx, "run record save failed", "run_id", run.ID, "error", err)
		}
	}

	logger.Info(ctx, "pipeline run finished",
		"run_id", run.ID,
		"orders_seen", run.OrdersSeen,
		"shipments_created", run.ShipmentsCreated,
		"reversals_created", run.ReversalsCreated,
		"errors", run.Summary.Total,
		"duration", run.FinishedAt.Sub(run.StartedAt))

	return run, nil
}

// mapPhase runs the grouping stage over all candidate orders with a
// bounded worker pool and collects the emitted shipment records.
func (r *Runner) mapPhase(ctx context.Context, orderIDs []id.ID) []ShipmentRecord {
	workers := r.cfg.MapConcurrency
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan id.ID)
	var mu sync.Mutex
	var records []ShipmentRecord
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for orderID := range jobs {
				recs := r.grouping.Process(ctx, orderID)
				if len(recs) == 0 {
					continue
				}
				mu.Lock()
				records = append(records, recs...)
				mu.Unlock()
			}
		}()
	}

	for _, orderID := range orderIDs {
		jobs <- orderID
	}
	close(jobs)
	wg.Wait()

	return records
}

// regroup keys the map output by shipment id. Each shipment must appear
// exactly once; a duplicate means two map invocations claimed the same
// shipment, so the first record wins and the rest are surfaced as data
// errors rather than silently merged.
func (r *Runner) regroup(records []ShipmentRecord) []ShipmentRecord {
	seen := make(map[id.ID]struct{}, len(records))
	unique := make([]ShipmentRecord, 0, len(records))
	for _, rec := range records {
		if _, dup := seen[rec.ShipmentID]; dup {
			r.errs.Recordf(StageReversal, rec.ShipmentID.String(),
				"duplicate grouping output for shipment, keeping first record")
			continue
		}
		seen[rec.ShipmentID] = struct{}{}
		unique = append(unique, rec)
	}
	return unique
}

// reducePhase runs the reversal stage over the shipment records with a
// bounded worker pool and returns the number of reversals posted.
func (r *Runner) reducePhase(ctx context.Context, records []ShipmentRecord) int {
	workers := r.cfg.ReduceConcurrency
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan ShipmentRecord)
	var created atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				if r.reversal.Process(ctx, rec) {
					created.Add(1)
				}
			}
		}()
	}

	for _, rec := range records {
		jobs <- rec
	}
	close(jobs)
	wg.Wait()

	return int(created.Load())
}
