package pipeline

import (
	"context"
	"sync"

	"fulfillsync/internal/core/apperror"
	"fulfillsync/internal/domain/location"
	"fulfillsync/internal/domain/order"
	"fulfillsync/internal/domain/reversal"
	"fulfillsync/internal/domain/shipment"
)

// ServiceConfig holds the per-deployment pipeline settings.
type ServiceConfig struct {
	Runner RunnerConfig

	// TaxChannel selects orders for the tax reallocation pass.
	TaxChannel string

	// ReversalAccountID is the adjustment account. May be blank: the
	// reversal stage fails each invocation rather than the deploy.
	ReversalAccountID string
}

// Service builds and executes pipeline runs. Every run gets fresh stage
// instances and a fresh error log, so consecutive runs never share
// state. At most one run executes at a time.
type Service struct {
	cfg ServiceConfig

	orders    order.Repository
	shipments shipment.Repository
	locations location.Repository
	reversals reversal.Repository
	seeds     SeedSource
	runs      RunStore

	mu sync.Mutex
}

// NewService creates a pipeline service.
func NewService(
	cfg ServiceConfig,
	orders order.Repository,
	shipments shipment.Repository,
	locations location.Repository,
	reversals reversal.Repository,
	seeds SeedSource,
	runs RunStore,
) *Service {
	return &Service{
		cfg:       cfg,
		orders:    orders,
		shipments: shipments,
		locations: locations,
		reversals: reversals,
		seeds:     seeds,
		runs:      runs,
	}
}

// Execute runs the pipeline once. A second call while a run is in
// progress is rejected; the batch is not safe to overlap with itself on
// the same dataset within one process.
func (s *Service) Execute(ctx context.Context) (*Run, error) {
	if !s.mu.TryLock() {
		return nil, apperror.NewValidation("a pipeline run is already in progress")
	}
	defer s.mu.Unlock()

	errs := NewErrorLog()
	grouping := NewGroupingStage(s.orders, s.shipments, s.cfg.TaxChannel, errs)
	rev := NewReversalStage(s.orders, s.shipments, s.locations, s.reversals, s.cfg.ReversalAccountID, errs)
	runner := NewRunner(s.cfg.Runner, s.seeds, grouping, rev, NewAuditStage(), errs, s.runs)

	return runner.Run(ctx)
}
