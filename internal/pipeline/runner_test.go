package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fulfillsync/internal/core/apperror"
	"fulfillsync/internal/core/id"
	"fulfillsync/internal/core/types"
	"fulfillsync/internal/domain/order"
)

func TestRunnerRequiresSeedSearchCode(t *testing.T) {
	rec := &callRecorder{}
	errs := NewErrorLog()
	runner := NewRunner(
		RunnerConfig{},
		&fakeSeedSource{},
		NewGroupingStage(newFakeOrderRepo(rec), newFakeShipmentRepo(rec), "", errs),
		NewReversalStage(newFakeOrderRepo(rec), newFakeShipmentRepo(rec), newFakeLocationRepo(), newFakeReversalRepo(rec), "", errs),
		NewAuditStage(),
		errs,
		nil,
	)

	_, err := runner.Run(context.Background())

	require.Error(t, err)
	assert.True(t, apperror.IsConfig(err))
}

func TestRunnerSeedLoadFailureFailsRun(t *testing.T) {
	rec := &callRecorder{}
	errs := NewErrorLog()
	runner := NewRunner(
		RunnerConfig{SeedSearchCode: "migrated-open-orders"},
		&fakeSeedSource{err: assert.AnError},
		NewGroupingStage(newFakeOrderRepo(rec), newFakeShipmentRepo(rec), "", errs),
		NewReversalStage(newFakeOrderRepo(rec), newFakeShipmentRepo(rec), newFakeLocationRepo(), newFakeReversalRepo(rec), "", errs),
		NewAuditStage(),
		errs,
		nil,
	)

	_, err := runner.Run(context.Background())
	assert.Error(t, err)
}

func TestRunnerEndToEnd(t *testing.T) {
	rec := &callRecorder{}
	orders := newFakeOrderRepo(rec)
	shipments := newFakeShipmentRepo(rec)
	locations := newFakeLocationRepo()
	reversals := newFakeReversalRepo(rec)
	errs := NewErrorLog()
	runStore := &fakeRunStore{}

	accountID := id.New().String()

	var orderIDs []id.ID
	for i := 0; i < 3; i++ {
		locID := id.New()
		ord := order.New("web")
		ord.Migrated = true
		line := ord.AddLine(id.New(), types.NewQuantity(1), types.MustMoney("9.99"))
		line.LocationID = &locID
		line.ShipmentMeta = trackingJSON("TN-1", "2025-04-01", "", "EXT-1")
		orders.put(ord)
		orderIDs = append(orderIDs, ord.ID)
	}

	// One non-migrated order mixed into the seed set.
	plain := order.New("web")
	orders.put(plain)
	orderIDs = append(orderIDs, plain.ID)

	runner := NewRunner(
		RunnerConfig{SeedSearchCode: "migrated-open-orders", MapConcurrency: 2, ReduceConcurrency: 2},
		&fakeSeedSource{ids: orderIDs},
		NewGroupingStage(orders, shipments, "", errs),
		NewReversalStage(orders, shipments, locations, reversals, accountID, errs),
		NewAuditStage(),
		errs,
		runStore,
	)

	run, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, run.OrdersSeen)
	assert.Equal(t, 3, run.ShipmentsCreated)
	assert.Equal(t, 3, run.ReversalsCreated)
	assert.False(t, run.FinishedAt.Before(run.StartedAt))
	assert.Len(t, reversals.all(), 3)

	require.Len(t, runStore.runs, 1)
	assert.Equal(t, run.ID, runStore.runs[0].ID)
}

func TestRunnerSecondPassIsNoOp(t *testing.T) {
	rec := &callRecorder{}
	orders := newFakeOrderRepo(rec)
	shipments := newFakeShipmentRepo(rec)
	locations := newFakeLocationRepo()
	reversals := newFakeReversalRepo(rec)

	locID := id.New()
	ord := order.New("web")
	ord.Migrated = true
	line := ord.AddLine(id.New(), types.NewQuantity(1), types.MustMoney("9.99"))
	line.LocationID = &locID
	line.ShipmentMeta = trackingJSON("TN-1", "", "", "")
	orders.put(ord)

	newRunner := func() *Runner {
		errs := NewErrorLog()
		return NewRunner(
			RunnerConfig{SeedSearchCode: "migrated-open-orders"},
			&fakeSeedSource{ids: []id.ID{ord.ID}},
			NewGroupingStage(orders, shipments, "", errs),
			NewReversalStage(orders, shipments, locations, reversals, id.New().String(), errs),
			NewAuditStage(),
			errs,
			nil,
		)
	}

	first, err := newRunner().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.ReversalsCreated)

	// The fulfilled flag set by the first pass leaves nothing to do.
	second, err := newRunner().Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second.ShipmentsCreated)
	assert.Zero(t, second.ReversalsCreated)
	assert.Len(t, reversals.all(), 1)
}

func TestRunnerRegroupRejectsDuplicates(t *testing.T) {
	errs := NewErrorLog()
	r := &Runner{errs: errs}

	shipmentID := id.New()
	records := []ShipmentRecord{
		{ShipmentID: shipmentID, OrderID: id.New()},
		{ShipmentID: shipmentID, OrderID: id.New()},
		{ShipmentID: id.New(), OrderID: id.New()},
	}

	unique := r.regroup(records)

	assert.Len(t, unique, 2)
	assert.Equal(t, records[0].OrderID, unique[0].OrderID)
	require.Equal(t, 1, errs.Len())
	assert.Contains(t, errs.Entries()[0].Message, "duplicate")
}
