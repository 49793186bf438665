package pipeline

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"fulfillsync/internal/core/apperror"
	"fulfillsync/internal/core/id"
	"fulfillsync/internal/domain/location"
	"fulfillsync/internal/domain/order"
	"fulfillsync/internal/domain/reversal"
	"fulfillsync/internal/domain/shipment"
	"fulfillsync/pkg/logger"
)

var reversalTracer = otel.Tracer("fulfillsync/pipeline/reversal")

// ReversalStage posts at most one compensating inventory reversal per
// shipment and flips the idempotency flags that keep a re-run from
// posting a second one.
type ReversalStage struct {
	orders    order.Repository
	shipments shipment.Repository
	locations location.Repository
	reversals reversal.Repository

	// accountID is the adjustment account from configuration. Checked per
	// invocation, not at startup, so a fresh deploy fails loudly on the
	// first shipment instead of silently posting nothing.
	accountID string

	errs *ErrorLog
}

// NewReversalStage creates a reversal stage.
func NewReversalStage(
	orders order.Repository,
	shipments shipment.Repository,
	locations location.Repository,
	reversals reversal.Repository,
	accountID string,
	errs *ErrorLog,
) *ReversalStage {
	return &ReversalStage{
		orders:    orders,
		shipments: shipments,
		locations: locations,
		reversals: reversals,
		accountID: accountID,
		errs:      errs,
	}
}

// Process runs the reversal stage for a single shipment record. It
// returns true when a reversal document was persisted. Failures are
// logged and recorded; they never propagate past the invocation.
func (s *ReversalStage) Process(ctx context.Context, rec ShipmentRecord) bool {
	ctx, span := reversalTracer.Start(ctx, "reversal.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("shipment.id", rec.ShipmentID.String()),
		attribute.String("order.id", rec.OrderID.String()),
	)

	created, err := s.process(ctx, rec)
	if err != nil {
		logger.Error(ctx, "reversal stage failed",
			"shipment_id", rec.ShipmentID, "order_id", rec.OrderID, "error", err)
	}
	return created
}

func (s *ReversalStage) process(ctx context.Context, rec ShipmentRecord) (bool, error) {
	key := rec.ShipmentID.String()

	if s.accountID == "" {
		s.errs.Record(StageReversal, key, "reversal account is not configured")
		return false, apperror.NewConfig("reversal account is not configured")
	}
	acctID, err := id.Parse(s.accountID)
	if err != nil {
		s.errs.Recordf(StageReversal, key, "reversal account id %q is invalid", s.accountID)
		return false, apperror.NewConfig("reversal account id is invalid").
			WithDetail("accountId", s.accountID).
			WithCause(err)
	}

	ord, err := s.orders.GetByID(ctx, rec.OrderID)
	if err != nil {
		s.errs.Recordf(StageReversal, key, "order load failed: %v", err)
		return false, err
	}

	if !ord.Migrated {
		logger.Debug(ctx, "order not migration-created, reversal skipped",
			"order_id", ord.ID, "shipment_id", rec.ShipmentID)
		return false, nil
	}

	shp, err := s.shipments.GetByID(ctx, rec.ShipmentID)
	if err != nil {
		s.errs.Recordf(StageReversal, key, "shipment load failed: %v", err)
		return false, err
	}

	if shp.ReversalCreated {
		logger.Debug(ctx, "reversal already posted, skipped", "shipment_id", shp.ID)
		return false, nil
	}

	rev := reversal.New(rec.ShipmentID, acctID, rec.LocationID, shp.Date)
	rev.Addressee, rev.Address = s.resolveAddress(ctx, rec.LocationID, ord)

	if ord.SubsidiaryID != nil {
		rev.SubsidiaryID = ord.SubsidiaryID
	} else {
		logger.Warn(ctx, "order has no subsidiary", "order_id", ord.ID)
	}

	for _, m := range rec.Matched {
		if m.OrderLineIndex < 0 || m.OrderLineIndex >= len(ord.Lines) {
			s.errs.Recordf(StageReversal, key,
				"matched line index %d out of range", m.OrderLineIndex)
			continue
		}
		line := &ord.Lines[m.OrderLineIndex]

		// Re-check item identity: the order may have changed between the
		// stages, and a quantity must never be reversed against a
		// different item than it was shipped as.
		if line.ItemID != m.OrderItemID && line.ItemID != m.ShipmentItemID {
			logger.Debug(ctx, "item identity changed since grouping, line skipped",
				"order_id", ord.ID, "line_no", line.LineNo)
			continue
		}

		itemID := m.ShipmentItemID
		if id.IsNil(itemID) {
			itemID = m.OrderItemID
		}
		rev.AddLine(itemID, rec.LocationID, m.Quantity)
		line.Fulfilled = true
	}

	if len(rev.Lines) == 0 {
		logger.Info(ctx, "no adjustment lines, nothing persisted",
			"shipment_id", shp.ID, "order_id", ord.ID)
		return false, nil
	}

	// Persistence order: reversal first, then the order flags, then the
	// shipment flag. A crash between the steps re-runs safely because the
	// flags have not been flipped yet; flipping them first would lose the
	// reversal forever.
	if err := s.reversals.Create(ctx, rev); err != nil {
		s.errs.Recordf(StageReversal, key, "reversal save failed: %v", err)
		return false, err
	}

	backfillAddress(ord)
	if err := s.orders.Save(ctx, ord); err != nil {
		s.errs.Recordf(StageReversal, key, "order save failed after reversal: %v", err)
		return true, err
	}

	shp.ReversalCreated = true
	if err := s.shipments.Update(ctx, shp); err != nil {
		s.errs.Recordf(StageReversal, key, "shipment flag save failed: %v", err)
		return true, err
	}

	logger.Info(ctx, "reversal posted",
		"reversal_id", rev.ID,
		"shipment_id", shp.ID,
		"order_id", ord.ID,
		"lines", len(rev.Lines))
	return true, nil
}

// resolveAddress resolves the reversal's mailing address: the location
// directory first, then the order's shipping sub-address field by field,
// then the fixed fallback literals.
func (s *ReversalStage) resolveAddress(ctx context.Context, locationID id.ID, ord *order.Order) (addressee, address string) {
	loc, err := s.locations.GetByID(ctx, locationID)
	if err != nil {
		logger.Warn(ctx, "location load failed, falling back to order address",
			"location_id", locationID, "error", err)
		s.errs.Recordf(StageReversal, ord.ID.String(),
			"address resolution failed for location %s: %v", locationID, err)
	} else if loc.HasMailingAddress() {
		return loc.Name, *loc.Address
	}

	addressee = reversal.DefaultAddressee
	if ord.ShipTo.Addressee != nil && *ord.ShipTo.Addressee != "" {
		addressee = *ord.ShipTo.Addressee
	}
	address = reversal.DefaultAddress
	if ord.ShipTo.AddrLine1 != nil && *ord.ShipTo.AddrLine1 != "" {
		address = *ord.ShipTo.AddrLine1
	}
	return addressee, address
}

// backfillAddress copies the shipping sub-address onto the blank
// body-level address fields. Existing values are never overwritten.
func backfillAddress(ord *order.Order) {
	if (ord.Addressee == nil || *ord.Addressee == "") && ord.ShipTo.Addressee != nil {
		v := *ord.ShipTo.Addressee
		ord.Addressee = &v
	}
	if (ord.AddressLine == nil || *ord.AddressLine == "") && ord.ShipTo.AddrLine1 != nil {
		v := *ord.ShipTo.AddrLine1
		ord.AddressLine = &v
	}
}
