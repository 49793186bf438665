package pipeline

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"fulfillsync/internal/core/id"
	"fulfillsync/internal/core/types"
	"fulfillsync/internal/domain/order"
	"fulfillsync/internal/domain/shipment"
	"fulfillsync/internal/domain/shipmeta"
	"fulfillsync/pkg/logger"
)

var groupingTracer = otel.Tracer("fulfillsync/pipeline/grouping")

// GroupingStage turns one migrated order into zero or more persisted
// shipments, one per shipping location that has at least one order line
// matching a derived shipment line.
type GroupingStage struct {
	orders    order.Repository
	shipments shipment.Repository

	// taxChannel selects orders whose channel gets the tax reallocation
	// pass. Matched as a case-insensitive substring of the order channel.
	taxChannel string

	errs *ErrorLog
}

// NewGroupingStage creates a grouping stage.
func NewGroupingStage(orders order.Repository, shipments shipment.Repository, taxChannel string, errs *ErrorLog) *GroupingStage {
	return &GroupingStage{
		orders:     orders,
		shipments:  shipments,
		taxChannel: taxChannel,
		errs:       errs,
	}
}

// bucketLine is one eligible order line staged into a location bucket.
type bucketLine struct {
	orderIndex  int
	lineNo      int
	itemID      id.ID
	qty         types.Quantity
	amount      types.Money
	trackingNo  string
	trackingURL string
}

// locationBucket accumulates the eligible lines of one shipping location.
type locationBucket struct {
	locationID  id.ID
	shipDate    *time.Time // first non-null wins
	shipmentRef string     // first non-empty wins
	total       types.Money
	lines       []bucketLine
}

// Process runs the grouping stage for a single order. It returns one
// record per shipment it persisted; a failed or ineligible order yields
// none. Failures are logged and recorded, never propagated: one broken
// order must not take the batch down.
func (s *GroupingStage) Process(ctx context.Context, orderID id.ID) []ShipmentRecord {
	ctx, span := groupingTracer.Start(ctx, "grouping.process")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID.String()))

	ord, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		logger.Error(ctx, "order load failed", "order_id", orderID, "error", err)
		s.errs.Recordf(StageGrouping, orderID.String(), "order load failed: %v", err)
		return nil
	}

	if !ord.Migrated {
		logger.Debug(ctx, "order not migration-created, ignoring", "order_id", orderID)
		return nil
	}

	s.reallocateTaxes(ctx, ord)

	buckets := s.collectBuckets(ctx, ord)
	if len(buckets) == 0 {
		logger.Info(ctx, "order has no eligible lines", "order_id", orderID)
		return nil
	}

	records := make([]ShipmentRecord, 0, len(buckets))
	for _, b := range buckets {
		if rec := s.buildShipment(ctx, ord, b); rec != nil {
			records = append(records, *rec)
		}
	}
	return records
}

// reallocateTaxes runs the best-effort tax pass: for orders on the
// designated channel, each line's raw tax breakdown is split into the two
// tax buckets and written back as two-decimal strings. Lines that already
// carry buckets are left alone. Errors never abort grouping.
func (s *GroupingStage) reallocateTaxes(ctx context.Context, ord *order.Order) {
	if s.taxChannel == "" || !strings.Contains(strings.ToLower(ord.Channel), strings.ToLower(s.taxChannel)) {
		return
	}

	updated := 0
	for i := range ord.Lines {
		line := &ord.Lines[i]
		if line.HasTaxBuckets() || len(line.TaxMeta) == 0 {
			continue
		}

		entries, err := shipmeta.ParseTaxEntries(line.TaxMeta)
		if err != nil {
			logger.Warn(ctx, "tax metadata unreadable, line left untouched",
				"order_id", ord.ID, "line_no", line.LineNo, "error", err)
			continue
		}

		b1, b2 := splitTaxEntries(entries)
		line.TaxBucket1 = b1.StringFixed(2)
		line.TaxBucket2 = b2.StringFixed(2)
		updated++
	}

	if updated == 0 {
		return
	}

	if err := s.orders.Save(ctx, ord); err != nil {
		logger.Error(ctx, "order save failed after tax reallocation",
			"order_id", ord.ID, "error", err)
		s.errs.Recordf(StageGrouping, ord.ID.String(),
			"order save failed after tax reallocation: %v", err)
		return
	}
	logger.Info(ctx, "tax buckets reallocated", "order_id", ord.ID, "lines", updated)
}

// splitTaxEntries assigns each tax entry to a bucket by its name.
// GST and HST belong to the first bucket, PST to the second, VAT and
// generic TAX names to the first; anything unrecognized also lands in
// the first so no amount is dropped.
func splitTaxEntries(entries []shipmeta.TaxEntry) (b1, b2 types.Money) {
	b1, b2 = types.ZeroMoney(), types.ZeroMoney()
	for _, e := range entries {
		name := strings.ToUpper(e.TaxName)
		switch {
		case strings.Contains(name, "GST"), strings.Contains(name, "HST"):
			b1 = b1.Add(e.Tax)
		case strings.Contains(name, "PST"):
			b2 = b2.Add(e.Tax)
		case strings.Contains(name, "VAT"), strings.Contains(name, "TAX"):
			b1 = b1.Add(e.Tax)
		default:
			b1 = b1.Add(e.Tax)
		}
	}
	return b1, b2
}

// collectBuckets runs the eligibility pass over the order's lines and
// groups the survivors by shipping location, preserving first-seen
// location order.
func (s *GroupingStage) collectBuckets(ctx context.Context, ord *order.Order) []*locationBucket {
	var buckets []*locationBucket
	index := make(map[id.ID]*locationBucket)

	for i := range ord.Lines {
		line := &ord.Lines[i]

		if line.Fulfilled {
			logger.Debug(ctx, "line already fulfilled, skipped",
				"order_id", ord.ID, "line_no", line.LineNo)
			continue
		}

		if len(line.ShipmentMeta) == 0 {
			s.errs.Recordf(StageGrouping, ord.ID.String(),
				"line %d skipped: no shipment metadata", line.LineNo)
			continue
		}

		track, err := shipmeta.ParseTracking(line.ShipmentMeta)
		if err != nil {
			s.errs.Recordf(StageGrouping, ord.ID.String(),
				"line %d skipped: shipment metadata unreadable: %v", line.LineNo, err)
			continue
		}

		if track.TrackingNo == "" {
			s.errs.Recordf(StageGrouping, ord.ID.String(),
				"line %d skipped: no tracking number", line.LineNo)
			continue
		}

		if id.IsNil(line.ItemID) {
			s.errs.Recordf(StageGrouping, ord.ID.String(),
				"line %d skipped: no item", line.LineNo)
			continue
		}

		if !line.Quantity.IsPositive() {
			s.errs.Recordf(StageGrouping, ord.ID.String(),
				"line %d skipped: non-positive quantity %s", line.LineNo, line.Quantity)
			continue
		}

		if line.LocationID == nil || id.IsNil(*line.LocationID) {
			s.errs.Recordf(StageGrouping, ord.ID.String(),
				"line %d skipped: no location", line.LineNo)
			continue
		}

		if line.Amount.IsZero() {
			logger.Warn(ctx, "line has zero amount",
				"order_id", ord.ID, "line_no", line.LineNo)
		}

		b, ok := index[*line.LocationID]
		if !ok {
			b = &locationBucket{locationID: *line.LocationID, total: types.ZeroMoney()}
			index[*line.LocationID] = b
			buckets = append(buckets, b)
		}

		if b.shipDate == nil && track.ShipDate != nil {
			b.shipDate = track.ShipDate
		}
		if b.shipmentRef == "" && track.ShipmentID != "" {
			b.shipmentRef = track.ShipmentID
		}
		b.total = b.total.Add(line.Amount)
		b.lines = append(b.lines, bucketLine{
			orderIndex:  i,
			lineNo:      line.LineNo,
			itemID:      line.ItemID,
			qty:         line.Quantity,
			amount:      line.Amount,
			trackingNo:  track.TrackingNo,
			trackingURL: track.NarletURL,
		})
	}

	return buckets
}

// buildShipment derives a shipment for one location bucket, matches the
// bucket's order lines onto the derived lines by order line number, and
// persists the shipment when at least one line matched.
func (s *GroupingStage) buildShipment(ctx context.Context, ord *order.Order, b *locationBucket) *ShipmentRecord {
	drv, err := s.shipments.DeriveFromOrder(ctx, ord, b.locationID)
	if err != nil {
		logger.Error(ctx, "shipment derivation failed",
			"order_id", ord.ID, "location_id", b.locationID, "error", err)
		s.errs.Recordf(StageGrouping, ord.ID.String(),
			"shipment derivation failed for location %s: %v", b.locationID, err)
		return nil
	}

	consumed := make([]bool, len(drv.Lines))
	matched := make([]MatchedLine, 0, len(b.lines))

	for _, bl := range b.lines {
		idx := -1
		for j := range drv.Lines {
			if drv.Lines[j].OrderLineNo == bl.lineNo {
				idx = j
				break
			}
		}
		if idx < 0 {
			s.errs.Recordf(StageGrouping, ord.ID.String(),
				"line %d unmatched: no shipment line references it", bl.lineNo)
			continue
		}
		if consumed[idx] {
			s.errs.Recordf(StageGrouping, ord.ID.String(),
				"line %d references an already consumed shipment line", bl.lineNo)
			continue
		}
		consumed[idx] = true

		ln := &drv.Lines[idx]
		ln.ReceivedQty = bl.qty
		ln.Amount = bl.amount
		loc := b.locationID
		ln.LocationID = &loc
		ln.TrackingNo = bl.trackingNo
		ln.TrackingURL = bl.trackingURL
		ln.Received = true

		matched = append(matched, MatchedLine{
			OrderLineIndex: bl.orderIndex,
			OrderLineNo:    bl.lineNo,
			OrderItemID:    bl.itemID,
			ShipmentItemID: ln.ItemID,
			Quantity:       bl.qty,
		})
	}

	if len(matched) == 0 {
		s.errs.Recordf(StageGrouping, ord.ID.String(),
			"shipment for location %s has no valid lines, not persisted", b.locationID)
		return nil
	}

	drv.Status = shipment.StatusComplete
	drv.TotalAmount = b.total
	if b.shipmentRef != "" {
		drv.Memo = b.shipmentRef
	}
	if b.shipDate != nil {
		drv.SetDate(*b.shipDate)
	}

	if err := s.shipments.Create(ctx, drv); err != nil {
		logger.Error(ctx, "shipment save failed",
			"order_id", ord.ID, "location_id", b.locationID, "error", err)
		s.errs.Recordf(StageGrouping, ord.ID.String(),
			"shipment save failed for location %s: %v", b.locationID, err)
		return nil
	}

	logger.Info(ctx, "shipment created",
		"order_id", ord.ID,
		"shipment_id", drv.ID,
		"location_id", b.locationID,
		"matched_lines", len(matched))

	return &ShipmentRecord{
		ShipmentID: drv.ID,
		OrderID:    ord.ID,
		LocationID: b.locationID,
		LineCount:  len(drv.Lines),
		Matched:    matched,
	}
}
