package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fulfillsync/internal/core/id"
	"fulfillsync/internal/core/types"
	"fulfillsync/internal/domain/order"
	"fulfillsync/internal/domain/shipment"
	"fulfillsync/internal/domain/shipmeta"
)

type groupingFixture struct {
	orders    *fakeOrderRepo
	shipments *fakeShipmentRepo
	errs      *ErrorLog
	stage     *GroupingStage
	rec       *callRecorder
}

func newGroupingFixture(taxChannel string) *groupingFixture {
	rec := &callRecorder{}
	orders := newFakeOrderRepo(rec)
	shipments := newFakeShipmentRepo(rec)
	errs := NewErrorLog()
	return &groupingFixture{
		orders:    orders,
		shipments: shipments,
		errs:      errs,
		stage:     NewGroupingStage(orders, shipments, taxChannel, errs),
		rec:       rec,
	}
}

func migratedOrder(channel string) *order.Order {
	ord := order.New(channel)
	ord.Migrated = true
	return ord
}

func TestGroupingIgnoresNonMigratedOrder(t *testing.T) {
	f := newGroupingFixture("")
	ord := order.New("web")
	locID := id.New()
	line := ord.AddLine(id.New(), types.NewQuantity(1), types.MustMoney("10.00"))
	line.LocationID = &locID
	line.ShipmentMeta = trackingJSON("TN-1", "", "", "")
	f.orders.put(ord)

	records := f.stage.Process(context.Background(), ord.ID)

	assert.Empty(t, records)
	assert.Zero(t, f.errs.Len())
	assert.Empty(t, f.rec.list())
}

func TestGroupingOneShipmentPerLocation(t *testing.T) {
	f := newGroupingFixture("")
	ord := migratedOrder("web")
	locA, locB := id.New(), id.New()

	l1 := ord.AddLine(id.New(), types.NewQuantity(2), types.MustMoney("10.00"))
	l1.LocationID = &locA
	l1.ShipmentMeta = trackingJSON("TN-1", "2025-03-01", "https://narlet.example/1", "EXT-1")

	l2 := ord.AddLine(id.New(), types.NewQuantity(1), types.MustMoney("5.50"))
	l2.LocationID = &locA
	l2.ShipmentMeta = trackingJSON("TN-2", "", "", "")

	l3 := ord.AddLine(id.New(), types.NewQuantity(3), types.MustMoney("7.25"))
	l3.LocationID = &locB
	l3.ShipmentMeta = trackingJSON("TN-3", "2025-03-05", "", "EXT-2")

	f.orders.put(ord)

	records := f.stage.Process(context.Background(), ord.ID)
	require.Len(t, records, 2)

	recA, recB := records[0], records[1]
	assert.Equal(t, locA, recA.LocationID)
	assert.Equal(t, locB, recB.LocationID)
	assert.Equal(t, ord.ID, recA.OrderID)
	assert.Len(t, recA.Matched, 2)
	assert.Len(t, recB.Matched, 1)

	// Both shipments carry one candidate line per open order line.
	assert.Equal(t, 3, recA.LineCount)
	assert.Equal(t, 3, recB.LineCount)

	shpA := f.shipments.get(recA.ShipmentID)
	require.NotNil(t, shpA)
	assert.Equal(t, shipment.StatusComplete, shpA.Status)
	assert.True(t, shpA.TotalAmount.Equal(types.MustMoney("15.50")))
	assert.Equal(t, "EXT-1", shpA.Memo)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), shpA.Date)
	assert.Equal(t, 2, shpA.ReceivedLineCount())

	for _, line := range shpA.Lines {
		if !line.Received {
			continue
		}
		assert.NotEmpty(t, line.TrackingNo)
		require.NotNil(t, line.LocationID)
		assert.Equal(t, locA, *line.LocationID)
	}

	shpB := f.shipments.get(recB.ShipmentID)
	require.NotNil(t, shpB)
	assert.True(t, shpB.TotalAmount.Equal(types.MustMoney("7.25")))
	assert.Equal(t, "EXT-2", shpB.Memo)
}

func TestGroupingLineEligibility(t *testing.T) {
	f := newGroupingFixture("")
	ord := migratedOrder("web")
	locID := id.New()

	fulfilled := ord.AddLine(id.New(), types.NewQuantity(1), types.MustMoney("1.00"))
	fulfilled.LocationID = &locID
	fulfilled.ShipmentMeta = trackingJSON("TN-1", "", "", "")
	fulfilled.Fulfilled = true

	noMeta := ord.AddLine(id.New(), types.NewQuantity(1), types.MustMoney("1.00"))
	noMeta.LocationID = &locID

	noTracking := ord.AddLine(id.New(), types.NewQuantity(1), types.MustMoney("1.00"))
	noTracking.LocationID = &locID
	noTracking.ShipmentMeta = trackingJSON("", "", "", "")

	noItem := ord.AddLine(id.Nil(), types.NewQuantity(1), types.MustMoney("1.00"))
	noItem.LocationID = &locID
	noItem.ShipmentMeta = trackingJSON("TN-2", "", "", "")

	zeroQty := ord.AddLine(id.New(), types.NewQuantity(0), types.MustMoney("1.00"))
	zeroQty.LocationID = &locID
	zeroQty.ShipmentMeta = trackingJSON("TN-3", "", "", "")

	noLocation := ord.AddLine(id.New(), types.NewQuantity(1), types.MustMoney("1.00"))
	noLocation.ShipmentMeta = trackingJSON("TN-4", "", "", "")

	f.orders.put(ord)

	records := f.stage.Process(context.Background(), ord.ID)

	assert.Empty(t, records)
	assert.Empty(t, f.rec.list())

	// One entry per disqualified line; the fulfilled line is silent.
	entries := f.errs.Entries()
	assert.Len(t, entries, 5)
	for _, e := range entries {
		assert.Contains(t, e.Message, "skipped")
	}
}

func TestGroupingMalformedMetadataSkipsLine(t *testing.T) {
	f := newGroupingFixture("")
	ord := migratedOrder("web")
	locID := id.New()

	bad := ord.AddLine(id.New(), types.NewQuantity(1), types.MustMoney("1.00"))
	bad.LocationID = &locID
	bad.ShipmentMeta = json.RawMessage(`[{"trackingNo":"A"},{"trackingNo":"B"}]`)

	f.orders.put(ord)

	records := f.stage.Process(context.Background(), ord.ID)

	assert.Empty(t, records)
	require.Equal(t, 1, f.errs.Len())
	assert.Contains(t, f.errs.Entries()[0].Message, "skipped")
}

func TestGroupingUnmatchedLineSurfaced(t *testing.T) {
	f := newGroupingFixture("")
	ord := migratedOrder("web")
	locID := id.New()

	l1 := ord.AddLine(id.New(), types.NewQuantity(1), types.MustMoney("4.00"))
	l1.LocationID = &locID
	l1.ShipmentMeta = trackingJSON("TN-1", "", "", "")

	l2 := ord.AddLine(id.New(), types.NewQuantity(1), types.MustMoney("6.00"))
	l2.LocationID = &locID
	l2.ShipmentMeta = trackingJSON("TN-2", "", "", "")

	f.orders.put(ord)

	// Derivation only proposes a line for order line 1; line 2 has no
	// shipment line to bind to.
	f.shipments.deriveFn = func(o *order.Order, loc id.ID) (*shipment.Shipment, error) {
		shp := shipment.New(o.ID, loc)
		shp.Lines = []shipment.Line{
			{LineNo: 1, OrderLineNo: 1, ItemID: o.Lines[0].ItemID, PendingQty: o.Lines[0].Quantity},
		}
		return shp, nil
	}

	records := f.stage.Process(context.Background(), ord.ID)
	require.Len(t, records, 1)
	assert.Len(t, records[0].Matched, 1)
	assert.Equal(t, 1, records[0].Matched[0].OrderLineNo)

	require.Equal(t, 1, f.errs.Len())
	assert.Contains(t, f.errs.Entries()[0].Message, "unmatched")
}

func TestGroupingConsumedLineGuard(t *testing.T) {
	f := newGroupingFixture("")
	ord := migratedOrder("web")
	locID := id.New()

	// Two order lines sharing a line number: broken upstream data the
	// correlation must refuse to double-bind.
	for i := 0; i < 2; i++ {
		ord.Lines = append(ord.Lines, order.Line{
			LineNo:       1,
			ItemID:       id.New(),
			Quantity:     types.NewQuantity(1),
			Amount:       types.MustMoney("2.00"),
			LocationID:   &locID,
			ShipmentMeta: trackingJSON("TN-1", "", "", ""),
		})
	}
	f.orders.put(ord)

	records := f.stage.Process(context.Background(), ord.ID)
	require.Len(t, records, 1)
	assert.Len(t, records[0].Matched, 1)

	require.Equal(t, 1, f.errs.Len())
	assert.Contains(t, f.errs.Entries()[0].Message, "already consumed")
}

func TestGroupingEmptyShipmentNotPersisted(t *testing.T) {
	f := newGroupingFixture("")
	ord := migratedOrder("web")
	locID := id.New()

	l1 := ord.AddLine(id.New(), types.NewQuantity(1), types.MustMoney("4.00"))
	l1.LocationID = &locID
	l1.ShipmentMeta = trackingJSON("TN-1", "", "", "")

	f.orders.put(ord)

	f.shipments.deriveFn = func(o *order.Order, loc id.ID) (*shipment.Shipment, error) {
		shp := shipment.New(o.ID, loc)
		shp.Lines = []shipment.Line{
			{LineNo: 1, OrderLineNo: 99, ItemID: id.New(), PendingQty: types.NewQuantity(1)},
		}
		return shp, nil
	}

	records := f.stage.Process(context.Background(), ord.ID)

	assert.Empty(t, records)
	assert.Empty(t, f.rec.list())

	var sawEmpty bool
	for _, e := range f.errs.Entries() {
		if e.Stage == StageGrouping && strings.Contains(e.Message, "no valid lines") {
			sawEmpty = true
		}
	}
	assert.True(t, sawEmpty)
}

func TestGroupingCreateFailureEmitsNoRecord(t *testing.T) {
	f := newGroupingFixture("")
	ord := migratedOrder("web")
	locID := id.New()

	l1 := ord.AddLine(id.New(), types.NewQuantity(1), types.MustMoney("4.00"))
	l1.LocationID = &locID
	l1.ShipmentMeta = trackingJSON("TN-1", "", "", "")

	f.orders.put(ord)
	f.shipments.createErr = assert.AnError

	records := f.stage.Process(context.Background(), ord.ID)

	assert.Empty(t, records)
	require.Equal(t, 1, f.errs.Len())
	assert.Contains(t, f.errs.Entries()[0].Message, "save failed")
}

func TestGroupingTaxReallocation(t *testing.T) {
	f := newGroupingFixture("marketplace")
	ord := migratedOrder("amazon-marketplace-us")
	locID := id.New()

	gstPst := ord.AddLine(id.New(), types.NewQuantity(1), types.MustMoney("20.00"))
	gstPst.LocationID = &locID
	gstPst.ShipmentMeta = trackingJSON("TN-1", "", "", "")
	gstPst.TaxMeta = json.RawMessage(`[{"TaxName":"GST","Tax":5},{"TaxName":"PST","Tax":3}]`)

	salesTax := ord.AddLine(id.New(), types.NewQuantity(1), types.MustMoney("30.00"))
	salesTax.LocationID = &locID
	salesTax.ShipmentMeta = trackingJSON("TN-2", "", "", "")
	salesTax.TaxMeta = json.RawMessage(`[{"TaxName":"Sales Tax","Tax":"10"}]`)

	preset := ord.AddLine(id.New(), types.NewQuantity(1), types.MustMoney("5.00"))
	preset.LocationID = &locID
	preset.ShipmentMeta = trackingJSON("TN-3", "", "", "")
	preset.TaxMeta = json.RawMessage(`[{"TaxName":"GST","Tax":99}]`)
	preset.TaxBucket1 = "1.00"

	f.orders.put(ord)

	records := f.stage.Process(context.Background(), ord.ID)
	require.Len(t, records, 1)

	saved := f.orders.get(ord.ID)
	assert.Equal(t, "5.00", saved.Lines[0].TaxBucket1)
	assert.Equal(t, "3.00", saved.Lines[0].TaxBucket2)
	assert.Equal(t, "10.00", saved.Lines[1].TaxBucket1)
	assert.Equal(t, "0.00", saved.Lines[1].TaxBucket2)

	// Pre-filled buckets are never recomputed.
	assert.Equal(t, "1.00", saved.Lines[2].TaxBucket1)
	assert.Empty(t, saved.Lines[2].TaxBucket2)

	assert.Contains(t, f.rec.list(), "order.save")
}

func TestGroupingTaxPassSkipsOtherChannels(t *testing.T) {
	f := newGroupingFixture("marketplace")
	ord := migratedOrder("web")
	locID := id.New()

	l1 := ord.AddLine(id.New(), types.NewQuantity(1), types.MustMoney("20.00"))
	l1.LocationID = &locID
	l1.ShipmentMeta = trackingJSON("TN-1", "", "", "")
	l1.TaxMeta = json.RawMessage(`[{"TaxName":"GST","Tax":5}]`)

	f.orders.put(ord)

	records := f.stage.Process(context.Background(), ord.ID)
	require.Len(t, records, 1)

	saved := f.orders.get(ord.ID)
	assert.Empty(t, saved.Lines[0].TaxBucket1)
	assert.Empty(t, saved.Lines[0].TaxBucket2)
	assert.NotContains(t, f.rec.list(), "order.save")
}

func TestGroupingTaxSaveFailureDoesNotAbort(t *testing.T) {
	f := newGroupingFixture("marketplace")
	ord := migratedOrder("marketplace")
	locID := id.New()

	l1 := ord.AddLine(id.New(), types.NewQuantity(1), types.MustMoney("20.00"))
	l1.LocationID = &locID
	l1.ShipmentMeta = trackingJSON("TN-1", "", "", "")
	l1.TaxMeta = json.RawMessage(`[{"TaxName":"VAT","Tax":4}]`)

	f.orders.put(ord)
	f.orders.saveErr = assert.AnError

	records := f.stage.Process(context.Background(), ord.ID)

	// Shipment creation still proceeds.
	require.Len(t, records, 1)

	var sawSaveFailure bool
	for _, e := range f.errs.Entries() {
		if strings.Contains(e.Message, "order save") {
			sawSaveFailure = true
		}
	}
	assert.True(t, sawSaveFailure)
}

func TestSplitTaxEntries(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		bucket1 string
		bucket2 string
	}{
		{"gst and pst", `[{"TaxName":"GST","Tax":5},{"TaxName":"PST","Tax":3}]`, "5.00", "3.00"},
		{"hst", `[{"TaxName":"HST 13%","Tax":13}]`, "13.00", "0.00"},
		{"vat", `[{"TaxName":"VAT","Tax":7.5}]`, "7.50", "0.00"},
		{"generic sales tax", `[{"TaxName":"Sales Tax","Tax":10}]`, "10.00", "0.00"},
		{"unknown name defaults to first bucket", `[{"TaxName":"Levy","Tax":2}]`, "2.00", "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := shipmeta.ParseTaxEntries([]byte(tt.raw))
			require.NoError(t, err)

			b1, b2 := splitTaxEntries(parsed)
			assert.Equal(t, tt.bucket1, b1.StringFixed(2))
			assert.Equal(t, tt.bucket2, b2.StringFixed(2))
		})
	}
}
