package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"fulfillsync/internal/core/apperror"
	"fulfillsync/internal/core/id"
	"fulfillsync/internal/domain/location"
	"fulfillsync/internal/domain/order"
	"fulfillsync/internal/domain/reversal"
	"fulfillsync/internal/domain/shipment"
)

// callRecorder tracks the order of persistence calls across fakes.
type callRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *callRecorder) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
}

func (r *callRecorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func cloneOrder(ord *order.Order) *order.Order {
	cp := *ord
	cp.Lines = append([]order.Line(nil), ord.Lines...)
	return &cp
}

func cloneShipment(shp *shipment.Shipment) *shipment.Shipment {
	cp := *shp
	cp.Lines = append([]shipment.Line(nil), shp.Lines...)
	return &cp
}

type fakeOrderRepo struct {
	mu      sync.Mutex
	orders  map[id.ID]*order.Order
	rec     *callRecorder
	getErr  error
	saveErr error
}

func newFakeOrderRepo(rec *callRecorder) *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[id.ID]*order.Order), rec: rec}
}

func (f *fakeOrderRepo) put(ord *order.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[ord.ID] = cloneOrder(ord)
}

func (f *fakeOrderRepo) get(orderID id.ID) *order.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneOrder(f.orders[orderID])
}

func (f *fakeOrderRepo) GetByID(ctx context.Context, orderID id.ID) (*order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	ord, ok := f.orders[orderID]
	if !ok {
		return nil, apperror.NewNotFound("order", orderID.String())
	}
	return cloneOrder(ord), nil
}

func (f *fakeOrderRepo) Save(ctx context.Context, ord *order.Order) error {
	f.rec.record("order.save")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.orders[ord.ID] = cloneOrder(ord)
	return nil
}

type fakeShipmentRepo struct {
	mu        sync.Mutex
	shipments map[id.ID]*shipment.Shipment
	rec       *callRecorder

	deriveFn  func(ord *order.Order, locationID id.ID) (*shipment.Shipment, error)
	createErr error
	getErr    error
	updateErr error
}

func newFakeShipmentRepo(rec *callRecorder) *fakeShipmentRepo {
	return &fakeShipmentRepo{shipments: make(map[id.ID]*shipment.Shipment), rec: rec}
}

func (f *fakeShipmentRepo) put(shp *shipment.Shipment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shipments[shp.ID] = cloneShipment(shp)
}

func (f *fakeShipmentRepo) get(shipmentID id.ID) *shipment.Shipment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneShipment(f.shipments[shipmentID])
}

// DeriveFromOrder mirrors the production derivation: one candidate line
// per still-open order line, keyed by the order line number.
func (f *fakeShipmentRepo) DeriveFromOrder(ctx context.Context, ord *order.Order, locationID id.ID) (*shipment.Shipment, error) {
	if f.deriveFn != nil {
		return f.deriveFn(ord, locationID)
	}

	shp := shipment.New(ord.ID, locationID)
	for i := range ord.Lines {
		line := &ord.Lines[i]
		if line.Fulfilled {
			continue
		}
		shp.Lines = append(shp.Lines, shipment.Line{
			LineNo:      len(shp.Lines) + 1,
			OrderLineNo: line.LineNo,
			ItemID:      line.ItemID,
			PendingQty:  line.Quantity,
		})
	}
	return shp, nil
}

func (f *fakeShipmentRepo) Create(ctx context.Context, shp *shipment.Shipment) error {
	f.rec.record("shipment.create")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.shipments[shp.ID] = cloneShipment(shp)
	return nil
}

func (f *fakeShipmentRepo) GetByID(ctx context.Context, shipmentID id.ID) (*shipment.Shipment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	shp, ok := f.shipments[shipmentID]
	if !ok {
		return nil, apperror.NewNotFound("shipment", shipmentID.String())
	}
	return cloneShipment(shp), nil
}

func (f *fakeShipmentRepo) Update(ctx context.Context, shp *shipment.Shipment) error {
	f.rec.record("shipment.update")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.shipments[shp.ID] = cloneShipment(shp)
	return nil
}

type fakeLocationRepo struct {
	locations map[id.ID]*location.Location
	getErr    error
}

func newFakeLocationRepo() *fakeLocationRepo {
	return &fakeLocationRepo{locations: make(map[id.ID]*location.Location)}
}

func (f *fakeLocationRepo) put(loc *location.Location) {
	f.locations[loc.ID] = loc
}

func (f *fakeLocationRepo) GetByID(ctx context.Context, locationID id.ID) (*location.Location, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	loc, ok := f.locations[locationID]
	if !ok {
		return nil, apperror.NewNotFound("location", locationID.String())
	}
	return loc, nil
}

type fakeReversalRepo struct {
	mu        sync.Mutex
	reversals []*reversal.Reversal
	rec       *callRecorder
	createErr error
}

func newFakeReversalRepo(rec *callRecorder) *fakeReversalRepo {
	return &fakeReversalRepo{rec: rec}
}

func (f *fakeReversalRepo) Create(ctx context.Context, rev *reversal.Reversal) error {
	f.rec.record("reversal.create")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	cp := *rev
	cp.Lines = append([]reversal.Line(nil), rev.Lines...)
	f.reversals = append(f.reversals, &cp)
	return nil
}

func (f *fakeReversalRepo) all() []*reversal.Reversal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*reversal.Reversal(nil), f.reversals...)
}

type fakeSeedSource struct {
	ids []id.ID
	err error
}

func (f *fakeSeedSource) CandidateOrders(ctx context.Context, code string) ([]id.ID, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ids, nil
}

type fakeRunStore struct {
	mu      sync.Mutex
	runs    []*Run
	entries [][]Entry
	err     error
}

func (f *fakeRunStore) SaveRun(ctx context.Context, run *Run, entries []Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.runs = append(f.runs, run)
	f.entries = append(f.entries, entries)
	return nil
}

// trackingJSON builds shipment metadata in the upstream wire shape.
func trackingJSON(trackingNo, shipDate, narletURL, shipmentID string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"trackingNo":%q,"shipDate":%q,"narletUrl":%q,"shipmentId":%q}`,
		trackingNo, shipDate, narletURL, shipmentID,
	))
}
