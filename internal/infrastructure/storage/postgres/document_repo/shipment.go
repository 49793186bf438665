package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"fulfillsync/internal/core/apperror"
	"fulfillsync/internal/core/id"
	"fulfillsync/internal/domain/order"
	"fulfillsync/internal/domain/shipment"
	"fulfillsync/internal/infrastructure/storage/postgres"
)

const (
	shipmentTable     = "shipments"
	shipmentLineTable = "shipment_lines"
)

// Compile-time check.
var _ shipment.Repository = (*ShipmentRepo)(nil)

// ShipmentRepo is the PostgreSQL shipment repository.
type ShipmentRepo struct {
	BaseDocumentRepo

	headerCols []string
	lineCols   []string
}

// NewShipmentRepo creates a shipment repository.
func NewShipmentRepo(tm *postgres.TxManager) *ShipmentRepo {
	return &ShipmentRepo{
		BaseDocumentRepo: NewBaseDocumentRepo(tm, shipmentTable),
		headerCols:       postgres.ExtractDBColumns[shipment.Shipment](),
		lineCols:         postgres.ExtractDBColumns[shipment.Line](),
	}
}

// DeriveFromOrder builds a new, unsaved shipment proposal for the order.
// Every still-open order line becomes a candidate shipment line keyed by
// the order line number, mirroring how the fulfillment system proposes
// receipt lines for an order.
func (r *ShipmentRepo) DeriveFromOrder(ctx context.Context, ord *order.Order, locationID id.ID) (*shipment.Shipment, error) {
	shp := shipment.New(ord.ID, locationID)
	shp.Number = ord.Number
	shp.Date = ord.Date

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

	if len(shp.Lines) == 0 {
		return nil, apperror.NewData("order has no open lines to derive a shipment from").
			WithDetail("orderId", ord.ID.String())
	}

	return shp, nil
}

// Create persists a new shipment with its lines in one transaction.
func (r *ShipmentRepo) Create(ctx context.Context, shp *shipment.Shipment) error {
	if err := shp.Validate(ctx); err != nil {
		return err
	}

	return r.tm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := r.Insert(ctx, postgres.StructToMap(shp)); err != nil {
			return err
		}
		return r.InsertLines(ctx, shipmentLineTable, r.lineMaps(shp))
	})
}

// GetByID retrieves a shipment with its lines.
func (r *ShipmentRepo) GetByID(ctx context.Context, shipmentID id.ID) (*shipment.Shipment, error) {
	q := r.Builder().
		Select(r.headerCols...).
		From(shipmentTable).
		Where(squirrel.Eq{"id": shipmentID})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	shp := &shipment.Shipment{}
	if err := pgxscan.Get(ctx, r.Querier(ctx), shp, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("shipment", shipmentID.String())
		}
		return nil, fmt.Errorf("get shipment: %w", err)
	}

	lq := r.Builder().
		Select(r.lineCols...).
		From(shipmentLineTable).
		Where(squirrel.Eq{"shipment_id": shipmentID}).
		OrderBy("line_no")

	sql, args, err = lq.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build line query: %w", err)
	}

	if err := pgxscan.Select(ctx, r.Querier(ctx), &shp.Lines, sql, args...); err != nil {
		return nil, fmt.Errorf("get shipment lines: %w", err)
	}

	return shp, nil
}

// Update persists header changes with optimistic locking. Lines are
// written once at Create and never change afterwards.
func (r *ShipmentRepo) Update(ctx context.Context, shp *shipment.Shipment) error {
	if err := r.UpdateWithVersion(ctx, shp.ID, shp.Version, postgres.StructToMap(shp)); err != nil {
		return err
	}
	shp.SetVersion(shp.Version + 1)
	return nil
}

func (r *ShipmentRepo) lineMaps(shp *shipment.Shipment) []map[string]any {
	rows := make([]map[string]any, 0, len(shp.Lines))
	for i := range shp.Lines {
		row := postgres.StructToMap(&shp.Lines[i])
		row["shipment_id"] = shp.ID
		rows = append(rows, row)
	}
	return rows
}
