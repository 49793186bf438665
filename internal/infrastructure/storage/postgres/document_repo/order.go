package document_repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"fulfillsync/internal/core/apperror"
	"fulfillsync/internal/core/id"
	"fulfillsync/internal/domain/order"
	"fulfillsync/internal/infrastructure/storage/postgres"
)

const (
	orderTable     = "orders"
	orderLineTable = "order_lines"
)

// Compile-time check.
var _ order.Repository = (*OrderRepo)(nil)

// OrderRepo is the PostgreSQL order repository.
type OrderRepo struct {
	BaseDocumentRepo

	headerCols []string
	lineCols   []string
}

// NewOrderRepo creates an order repository.
func NewOrderRepo(tm *postgres.TxManager) *OrderRepo {
	return &OrderRepo{
		BaseDocumentRepo: NewBaseDocumentRepo(tm, orderTable),
		headerCols:       postgres.ExtractDBColumns[orderRow](),
		lineCols:         postgres.ExtractDBColumns[order.Line](),
	}
}

// orderRow is the flat scan target for the order header. The shipping
// sub-address lives in its own struct on the domain model, so it cannot
// be scanned directly.
type orderRow struct {
	ID           id.ID     `db:"id"`
	DeletionMark bool      `db:"deletion_mark"`
	Version      int       `db:"version"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`

	Number string    `db:"number"`
	Date   time.Time `db:"date"`
	Memo   string    `db:"memo"`

	Migrated     bool    `db:"migrated"`
	Channel      string  `db:"channel"`
	SubsidiaryID *id.ID  `db:"subsidiary_id"`
	Addressee    *string `db:"addressee"`
	AddressLine  *string `db:"address_line"`

	ShipToAddressee *string `db:"shipto_addressee"`
	ShipToAddr1     *string `db:"shipto_addr1"`
}

func (row *orderRow) toDomain() *order.Order {
	ord := &order.Order{
		Migrated:     row.Migrated,
		Channel:      row.Channel,
		SubsidiaryID: row.SubsidiaryID,
		Addressee:    row.Addressee,
		AddressLine:  row.AddressLine,
		ShipTo: order.ShipTo{
			Addressee: row.ShipToAddressee,
			AddrLine1: row.ShipToAddr1,
		},
	}
	ord.ID = row.ID
	ord.DeletionMark = row.DeletionMark
	ord.Version = row.Version
	ord.CreatedAt = row.CreatedAt
	ord.UpdatedAt = row.UpdatedAt
	ord.Number = row.Number
	ord.Date = row.Date
	ord.Memo = row.Memo
	return ord
}

// GetByID retrieves an order with its lines, lines in business order.
func (r *OrderRepo) GetByID(ctx context.Context, orderID id.ID) (*order.Order, error) {
	q := r.Builder().
		Select(r.headerCols...).
		From(orderTable).
		Where(squirrel.Eq{"id": orderID})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row orderRow
	if err := pgxscan.Get(ctx, r.Querier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("order", orderID.String())
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	ord := row.toDomain()

	lq := r.Builder().
		Select(r.lineCols...).
		From(orderLineTable).
		Where(squirrel.Eq{"order_id": orderID}).
		OrderBy("line_no")

	sql, args, err = lq.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build line query: %w", err)
	}

	if err := pgxscan.Select(ctx, r.Querier(ctx), &ord.Lines, sql, args...); err != nil {
		return nil, fmt.Errorf("get order lines: %w", err)
	}

	return ord, nil
}

// Save persists the order header and replaces all lines in one
// transaction. Orders are created by the migration import, so Save is
// update-only and guarded by optimistic locking.
func (r *OrderRepo) Save(ctx context.Context, ord *order.Order) error {
	if err := ord.Validate(ctx); err != nil {
		return err
	}

	err := r.tm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := r.UpdateWithVersion(ctx, ord.ID, ord.Version, r.headerMap(ord)); err != nil {
			return err
		}
		return r.ReplaceLines(ctx, orderLineTable, "order_id", ord.ID, r.lineMaps(ord))
	})
	if err != nil {
		return err
	}

	ord.SetVersion(ord.Version + 1)
	return nil
}

func (r *OrderRepo) headerMap(ord *order.Order) map[string]any {
	data := postgres.StructToMap(ord)
	data["shipto_addressee"] = ord.ShipTo.Addressee
	data["shipto_addr1"] = ord.ShipTo.AddrLine1
	return data
}

func (r *OrderRepo) lineMaps(ord *order.Order) []map[string]any {
	rows := make([]map[string]any, 0, len(ord.Lines))
	for i := range ord.Lines {
		row := postgres.StructToMap(&ord.Lines[i])
		row["order_id"] = ord.ID
		normalizeJSONColumns(row, "shipment_meta", "tax_meta")
		rows = append(rows, row)
	}
	return rows
}

// normalizeJSONColumns turns empty raw JSON values into NULL so jsonb
// columns never receive a zero-length payload.
func normalizeJSONColumns(row map[string]any, cols ...string) {
	for _, col := range cols {
		if raw, ok := row[col].(json.RawMessage); ok && len(raw) == 0 {
			row[col] = nil
		}
	}
}
