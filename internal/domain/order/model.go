// Package order provides the customer Order document brought over by the
// migration import. Orders carry the migration flag and the per-line
// fulfillment markers the reconciliation pipeline works against.
package order

import (
	"context"
	"encoding/json"

	"fulfillsync/internal/core/apperror"
	"fulfillsync/internal/core/entity"
	"fulfillsync/internal/core/id"
	"fulfillsync/internal/core/types"
)

// Order represents a migrated customer order.
type Order struct {
	entity.Document

	// Migrated marks orders created by the migration import. Only
	// migrated orders are reconciled; everything else is left alone.
	Migrated bool `db:"migrated" json:"migrated"`

	// Channel is the sales-channel label ("web", "marketplace", ...).
	Channel string `db:"channel" json:"channel"`

	// SubsidiaryID is the owning subsidiary, when known.
	SubsidiaryID *id.ID `db:"subsidiary_id" json:"subsidiaryId,omitempty"`

	// Body-level address fields, backfilled from the shipping
	// sub-address after the first reversal if blank.
	Addressee   *string `db:"addressee" json:"addressee,omitempty"`
	AddressLine *string `db:"address_line" json:"addressLine,omitempty"`

	// Shipping sub-address from the source system.
	ShipTo ShipTo `json:"shipTo"`

	// Lines in business order. Line numbers are the stable correlation
	// keys joining order lines to shipment lines.
	Lines []Line `db:"-" json:"lines"`
}

// ShipTo is the order's shipping sub-address.
type ShipTo struct {
	Addressee *string `db:"shipto_addressee" json:"addressee,omitempty"`
	AddrLine1 *string `db:"shipto_addr1" json:"addrLine1,omitempty"`
}

// Line represents one order line.
type Line struct {
	// LineNo is unique within the order; insertion order is business order.
	LineNo int `db:"line_no" json:"lineNo"`

	ItemID   id.ID          `db:"item_id" json:"itemId"`
	Quantity types.Quantity `db:"quantity" json:"quantity"`
	Amount   types.Money    `db:"amount" json:"amount"`

	// LocationID is the shipping location, when known.
	LocationID *id.ID `db:"location_id" json:"locationId,omitempty"`

	// ShipmentMeta is the raw per-line shipment metadata written by the
	// migration import (tracking number, ship date, shipment id).
	ShipmentMeta json.RawMessage `db:"shipment_meta" json:"shipmentMeta,omitempty"`

	// TaxMeta is the raw channel-specific tax breakdown.
	TaxMeta json.RawMessage `db:"tax_meta" json:"taxMeta,omitempty"`

	// Tax buckets written by the reallocation pass, as two-decimal strings.
	TaxBucket1 string `db:"tax_bucket1" json:"taxBucket1,omitempty"`
	TaxBucket2 string `db:"tax_bucket2" json:"taxBucket2,omitempty"`

	// Fulfilled is the idempotency marker set once the line's quantity
	// has been reversed out of inventory.
	Fulfilled bool `db:"fulfilled" json:"fulfilled"`
}

// New creates a new Order document.
func New(channel string) *Order {
	return &Order{
		Document: entity.NewDocument(),
		Channel:  channel,
		Lines:    make([]Line, 0),
	}
}

// AddLine appends a line with the next line number.
func (o *Order) AddLine(itemID id.ID, qty types.Quantity, amount types.Money) *Line {
	line := Line{
		LineNo:   len(o.Lines) + 1,
		ItemID:   itemID,
		Quantity: qty,
		Amount:   amount,
	}
	o.Lines = append(o.Lines, line)
	return &o.Lines[len(o.Lines)-1]
}

// LineByNo returns the line with the given line number, or nil.
func (o *Order) LineByNo(lineNo int) *Line {
	for i := range o.Lines {
		if o.Lines[i].LineNo == lineNo {
			return &o.Lines[i]
		}
	}
	return nil
}

// Validate implements entity.Validatable.
func (o *Order) Validate(ctx context.Context) error {
	if err := o.Document.Validate(ctx); err != nil {
		return err
	}

	seen := make(map[int]struct{}, len(o.Lines))
	for _, line := range o.Lines {
		if _, dup := seen[line.LineNo]; dup {
			return apperror.NewValidation("duplicate line number").
				WithDetail("lineNo", line.LineNo)
		}
		seen[line.LineNo] = struct{}{}
	}

	return nil
}

// HasTaxBuckets reports whether either tax bucket has been written.
func (l *Line) HasTaxBuckets() bool {
	return l.TaxBucket1 != "" || l.TaxBucket2 != ""
}
