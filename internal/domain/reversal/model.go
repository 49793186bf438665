// Package reversal provides the InventoryReversal document, the
// compensating stock adjustment generated once per reconciled shipment.
package reversal

import (
	"context"
	"time"

	"fulfillsync/internal/core/apperror"
	"fulfillsync/internal/core/entity"
	"fulfillsync/internal/core/id"
	"fulfillsync/internal/core/types"
)

// DefaultAddressee is used when neither the location directory nor the
// order's shipping sub-address yields an addressee.
const DefaultAddressee = "Inventory Adjustment"

// DefaultAddress is used when no address line can be resolved.
const DefaultAddress = "Default Adjustment Address"

// Reversal represents a compensating inventory adjustment for one shipment.
// Created and saved exactly once per eligible shipment, never updated.
type Reversal struct {
	entity.Document

	// ShipmentID references the shipment this reversal compensates.
	ShipmentID id.ID `db:"shipment_id" json:"shipmentId"`

	// SubsidiaryID is copied from the order when present.
	SubsidiaryID *id.ID `db:"subsidiary_id" json:"subsidiaryId,omitempty"`

	// AccountID is the financial adjustment account from configuration.
	AccountID id.ID `db:"account_id" json:"accountId"`

	LocationID id.ID `db:"location_id" json:"locationId"`

	Addressee string `db:"addressee" json:"addressee"`
	Address   string `db:"address" json:"address"`

	Lines []Line `db:"-" json:"lines"`
}

// Line represents one adjustment line.
type Line struct {
	LineNo     int            `db:"line_no" json:"lineNo"`
	ItemID     id.ID          `db:"item_id" json:"itemId"`
	LocationID id.ID          `db:"location_id" json:"locationId"`
	Quantity   types.Quantity `db:"quantity" json:"quantity"`
}

// New creates a new Reversal for the given shipment.
func New(shipmentID, accountID, locationID id.ID, date time.Time) *Reversal {
	rev := &Reversal{
		Document:   entity.NewDocument(),
		ShipmentID: shipmentID,
		AccountID:  accountID,
		LocationID: locationID,
		Lines:      make([]Line, 0),
	}
	rev.Date = date
	return rev
}

// AddLine appends an adjustment line.
func (r *Reversal) AddLine(itemID, locationID id.ID, qty types.Quantity) {
	r.Lines = append(r.Lines, Line{
		LineNo:     len(r.Lines) + 1,
		ItemID:     itemID,
		LocationID: locationID,
		Quantity:   qty,
	})
}

// Validate implements entity.Validatable. A reversal is persisted only
// with a mandatory account and at least one adjustment line.
func (r *Reversal) Validate(ctx context.Context) error {
	if err := r.Document.Validate(ctx); err != nil {
		return err
	}

	if id.IsNil(r.AccountID) {
		return apperror.NewConfig("reversal account is required").
			WithDetail("field", "accountId")
	}

	if len(r.Lines) == 0 {
		return apperror.NewValidation("at least one adjustment line is required").
			WithDetail("field", "lines")
	}

	return nil
}
