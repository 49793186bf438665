// Package shipment provides the Shipment document derived from an order.
// One shipment represents goods dispatched from one location for one order.
package shipment

import (
	"context"
	"time"

	"fulfillsync/internal/core/apperror"
	"fulfillsync/internal/core/entity"
	"fulfillsync/internal/core/id"
	"fulfillsync/internal/core/types"
)

// Status represents the fulfillment status of a shipment.
type Status string

const (
	StatusOpen     Status = "open"
	StatusComplete Status = "complete"
)

// Shipment represents goods dispatched from one location for one order.
type Shipment struct {
	entity.Document

	// OrderID references the origin order.
	OrderID id.ID `db:"order_id" json:"orderId"`

	// LocationID is the dispatching location.
	LocationID id.ID `db:"location_id" json:"locationId"`

	Status      Status      `db:"status" json:"status"`
	TotalAmount types.Money `db:"total_amount" json:"totalAmount"`

	// ReversalCreated is the idempotency marker set once the
	// compensating inventory reversal has been posted.
	ReversalCreated bool `db:"reversal_created" json:"reversalCreated"`

	Lines []Line `db:"-" json:"lines"`
}

// Line represents one shipment line.
type Line struct {
	LineNo int `db:"line_no" json:"lineNo"`

	// OrderLineNo is the origin order line number, the sole join key
	// between order lines and shipment lines. Item identity is not a
	// join key because multiple lines may share an item.
	OrderLineNo int `db:"order_line_no" json:"orderLineNo"`

	ItemID id.ID `db:"item_id" json:"itemId"`

	// PendingQty is the still-open order quantity the line was derived with.
	PendingQty types.Quantity `db:"pending_qty" json:"pendingQty"`

	// Fields written when the line is matched and marked received.
	ReceivedQty types.Quantity `db:"received_qty" json:"receivedQty"`
	Amount      types.Money    `db:"amount" json:"amount"`
	LocationID  *id.ID         `db:"location_id" json:"locationId,omitempty"`
	TrackingNo  string         `db:"tracking_no" json:"trackingNo,omitempty"`
	TrackingURL string         `db:"tracking_url" json:"trackingUrl,omitempty"`
	Received    bool           `db:"received" json:"received"`
}

// New creates a new Shipment for the given order and location.
func New(orderID, locationID id.ID) *Shipment {
	return &Shipment{
		Document:   entity.NewDocument(),
		OrderID:    orderID,
		LocationID: locationID,
		Status:     StatusOpen,
		Lines:      make([]Line, 0),
	}
}

// SetDate sets the shipment's business date.
func (s *Shipment) SetDate(d time.Time) {
	s.Date = d
}

// ReceivedLineCount returns the number of lines marked received.
func (s *Shipment) ReceivedLineCount() int {
	n := 0
	for _, line := range s.Lines {
		if line.Received {
			n++
		}
	}
	return n
}

// Validate implements entity.Validatable. A persisted shipment must carry
// at least one received line; empty shipments are never saved.
func (s *Shipment) Validate(ctx context.Context) error {
	if err := s.Document.Validate(ctx); err != nil {
		return err
	}

	if id.IsNil(s.OrderID) {
		return apperror.NewValidation("order reference is required").
			WithDetail("field", "orderId")
	}

	if id.IsNil(s.LocationID) {
		return apperror.NewValidation("location is required").
			WithDetail("field", "locationId")
	}

	if s.ReceivedLineCount() == 0 {
		return apperror.NewValidation("at least one received line is required").
			WithDetail("field", "lines")
	}

	return nil
}
