// Package pipeline implements the two-phase reconciliation batch: a
// grouping stage that materializes one shipment per (order, location)
// pair, a reversal stage that posts one compensating inventory adjustment
// per shipment, and an audit stage that summarizes the error streams.
//
// Stage invocations are independent units of work. Each touches a single
// order or a single shipment, so the runner may dispatch them concurrently
// without coordination; idempotency flags on order lines and shipments
// make accidental re-processing safe.
package pipeline

import (
	"fulfillsync/internal/core/id"
	"fulfillsync/internal/core/types"
)

// MatchedLine describes one order line bound to a shipment line during
// grouping. The reversal stage re-checks item identity against these
// recorded values before trusting them.
type MatchedLine struct {
	// OrderLineIndex is the position of the line in the order's line list.
	OrderLineIndex int `json:"orderLineIndex"`

	// OrderLineNo is the line's correlation key, kept for diagnostics.
	OrderLineNo int `json:"orderLineNo"`

	// OrderItemID is the item recorded on the order line at match time.
	OrderItemID id.ID `json:"orderItemId"`

	// ShipmentItemID is the item resolved on the matched shipment line.
	ShipmentItemID id.ID `json:"shipmentItemId"`

	Quantity types.Quantity `json:"quantity"`
}

// ShipmentRecord is the single grouping-stage output per persisted
// shipment, keyed by shipment id when the runner regroups for the
// reversal stage.
type ShipmentRecord struct {
	ShipmentID id.ID `json:"shipmentId"`
	OrderID    id.ID `json:"orderId"`
	LocationID id.ID `json:"locationId"`

	// LineCount is the number of lines on the persisted shipment.
	LineCount int `json:"lineCount"`

	Matched []MatchedLine `json:"matched"`
}
