package shipment

import (
	"context"

	"fulfillsync/internal/core/id"
	"fulfillsync/internal/domain/order"
)

// Repository defines storage operations for shipments.
type Repository interface {
	// DeriveFromOrder builds a new, unsaved shipment for the order and
	// location, pre-populated with one candidate line per still-open
	// order quantity regardless of location. Matching and persistence
	// are the caller's concern.
	DeriveFromOrder(ctx context.Context, ord *order.Order, locationID id.ID) (*Shipment, error)

	// Create persists a new shipment with its lines.
	Create(ctx context.Context, shp *Shipment) error

	// GetByID retrieves a shipment with its lines.
	GetByID(ctx context.Context, shipmentID id.ID) (*Shipment, error)

	// Update persists header changes on an existing shipment.
	Update(ctx context.Context, shp *Shipment) error
}
