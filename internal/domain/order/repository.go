package order

import (
	"context"

	"fulfillsync/internal/core/id"
)

// Repository defines storage operations for orders.
type Repository interface {
	// GetByID retrieves an order with its lines.
	GetByID(ctx context.Context, orderID id.ID) (*Order, error)

	// Save persists the order header and all lines.
	Save(ctx context.Context, ord *Order) error
}
