package location

import (
	"context"

	"fulfillsync/internal/core/id"
)

// Repository defines read access to the location directory.
type Repository interface {
	GetByID(ctx context.Context, locationID id.ID) (*Location, error)
}
