package reversal

import (
	"context"
)

// Repository defines storage operations for inventory reversals.
type Repository interface {
	// Create persists a new reversal with its lines.
	Create(ctx context.Context, rev *Reversal) error
}
