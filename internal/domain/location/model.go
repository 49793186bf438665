// Package location provides the Location catalog, the directory of
// physical shipping locations.
package location

import (
	"fulfillsync/internal/core/entity"
)

// Location represents a physical shipping location.
type Location struct {
	entity.Catalog

	// Address is the free-text mailing address, when maintained.
	Address *string `db:"address" json:"address,omitempty"`
}

// New creates a new Location.
func New(code, name string) *Location {
	return &Location{
		Catalog: entity.NewCatalog(code, name),
	}
}

// HasMailingAddress reports whether the location carries both a name and
// a non-empty address text, making it usable as a reversal address.
func (l *Location) HasMailingAddress() bool {
	return l.Name != "" && l.Address != nil && *l.Address != ""
}
