package entity

import (
	"context"
	"time"

	"fulfillsync/internal/core/apperror"
)

// Document is the base type for business transactions.
// Examples: Order, Shipment, InventoryReversal.
type Document struct {
	BaseDocument

	// Number is the document number (unique within type)
	Number string `db:"number" json:"number"`

	// Date is the business date of the document
	Date time.Time `db:"date" json:"date"`

	// Memo is an optional free-text note on the document header
	Memo string `db:"memo" json:"memo,omitempty"`
}

// NewDocument creates a new Document with a generated ID.
func NewDocument() Document {
	return Document{
		BaseDocument: NewBaseDocument(),
		Date:         time.Now().UTC(),
	}
}

// Validate implements the Validatable interface.
func (d *Document) Validate(ctx context.Context) error {
	if d.Date.IsZero() {
		return apperror.NewValidation("date is required").
			WithDetail("field", "date")
	}
	return nil
}
