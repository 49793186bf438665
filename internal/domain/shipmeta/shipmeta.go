// Package shipmeta parses the loosely-typed per-line JSON payloads the
// migration import leaves on order lines: tracking metadata and the
// channel-specific tax breakdown. Both are normalized into one canonical
// shape at the parse boundary so the pipeline never handles raw variants.
package shipmeta

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"fulfillsync/internal/core/types"
)

// Tracking is the canonical form of a line's shipment metadata.
type Tracking struct {
	TrackingNo string
	ShipDate   *time.Time
	NarletURL  string
	ShipmentID string
}

// rawTracking matches the upstream JSON shape.
type rawTracking struct {
	TrackingNo string `json:"trackingNo"`
	ShipDate   string `json:"shipDate"`
	NarletURL  string `json:"narletUrl"`
	ShipmentID string `json:"shipmentId"`
}

// ParseTracking decodes shipment metadata, accepting either a bare object
// or a one-element list wrapping the same object.
func ParseTracking(raw []byte) (*Tracking, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("empty shipment metadata")
	}

	var rt rawTracking
	if trimmed[0] == '[' {
		var list []rawTracking
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("decode shipment metadata list: %w", err)
		}
		if len(list) != 1 {
			return nil, fmt.Errorf("shipment metadata list has %d elements, want 1", len(list))
		}
		rt = list[0]
	} else {
		if err := json.Unmarshal(trimmed, &rt); err != nil {
			return nil, fmt.Errorf("decode shipment metadata: %w", err)
		}
	}

	t := &Tracking{
		TrackingNo: rt.TrackingNo,
		NarletURL:  rt.NarletURL,
		ShipmentID: rt.ShipmentID,
	}

	if rt.ShipDate != "" {
		parsed, err := parseShipDate(rt.ShipDate)
		if err != nil {
			return nil, fmt.Errorf("parse ship date %q: %w", rt.ShipDate, err)
		}
		t.ShipDate = &parsed
	}

	return t, nil
}

// parseShipDate accepts both bare ISO dates and full timestamps.
func parseShipDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// TaxEntry is one entry of the channel-specific tax breakdown.
// Tax is number-like upstream: decimal accepts both bare numbers and
// quoted strings.
type TaxEntry struct {
	TaxName string      `json:"TaxName"`
	Tax     types.Money `json:"Tax"`
}

// ParseTaxEntries decodes the per-line tax metadata list.
func ParseTaxEntries(raw []byte) ([]TaxEntry, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("empty tax metadata")
	}

	var entries []TaxEntry
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, fmt.Errorf("decode tax metadata: %w", err)
	}
	return entries, nil
}
