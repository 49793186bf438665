package shipmeta

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTrackingBareObject(t *testing.T) {
	raw := []byte(`{"trackingNo":"TN-42","shipDate":"2025-03-01","narletUrl":"https://track.example/TN-42","shipmentId":"EXT-9"}`)

	tr, err := ParseTracking(raw)
	require.NoError(t, err)

	assert.Equal(t, "TN-42", tr.TrackingNo)
	assert.Equal(t, "https://track.example/TN-42", tr.NarletURL)
	assert.Equal(t, "EXT-9", tr.ShipmentID)
	require.NotNil(t, tr.ShipDate)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), *tr.ShipDate)
}

func TestParseTrackingOneElementList(t *testing.T) {
	raw := []byte(`[{"trackingNo":"TN-42"}]`)

	tr, err := ParseTracking(raw)
	require.NoError(t, err)
	assert.Equal(t, "TN-42", tr.TrackingNo)
	assert.Nil(t, tr.ShipDate)
}

func TestParseTrackingRejectsMultiElementList(t *testing.T) {
	raw := []byte(`[{"trackingNo":"TN-1"},{"trackingNo":"TN-2"}]`)

	_, err := ParseTracking(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 elements")
}

func TestParseTrackingEmptyList(t *testing.T) {
	_, err := ParseTracking([]byte(`[]`))
	assert.Error(t, err)
}

func TestParseTrackingTimestampShipDate(t *testing.T) {
	raw := []byte(`{"trackingNo":"TN-1","shipDate":"2025-03-01T14:30:00-05:00"}`)

	tr, err := ParseTracking(raw)
	require.NoError(t, err)
	require.NotNil(t, tr.ShipDate)
	assert.Equal(t, time.Date(2025, 3, 1, 19, 30, 0, 0, time.UTC), *tr.ShipDate)
}

func TestParseTrackingBadShipDate(t *testing.T) {
	raw := []byte(`{"trackingNo":"TN-1","shipDate":"03/01/2025"}`)

	_, err := ParseTracking(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ship date")
}

func TestParseTrackingEmptyAndNull(t *testing.T) {
	_, err := ParseTracking(nil)
	assert.Error(t, err)

	_, err = ParseTracking([]byte("  "))
	assert.Error(t, err)

	_, err = ParseTracking([]byte("null"))
	assert.Error(t, err)
}

func TestParseTaxEntriesNumericAndQuoted(t *testing.T) {
	raw := []byte(`[{"TaxName":"GST 5%","Tax":1.25},{"TaxName":"PST 7%","Tax":"1.75"}]`)

	entries, err := ParseTaxEntries(raw)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "GST 5%", entries[0].TaxName)
	assert.Equal(t, "1.25", entries[0].Tax.String())
	assert.Equal(t, "1.75", entries[1].Tax.String())
}

func TestParseTaxEntriesEmpty(t *testing.T) {
	_, err := ParseTaxEntries(nil)
	assert.Error(t, err)

	_, err = ParseTaxEntries([]byte("null"))
	assert.Error(t, err)
}
