package shipment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fulfillsync/internal/core/id"
	"fulfillsync/internal/core/types"
)

func TestValidateRequiresReceivedLine(t *testing.T) {
	shp := New(id.New(), id.New())
	shp.Lines = []Line{
		{LineNo: 1, OrderLineNo: 1, ItemID: id.New(), PendingQty: types.NewQuantity(1)},
	}

	err := shp.Validate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "received line")

	shp.Lines[0].Received = true
	assert.NoError(t, shp.Validate(context.Background()))
}

func TestValidateRequiresReferences(t *testing.T) {
	shp := New(id.ID{}, id.New())
	shp.Lines = []Line{{LineNo: 1, Received: true}}
	assert.Error(t, shp.Validate(context.Background()))

	shp = New(id.New(), id.ID{})
	shp.Lines = []Line{{LineNo: 1, Received: true}}
	assert.Error(t, shp.Validate(context.Background()))
}

func TestReceivedLineCount(t *testing.T) {
	shp := New(id.New(), id.New())
	shp.Lines = []Line{
		{LineNo: 1, Received: true},
		{LineNo: 2},
		{LineNo: 3, Received: true},
	}

	assert.Equal(t, 2, shp.ReceivedLineCount())
}
