package order

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fulfillsync/internal/core/id"
	"fulfillsync/internal/core/types"
)

func TestAddLineNumbersSequentially(t *testing.T) {
	ord := New("web")
	l1 := ord.AddLine(id.New(), types.NewQuantity(1), types.MustMoney("5.00"))
	l2 := ord.AddLine(id.New(), types.NewQuantity(2), types.MustMoney("7.50"))

	assert.Equal(t, 1, l1.LineNo)
	assert.Equal(t, 2, l2.LineNo)
	require.Len(t, ord.Lines, 2)

	// AddLine returns a pointer into the slice, so edits stick.
	l2.Fulfilled = true
	assert.True(t, ord.Lines[1].Fulfilled)
}

func TestLineByNo(t *testing.T) {
	ord := New("web")
	ord.AddLine(id.New(), types.NewQuantity(1), types.MustMoney("5.00"))
	ord.AddLine(id.New(), types.NewQuantity(1), types.MustMoney("5.00"))

	require.NotNil(t, ord.LineByNo(2))
	assert.Equal(t, 2, ord.LineByNo(2).LineNo)
	assert.Nil(t, ord.LineByNo(99))
}

func TestValidateRejectsDuplicateLineNumbers(t *testing.T) {
	ord := New("web")
	ord.AddLine(id.New(), types.NewQuantity(1), types.MustMoney("5.00"))
	ord.Lines = append(ord.Lines, Line{LineNo: 1, ItemID: id.New()})

	err := ord.Validate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate line number")
}

func TestValidateAcceptsWellFormedOrder(t *testing.T) {
	ord := New("web")
	ord.AddLine(id.New(), types.NewQuantity(1), types.MustMoney("5.00"))

	assert.NoError(t, ord.Validate(context.Background()))
}

func TestHasTaxBuckets(t *testing.T) {
	var line Line
	assert.False(t, line.HasTaxBuckets())

	line.TaxBucket1 = "5.00"
	assert.True(t, line.HasTaxBuckets())

	line = Line{TaxBucket2: "0.00"}
	assert.True(t, line.HasTaxBuckets())
}
