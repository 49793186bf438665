package reversal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fulfillsync/internal/core/apperror"
	"fulfillsync/internal/core/id"
	"fulfillsync/internal/core/types"
)

func TestValidateRequiresAccount(t *testing.T) {
	rev := New(id.New(), id.ID{}, id.New(), time.Now().UTC())
	rev.AddLine(id.New(), id.New(), types.NewQuantity(1))

	err := rev.Validate(context.Background())
	require.Error(t, err)
	assert.True(t, apperror.IsConfig(err))
}

func TestValidateRequiresLines(t *testing.T) {
	rev := New(id.New(), id.New(), id.New(), time.Now().UTC())

	err := rev.Validate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "adjustment line")

	rev.AddLine(id.New(), id.New(), types.NewQuantity(1))
	assert.NoError(t, rev.Validate(context.Background()))
}

func TestAddLineNumbersSequentially(t *testing.T) {
	rev := New(id.New(), id.New(), id.New(), time.Now().UTC())
	rev.AddLine(id.New(), id.New(), types.NewQuantity(2))
	rev.AddLine(id.New(), id.New(), types.NewQuantity(3))

	require.Len(t, rev.Lines, 2)
	assert.Equal(t, 1, rev.Lines[0].LineNo)
	assert.Equal(t, 2, rev.Lines[1].LineNo)
}
