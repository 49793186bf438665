package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fulfillsync/internal/core/entity"
)

type sampleDoc struct {
	entity.BaseDocument

	Number   string  `db:"number" json:"number"`
	Migrated bool    `db:"migrated" json:"migrated"`
	Memo     *string `db:"memo" json:"memo"`

	Untagged string
	Ignored  string `db:"-"`
}

func TestExtractDBColumns(t *testing.T) {
	cols := ExtractDBColumns[sampleDoc]()

	assert.Contains(t, cols, "id")
	assert.Contains(t, cols, "version")
	assert.Contains(t, cols, "created_at")
	assert.Contains(t, cols, "updated_at")
	assert.Contains(t, cols, "number")
	assert.Contains(t, cols, "migrated")
	assert.Contains(t, cols, "memo")

	assert.NotContains(t, cols, "Untagged")
	assert.NotContains(t, cols, "-")
}

func TestStructToMapFlattensEmbedded(t *testing.T) {
	doc := sampleDoc{
		BaseDocument: entity.NewBaseDocument(),
		Number:       "SO-100",
		Migrated:     true,
	}

	m := StructToMap(&doc)
	require.NotNil(t, m)

	assert.Equal(t, doc.ID, m["id"])
	assert.Equal(t, doc.Version, m["version"])
	assert.Equal(t, "SO-100", m["number"])
	assert.Equal(t, true, m["migrated"])

	_, hasUntagged := m["Untagged"]
	assert.False(t, hasUntagged)
	_, hasIgnored := m["-"]
	assert.False(t, hasIgnored)
}

func TestStructToMapNilPointerField(t *testing.T) {
	doc := sampleDoc{BaseDocument: entity.NewBaseDocument()}

	m := StructToMap(&doc)
	require.Contains(t, m, "memo")
	assert.Equal(t, (*string)(nil), m["memo"])
}

func TestStructToMapNonStruct(t *testing.T) {
	assert.Nil(t, StructToMap(42))
	assert.Nil(t, StructToMap("nope"))
}

func TestStructToMapCachedAcrossCalls(t *testing.T) {
	first := StructToMap(&sampleDoc{BaseDocument: entity.NewBaseDocument(), Number: "A"})
	second := StructToMap(&sampleDoc{BaseDocument: entity.NewBaseDocument(), Number: "B"})

	assert.Equal(t, "A", first["number"])
	assert.Equal(t, "B", second["number"])
	assert.Equal(t, len(first), len(second))
}

func TestStructToMapTimeFields(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	doc := sampleDoc{BaseDocument: entity.NewBaseDocument()}
	doc.CreatedAt = now
	doc.UpdatedAt = now

	m := StructToMap(&doc)
	assert.Equal(t, now, m["created_at"])
	assert.Equal(t, now, m["updated_at"])
}
