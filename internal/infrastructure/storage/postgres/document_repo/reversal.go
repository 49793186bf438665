package document_repo

import (
	"context"

	"fulfillsync/internal/domain/reversal"
	"fulfillsync/internal/infrastructure/storage/postgres"
)

const (
	reversalTable     = "inventory_reversals"
	reversalLineTable = "inventory_reversal_lines"
)

// Compile-time check.
var _ reversal.Repository = (*ReversalRepo)(nil)

// ReversalRepo is the PostgreSQL inventory reversal repository.
// Reversals are write-once: created with their lines, never updated.
type ReversalRepo struct {
	BaseDocumentRepo
}

// NewReversalRepo creates a reversal repository.
func NewReversalRepo(tm *postgres.TxManager) *ReversalRepo {
	return &ReversalRepo{
		BaseDocumentRepo: NewBaseDocumentRepo(tm, reversalTable),
	}
}

// Create persists a new reversal with its lines in one transaction.
func (r *ReversalRepo) Create(ctx context.Context, rev *reversal.Reversal) error {
	if err := rev.Validate(ctx); err != nil {
		return err
	}

	return r.tm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := r.Insert(ctx, postgres.StructToMap(rev)); err != nil {
			return err
		}

		rows := make([]map[string]any, 0, len(rev.Lines))
		for i := range rev.Lines {
			row := postgres.StructToMap(&rev.Lines[i])
			row["reversal_id"] = rev.ID
			rows = append(rows, row)
		}
		return r.InsertLines(ctx, reversalLineTable, rows)
	})
}
