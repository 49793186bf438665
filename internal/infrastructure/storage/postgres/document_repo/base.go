// Package document_repo provides the PostgreSQL repositories for the
// document types: orders, shipments, and inventory reversals.
package document_repo

import (
	"context"
	"fmt"
	"sort"

	"github.com/Masterminds/squirrel"

	"fulfillsync/internal/core/apperror"
	"fulfillsync/internal/core/id"
	"fulfillsync/internal/infrastructure/storage/postgres"
)

// BaseDocumentRepo carries the shared persistence plumbing for document
// repositories: header insert, optimistic-locking update, and the
// delete-and-insert line replacement all documents use.
type BaseDocumentRepo struct {
	tm        *postgres.TxManager
	tableName string
}

// NewBaseDocumentRepo creates a base document repository.
func NewBaseDocumentRepo(tm *postgres.TxManager, tableName string) BaseDocumentRepo {
	return BaseDocumentRepo{tm: tm, tableName: tableName}
}

// Builder returns a squirrel builder with Postgres placeholders.
func (r *BaseDocumentRepo) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// Querier returns the active transaction or the pool.
func (r *BaseDocumentRepo) Querier(ctx context.Context) postgres.Querier {
	return r.tm.GetQuerier(ctx)
}

// Insert inserts a document header row.
func (r *BaseDocumentRepo) Insert(ctx context.Context, data map[string]any) error {
	q := r.Builder().
		Insert(r.tableName).
		SetMap(data)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.Querier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert %s: %w", r.tableName, err)
	}
	return nil
}

// UpdateWithVersion updates a header row guarded by optimistic locking.
// version is the version the caller loaded; the row's version and
// updated_at are advanced in SQL so concurrent writers cannot race on
// the in-memory value.
func (r *BaseDocumentRepo) UpdateWithVersion(ctx context.Context, entityID id.ID, version int, data map[string]any) error {
	filtered := make(map[string]any, len(data))
	for col, val := range data {
		switch col {
		case "id", "version", "created_at", "updated_at":
			continue
		}
		filtered[col] = val
	}

	q := r.Builder().
		Update(r.tableName).
		SetMap(filtered).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": entityID}).
		Where(squirrel.Eq{"version": version})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.Querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", r.tableName, err)
	}

	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification(r.tableName, entityID.String())
	}
	return nil
}

// InsertLines inserts line rows in one multi-row statement. All rows
// must carry the same columns.
func (r *BaseDocumentRepo) InsertLines(ctx context.Context, lineTable string, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}

	cols := make([]string, 0, len(rows[0]))
	for col := range rows[0] {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	q := r.Builder().
		Insert(lineTable).
		Columns(cols...)
	for _, row := range rows {
		vals := make([]any, len(cols))
		for i, col := range cols {
			vals[i] = row[col]
		}
		q = q.Values(vals...)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build line insert: %w", err)
	}

	if _, err := r.Querier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert %s: %w", lineTable, err)
	}
	return nil
}

// ReplaceLines replaces all line rows of one document: delete by the
// owning foreign key, then insert the current set. Runs inside the
// caller's transaction.
func (r *BaseDocumentRepo) ReplaceLines(ctx context.Context, lineTable, fkColumn string, fkID id.ID, rows []map[string]any) error {
	dq := r.Builder().
		Delete(lineTable).
		Where(squirrel.Eq{fkColumn: fkID})

	sql, args, err := dq.ToSql()
	if err != nil {
		return fmt.Errorf("build line delete: %w", err)
	}
	if _, err := r.Querier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete %s: %w", lineTable, err)
	}

	return r.InsertLines(ctx, lineTable, rows)
}
