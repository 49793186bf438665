// Package catalog_repo provides the PostgreSQL repositories for
// reference data catalogs.
package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"fulfillsync/internal/core/apperror"
	"fulfillsync/internal/core/id"
	"fulfillsync/internal/domain/location"
	"fulfillsync/internal/infrastructure/storage/postgres"
)

const locationTable = "locations"

// Compile-time check.
var _ location.Repository = (*LocationRepo)(nil)

// LocationRepo is the PostgreSQL location directory.
type LocationRepo struct {
	tm   *postgres.TxManager
	cols []string
}

// NewLocationRepo creates a location repository.
func NewLocationRepo(tm *postgres.TxManager) *LocationRepo {
	return &LocationRepo{
		tm:   tm,
		cols: postgres.ExtractDBColumns[location.Location](),
	}
}

// GetByID retrieves a location by ID. Soft-deleted locations are not
// returned; a reversal must not be addressed to a retired location.
func (r *LocationRepo) GetByID(ctx context.Context, locationID id.ID) (*location.Location, error) {
	q := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select(r.cols...).
		From(locationTable).
		Where(squirrel.Eq{"id": locationID}).
		Where(squirrel.Eq{"deletion_mark": false})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	loc := &location.Location{}
	if err := pgxscan.Get(ctx, r.tm.GetQuerier(ctx), loc, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("location", locationID.String())
		}
		return nil, fmt.Errorf("get location: %w", err)
	}

	return loc, nil
}
