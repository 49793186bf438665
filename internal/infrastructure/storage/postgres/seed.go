package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"fulfillsync/internal/core/apperror"
	"fulfillsync/internal/core/id"
	"fulfillsync/pkg/logger"
)

const seedSearchTable = "sys_seed_searches"

// SeedStore resolves named seed searches: stored SELECT statements that
// yield the candidate order ids for a pipeline run. Operations maintain
// the statements; the worker only ever runs them by code.
type SeedStore struct {
	tm *TxManager
}

// NewSeedStore creates a seed store.
func NewSeedStore(tm *TxManager) *SeedStore {
	return &SeedStore{tm: tm}
}

// CandidateOrders runs the seed search registered under code and returns
// the order ids it yields. An unknown code is a configuration error;
// callers treat it as fatal to the run.
func (s *SeedStore) CandidateOrders(ctx context.Context, code string) ([]id.ID, error) {
	q := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select("query").
		From(seedSearchTable).
		Where(squirrel.Eq{"code": code}).
		Where(squirrel.Eq{"deletion_mark": false})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	querier := s.tm.GetQuerier(ctx)

	var query string
	if err := querier.QueryRow(ctx, sql, args...).Scan(&query); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NewConfig("seed search is not defined").
				WithDetail("code", code)
		}
		return nil, fmt.Errorf("load seed search %q: %w", code, err)
	}

	var ids []id.ID
	if err := pgxscan.Select(ctx, querier, &ids, query); err != nil {
		return nil, fmt.Errorf("run seed search %q: %w", code, err)
	}

	logger.Debug(ctx, "seed search resolved", "code", code, "orders", len(ids))
	return ids, nil
}
