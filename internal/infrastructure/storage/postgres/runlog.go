package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	"fulfillsync/internal/core/apperror"
	"fulfillsync/internal/core/id"
	"fulfillsync/internal/pipeline"
)

const runTable = "pipeline_runs"

// compressionAlgo names the compression applied to the error detail.
type compressionAlgo string

const (
	compressionNone compressionAlgo = "none"
	compressionZstd compressionAlgo = "zstd"
)

// errorDetailCompressThreshold is the raw-payload size above which the
// error detail is stored zstd-compressed instead of as plain jsonb.
const errorDetailCompressThreshold = 10 * 1024

// Compile-time check.
var _ pipeline.RunStore = (*RunStore)(nil)

// RunStore persists pipeline run records. Error details for large runs
// are zstd-compressed; the counters always stay queryable as columns.
type RunStore struct {
	tm      *TxManager
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewRunStore creates a run store.
func NewRunStore(tm *TxManager) (*RunStore, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &RunStore{tm: tm, encoder: encoder, decoder: decoder}, nil
}

// runRow is the flat scan target for a run record.
type runRow struct {
	ID             id.ID     `db:"id"`
	SeedSearchCode string    `db:"seed_search_code"`
	StartedAt      time.Time `db:"started_at"`
	FinishedAt     time.Time `db:"finished_at"`

	OrdersSeen       int `db:"orders_seen"`
	ShipmentsCreated int `db:"shipments_created"`
	ReversalsCreated int `db:"reversals_created"`

	SkippedLines      int `db:"skipped_lines"`
	UnmatchedLines    int `db:"unmatched_lines"`
	EmptyShipments    int `db:"empty_shipments"`
	AddressFailures   int `db:"address_failures"`
	OrderSaveFailures int `db:"order_save_failures"`
	OtherFailures     int `db:"other_failures"`
	TotalFailures     int `db:"total_failures"`

	ErrorDetail      []byte          `db:"error_detail_compressed"`
	ErrorDetailPlain json.RawMessage `db:"error_detail"`
	ErrorDetailComp  compressionAlgo `db:"compression_algo"`
}

func (row *runRow) toRun() *pipeline.Run {
	return &pipeline.Run{
		ID:               row.ID,
		SeedSearchCode:   row.SeedSearchCode,
		StartedAt:        row.StartedAt,
		FinishedAt:       row.FinishedAt,
		OrdersSeen:       row.OrdersSeen,
		ShipmentsCreated: row.ShipmentsCreated,
		ReversalsCreated: row.ReversalsCreated,
		Summary: pipeline.Summary{
			SkippedLines:      row.SkippedLines,
			UnmatchedLines:    row.UnmatchedLines,
			EmptyShipments:    row.EmptyShipments,
			AddressFailures:   row.AddressFailures,
			OrderSaveFailures: row.OrderSaveFailures,
			Other:             row.OtherFailures,
			Total:             row.TotalFailures,
		},
	}
}

var runListCols = []string{
	"id", "seed_search_code", "started_at", "finished_at",
	"orders_seen", "shipments_created", "reversals_created",
	"skipped_lines", "unmatched_lines", "empty_shipments",
	"address_failures", "order_save_failures", "other_failures",
	"total_failures",
}

// SaveRun persists one run record with its error entries.
func (s *RunStore) SaveRun(ctx context.Context, run *pipeline.Run, entries []pipeline.Entry) error {
	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode error detail: %w", err)
	}

	data := map[string]any{
		"id":                  run.ID,
		"seed_search_code":    run.SeedSearchCode,
		"started_at":          run.StartedAt,
		"finished_at":         run.FinishedAt,
		"orders_seen":         run.OrdersSeen,
		"shipments_created":   run.ShipmentsCreated,
		"reversals_created":   run.ReversalsCreated,
		"skipped_lines":       run.Summary.SkippedLines,
		"unmatched_lines":     run.Summary.UnmatchedLines,
		"empty_shipments":     run.Summary.EmptyShipments,
		"address_failures":    run.Summary.AddressFailures,
		"order_save_failures": run.Summary.OrderSaveFailures,
		"other_failures":      run.Summary.Other,
		"total_failures":      run.Summary.Total,
	}

	if len(payload) > errorDetailCompressThreshold {
		data["error_detail"] = nil
		data["error_detail_compressed"] = s.encoder.EncodeAll(payload, nil)
		data["compression_algo"] = compressionZstd
	} else {
		data["error_detail"] = json.RawMessage(payload)
		data["error_detail_compressed"] = nil
		data["compression_algo"] = compressionNone
	}

	q := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Insert(runTable).
		SetMap(data)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := s.tm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert run record: %w", err)
	}
	return nil
}

// ListRuns returns the most recent run records, newest first, without
// their error details.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]*pipeline.Run, error) {
	if limit <= 0 {
		limit = 50
	}

	q := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select(runListCols...).
		From(runTable).
		OrderBy("started_at DESC").
		Limit(uint64(limit))

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []runRow
	if err := pgxscan.Select(ctx, s.tm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	runs := make([]*pipeline.Run, 0, len(rows))
	for i := range rows {
		runs = append(runs, rows[i].toRun())
	}
	return runs, nil
}

// GetRun returns one run record with its decoded error entries.
func (s *RunStore) GetRun(ctx context.Context, runID id.ID) (*pipeline.Run, []pipeline.Entry, error) {
	cols := append([]string{}, runListCols...)
	cols = append(cols, "error_detail", "error_detail_compressed", "compression_algo")

	q := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select(cols...).
		From(runTable).
		Where(squirrel.Eq{"id": runID})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, nil, fmt.Errorf("build query: %w", err)
	}

	var row runRow
	if err := pgxscan.Get(ctx, s.tm.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil, apperror.NewNotFound("run", runID.String())
		}
		return nil, nil, fmt.Errorf("get run: %w", err)
	}

	payload := []byte(row.ErrorDetailPlain)
	if row.ErrorDetailComp == compressionZstd {
		payload, err = s.decoder.DecodeAll(row.ErrorDetail, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("decompress error detail: %w", err)
		}
	}

	var entries []pipeline.Entry
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &entries); err != nil {
			return nil, nil, fmt.Errorf("decode error detail: %w", err)
		}
	}

	return row.toRun(), entries, nil
}
