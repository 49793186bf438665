package pipeline

import (
	"context"
	"strings"

	"fulfillsync/pkg/logger"
)

// Summary is the classified error breakdown for one run.
type Summary struct {
	SkippedLines      int `json:"skippedLines" db:"skipped_lines"`
	UnmatchedLines    int `json:"unmatchedLines" db:"unmatched_lines"`
	EmptyShipments    int `json:"emptyShipments" db:"empty_shipments"`
	AddressFailures   int `json:"addressFailures" db:"address_failures"`
	OrderSaveFailures int `json:"orderSaveFailures" db:"order_save_failures"`
	Other             int `json:"other" db:"other_failures"`
	Total             int `json:"total" db:"total_failures"`
}

// AuditStage classifies the run's error entries into a summary. It is
// purely observational: whatever happens here, the run's outcome stands.
type AuditStage struct{}

// NewAuditStage creates an audit stage.
func NewAuditStage() *AuditStage {
	return &AuditStage{}
}

// Summarize classifies all entries by message text and logs the totals.
// A panic during classification is swallowed: the counts gathered so far
// are returned and the run is not failed over its own bookkeeping.
func (a *AuditStage) Summarize(ctx context.Context, entries []Entry) Summary {
	var sum Summary

	func() {
		defer func() {
			if p := recover(); p != nil {
				logger.Error(ctx, "audit classification failed", "panic", p)
			}
		}()
		for _, e := range entries {
			sum.Total++
			counter := classify(&sum, e.Message)
			*counter++
		}
	}()

	logger.Info(ctx, "run audit summary",
		"total", sum.Total,
		"skipped_lines", sum.SkippedLines,
		"unmatched_lines", sum.UnmatchedLines,
		"empty_shipments", sum.EmptyShipments,
		"address_failures", sum.AddressFailures,
		"order_save_failures", sum.OrderSaveFailures,
		"other", sum.Other)

	return sum
}

// classify picks the summary counter for a message. Ordering matters:
// "order save" must win over "address" because backfill failures mention
// both concerns.
func classify(sum *Summary, msg string) *int {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "skipped"):
		return &sum.SkippedLines
	case strings.Contains(m, "unmatched"):
		return &sum.UnmatchedLines
	case strings.Contains(m, "no valid lines"):
		return &sum.EmptyShipments
	case strings.Contains(m, "order save"):
		return &sum.OrderSaveFailures
	case strings.Contains(m, "address"):
		return &sum.AddressFailures
	default:
		return &sum.Other
	}
}
