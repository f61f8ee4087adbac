package postgres

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/valuescreen/internal/models"
)

// stockRow adds the JSONB columns that StockRecord keeps out of its db mapping
type stockRow struct {
	models.StockRecord
	FundamentalsJSON string `db:"fundamentals"`
	MetricsJSON      string `db:"metrics"`
}

func newStockRow(record *models.StockRecord) (*stockRow, error) {
	fundamentals, err := json.Marshal(record.Fundamentals)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fundamentals: %w", err)
	}
	metrics, err := json.Marshal(record.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metrics: %w", err)
	}
	return &stockRow{
		StockRecord:      *record,
		FundamentalsJSON: string(fundamentals),
		MetricsJSON:      string(metrics),
	}, nil
}

func (r *stockRow) record() (models.StockRecord, error) {
	record := r.StockRecord
	if err := decodeJSON(r.FundamentalsJSON, &record.Fundamentals); err != nil {
		return record, fmt.Errorf("failed to decode fundamentals for %s: %w", record.Symbol, err)
	}
	if err := decodeJSON(r.MetricsJSON, &record.Metrics); err != nil {
		return record, fmt.Errorf("failed to decode metrics for %s: %w", record.Symbol, err)
	}
	record.LastUpdated = record.LastUpdated.UTC()
	return record, nil
}

func stockRecords(rows []stockRow) ([]models.StockRecord, error) {
	records := make([]models.StockRecord, 0, len(rows))
	for i := range rows {
		record, err := rows[i].record()
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// runRow carries the per-reason and per-cause maps as JSONB
type runRow struct {
	models.RunSummary
	SkippedByReasonJSON string `db:"skipped_by_reason"`
	ErrorsByCauseJSON   string `db:"errors_by_cause"`
}

func newRunRow(summary *models.RunSummary) (*runRow, error) {
	skipped, err := json.Marshal(orEmpty(summary.SkippedByReason))
	if err != nil {
		return nil, fmt.Errorf("failed to encode skip counts: %w", err)
	}
	causes, err := json.Marshal(orEmpty(summary.ErrorsByCause))
	if err != nil {
		return nil, fmt.Errorf("failed to encode error counts: %w", err)
	}
	return &runRow{
		RunSummary:          *summary,
		SkippedByReasonJSON: string(skipped),
		ErrorsByCauseJSON:   string(causes),
	}, nil
}

func (r *runRow) summary() (models.RunSummary, error) {
	summary := r.RunSummary
	if err := decodeJSON(r.SkippedByReasonJSON, &summary.SkippedByReason); err != nil {
		return summary, fmt.Errorf("failed to decode skip counts for %s: %w", summary.RunID, err)
	}
	if err := decodeJSON(r.ErrorsByCauseJSON, &summary.ErrorsByCause); err != nil {
		return summary, fmt.Errorf("failed to decode error counts for %s: %w", summary.RunID, err)
	}
	return summary, nil
}

func orEmpty[K comparable](m map[K]int) map[K]int {
	if m == nil {
		return map[K]int{}
	}
	return m
}

func decodeJSON(raw string, target interface{}) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), target)
}
