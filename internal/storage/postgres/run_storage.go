package postgres

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/valuescreen/internal/models"
)

const upsertRunSQL = `
INSERT INTO runs (
	run_id, kind, total, updated, skipped, skipped_by_reason, errors, errors_by_cause,
	started_at, finished_at, cancelled
) VALUES (
	:run_id, :kind, :total, :updated, :skipped, CAST(:skipped_by_reason AS JSONB), :errors,
	CAST(:errors_by_cause AS JSONB), :started_at, :finished_at, :cancelled
)
ON CONFLICT (run_id) DO UPDATE SET
	total = EXCLUDED.total,
	updated = EXCLUDED.updated,
	skipped = EXCLUDED.skipped,
	skipped_by_reason = EXCLUDED.skipped_by_reason,
	errors = EXCLUDED.errors,
	errors_by_cause = EXCLUDED.errors_by_cause,
	finished_at = EXCLUDED.finished_at,
	cancelled = EXCLUDED.cancelled`

// RunStorage implements the RunStorage interface for Postgres
type RunStorage struct {
	db     *DB
	logger arbor.ILogger
}

// NewRunStorage creates a new RunStorage instance
func NewRunStorage(db *DB, logger arbor.ILogger) *RunStorage {
	return &RunStorage{
		db:     db,
		logger: logger,
	}
}

// SaveRun stores a run summary keyed by run ID
func (s *RunStorage) SaveRun(ctx context.Context, summary *models.RunSummary) error {
	if summary == nil || summary.RunID == "" {
		return fmt.Errorf("run ID is required")
	}
	row, err := newRunRow(summary)
	if err != nil {
		return err
	}
	if _, err := s.db.Conn().NamedExecContext(ctx, upsertRunSQL, row); err != nil {
		return fmt.Errorf("failed to save run %s: %w", summary.RunID, err)
	}
	return nil
}

// ListRuns returns the most recent summaries first
func (s *RunStorage) ListRuns(ctx context.Context, limit int) ([]models.RunSummary, error) {
	query := `SELECT run_id, kind, total, updated, skipped, skipped_by_reason::text AS skipped_by_reason,
		errors, errors_by_cause::text AS errors_by_cause, started_at, finished_at, cancelled
		FROM runs ORDER BY started_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	var rows []runRow
	if err := s.db.Conn().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	runs := make([]models.RunSummary, 0, len(rows))
	for i := range rows {
		summary, err := rows[i].summary()
		if err != nil {
			return nil, err
		}
		runs = append(runs, summary)
	}
	return runs, nil
}
