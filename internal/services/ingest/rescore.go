package ingest

import (
	"context"
	"fmt"

	"github.com/ternarybob/valuescreen/internal/common"
	"github.com/ternarybob/valuescreen/internal/models"
	"github.com/ternarybob/valuescreen/internal/services/valuation"
)

// Rescore recomputes metrics for every stored, scored record from its stored
// fundamentals and forex rate. No provider calls are made.
func (s *Service) Rescore(ctx context.Context, progress ProgressFunc) (*models.RunSummary, error) {
	runID := common.NewRunID()
	state := newRunState(runID, models.RunKindRescore, s.now().UTC(), progress)

	var records []models.StockRecord
	for offset := 0; ; offset += DefaultRescorePageSize {
		page, err := s.stocks.ListScored(ctx, offset, DefaultRescorePageSize)
		if err != nil {
			s.logger.Error().Err(err).Str("run_id", runID).Msg("Failed to list scored records")
			return nil, &models.SelectionError{Err: err}
		}
		records = append(records, page...)
		if len(page) < DefaultRescorePageSize {
			break
		}
	}
	state.setTotal(len(records))

	s.logger.Info().Str("run_id", runID).Int("total", len(records)).Msg("Starting rescore run")

	cancelled := false
	for i := range records {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		record := &records[i]
		err := common.CatchPanic(func() error {
			return s.rescoreRecord(ctx, record)
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("symbol", record.Symbol).Msg("Rescore failed")
		}
		state.record(record.Symbol, "", err)
	}

	return s.complete(state, cancelled), nil
}

func (s *Service) rescoreRecord(ctx context.Context, record *models.StockRecord) error {
	if !record.IsScoreable() {
		return fmt.Errorf("record %s has no valid price or market cap", record.Symbol)
	}

	rate := record.ForexRate
	if rate <= 0 {
		rate = 1
	}
	record.ApplyMetrics(valuation.Score(record.Price, record.Fundamentals, rate))

	if err := s.stocks.Upsert(ctx, record); err != nil {
		return &models.PersistenceError{Symbol: record.Symbol, Err: err}
	}
	return nil
}
