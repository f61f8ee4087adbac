package ingest

import (
	"context"
	"fmt"

	"github.com/ternarybob/valuescreen/internal/common"
	"github.com/ternarybob/valuescreen/internal/finnhub"
	"github.com/ternarybob/valuescreen/internal/models"
	"github.com/ternarybob/valuescreen/internal/services/currency"
	"github.com/ternarybob/valuescreen/internal/services/valuation"
	"golang.org/x/sync/errgroup"
)

// snapshot is everything fetched from the provider for one identifier
type snapshot struct {
	quote   *finnhub.Quote
	profile *finnhub.Profile
	metrics *finnhub.MetricResponse
}

// fetch retrieves quote, profile and metrics concurrently. The first failure
// cancels the other requests.
func (s *Service) fetch(ctx context.Context, symbol string) (*snapshot, error) {
	snap := &snapshot{}
	g, gctx := errgroup.WithContext(ctx)

	// Panics in the fetch goroutines are returned as errors.
	g.Go(func() error {
		return common.CatchPanic(func() (err error) {
			snap.quote, err = s.provider.GetQuote(gctx, symbol)
			return err
		})
	})
	g.Go(func() error {
		return common.CatchPanic(func() (err error) {
			snap.profile, err = s.provider.GetProfile(gctx, symbol)
			return err
		})
	})
	g.Go(func() error {
		return common.CatchPanic(func() (err error) {
			snap.metrics, err = s.provider.GetFundamentals(gctx, symbol)
			return err
		})
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if snap.quote == nil || snap.profile == nil {
		return nil, &models.ProviderError{Op: finnhub.OpQuote, Symbol: symbol, Err: fmt.Errorf("empty provider response")}
	}
	return snap, nil
}

// processSymbol fetches, classifies, scores and persists one identifier.
// A non-empty skip reason means a skip record was persisted.
func (s *Service) processSymbol(ctx context.Context, normalizer *currency.Normalizer, opts Options, symbol string) (models.SkipReason, error) {
	snap, err := s.fetch(ctx, symbol)
	if err != nil {
		return "", err
	}
	now := s.now().UTC()

	price := snap.quote.Current
	if price <= 0 {
		return s.skip(ctx, models.NewSkippedRecord(symbol, models.SkipNoPriceData, snap.profile.Currency, 0, now))
	}

	marketCap := snap.profile.MarketCap()
	if marketCap <= 0 {
		marketCap = snap.metrics.MarketCap()
	}
	if marketCap <= 0 {
		return s.skip(ctx, models.NewSkippedRecord(symbol, models.SkipInvalidMarketCap, snap.profile.Currency, price, now))
	}

	conv, err := normalizer.Normalize(ctx, price, marketCap, snap.profile.Currency, opts.ReportingCurrency)
	if err != nil {
		return "", err
	}

	record := &models.StockRecord{
		Symbol:      symbol,
		Name:        snap.profile.Name,
		Exchange:    snap.profile.Exchange,
		Industry:    snap.profile.Industry,
		LastUpdated: now,
	}
	record.ApplyConversion(conv)

	if conv.MarketCap < opts.MarketCapFloor {
		record.SkipReason = models.SkipMarketCapTooSmall
		return s.skip(ctx, record)
	}

	var fundamentals models.Fundamentals
	if snap.metrics != nil {
		fundamentals = snap.metrics.Fundamentals()
	}
	record.Fundamentals = fundamentals
	record.ApplyMetrics(valuation.Score(conv.Price, fundamentals, conv.Rate))

	if err := s.stocks.Upsert(ctx, record); err != nil {
		return "", &models.PersistenceError{Symbol: symbol, Err: err}
	}

	s.logger.Debug().
		Str("symbol", symbol).
		Float64("price", record.Price).
		Float64("margin_of_safety", record.MarginOfSafety).
		Str("verdict", string(record.Metrics.Verdict)).
		Msg("Identifier updated")

	return "", nil
}

// skip persists a skip record so the identifier is not re-selected until it
// goes stale again
func (s *Service) skip(ctx context.Context, record *models.StockRecord) (models.SkipReason, error) {
	if err := s.stocks.Upsert(ctx, record); err != nil {
		return "", &models.PersistenceError{Symbol: record.Symbol, Err: err}
	}
	s.logger.Debug().
		Str("symbol", record.Symbol).
		Str("reason", string(record.SkipReason)).
		Msg("Identifier skipped")
	return record.SkipReason, nil
}
