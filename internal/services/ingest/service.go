// Package ingest drives the ingestion run: it selects stale identifiers,
// fetches and normalizes their data, scores them and persists the result.
package ingest

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/valuescreen/internal/common"
	"github.com/ternarybob/valuescreen/internal/finnhub"
	"github.com/ternarybob/valuescreen/internal/interfaces"
	"github.com/ternarybob/valuescreen/internal/models"
	"github.com/ternarybob/valuescreen/internal/services/currency"
	"golang.org/x/sync/errgroup"
)

// Provider is the subset of the market data client used by a run.
// *finnhub.Client satisfies it.
type Provider interface {
	GetQuote(ctx context.Context, symbol string) (*finnhub.Quote, error)
	GetProfile(ctx context.Context, symbol string) (*finnhub.Profile, error)
	GetFundamentals(ctx context.Context, symbol string) (*finnhub.MetricResponse, error)
	GetExchangeRate(ctx context.Context, from, to string) (float64, error)
}

// Service runs ingestion and rescoring jobs.
type Service struct {
	provider Provider
	stocks   interfaces.StockStorage
	runs     interfaces.RunStorage
	logger   arbor.ILogger
	now      func() time.Time

	randMu sync.Mutex
	rand   *rand.Rand
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithRand sets the source used to shuffle identifiers.
func WithRand(r *rand.Rand) ServiceOption {
	return func(s *Service) {
		s.rand = r
	}
}

// WithClock sets the clock used for timestamps.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new ingestion service.
func NewService(provider Provider, stocks interfaces.StockStorage, runs interfaces.RunStorage, logger arbor.ILogger, opts ...ServiceOption) *Service {
	s := &Service{
		provider: provider,
		stocks:   stocks,
		runs:     runs,
		logger:   logger,
		now:      time.Now,
		rand:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run ingests every stale identifier. It returns an error only when the
// candidate set cannot be selected; per-identifier failures are counted in
// the summary. Cancelling ctx stops new identifiers from starting.
func (s *Service) Run(ctx context.Context, opts Options, progress ProgressFunc) (*models.RunSummary, error) {
	opts = opts.withDefaults()
	runID := common.NewRunID()
	state := newRunState(runID, models.RunKindIngest, s.now().UTC(), progress)

	symbols, err := s.stocks.ListStale(ctx, opts.StaleAfter)
	if err != nil {
		s.logger.Error().Err(err).Str("run_id", runID).Msg("Failed to select stale identifiers")
		return nil, &models.SelectionError{Err: err}
	}
	if opts.Shuffle {
		s.shuffle(symbols)
	}
	state.setTotal(len(symbols))

	s.logger.Info().
		Str("run_id", runID).
		Int("total", len(symbols)).
		Int("batch_size", opts.BatchSize).
		Int("concurrency", opts.Concurrency).
		Dur("stale_after", opts.StaleAfter).
		Msg("Starting ingestion run")

	// One normalizer per run so each currency pair is fetched once.
	normalizer := currency.NewNormalizer(s.provider, s.logger)

	cancelled := false
	for start := 0; start < len(symbols) && !cancelled; start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(symbols))
		cancelled = s.runBatch(ctx, symbols[start:end], func(idCtx context.Context, symbol string) (models.SkipReason, error) {
			return s.processSymbol(idCtx, normalizer, opts, symbol)
		}, opts, state)

		s.logger.Debug().
			Str("run_id", runID).
			Int("batch_start", start).
			Int("batch_end", end).
			Msg("Batch complete")
	}

	return s.complete(state, cancelled), nil
}

// runBatch processes one batch with bounded concurrency and reports whether
// the run was cancelled before every identifier started.
func (s *Service) runBatch(ctx context.Context, batch []string, process func(context.Context, string) (models.SkipReason, error), opts Options, state *runState) bool {
	g := new(errgroup.Group)
	g.SetLimit(opts.Concurrency)

	cancelled := false
	for _, symbol := range batch {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		// g.Go blocks while the batch is at its limit, so cancellation is
		// checked again once a slot is free.
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			s.processOne(ctx, symbol, opts.IdentifierTimeout, process, state)
			return nil
		})
	}
	g.Wait()

	return cancelled || ctx.Err() != nil
}

// processOne runs process under its own timeout, detached from run
// cancellation so in-flight identifiers finish, and records the outcome.
func (s *Service) processOne(ctx context.Context, symbol string, timeout time.Duration, process func(context.Context, string) (models.SkipReason, error), state *runState) {
	idCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	var skip models.SkipReason
	err := common.CatchPanic(func() error {
		var err error
		skip, err = process(idCtx, symbol)
		return err
	})

	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("symbol", symbol).
			Str("cause", models.OutcomeReason(err)).
			Msg("Identifier failed")
	}
	state.record(symbol, skip, err)
}

// complete emits the final event and persists the summary. A persistence
// failure here is logged only.
func (s *Service) complete(state *runState, cancelled bool) *models.RunSummary {
	summary := state.finish(s.now().UTC(), cancelled)

	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.runs.SaveRun(saveCtx, summary); err != nil {
		s.logger.Warn().Err(err).Str("run_id", summary.RunID).Msg("Failed to save run summary")
	}

	s.logger.Info().
		Str("run_id", summary.RunID).
		Str("kind", string(summary.Kind)).
		Int("total", summary.Total).
		Int("updated", summary.Updated).
		Int("skipped", summary.Skipped).
		Int("errors", summary.Errors).
		Bool("cancelled", summary.Cancelled).
		Dur("duration", summary.Duration()).
		Msg("Run finished")

	return summary
}

func (s *Service) shuffle(symbols []string) {
	s.randMu.Lock()
	defer s.randMu.Unlock()
	s.rand.Shuffle(len(symbols), func(i, j int) {
		symbols[i], symbols[j] = symbols[j], symbols[i]
	})
}
