package ingest

import (
	"context"
	"errors"
	"math/rand/v2"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/valuescreen/internal/common"
	"github.com/ternarybob/valuescreen/internal/finnhub"
	"github.com/ternarybob/valuescreen/internal/interfaces"
	"github.com/ternarybob/valuescreen/internal/models"
)

// fixture is the provider response for one symbol
type fixture struct {
	quote    float64
	currency string
	capM     float64 // profile market cap in millions
	metric   map[string]interface{}
	err      error
	panics   bool
	block    bool
}

type mockProvider struct {
	mu        sync.Mutex
	fixtures  map[string]fixture
	rates     map[string]float64
	rateErr   error
	rateCalls int
	calls     int
}

func (p *mockProvider) get(ctx context.Context, symbol string) (fixture, error) {
	p.mu.Lock()
	p.calls++
	fx, ok := p.fixtures[symbol]
	p.mu.Unlock()

	if !ok {
		return fx, &models.ProviderError{Op: finnhub.OpQuote, Symbol: symbol, StatusCode: 404, Err: errors.New("unknown symbol")}
	}
	if fx.panics {
		panic("provider exploded")
	}
	if fx.block {
		<-ctx.Done()
		return fx, &models.ProviderError{Op: finnhub.OpQuote, Symbol: symbol, Err: ctx.Err()}
	}
	return fx, fx.err
}

func (p *mockProvider) GetQuote(ctx context.Context, symbol string) (*finnhub.Quote, error) {
	fx, err := p.get(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return &finnhub.Quote{Current: fx.quote}, nil
}

func (p *mockProvider) GetProfile(ctx context.Context, symbol string) (*finnhub.Profile, error) {
	fx, err := p.get(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return &finnhub.Profile{Ticker: symbol, Name: symbol + " Inc", Currency: fx.currency, MarketCapitalization: fx.capM}, nil
}

func (p *mockProvider) GetFundamentals(ctx context.Context, symbol string) (*finnhub.MetricResponse, error) {
	fx, err := p.get(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return &finnhub.MetricResponse{Symbol: symbol, Metric: fx.metric}, nil
}

func (p *mockProvider) GetExchangeRate(ctx context.Context, from, to string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rateCalls++
	if p.rateErr != nil {
		return 0, p.rateErr
	}
	return p.rates[from+to], nil
}

// mockStorage is an in-memory StockStorage and RunStorage
type mockStorage struct {
	mu        sync.Mutex
	universe  []string
	records   map[string]models.StockRecord
	runs      []models.RunSummary
	listErr   error
	failWrite map[string]bool
	now       func() time.Time
}

func newMockStorage(universe ...string) *mockStorage {
	return &mockStorage{
		universe:  universe,
		records:   make(map[string]models.StockRecord),
		failWrite: make(map[string]bool),
		now:       time.Now,
	}
}

func (m *mockStorage) ListStale(ctx context.Context, threshold time.Duration) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var stale []string
	for _, symbol := range m.universe {
		if common.CheckStaleness(m.records[symbol].LastUpdated, m.now(), threshold).IsStale {
			stale = append(stale, symbol)
		}
	}
	return stale, nil
}

func (m *mockStorage) Upsert(ctx context.Context, record *models.StockRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite[record.Symbol] {
		return errors.New("disk full")
	}
	m.records[record.Symbol] = *record
	return nil
}

func (m *mockStorage) Get(ctx context.Context, symbol string) (*models.StockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[symbol]
	if !ok {
		return nil, interfaces.ErrStockNotFound
	}
	return &r, nil
}

func (m *mockStorage) QueryByMinMarginOfSafety(ctx context.Context, threshold float64) ([]models.StockRecord, error) {
	return nil, nil
}

func (m *mockStorage) ListScored(ctx context.Context, offset, limit int) ([]models.StockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var scored []models.StockRecord
	for _, r := range m.records {
		if !r.IsSkipped() {
			scored = append(scored, r)
		}
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Symbol < scored[j].Symbol })
	if offset >= len(scored) {
		return nil, nil
	}
	end := min(offset+limit, len(scored))
	return scored[offset:end], nil
}

func (m *mockStorage) SaveRun(ctx context.Context, summary *models.RunSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, *summary)
	return nil
}

func (m *mockStorage) ListRuns(ctx context.Context, limit int) ([]models.RunSummary, error) {
	return m.runs, nil
}

func (m *mockStorage) record(symbol string) (models.StockRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[symbol]
	return r, ok
}

type eventSink struct {
	mu     sync.Mutex
	events []models.ProgressEvent
}

func (s *eventSink) add(e models.ProgressEvent) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func testOptions() Options {
	return Options{
		StaleAfter:        12 * time.Hour,
		MarketCapFloor:    100_000_000,
		BatchSize:         2,
		Concurrency:       2,
		IdentifierTimeout: 5 * time.Second,
		Shuffle:           true,
	}
}

func newTestService(provider *mockProvider, store *mockStorage) *Service {
	return NewService(provider, store, store, arbor.NewLogger(), WithRand(rand.New(rand.NewPCG(1, 2))))
}

func standardProvider() *mockProvider {
	return &mockProvider{
		fixtures: map[string]fixture{
			"GOOD":    {quote: 100, currency: "USD", capM: 2000, metric: map[string]interface{}{"epsTTM": 5.0, "bookValuePerShareAnnual": 40.0}},
			"NOPRICE": {quote: 0, currency: "USD", capM: 2000},
			"NOCAP":   {quote: 12, currency: "USD", capM: 0},
			"TINY":    {quote: 3, currency: "USD", capM: 50},
			"TOYOTA":  {quote: 2500, currency: "JPY", capM: 3_200_000, metric: map[string]interface{}{"epsTTM": 300.0}},
			"SONY":    {quote: 13000, currency: "JPY", capM: 16_000_000},
		},
		rates: map[string]float64{"JPYUSD": 0.0067},
	}
}

func TestRun_ClassifiesEveryOutcome(t *testing.T) {
	provider := standardProvider()
	store := newMockStorage("GOOD", "NOPRICE", "NOCAP", "TINY", "TOYOTA", "SONY", "MISSING")
	svc := newTestService(provider, store)
	sink := &eventSink{}

	summary, err := svc.Run(context.Background(), testOptions(), sink.add)
	require.NoError(t, err)

	assert.Equal(t, 7, summary.Total)
	assert.Equal(t, 3, summary.Updated)
	assert.Equal(t, 3, summary.Skipped)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, summary.Total, summary.Processed())
	assert.Equal(t, 1, summary.SkippedByReason[models.SkipNoPriceData])
	assert.Equal(t, 1, summary.SkippedByReason[models.SkipInvalidMarketCap])
	assert.Equal(t, 1, summary.SkippedByReason[models.SkipMarketCapTooSmall])
	assert.Equal(t, 1, summary.ErrorsByCause[models.CauseProvider])
	assert.False(t, summary.Cancelled)

	good, ok := store.record("GOOD")
	require.True(t, ok)
	assert.Equal(t, 67.08, good.Metrics.FairValue)
	assert.Equal(t, 2e9, good.MarketCap)
	assert.True(t, good.IsPriceUSD)

	toyota, ok := store.record("TOYOTA")
	require.True(t, ok)
	assert.Equal(t, 16.75, toyota.Price)
	assert.Equal(t, 2.144e10, toyota.MarketCap)
	assert.Equal(t, 2500.0, toyota.OriginalPrice)
	assert.Equal(t, "JPY", toyota.Currency)
	assert.False(t, toyota.IsPriceUSD)

	for symbol, reason := range map[string]models.SkipReason{
		"NOPRICE": models.SkipNoPriceData,
		"NOCAP":   models.SkipInvalidMarketCap,
		"TINY":    models.SkipMarketCapTooSmall,
	} {
		r, ok := store.record(symbol)
		require.True(t, ok, symbol)
		assert.Equal(t, reason, r.SkipReason, symbol)
		assert.False(t, r.LastUpdated.IsZero(), symbol)
	}

	_, ok = store.record("MISSING")
	assert.False(t, ok, "failed identifier must not be persisted")

	assert.Equal(t, 1, provider.rateCalls, "rate fetched once per run")

	require.Len(t, sink.events, 8)
	for i, e := range sink.events[:7] {
		assert.Equal(t, i+1, e.Current)
		assert.Equal(t, 7, e.Total)
		assert.False(t, e.Completed)
		assert.Equal(t, e.Current, e.Success+e.Skipped+e.Errors)
	}
	final := sink.events[7]
	assert.True(t, final.Completed)
	assert.Equal(t, 3, final.Success)
	assert.Equal(t, 7, final.Current)

	require.Len(t, store.runs, 1)
	assert.Equal(t, summary.RunID, store.runs[0].RunID)
}

func TestRun_SkippedIdentifiersNotReselected(t *testing.T) {
	provider := standardProvider()
	store := newMockStorage("GOOD", "NOPRICE", "TINY", "MISSING")
	svc := newTestService(provider, store)

	first, err := svc.Run(context.Background(), testOptions(), nil)
	require.NoError(t, err)
	assert.Equal(t, 4, first.Total)

	second, err := svc.Run(context.Background(), testOptions(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Total, "only the failed identifier is still stale")
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 0, second.Skipped)
	assert.Equal(t, 1, second.Errors)

	store.now = func() time.Time { return time.Now().Add(13 * time.Hour) }
	third, err := svc.Run(context.Background(), testOptions(), nil)
	require.NoError(t, err)
	assert.Equal(t, 4, third.Total, "every identifier is stale again after the threshold")
}

func TestRun_SelectionFailureIsFatal(t *testing.T) {
	store := newMockStorage()
	store.listErr = errors.New("connection refused")
	svc := newTestService(standardProvider(), store)

	summary, err := svc.Run(context.Background(), testOptions(), nil)
	assert.Nil(t, summary)

	var selErr *models.SelectionError
	require.ErrorAs(t, err, &selErr)
	assert.Empty(t, store.runs)
}

func TestRun_IsolatesFailures(t *testing.T) {
	tests := []struct {
		name      string
		configure func(p *mockProvider, s *mockStorage)
		symbol    string
		cause     string
	}{
		{
			name: "normalization",
			configure: func(p *mockProvider, s *mockStorage) {
				p.fixtures["EURO"] = fixture{quote: 50, currency: "EUR", capM: 5000}
				p.rateErr = errors.New("forex unavailable")
			},
			symbol: "EURO",
			cause:  models.CauseNormalization,
		},
		{
			name: "invalid currency code",
			configure: func(p *mockProvider, s *mockStorage) {
				p.fixtures["BAD"] = fixture{quote: 50, currency: "ZZZ", capM: 5000}
			},
			symbol: "BAD",
			cause:  models.CauseNormalization,
		},
		{
			name: "persistence",
			configure: func(p *mockProvider, s *mockStorage) {
				p.fixtures["DISK"] = fixture{quote: 50, currency: "USD", capM: 5000}
				s.failWrite["DISK"] = true
			},
			symbol: "DISK",
			cause:  models.CausePersistence,
		},
		{
			name: "panic",
			configure: func(p *mockProvider, s *mockStorage) {
				p.fixtures["BOOM"] = fixture{panics: true}
			},
			symbol: "BOOM",
			cause:  models.CauseUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := standardProvider()
			store := newMockStorage("GOOD", tt.symbol)
			tt.configure(provider, store)
			svc := newTestService(provider, store)

			summary, err := svc.Run(context.Background(), testOptions(), nil)
			require.NoError(t, err)

			assert.Equal(t, 1, summary.Updated)
			assert.Equal(t, 1, summary.Errors)
			assert.Equal(t, 1, summary.ErrorsByCause[tt.cause])

			_, ok := store.record(tt.symbol)
			assert.False(t, ok)
		})
	}
}

func TestRun_IdentifierTimeout(t *testing.T) {
	provider := standardProvider()
	provider.fixtures["SLOW"] = fixture{block: true}
	store := newMockStorage("SLOW", "GOOD")
	svc := newTestService(provider, store)

	opts := testOptions()
	opts.IdentifierTimeout = 20 * time.Millisecond

	summary, err := svc.Run(context.Background(), opts, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ErrorsByCause[models.CauseTimeout])
	assert.Equal(t, 1, summary.Updated)
}

func TestRun_CancellationStopsNewIdentifiers(t *testing.T) {
	tests := []struct {
		name        string
		batchSize   int
		concurrency int
	}{
		{name: "between batches", batchSize: 1, concurrency: 1},
		{name: "within a batch", batchSize: 6, concurrency: 1},
		{name: "within a partly filled batch", batchSize: 4, concurrency: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := standardProvider()
			store := newMockStorage("GOOD", "NOPRICE", "NOCAP", "TINY", "TOYOTA", "SONY")
			svc := newTestService(provider, store)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			opts := testOptions()
			opts.BatchSize = tt.batchSize
			opts.Concurrency = tt.concurrency

			sink := &eventSink{}
			callsAtCancel := -1
			summary, err := svc.Run(ctx, opts, func(e models.ProgressEvent) {
				sink.add(e)
				if e.Current == 2 && !e.Completed {
					provider.mu.Lock()
					callsAtCancel = provider.calls
					provider.mu.Unlock()
					cancel()
				}
			})
			require.NoError(t, err)

			assert.True(t, summary.Cancelled)
			assert.Equal(t, 6, summary.Total)
			assert.Equal(t, 2, summary.Processed(), "no identifier may start after cancellation")
			assert.Equal(t, callsAtCancel, provider.calls, "provider called after cancellation")
			assert.Len(t, store.records, 2)

			last := sink.events[len(sink.events)-1]
			assert.True(t, last.Completed)
			assert.Equal(t, 2, last.Current)
			require.Len(t, store.runs, 1)
			assert.True(t, store.runs[0].Cancelled)
		})
	}
}

func TestRun_InvalidMarketCapKeepsListingCurrency(t *testing.T) {
	provider := standardProvider()
	provider.fixtures["NOCAPJP"] = fixture{quote: 900, currency: "jpy", capM: 0}
	store := newMockStorage("NOCAPJP", "NOCAP")
	svc := newTestService(provider, store)

	summary, err := svc.Run(context.Background(), testOptions(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.SkippedByReason[models.SkipInvalidMarketCap])
	assert.Equal(t, 0, provider.rateCalls)

	jp, ok := store.record("NOCAPJP")
	require.True(t, ok)
	assert.Equal(t, "JPY", jp.Currency)
	assert.False(t, jp.IsPriceUSD)
	assert.Equal(t, 0.0, jp.Price)
	assert.Equal(t, 900.0, jp.OriginalPrice)
	assert.Equal(t, 0.0, jp.ForexRate)

	us, ok := store.record("NOCAP")
	require.True(t, ok)
	assert.Equal(t, "USD", us.Currency)
	assert.True(t, us.IsPriceUSD)
	assert.Equal(t, 12.0, us.OriginalPrice)
	assert.Equal(t, 1.0, us.ForexRate)
}

func TestRun_NoStaleIdentifiers(t *testing.T) {
	store := newMockStorage()
	svc := newTestService(standardProvider(), store)
	sink := &eventSink{}

	summary, err := svc.Run(context.Background(), testOptions(), sink.add)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total)
	require.Len(t, sink.events, 1)
	assert.True(t, sink.events[0].Completed)
}

func TestRescore_UsesStoredFundamentals(t *testing.T) {
	provider := standardProvider()
	store := newMockStorage()
	now := time.Now().UTC().Add(-time.Hour)

	store.records["VALUE"] = models.StockRecord{
		Symbol:      "VALUE",
		Price:       20,
		MarketCap:   5e9,
		Currency:    "USD",
		ForexRate:   1,
		LastUpdated: now,
		Fundamentals: models.Fundamentals{
			EPS:               models.Float(4),
			BookValuePerShare: models.Float(30),
		},
	}
	store.records["FOREIGN"] = models.StockRecord{
		Symbol:      "FOREIGN",
		Price:       16.75,
		MarketCap:   2.144e10,
		Currency:    "JPY",
		ForexRate:   0.0067,
		LastUpdated: now,
		Fundamentals: models.Fundamentals{
			EPS:               models.Float(300),
			BookValuePerShare: models.Float(3000),
		},
	}
	store.records["SKIP"] = *models.NewSkippedRecord("SKIP", models.SkipNoPriceData, "USD", 0, now)

	svc := newTestService(provider, store)
	summary, err := svc.Rescore(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, models.RunKindRescore, summary.Kind)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Updated)
	assert.Equal(t, 0, provider.calls, "rescoring makes no provider calls")
	assert.Equal(t, 0, provider.rateCalls)

	value, _ := store.record("VALUE")
	assert.Equal(t, 51.96, value.Metrics.FairValue)
	assert.True(t, value.LastUpdated.Equal(now), "rescoring keeps the staleness timestamp")

	foreign, _ := store.record("FOREIGN")
	assert.Equal(t, 30.15, foreign.Metrics.FairValue)
	assert.Equal(t, foreign.Metrics.MarginOfSafety, foreign.MarginOfSafety)
}

func TestOptions_WithDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, DefaultStaleAfter, o.StaleAfter)
	assert.Equal(t, DefaultBatchSize, o.BatchSize)
	assert.Equal(t, DefaultConcurrency, o.Concurrency)
	assert.Equal(t, DefaultIdentifierTimeout, o.IdentifierTimeout)
	assert.Equal(t, "USD", o.ReportingCurrency)
	assert.Equal(t, 0.0, o.MarketCapFloor)

	cfg := common.NewDefaultConfig()
	fromConfig := OptionsFromConfig(cfg)
	assert.Equal(t, 100_000_000.0, fromConfig.MarketCapFloor)
	assert.Equal(t, 25, fromConfig.BatchSize)
	assert.Equal(t, 5, fromConfig.Concurrency)
	assert.True(t, fromConfig.Shuffle)
}
