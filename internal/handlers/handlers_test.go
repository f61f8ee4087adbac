package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/valuescreen/internal/interfaces"
	"github.com/ternarybob/valuescreen/internal/models"
	"github.com/ternarybob/valuescreen/internal/services/ingest"
	"github.com/ternarybob/valuescreen/internal/services/runner"
)

type fakeRunner struct {
	err     error
	events  int
	running string
}

func (f *fakeRunner) run(kind models.RunKind, progress ingest.ProgressFunc) (*models.RunSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := 1; i <= f.events; i++ {
		progress(models.ProgressEvent{RunID: "run_1", Kind: kind, Current: i, Total: f.events, Success: i, Message: "X: updated"})
	}
	progress(models.ProgressEvent{RunID: "run_1", Kind: kind, Current: f.events, Total: f.events, Success: f.events, Completed: true})
	return &models.RunSummary{RunID: "run_1", Kind: kind, Total: f.events, Updated: f.events}, nil
}

func (f *fakeRunner) Ingest(ctx context.Context, progress ingest.ProgressFunc) (*models.RunSummary, error) {
	return f.run(models.RunKindIngest, progress)
}

func (f *fakeRunner) Rescore(ctx context.Context, progress ingest.ProgressFunc) (*models.RunSummary, error) {
	return f.run(models.RunKindRescore, progress)
}

func (f *fakeRunner) RefreshUniverse(ctx context.Context) (*models.UniverseRefresh, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.UniverseRefresh{Exchange: "US", Listed: 10, Upserted: 8, Filtered: 2}, nil
}

func (f *fakeRunner) Running() string { return f.running }

func TestIngestHandler_StreamsNDJSON(t *testing.T) {
	h := NewJobHandler(&fakeRunner{events: 3}, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.IngestHandler(rec, httptest.NewRequest(http.MethodPost, "/api/ingest", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	assert.True(t, rec.Flushed)

	var events []models.ProgressEvent
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		var e models.ProgressEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e), scanner.Text())
		events = append(events, e)
	}
	require.Len(t, events, 4)
	for i, e := range events[:3] {
		assert.Equal(t, i+1, e.Current)
		assert.False(t, e.Completed)
	}
	assert.True(t, events[3].Completed)
}

func TestJobHandlers_Errors(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		err     error
		handler func(h *JobHandler) http.HandlerFunc
		status  int
	}{
		{"ingest busy", http.MethodPost, runner.ErrRunInProgress, func(h *JobHandler) http.HandlerFunc { return h.IngestHandler }, http.StatusConflict},
		{"rescore busy", http.MethodPost, runner.ErrRunInProgress, func(h *JobHandler) http.HandlerFunc { return h.RescoreHandler }, http.StatusConflict},
		{"universe busy", http.MethodPost, runner.ErrRunInProgress, func(h *JobHandler) http.HandlerFunc { return h.UniverseRefreshHandler }, http.StatusConflict},
		{"selection failure", http.MethodPost, &models.SelectionError{Err: errors.New("db down")}, func(h *JobHandler) http.HandlerFunc { return h.IngestHandler }, http.StatusServiceUnavailable},
		{"universe provider failure", http.MethodPost, errors.New("503"), func(h *JobHandler) http.HandlerFunc { return h.UniverseRefreshHandler }, http.StatusBadGateway},
		{"wrong method", http.MethodGet, nil, func(h *JobHandler) http.HandlerFunc { return h.IngestHandler }, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewJobHandler(&fakeRunner{err: tt.err}, arbor.NewLogger())
			rec := httptest.NewRecorder()
			tt.handler(h)(rec, httptest.NewRequest(tt.method, "/", nil))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestUniverseRefreshHandler(t *testing.T) {
	h := NewJobHandler(&fakeRunner{}, arbor.NewLogger())
	rec := httptest.NewRecorder()
	h.UniverseRefreshHandler(rec, httptest.NewRequest(http.MethodPost, "/api/universe/refresh", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var result models.UniverseRefresh
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Equal(t, 8, result.Upserted)
}

type fakeStocks struct {
	interfaces.StockStorage
	records map[string]models.StockRecord
	gotMin  float64
	offset  int
	limit   int
}

func (f *fakeStocks) Get(ctx context.Context, symbol string) (*models.StockRecord, error) {
	r, ok := f.records[symbol]
	if !ok {
		return nil, interfaces.ErrStockNotFound
	}
	return &r, nil
}

func (f *fakeStocks) QueryByMinMarginOfSafety(ctx context.Context, threshold float64) ([]models.StockRecord, error) {
	f.gotMin = threshold
	return []models.StockRecord{f.records["AAPL"]}, nil
}

func (f *fakeStocks) ListScored(ctx context.Context, offset, limit int) ([]models.StockRecord, error) {
	f.offset, f.limit = offset, limit
	return []models.StockRecord{f.records["AAPL"]}, nil
}

type fakeRuns struct{ limit int }

func (f *fakeRuns) SaveRun(ctx context.Context, summary *models.RunSummary) error { return nil }

func (f *fakeRuns) ListRuns(ctx context.Context, limit int) ([]models.RunSummary, error) {
	f.limit = limit
	return []models.RunSummary{{RunID: "run_1"}}, nil
}

func TestStockHandler(t *testing.T) {
	stocks := &fakeStocks{records: map[string]models.StockRecord{"AAPL": {Symbol: "AAPL", MarginOfSafety: 40}}}
	runs := &fakeRuns{}
	h := NewStockHandler(stocks, runs, arbor.NewLogger())

	t.Run("query by margin", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ListHandler(rec, httptest.NewRequest(http.MethodGet, "/api/stocks?min_margin=25.5", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 25.5, stocks.gotMin)

		var body struct {
			Count  int                  `json:"count"`
			Stocks []models.StockRecord `json:"stocks"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, 1, body.Count)
		assert.Equal(t, "AAPL", body.Stocks[0].Symbol)
	})

	t.Run("bad margin", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ListHandler(rec, httptest.NewRequest(http.MethodGet, "/api/stocks?min_margin=lots", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("paged listing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ListHandler(rec, httptest.NewRequest(http.MethodGet, "/api/stocks?offset=10&limit=5", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 10, stocks.offset)
		assert.Equal(t, 5, stocks.limit)
	})

	t.Run("get", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.GetHandler(rec, httptest.NewRequest(http.MethodGet, "/api/stocks/AAPL", nil))
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		h.GetHandler(rec, httptest.NewRequest(http.MethodGet, "/api/stocks/NOPE", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("runs", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.RunsHandler(rec, httptest.NewRequest(http.MethodGet, "/api/runs?limit=3", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 3, runs.limit)
	})
}

func TestPathParam(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/stocks/AAPL", "AAPL"},
		{"/api/stocks/AAPL/", "AAPL"},
		{"/api/stocks/", ""},
		{"/api/stocks/AAPL/history", ""},
		{"/api/other/AAPL", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PathParam(tt.path, "/api/stocks/"), tt.path)
	}
}

func TestHealthHandler_ReportsRunningJob(t *testing.T) {
	h := NewAPIHandler(&fakeRunner{running: "ingest"}, arbor.NewLogger())
	rec := httptest.NewRecorder()
	h.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ingest", body["running"])
}
