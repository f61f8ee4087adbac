package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/valuescreen/internal/app"
	"github.com/ternarybob/valuescreen/internal/common"
	"github.com/ternarybob/valuescreen/internal/models"
)

func newFakeFinnhub(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/stock/symbol":
			json.NewEncoder(w).Encode([]map[string]string{
				{"symbol": "AAA", "description": "AAA INC", "currency": "USD", "type": "Common Stock"},
				{"symbol": "BBB.WS", "description": "BBB WARRANT", "currency": "USD", "type": "Warrant"},
			})
		default:
			http.Error(w, "not here", http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setupTestServer(t *testing.T) (*httptest.Server, *app.App) {
	t.Helper()

	finnhub := newFakeFinnhub(t)

	cfg := common.NewDefaultConfig()
	cfg.Storage.Badger.Path = t.TempDir()
	cfg.Finnhub.APIKey = "test-key"
	cfg.Finnhub.BaseURL = finnhub.URL
	cfg.Finnhub.MaxAttempts = 1
	cfg.Ingest.Shuffle = false

	application, err := app.New(context.Background(), cfg, arbor.NewLogger())
	require.NoError(t, err)
	require.NoError(t, application.InitServer())
	t.Cleanup(func() { application.Close() })

	srv := httptest.NewServer(New(application).Handler())
	t.Cleanup(srv.Close)
	return srv, application
}

func TestServer_SystemRoutes(t *testing.T) {
	srv, _ := setupTestServer(t)

	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])

	missing, err := http.Get(srv.URL + "/api/nothing")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/ingest", nil)
	preflight, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	preflight.Body.Close()
	assert.Equal(t, http.StatusOK, preflight.StatusCode)

	jobs, err := http.Get(srv.URL + "/api/scheduler/jobs")
	require.NoError(t, err)
	defer jobs.Body.Close()
	var status map[string]interface{}
	require.NoError(t, json.NewDecoder(jobs.Body).Decode(&status))
	assert.Equal(t, false, status["enabled"])
}

func TestServer_RefreshThenIngestStreamsProgress(t *testing.T) {
	srv, application := setupTestServer(t)

	resp, err := http.Post(srv.URL+"/api/universe/refresh", "application/json", nil)
	require.NoError(t, err)
	var refresh models.UniverseRefresh
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&refresh))
	resp.Body.Close()
	assert.Equal(t, 1, refresh.Upserted)
	assert.Equal(t, 1, refresh.Filtered)

	resp, err = http.Post(srv.URL+"/api/ingest", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	var events []models.ProgressEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var event models.ProgressEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event))
		events = append(events, event)
	}
	require.Len(t, events, 2)
	assert.True(t, strings.HasPrefix(events[0].Message, "AAA: error:provider"))
	assert.True(t, events[1].Completed)
	assert.Equal(t, 1, events[1].Errors)

	runs, err := application.StorageManager.RunStorage().ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunKindIngest, runs[0].Kind)
}

func TestServer_UnknownStock(t *testing.T) {
	srv, _ := setupTestServer(t)

	resp, err := http.Get(srv.URL + "/api/stocks/NOPE")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/stocks?min_margin=abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRecoveryMiddleware(t *testing.T) {
	s := &Server{app: &app.App{Logger: arbor.NewLogger()}}
	handler := s.withMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
