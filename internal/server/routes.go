package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Jobs (progress streamed as NDJSON)
	mux.HandleFunc("/api/ingest", s.app.JobHandler.IngestHandler)
	mux.HandleFunc("/api/rescore", s.app.JobHandler.RescoreHandler)
	mux.HandleFunc("/api/universe/refresh", s.app.JobHandler.UniverseRefreshHandler)

	// API routes - Stocks
	mux.HandleFunc("/api/stocks", s.app.StockHandler.ListHandler)
	mux.HandleFunc("/api/stocks/", s.app.StockHandler.GetHandler) // GET /api/stocks/{symbol}
	mux.HandleFunc("/api/runs", s.app.StockHandler.RunsHandler)

	// API routes - Scheduler
	mux.HandleFunc("/api/scheduler/jobs", s.app.SchedulerHandler.JobsHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}
