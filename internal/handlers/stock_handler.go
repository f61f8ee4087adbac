package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/valuescreen/internal/interfaces"
)

// StockHandler serves stored records and run history
type StockHandler struct {
	stocks interfaces.StockStorage
	runs   interfaces.RunStorage
	logger arbor.ILogger
}

// NewStockHandler creates a new stock handler
func NewStockHandler(stocks interfaces.StockStorage, runs interfaces.RunStorage, logger arbor.ILogger) *StockHandler {
	return &StockHandler{
		stocks: stocks,
		runs:   runs,
		logger: logger,
	}
}

// ListHandler returns records with margin of safety >= min_margin, highest
// first. Without min_margin it pages through scored records by symbol.
func (h *StockHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	if raw := r.URL.Query().Get("min_margin"); raw != "" {
		threshold, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "min_margin must be a number")
			return
		}
		records, err := h.stocks.QueryByMinMarginOfSafety(r.Context(), threshold)
		if err != nil {
			h.logger.Error().Err(err).Float64("min_margin", threshold).Msg("Failed to query stocks")
			WriteError(w, http.StatusInternalServerError, "Failed to query stocks")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"min_margin": threshold,
			"count":      len(records),
			"stocks":     records,
		})
		return
	}

	offset, limit := GetPaginationParams(r)
	records, err := h.stocks.ListScored(r.Context(), offset, limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list stocks")
		WriteError(w, http.StatusInternalServerError, "Failed to list stocks")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"offset": offset,
		"limit":  limit,
		"count":  len(records),
		"stocks": records,
	})
}

// GetHandler returns one record by symbol
func (h *StockHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	symbol := PathParam(r.URL.Path, "/api/stocks/")
	if symbol == "" {
		WriteError(w, http.StatusBadRequest, "Symbol is required")
		return
	}

	record, err := h.stocks.Get(r.Context(), symbol)
	if errors.Is(err, interfaces.ErrStockNotFound) {
		WriteError(w, http.StatusNotFound, "Stock not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("symbol", symbol).Msg("Failed to get stock")
		WriteError(w, http.StatusInternalServerError, "Failed to get stock")
		return
	}
	WriteJSON(w, http.StatusOK, record)
}

// RunsHandler returns recent run summaries, newest first
func (h *StockHandler) RunsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	_, limit := GetPaginationParams(r)
	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list runs")
		WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	WriteJSON(w, http.StatusOK, runs)
}
