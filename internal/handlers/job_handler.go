package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/valuescreen/internal/models"
	"github.com/ternarybob/valuescreen/internal/services/ingest"
	"github.com/ternarybob/valuescreen/internal/services/runner"
)

// JobHandler triggers runs and streams their progress
type JobHandler struct {
	runner JobRunner
	logger arbor.ILogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(runner JobRunner, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		runner: runner,
		logger: logger,
	}
}

// IngestHandler runs ingestion and streams progress as NDJSON
func (h *JobHandler) IngestHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	h.stream(w, r, models.RunKindIngest, h.runner.Ingest)
}

// RescoreHandler runs rescoring and streams progress as NDJSON
func (h *JobHandler) RescoreHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	h.stream(w, r, models.RunKindRescore, h.runner.Rescore)
}

// UniverseRefreshHandler refreshes the identifier universe
func (h *JobHandler) UniverseRefreshHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	result, err := h.runner.RefreshUniverse(r.Context())
	if err != nil {
		h.writeRunError(w, "universe", err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

type runFunc func(ctx context.Context, progress ingest.ProgressFunc) (*models.RunSummary, error)

func (h *JobHandler) stream(w http.ResponseWriter, r *http.Request, kind models.RunKind, run runFunc) {
	stream := newProgressStream(w, h.logger)

	summary, err := run(r.Context(), stream.Send)
	if err != nil {
		if stream.Started() {
			// Headers are gone; the error can only be logged.
			h.logger.Error().Err(err).Str("kind", string(kind)).Msg("Run failed after streaming started")
			return
		}
		h.writeRunError(w, string(kind), err)
		return
	}

	h.logger.Info().
		Str("run_id", summary.RunID).
		Str("kind", string(kind)).
		Int("updated", summary.Updated).
		Msg("Run triggered over HTTP finished")
}

func (h *JobHandler) writeRunError(w http.ResponseWriter, job string, err error) {
	var selErr *models.SelectionError
	switch {
	case errors.Is(err, runner.ErrRunInProgress):
		WriteError(w, http.StatusConflict, err.Error())
	case errors.As(err, &selErr):
		h.logger.Error().Err(err).Str("job", job).Msg("Run could not select identifiers")
		WriteError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error().Err(err).Str("job", job).Msg("Run failed")
		WriteError(w, http.StatusBadGateway, err.Error())
	}
}
