package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/valuescreen/internal/models"
)

// progressStream writes progress events as newline-delimited JSON, one event
// per line, flushing after each. Headers are sent with the first event so a
// run rejected before it starts can still answer with a JSON error.
type progressStream struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	logger  arbor.ILogger
	mu      sync.Mutex
	started bool
	broken  bool
}

func newProgressStream(w http.ResponseWriter, logger arbor.ILogger) *progressStream {
	return &progressStream{
		w:      w,
		rc:     http.NewResponseController(w),
		logger: logger,
	}
}

// Send writes one event. Write failures mark the stream broken and are
// otherwise ignored: the run continues without a listener.
func (s *progressStream) Send(event models.ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.broken {
		return
	}
	if !s.started {
		s.start()
	}

	if err := json.NewEncoder(s.w).Encode(event); err != nil {
		s.broken = true
		s.logger.Debug().Err(err).Msg("Progress stream closed by client")
		return
	}
	if err := s.rc.Flush(); err != nil {
		s.logger.Debug().Err(err).Msg("Progress stream does not support flushing")
	}
}

// Started reports whether any event has been written.
func (s *progressStream) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *progressStream) start() {
	// Runs outlive the server write timeout.
	if err := s.rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug().Err(err).Msg("Could not clear write deadline for progress stream")
	}
	s.w.Header().Set("Content-Type", "application/x-ndjson")
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.Header().Set("X-Content-Type-Options", "nosniff")
	s.w.WriteHeader(http.StatusOK)
	s.started = true
}
