package ingest

import (
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/valuescreen/internal/models"
)

// ProgressFunc receives one event per processed identifier and a final
// completed event. Calls are serialized.
type ProgressFunc func(models.ProgressEvent)

// runState is owned by a single run. Counters only grow.
type runState struct {
	mu       sync.Mutex
	runID    string
	kind     models.RunKind
	started  time.Time
	total    int
	current  int
	updated  int
	skipped  map[models.SkipReason]int
	errors   map[string]int
	progress ProgressFunc
}

func newRunState(runID string, kind models.RunKind, started time.Time, progress ProgressFunc) *runState {
	return &runState{
		runID:    runID,
		kind:     kind,
		started:  started,
		skipped:  make(map[models.SkipReason]int),
		errors:   make(map[string]int),
		progress: progress,
	}
}

func (s *runState) setTotal(total int) {
	s.mu.Lock()
	s.total = total
	s.mu.Unlock()
}

// record accounts for one identifier outcome and emits its progress event.
func (s *runState) record(symbol string, skip models.SkipReason, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current++

	var message string
	switch {
	case err != nil:
		cause := models.OutcomeReason(err)
		s.errors[cause]++
		message = fmt.Sprintf("%s: error:%s", symbol, cause)
	case skip != "":
		s.skipped[skip]++
		message = fmt.Sprintf("%s: skipped:%s", symbol, skip)
	default:
		s.updated++
		message = fmt.Sprintf("%s: updated", symbol)
	}

	s.emit(message, false)
}

// finish emits the completed event and returns the summary.
func (s *runState) finish(finished time.Time, cancelled bool) *models.RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := &models.RunSummary{
		RunID:           s.runID,
		Kind:            s.kind,
		Total:           s.total,
		Updated:         s.updated,
		SkippedByReason: make(map[models.SkipReason]int, len(s.skipped)),
		ErrorsByCause:   make(map[string]int, len(s.errors)),
		StartedAt:       s.started,
		FinishedAt:      finished,
		Cancelled:       cancelled,
	}
	for reason, n := range s.skipped {
		summary.SkippedByReason[reason] = n
		summary.Skipped += n
	}
	for cause, n := range s.errors {
		summary.ErrorsByCause[cause] = n
		summary.Errors += n
	}

	message := fmt.Sprintf("Completed: %d updated, %d skipped, %d errors", summary.Updated, summary.Skipped, summary.Errors)
	if cancelled {
		message = fmt.Sprintf("Cancelled after %d of %d: %d updated, %d skipped, %d errors",
			s.current, s.total, summary.Updated, summary.Skipped, summary.Errors)
	}
	s.emit(message, true)

	return summary
}

// emit must be called with mu held
func (s *runState) emit(message string, completed bool) {
	if s.progress == nil {
		return
	}

	skipped := 0
	for _, n := range s.skipped {
		skipped += n
	}
	errs := 0
	for _, n := range s.errors {
		errs += n
	}

	s.progress(models.ProgressEvent{
		RunID:     s.runID,
		Kind:      s.kind,
		Current:   s.current,
		Total:     s.total,
		Success:   s.updated,
		Errors:    errs,
		Skipped:   skipped,
		Message:   message,
		Completed: completed,
	})
}
