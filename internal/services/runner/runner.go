// Package runner serializes ingestion, rescoring and universe refresh so
// that only one job touches the provider at a time.
package runner

import (
	"context"
	"errors"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/valuescreen/internal/models"
	"github.com/ternarybob/valuescreen/internal/services/ingest"
	"github.com/ternarybob/valuescreen/internal/services/universe"
)

// ErrRunInProgress is returned when a job is triggered while another runs.
var ErrRunInProgress = errors.New("a run is already in progress")

// Runner owns the single-run guard shared by the HTTP surface, the CLI and
// the scheduler.
type Runner struct {
	ingest   *ingest.Service
	universe *universe.Service
	options  ingest.Options
	exchange string
	logger   arbor.ILogger

	mu      sync.Mutex
	running string

	sinkMu sync.RWMutex
	sink   ingest.ProgressFunc
}

// New creates a runner. options and exchange are used for every ingestion
// and universe refresh it starts.
func New(ingestSvc *ingest.Service, universeSvc *universe.Service, options ingest.Options, exchange string, logger arbor.ILogger) *Runner {
	return &Runner{
		ingest:   ingestSvc,
		universe: universeSvc,
		options:  options,
		exchange: exchange,
		logger:   logger,
	}
}

// SetSink registers a callback that receives every progress event of every
// run in addition to the per-call callback.
func (r *Runner) SetSink(sink ingest.ProgressFunc) {
	r.sinkMu.Lock()
	r.sink = sink
	r.sinkMu.Unlock()
}

// Running returns the name of the job in progress, or "".
func (r *Runner) Running() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Runner) acquire(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running != "" {
		r.logger.Warn().Str("job", name).Str("running", r.running).Msg("Run rejected, another run is in progress")
		return ErrRunInProgress
	}
	r.running = name
	return nil
}

func (r *Runner) release() {
	r.mu.Lock()
	r.running = ""
	r.mu.Unlock()
}

// fanout calls progress and the registered sink for each event
func (r *Runner) fanout(progress ingest.ProgressFunc) ingest.ProgressFunc {
	r.sinkMu.RLock()
	sink := r.sink
	r.sinkMu.RUnlock()

	return func(e models.ProgressEvent) {
		if progress != nil {
			progress(e)
		}
		if sink != nil {
			sink(e)
		}
	}
}

// Ingest runs one ingestion pass.
func (r *Runner) Ingest(ctx context.Context, progress ingest.ProgressFunc) (*models.RunSummary, error) {
	if err := r.acquire(string(models.RunKindIngest)); err != nil {
		return nil, err
	}
	defer r.release()
	return r.ingest.Run(ctx, r.options, r.fanout(progress))
}

// Rescore recomputes metrics for stored records.
func (r *Runner) Rescore(ctx context.Context, progress ingest.ProgressFunc) (*models.RunSummary, error) {
	if err := r.acquire(string(models.RunKindRescore)); err != nil {
		return nil, err
	}
	defer r.release()
	return r.ingest.Rescore(ctx, r.fanout(progress))
}

// RefreshUniverse refreshes the identifier universe for the configured
// exchange.
func (r *Runner) RefreshUniverse(ctx context.Context) (*models.UniverseRefresh, error) {
	if err := r.acquire("universe"); err != nil {
		return nil, err
	}
	defer r.release()
	return r.universe.Refresh(ctx, r.exchange)
}
