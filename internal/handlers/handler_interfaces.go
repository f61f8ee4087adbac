package handlers

import (
	"context"

	"github.com/ternarybob/valuescreen/internal/models"
	"github.com/ternarybob/valuescreen/internal/services/ingest"
	"github.com/ternarybob/valuescreen/internal/services/scheduler"
)

// JobRunner starts ingestion, rescoring and universe refresh.
// *runner.Runner satisfies it.
type JobRunner interface {
	Ingest(ctx context.Context, progress ingest.ProgressFunc) (*models.RunSummary, error)
	Rescore(ctx context.Context, progress ingest.ProgressFunc) (*models.RunSummary, error)
	RefreshUniverse(ctx context.Context) (*models.UniverseRefresh, error)
	Running() string
}

// JobStatusLister reports scheduled job state.
// *scheduler.Service satisfies it.
type JobStatusLister interface {
	GetAllJobStatuses() []scheduler.JobStatus
}
