package scheduler

import (
	"context"
	"errors"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/valuescreen/internal/common"
	"github.com/ternarybob/valuescreen/internal/models"
	"github.com/ternarybob/valuescreen/internal/services/ingest"
	"github.com/ternarybob/valuescreen/internal/services/runner"
)

const (
	JobIngest   = "ingest"
	JobUniverse = "universe"
)

// Jobs is the work the scheduler triggers. *runner.Runner satisfies it.
type Jobs interface {
	Ingest(ctx context.Context, progress ingest.ProgressFunc) (*models.RunSummary, error)
	RefreshUniverse(ctx context.Context) (*models.UniverseRefresh, error)
}

// RegisterDefaultJobs registers scheduled ingestion and, when configured,
// universe refresh. A trigger that finds another run in progress is logged
// and dropped.
func RegisterDefaultJobs(s *Service, jobs Jobs, config *common.SchedulerConfig, logger arbor.ILogger) error {
	err := s.RegisterJob(JobIngest, config.IngestSchedule, "Ingest stale identifiers", func(ctx context.Context) error {
		_, err := jobs.Ingest(ctx, nil)
		if errors.Is(err, runner.ErrRunInProgress) {
			logger.Info().Str("job_name", JobIngest).Msg("Run in progress, scheduled ingestion skipped")
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}

	if config.UniverseSchedule == "" {
		return nil
	}
	return s.RegisterJob(JobUniverse, config.UniverseSchedule, "Refresh identifier universe", func(ctx context.Context) error {
		_, err := jobs.RefreshUniverse(ctx)
		if errors.Is(err, runner.ErrRunInProgress) {
			logger.Info().Str("job_name", JobUniverse).Msg("Run in progress, scheduled universe refresh skipped")
			return nil
		}
		return err
	})
}
