package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/google/subcommands"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/valuescreen/internal/models"
	"github.com/ternarybob/valuescreen/internal/services/ingest"
)

type ingestCmd struct {
	refresh bool
}

func (*ingestCmd) Name() string { return "ingest" }
func (*ingestCmd) Synopsis() string {
	return "fetch, normalize and score every stale identifier"
}
func (*ingestCmd) Usage() string {
	return `valuescreen [-config <file>] ingest [-refresh]

  Selects identifiers that have no record or whose record is older than
  ingest.stale_after, then fetches, normalizes, scores and stores each one.
  Ctrl+C stops starting new identifiers; finished ones stay stored.
`
}

func (c *ingestCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.refresh, "refresh", false, "Refresh the identifier universe before ingesting.")
}

func (c *ingestCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, status := setup(ctx, "ingest")
	if application == nil {
		return status
	}
	defer application.Close()

	if c.refresh {
		if _, err := application.Runner.RefreshUniverse(ctx); err != nil {
			application.Logger.Error().Err(err).Msg("Universe refresh failed")
			return subcommands.ExitFailure
		}
	}

	summary, err := application.Runner.Ingest(ctx, logProgress(application.Logger))
	if err != nil {
		application.Logger.Error().Err(err).Msg("Ingestion failed")
		return subcommands.ExitFailure
	}
	logSummary(application.Logger, summary)

	if summary.Cancelled {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// logProgress is the CLI progress sink: one log line per event
func logProgress(logger arbor.ILogger) ingest.ProgressFunc {
	return func(event models.ProgressEvent) {
		logEvent := logger.Info()
		if !event.Completed {
			logEvent = logger.Debug()
		}
		logEvent.
			Int("current", event.Current).
			Int("total", event.Total).
			Int("success", event.Success).
			Int("skipped", event.Skipped).
			Int("errors", event.Errors).
			Msg(event.Message)
	}
}

func logSummary(logger arbor.ILogger, summary *models.RunSummary) {
	logEvent := logger.Info().
		Str("run_id", summary.RunID).
		Str("kind", string(summary.Kind)).
		Int("total", summary.Total).
		Int("updated", summary.Updated).
		Int("skipped", summary.Skipped).
		Int("errors", summary.Errors).
		Dur("duration", summary.Duration())
	for _, reason := range models.SkipReasons {
		if n := summary.SkippedByReason[reason]; n > 0 {
			logEvent = logEvent.Int("skipped_"+string(reason), n)
		}
	}
	causes := make([]string, 0, len(summary.ErrorsByCause))
	for cause := range summary.ErrorsByCause {
		causes = append(causes, cause)
	}
	sort.Strings(causes)
	for _, cause := range causes {
		logEvent = logEvent.Int("error_"+cause, summary.ErrorsByCause[cause])
	}
	logEvent.Msg("Run summary")
}
