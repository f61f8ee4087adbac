package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/subcommands"
)

type rescoreCmd struct{}

func (*rescoreCmd) Name() string { return "rescore" }
func (*rescoreCmd) Synopsis() string {
	return "recompute metrics for stored records without provider calls"
}
func (*rescoreCmd) Usage() string {
	return `valuescreen [-config <file>] rescore

  Re-applies the scoring engine to every stored, non-skipped record using
  its stored fundamentals and conversion rate.
`
}

func (*rescoreCmd) SetFlags(*flag.FlagSet) {}

func (*rescoreCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, status := setup(ctx, "rescore")
	if application == nil {
		return status
	}
	defer application.Close()

	summary, err := application.Runner.Rescore(ctx, logProgress(application.Logger))
	if err != nil {
		application.Logger.Error().Err(err).Msg("Rescore failed")
		return subcommands.ExitFailure
	}
	logSummary(application.Logger, summary)

	if summary.Cancelled {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
