package main

import (
	"context"
	"flag"

	"github.com/google/subcommands"
)

type universeCmd struct{}

func (*universeCmd) Name() string     { return "universe" }
func (*universeCmd) Synopsis() string { return "refresh the identifier universe from the provider" }
func (*universeCmd) Usage() string {
	return `valuescreen [-config <file>] universe

  Lists common stock on ingest.exchange, marks it active and deactivates
  identifiers that are no longer listed.
`
}

func (*universeCmd) SetFlags(*flag.FlagSet) {}

func (*universeCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	application, status := setup(ctx, "universe")
	if application == nil {
		return status
	}
	defer application.Close()

	if _, err := application.Runner.RefreshUniverse(ctx); err != nil {
		application.Logger.Error().Err(err).Msg("Universe refresh failed")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
