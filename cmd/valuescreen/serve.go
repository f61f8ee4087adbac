package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/subcommands"
	"github.com/ternarybob/valuescreen/internal/common"
	"github.com/ternarybob/valuescreen/internal/server"
)

type serveCmd struct {
	port int
	host string
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the HTTP API, websocket feed and scheduler" }
func (*serveCmd) Usage() string {
	return `valuescreen [-config <file>] serve [-port <port>] [-host <host>]

  Serves job triggers, stored records and live progress over HTTP. When
  scheduler.enabled is set, ingestion also runs on ingest_schedule.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.port, "port", 0, "Server port (overrides config)")
	f.IntVar(&c.port, "p", 0, "Server port (shorthand, overrides config)")
	f.StringVar(&c.host, "host", "", "Server host (overrides config)")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	config, logger, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return subcommands.ExitFailure
	}
	common.ApplyFlagOverrides(config, c.port, c.host)

	common.PrintBanner(common.Version)
	common.LogStartup(logger, config, "serve")

	application, err := openApp(ctx, config, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize application")
		return subcommands.ExitFailure
	}
	defer application.Close()

	if err := application.InitServer(); err != nil {
		logger.Error().Err(err).Msg("Failed to initialize server")
		return subcommands.ExitFailure
	}

	srv := server.New(application)
	serverErr := make(chan error, 1)
	common.SafeGo(logger, "http-server", func() {
		serverErr <- srv.Start()
	})

	logger.Info().
		Str("url", fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)).
		Msg("Server ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	status := subcommands.ExitSuccess
	select {
	case <-sigChan:
		logger.Info().Msg("Interrupt signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error().Err(err).Msg("Server failed")
			status = subcommands.ExitFailure
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}

	return status
}
