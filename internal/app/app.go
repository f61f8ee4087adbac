package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/valuescreen/internal/common"
	"github.com/ternarybob/valuescreen/internal/finnhub"
	"github.com/ternarybob/valuescreen/internal/handlers"
	"github.com/ternarybob/valuescreen/internal/interfaces"
	"github.com/ternarybob/valuescreen/internal/ratelimit"
	"github.com/ternarybob/valuescreen/internal/services/ingest"
	"github.com/ternarybob/valuescreen/internal/services/runner"
	"github.com/ternarybob/valuescreen/internal/services/scheduler"
	"github.com/ternarybob/valuescreen/internal/services/universe"
	"github.com/ternarybob/valuescreen/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Provider access
	Limiter *ratelimit.Limiter
	Finnhub *finnhub.Client

	// Pipeline services
	IngestService   *ingest.Service
	UniverseService *universe.Service
	Runner          *runner.Runner

	// Serve mode only
	SchedulerService *scheduler.Service

	// HTTP handlers (serve mode only)
	APIHandler       *handlers.APIHandler
	JobHandler       *handlers.JobHandler
	StockHandler     *handlers.StockHandler
	SchedulerHandler *handlers.SchedulerHandler
	WSHandler        *handlers.WebSocketHandler
}

// New initializes storage, the provider client and the pipeline services.
// HTTP handlers and the scheduler are added by InitServer.
func New(ctx context.Context, config *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: config,
		Logger: logger,
	}

	if err := app.initDatabase(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	app.initServices()

	logger.Info().
		Str("storage", config.Storage.Type).
		Str("exchange", config.Ingest.Exchange).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase opens the configured record store
func (a *App) initDatabase(ctx context.Context) error {
	storageManager, err := storage.NewStorageManager(ctx, a.Logger, a.Config)
	if err != nil {
		return err
	}
	a.StorageManager = storageManager
	return nil
}

// initServices wires limiter, provider client and pipeline services
func (a *App) initServices() {
	a.Limiter = ratelimit.New(
		a.Config.RateLimit.PerSecond,
		a.Config.RateLimit.PerMinute,
		ratelimit.WithLogger(a.Logger),
	)

	policy := finnhub.NewRetryPolicy()
	policy.MaxAttempts = a.Config.Finnhub.MaxAttempts
	policy.InitialBackoff = a.Config.RetryDelay()
	if a.Config.Finnhub.Backoff != "" {
		policy.Strategy = a.Config.Finnhub.Backoff
	}

	a.Finnhub = finnhub.NewClient(
		a.Config.Finnhub.APIKey,
		a.Limiter,
		finnhub.WithBaseURL(a.Config.Finnhub.BaseURL),
		finnhub.WithTimeout(a.Config.FinnhubTimeout()),
		finnhub.WithRetryPolicy(policy),
		finnhub.WithLogger(a.Logger),
	)

	a.IngestService = ingest.NewService(
		a.Finnhub,
		a.StorageManager.StockStorage(),
		a.StorageManager.RunStorage(),
		a.Logger,
	)
	a.UniverseService = universe.NewService(
		a.Finnhub,
		a.StorageManager.UniverseStorage(),
		a.Logger,
	)
	a.Runner = runner.New(
		a.IngestService,
		a.UniverseService,
		ingest.OptionsFromConfig(a.Config),
		a.Config.Ingest.Exchange,
		a.Logger,
	)
}

// InitServer creates the HTTP handlers, routes run progress to websocket
// clients and starts the scheduler when enabled.
func (a *App) InitServer() error {
	a.WSHandler = handlers.NewWebSocketHandler(a.Logger, handlers.DefaultProgressInterval)
	a.Runner.SetSink(a.WSHandler.BroadcastProgress)

	a.APIHandler = handlers.NewAPIHandler(a.Runner, a.Logger)
	a.JobHandler = handlers.NewJobHandler(a.Runner, a.Logger)
	a.StockHandler = handlers.NewStockHandler(
		a.StorageManager.StockStorage(),
		a.StorageManager.RunStorage(),
		a.Logger,
	)

	var lister handlers.JobStatusLister
	if a.Config.Scheduler.Enabled {
		a.SchedulerService = scheduler.NewService(a.Logger)
		if err := scheduler.RegisterDefaultJobs(a.SchedulerService, a.Runner, &a.Config.Scheduler, a.Logger); err != nil {
			return fmt.Errorf("failed to register scheduled jobs: %w", err)
		}
		if err := a.SchedulerService.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		lister = a.SchedulerService
	}
	a.SchedulerHandler = handlers.NewSchedulerHandler(lister)

	return nil
}

// Close stops the scheduler and closes storage
func (a *App) Close() error {
	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler")
		}
	}

	if a.Limiter != nil {
		stats := a.Limiter.Stats()
		a.Logger.Debug().
			Int64("waits", stats.Waits).
			Msg("Rate limiter totals")
	}

	if a.StorageManager != nil {
		done := make(chan error, 1)
		go func() { done <- a.StorageManager.Close() }()
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("failed to close storage: %w", err)
			}
		case <-time.After(10 * time.Second):
			return fmt.Errorf("timed out closing storage")
		}
	}

	a.Logger.Info().Msg("Application closed")
	return nil
}
