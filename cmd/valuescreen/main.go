package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path"

	"github.com/google/subcommands"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/valuescreen/internal/app"
	"github.com/ternarybob/valuescreen/internal/common"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var configFiles configPaths

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	common.InstallCrashHandler("logs")
	defer common.RecoverWithCrashFile()

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	commander.Register(&ingestCmd{}, "jobs")
	commander.Register(&rescoreCmd{}, "jobs")
	commander.Register(&universeCmd{}, "jobs")
	commander.Register(&queryCmd{}, "")
	commander.Register(&serveCmd{}, "")
	commander.Register(&versionCmd{}, "")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

// loadConfig resolves configuration (defaults -> files -> env) and
// initializes the logger. serve applies its own flag overrides afterwards.
func loadConfig() (*common.Config, arbor.ILogger, error) {
	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("valuescreen.toml"); err == nil {
			configFiles = append(configFiles, "valuescreen.toml")
		} else if _, err := os.Stat("deployments/local/valuescreen.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/valuescreen.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		return nil, nil, err
	}

	logger := common.InitLogger(config)
	logger.Debug().
		Strs("config_files", configFiles).
		Str("storage_type", config.Storage.Type).
		Str("log_level", config.Logging.Level).
		Msg("Resolved configuration")

	return config, logger, nil
}

// openApp validates config and builds the application for a CLI command
func openApp(ctx context.Context, config *common.Config, logger arbor.ILogger) (*app.App, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return app.New(ctx, config, logger)
}

// setup is the common prologue of the job commands
func setup(ctx context.Context, mode string) (*app.App, subcommands.ExitStatus) {
	config, logger, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return nil, subcommands.ExitFailure
	}

	if config.Finnhub.APIKey == "" {
		logger.Warn().Msg("No Finnhub API key configured (set finnhub.api_key or VALUESCREEN_FINNHUB_API_KEY)")
	}

	common.LogStartup(logger, config, mode)

	application, err := openApp(ctx, config, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize application")
		return nil, subcommands.ExitFailure
	}
	return application, subcommands.ExitSuccess
}
