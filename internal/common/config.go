package common

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment" validate:"omitempty,oneof=development production dev prod test"`
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Finnhub     FinnhubConfig   `toml:"finnhub"`
	RateLimit   RateLimitConfig `toml:"rate_limit"`
	Ingest      IngestConfig    `toml:"ingest"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port" validate:"gte=1,lte=65535"`
}

// StorageConfig selects and configures the record store
type StorageConfig struct {
	Type     string         `toml:"type" validate:"oneof=badger postgres"` // "badger" (default) or "postgres"
	Badger   BadgerConfig   `toml:"badger"`
	Postgres PostgresConfig `toml:"postgres"`
}

// BadgerConfig contains embedded store settings
type BadgerConfig struct {
	Path           string `toml:"path"`
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete the database directory before opening
}

// PostgresConfig contains Postgres store settings
type PostgresConfig struct {
	DSN          string `toml:"dsn"`
	MaxOpenConns int    `toml:"max_open_conns" validate:"gte=0"`
}

// LoggingConfig contains logger settings
type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=trace debug info warn error"`
	Output []string `toml:"output" validate:"dive,oneof=stdout console file"`
}

// FinnhubConfig contains provider client settings
type FinnhubConfig struct {
	APIKey      string `toml:"api_key"`
	BaseURL     string `toml:"base_url" validate:"required,url"`
	Timeout     string `toml:"timeout"` // e.g., "30s"
	MaxAttempts int    `toml:"max_attempts" validate:"gte=1,lte=10"`
	RetryDelay  string `toml:"retry_delay"` // e.g., "2s" - delay between attempts
	Backoff     string `toml:"backoff" validate:"oneof=fixed exponential"`
}

// RateLimitConfig contains provider call ceilings
type RateLimitConfig struct {
	PerSecond int `toml:"per_second" validate:"gte=1,lt=30"` // Finnhub allows 30/s
	PerMinute int `toml:"per_minute" validate:"gte=1,lt=60"` // Finnhub free tier allows 60/min
}

// IngestConfig contains orchestration settings
type IngestConfig struct {
	StaleAfter             string  `toml:"stale_after"` // e.g., "12h"
	MarketCapFloorMillions float64 `toml:"market_cap_floor_millions" validate:"gte=0"`
	BatchSize              int     `toml:"batch_size" validate:"gte=1,lte=500"`
	Concurrency            int     `toml:"concurrency" validate:"gte=1,lte=50"`
	IdentifierTimeout      string  `toml:"identifier_timeout"` // e.g., "60s"
	Exchange               string  `toml:"exchange" validate:"required"`
	ReportingCurrency      string  `toml:"reporting_currency" validate:"len=3"`
	Shuffle                bool    `toml:"shuffle"`
}

// SchedulerConfig contains cron settings for serve mode
type SchedulerConfig struct {
	Enabled          bool   `toml:"enabled"`
	IngestSchedule   string `toml:"ingest_schedule"`
	UniverseSchedule string `toml:"universe_schedule"` // Empty disables scheduled universe refresh
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Type: "badger",
			Badger: BadgerConfig{
				Path: "./data",
			},
			Postgres: PostgresConfig{
				MaxOpenConns: 10,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Finnhub: FinnhubConfig{
			BaseURL:     "https://finnhub.io/api/v1",
			Timeout:     "30s",
			MaxAttempts: 3,
			RetryDelay:  "2s",
			Backoff:     "fixed",
		},
		RateLimit: RateLimitConfig{
			PerSecond: 20, // Below the provider's 30/s
			PerMinute: 50, // Below the provider's 60/min
		},
		Ingest: IngestConfig{
			StaleAfter:             "12h",
			MarketCapFloorMillions: 100,
			BatchSize:              25,
			Concurrency:            5,
			IdentifierTimeout:      "60s",
			Exchange:               "US",
			ReportingCurrency:      "USD",
			Shuffle:                true,
		},
		Scheduler: SchedulerConfig{
			Enabled:          false,
			IngestSchedule:   "0 */6 * * *",
			UniverseSchedule: "30 2 * * 0",
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env
// Later files override earlier files. CLI flags are applied by the caller.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies VALUESCREEN_* environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("VALUESCREEN_ENV"); env != "" {
		config.Environment = env
	}

	// Server
	if port := os.Getenv("VALUESCREEN_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("VALUESCREEN_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage
	if storageType := os.Getenv("VALUESCREEN_STORAGE_TYPE"); storageType != "" {
		config.Storage.Type = storageType
	}
	if badgerPath := os.Getenv("VALUESCREEN_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if dsn := os.Getenv("VALUESCREEN_POSTGRES_DSN"); dsn != "" {
		config.Storage.Postgres.DSN = dsn
	} else if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		config.Storage.Postgres.DSN = dsn
	}

	// Logging
	if level := os.Getenv("VALUESCREEN_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("VALUESCREEN_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if o = strings.TrimSpace(o); o != "" {
				outputs = append(outputs, o)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Finnhub (FINNHUB_API_KEY is the provider's conventional name)
	if apiKey := os.Getenv("VALUESCREEN_FINNHUB_API_KEY"); apiKey != "" {
		config.Finnhub.APIKey = apiKey
	} else if apiKey := os.Getenv("FINNHUB_API_KEY"); apiKey != "" {
		config.Finnhub.APIKey = apiKey
	}
	if baseURL := os.Getenv("VALUESCREEN_FINNHUB_BASE_URL"); baseURL != "" {
		config.Finnhub.BaseURL = baseURL
	}

	// Rate limit
	if perSecond := os.Getenv("VALUESCREEN_RATE_LIMIT_PER_SECOND"); perSecond != "" {
		if v, err := strconv.Atoi(perSecond); err == nil {
			config.RateLimit.PerSecond = v
		}
	}
	if perMinute := os.Getenv("VALUESCREEN_RATE_LIMIT_PER_MINUTE"); perMinute != "" {
		if v, err := strconv.Atoi(perMinute); err == nil {
			config.RateLimit.PerMinute = v
		}
	}

	// Ingest
	if staleAfter := os.Getenv("VALUESCREEN_INGEST_STALE_AFTER"); staleAfter != "" {
		if _, err := time.ParseDuration(staleAfter); err == nil {
			config.Ingest.StaleAfter = staleAfter
		}
	}
	if floor := os.Getenv("VALUESCREEN_MARKET_CAP_FLOOR_MILLIONS"); floor != "" {
		if v, err := strconv.ParseFloat(floor, 64); err == nil {
			config.Ingest.MarketCapFloorMillions = v
		}
	} else if floor := os.Getenv("MARKET_CAP_THRESHOLD_MILLIONS"); floor != "" {
		if v, err := strconv.ParseFloat(floor, 64); err == nil {
			config.Ingest.MarketCapFloorMillions = v
		}
	}
	if batchSize := os.Getenv("VALUESCREEN_INGEST_BATCH_SIZE"); batchSize != "" {
		if v, err := strconv.Atoi(batchSize); err == nil {
			config.Ingest.BatchSize = v
		}
	}
	if concurrency := os.Getenv("VALUESCREEN_INGEST_CONCURRENCY"); concurrency != "" {
		if v, err := strconv.Atoi(concurrency); err == nil {
			config.Ingest.Concurrency = v
		}
	}

	// Scheduler
	if enabled := os.Getenv("VALUESCREEN_SCHEDULER_ENABLED"); enabled != "" {
		if v, err := strconv.ParseBool(enabled); err == nil {
			config.Scheduler.Enabled = v
		}
	}
	if schedule := os.Getenv("VALUESCREEN_SCHEDULER_INGEST_SCHEDULE"); schedule != "" {
		config.Scheduler.IngestSchedule = schedule
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks struct constraints, duration strings and cron schedules
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	var errs []error
	for name, value := range map[string]string{
		"finnhub.timeout":           c.Finnhub.Timeout,
		"finnhub.retry_delay":       c.Finnhub.RetryDelay,
		"ingest.stale_after":        c.Ingest.StaleAfter,
		"ingest.identifier_timeout": c.Ingest.IdentifierTimeout,
	} {
		if _, err := parsePositiveDuration(value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if c.Storage.Type == "badger" && c.Storage.Badger.Path == "" {
		errs = append(errs, errors.New("storage.badger.path is required when storage.type is badger"))
	}
	if c.Storage.Type == "postgres" && c.Storage.Postgres.DSN == "" {
		errs = append(errs, errors.New("storage.postgres.dsn is required when storage.type is postgres"))
	}

	if c.Scheduler.Enabled {
		if err := ValidateSchedule(c.Scheduler.IngestSchedule); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.ingest_schedule: %w", err))
		}
		if c.Scheduler.UniverseSchedule != "" {
			if err := ValidateSchedule(c.Scheduler.UniverseSchedule); err != nil {
				errs = append(errs, fmt.Errorf("scheduler.universe_schedule: %w", err))
			}
		}
	}

	return errors.Join(errs...)
}

// ValidateSchedule validates a 5-field cron expression and ensures a minimum 5-minute interval
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	minuteField := strings.Fields(schedule)[0]
	if minuteField == "*" {
		return fmt.Errorf("schedule must have minimum 5-minute interval (every minute is not allowed)")
	}
	if strings.HasPrefix(minuteField, "*/") {
		interval, err := strconv.Atoi(strings.TrimPrefix(minuteField, "*/"))
		if err == nil && interval < 5 {
			return fmt.Errorf("schedule interval must be at least 5 minutes, got %d", interval)
		}
	}

	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// FinnhubTimeout returns the parsed HTTP timeout
func (c *Config) FinnhubTimeout() time.Duration {
	return durationOr(c.Finnhub.Timeout, 30*time.Second)
}

// RetryDelay returns the parsed delay between provider attempts
func (c *Config) RetryDelay() time.Duration {
	return durationOr(c.Finnhub.RetryDelay, 2*time.Second)
}

// StaleAfter returns the parsed staleness threshold
func (c *Config) StaleAfter() time.Duration {
	return durationOr(c.Ingest.StaleAfter, 12*time.Hour)
}

// IdentifierTimeout returns the parsed per-identifier deadline
func (c *Config) IdentifierTimeout() time.Duration {
	return durationOr(c.Ingest.IdentifierTimeout, 60*time.Second)
}

// MarketCapFloor returns the floor in whole reporting-currency units
func (c *Config) MarketCapFloor() float64 {
	return c.Ingest.MarketCapFloorMillions * 1_000_000
}

func parsePositiveDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", s)
	}
	return d, nil
}

func durationOr(s string, fallback time.Duration) time.Duration {
	if d, err := parsePositiveDuration(s); err == nil {
		return d
	}
	return fallback
}
