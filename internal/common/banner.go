package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner
func PrintBanner(version string) {
	banner.Print("ValueScreen", version)
}

// LogStartup records the effective configuration at startup
func LogStartup(logger arbor.ILogger, config *Config, mode string) {
	logger.Info().
		Str("mode", mode).
		Str("version", GetFullVersion()).
		Str("storage", config.Storage.Type).
		Str("exchange", config.Ingest.Exchange).
		Int("per_second", config.RateLimit.PerSecond).
		Int("per_minute", config.RateLimit.PerMinute).
		Int("batch_size", config.Ingest.BatchSize).
		Int("concurrency", config.Ingest.Concurrency).
		Str("stale_after", config.StaleAfter().String()).
		Float64("market_cap_floor_millions", config.Ingest.MarketCapFloorMillions).
		Msg("ValueScreen starting")
}
