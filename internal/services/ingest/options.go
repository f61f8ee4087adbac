package ingest

import (
	"time"

	"github.com/ternarybob/valuescreen/internal/common"
	"github.com/ternarybob/valuescreen/internal/models"
)

const (
	DefaultStaleAfter        = 12 * time.Hour
	DefaultMarketCapFloor    = 100_000_000
	DefaultBatchSize         = 25
	DefaultConcurrency       = 5
	DefaultIdentifierTimeout = 60 * time.Second
	DefaultRescorePageSize   = 200
)

// Options controls one ingestion run.
type Options struct {
	StaleAfter        time.Duration
	MarketCapFloor    float64 // USD, whole units
	BatchSize         int
	Concurrency       int
	IdentifierTimeout time.Duration
	ReportingCurrency string
	Shuffle           bool
}

// OptionsFromConfig builds run options from the [ingest] config section.
func OptionsFromConfig(config *common.Config) Options {
	return Options{
		StaleAfter:        config.StaleAfter(),
		MarketCapFloor:    config.MarketCapFloor(),
		BatchSize:         config.Ingest.BatchSize,
		Concurrency:       config.Ingest.Concurrency,
		IdentifierTimeout: config.IdentifierTimeout(),
		ReportingCurrency: config.Ingest.ReportingCurrency,
		Shuffle:           config.Ingest.Shuffle,
	}
}

// withDefaults fills zero values. A zero MarketCapFloor is kept: it disables
// the floor.
func (o Options) withDefaults() Options {
	if o.StaleAfter <= 0 {
		o.StaleAfter = DefaultStaleAfter
	}
	if o.MarketCapFloor < 0 {
		o.MarketCapFloor = 0
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.IdentifierTimeout <= 0 {
		o.IdentifierTimeout = DefaultIdentifierTimeout
	}
	if o.ReportingCurrency == "" {
		o.ReportingCurrency = models.ReportingCurrency
	}
	return o
}

// DefaultOptions returns options with every default applied and shuffling on.
func DefaultOptions() Options {
	o := Options{MarketCapFloor: DefaultMarketCapFloor, Shuffle: true}
	return o.withDefaults()
}
