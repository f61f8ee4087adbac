package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/valuescreen/internal/models"
)

// ErrStockNotFound is returned when no record exists for a symbol
var ErrStockNotFound = errors.New("stock not found")

// StockStorage persists enriched stock records keyed by symbol
type StockStorage interface {
	// ListStale returns active universe symbols that have no record or whose
	// record was last updated before now-threshold. No duplicates.
	ListStale(ctx context.Context, threshold time.Duration) ([]string, error)

	// Upsert inserts or replaces the record for its symbol (last write wins)
	Upsert(ctx context.Context, record *models.StockRecord) error

	// Get returns the record for symbol or ErrStockNotFound
	Get(ctx context.Context, symbol string) (*models.StockRecord, error)

	// QueryByMinMarginOfSafety returns scored records with margin >= threshold,
	// highest margin first
	QueryByMinMarginOfSafety(ctx context.Context, threshold float64) ([]models.StockRecord, error)

	// ListScored pages through non-skipped records ordered by symbol
	ListScored(ctx context.Context, offset, limit int) ([]models.StockRecord, error)
}

// UniverseStorage holds the set of known identifiers
type UniverseStorage interface {
	UpsertUniverse(ctx context.Context, entries []models.UniverseEntry) error
	ListUniverse(ctx context.Context, activeOnly bool) ([]models.UniverseEntry, error)
	// Deactivate marks every active entry of exchange not in keep as inactive
	// and returns the count. Entries of other exchanges are left alone.
	Deactivate(ctx context.Context, exchange string, keep map[string]struct{}) (int, error)
}

// RunStorage records completed run summaries
type RunStorage interface {
	SaveRun(ctx context.Context, summary *models.RunSummary) error
	// ListRuns returns the most recent summaries first
	ListRuns(ctx context.Context, limit int) ([]models.RunSummary, error)
}

// StorageManager bundles the storage backends of one database
type StorageManager interface {
	StockStorage() StockStorage
	UniverseStorage() UniverseStorage
	RunStorage() RunStorage
	Close() error
}
