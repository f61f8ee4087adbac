package badger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/valuescreen/internal/common"
	"github.com/ternarybob/valuescreen/internal/interfaces"
	"github.com/ternarybob/valuescreen/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// StockStorage implements the StockStorage interface for Badger
type StockStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	now    func() time.Time
}

// NewStockStorage creates a new StockStorage instance
func NewStockStorage(db *BadgerDB, logger arbor.ILogger) *StockStorage {
	return &StockStorage{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ListStale returns candidate symbols with no record or a record older than
// threshold. Candidates are the active universe plus stored records that have
// no universe entry; inactive universe entries are never selected.
func (s *StockStorage) ListStale(ctx context.Context, threshold time.Duration) ([]string, error) {
	var universe []models.UniverseEntry
	if err := s.db.Store().Find(&universe, badgerhold.Where("Symbol").Ne("")); err != nil {
		return nil, fmt.Errorf("failed to list universe: %w", err)
	}

	lastUpdated := make(map[string]time.Time)
	err := s.db.Store().ForEach(nil, func(record *models.StockRecord) error {
		lastUpdated[record.Symbol] = record.LastUpdated
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan stock records: %w", err)
	}

	now := s.now()
	seen := make(map[string]struct{}, len(universe))
	stale := make([]string, 0)

	consider := func(symbol string) {
		if _, dup := seen[symbol]; dup {
			return
		}
		seen[symbol] = struct{}{}
		if common.CheckStaleness(lastUpdated[symbol], now, threshold).IsStale {
			stale = append(stale, symbol)
		}
	}

	for _, entry := range universe {
		if !entry.Active {
			seen[entry.Symbol] = struct{}{}
			continue
		}
		consider(entry.Symbol)
	}
	for symbol := range lastUpdated {
		consider(symbol)
	}

	sort.Strings(stale)

	s.logger.Debug().
		Int("universe", len(universe)).
		Int("records", len(lastUpdated)).
		Int("stale", len(stale)).
		Dur("threshold", threshold).
		Msg("Selected stale symbols")

	return stale, nil
}

// Upsert inserts or replaces the record for its symbol
func (s *StockStorage) Upsert(ctx context.Context, record *models.StockRecord) error {
	if record == nil || normalizeSymbol(record.Symbol) == "" {
		return fmt.Errorf("record symbol is required")
	}
	record.Symbol = normalizeSymbol(record.Symbol)
	if record.LastUpdated.IsZero() {
		record.LastUpdated = s.now().UTC()
	}

	if err := s.db.Store().Upsert(record.Symbol, record); err != nil {
		return fmt.Errorf("failed to upsert stock %s: %w", record.Symbol, err)
	}
	return nil
}

// Get returns the record for symbol or interfaces.ErrStockNotFound
func (s *StockStorage) Get(ctx context.Context, symbol string) (*models.StockRecord, error) {
	var record models.StockRecord
	err := s.db.Store().Get(normalizeSymbol(symbol), &record)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrStockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stock %s: %w", symbol, err)
	}
	return &record, nil
}

// QueryByMinMarginOfSafety returns scored records with margin >= threshold,
// highest margin first
func (s *StockStorage) QueryByMinMarginOfSafety(ctx context.Context, threshold float64) ([]models.StockRecord, error) {
	var records []models.StockRecord
	query := badgerhold.Where("MarginOfSafety").Ge(threshold).SortBy("MarginOfSafety").Reverse()
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to query by margin of safety: %w", err)
	}

	scored := records[:0]
	for _, r := range records {
		if !r.IsSkipped() {
			scored = append(scored, r)
		}
	}
	return scored, nil
}

// ListScored pages through non-skipped records ordered by symbol
func (s *StockStorage) ListScored(ctx context.Context, offset, limit int) ([]models.StockRecord, error) {
	var records []models.StockRecord
	if err := s.db.Store().Find(&records, badgerhold.Where("Symbol").Ne("").SortBy("Symbol")); err != nil {
		return nil, fmt.Errorf("failed to list stock records: %w", err)
	}
	return pageScored(records, offset, limit), nil
}

// pageScored drops skipped records then applies offset and limit
func pageScored(records []models.StockRecord, offset, limit int) []models.StockRecord {
	scored := make([]models.StockRecord, 0, len(records))
	for _, r := range records {
		if !r.IsSkipped() {
			scored = append(scored, r)
		}
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(scored) {
		return []models.StockRecord{}
	}
	end := len(scored)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return scored[offset:end]
}
