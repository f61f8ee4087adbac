package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/valuescreen/internal/interfaces"
	"github.com/ternarybob/valuescreen/internal/models"
)

const stockColumns = `symbol, name, exchange, industry, price, market_cap, currency, is_price_usd,
	original_price, original_market_cap, forex_rate, fundamentals::text AS fundamentals,
	metrics::text AS metrics, margin_of_safety, skip_reason, last_updated`

const upsertStockSQL = `
INSERT INTO stock_records (
	symbol, name, exchange, industry, price, market_cap, currency, is_price_usd,
	original_price, original_market_cap, forex_rate, fundamentals, metrics,
	margin_of_safety, skip_reason, last_updated
) VALUES (
	:symbol, :name, :exchange, :industry, :price, :market_cap, :currency, :is_price_usd,
	:original_price, :original_market_cap, :forex_rate, CAST(:fundamentals AS JSONB), CAST(:metrics AS JSONB),
	:margin_of_safety, :skip_reason, :last_updated
)
ON CONFLICT (symbol) DO UPDATE SET
	name = EXCLUDED.name,
	exchange = EXCLUDED.exchange,
	industry = EXCLUDED.industry,
	price = EXCLUDED.price,
	market_cap = EXCLUDED.market_cap,
	currency = EXCLUDED.currency,
	is_price_usd = EXCLUDED.is_price_usd,
	original_price = EXCLUDED.original_price,
	original_market_cap = EXCLUDED.original_market_cap,
	forex_rate = EXCLUDED.forex_rate,
	fundamentals = EXCLUDED.fundamentals,
	metrics = EXCLUDED.metrics,
	margin_of_safety = EXCLUDED.margin_of_safety,
	skip_reason = EXCLUDED.skip_reason,
	last_updated = EXCLUDED.last_updated`

// Stale candidates: active universe symbols plus stored records with no
// universe entry. The cutoff is inclusive.
const listStaleSQL = `
SELECT u.symbol FROM universe u
LEFT JOIN stock_records s ON s.symbol = u.symbol
WHERE u.active AND (s.symbol IS NULL OR s.last_updated <= $1)
UNION
SELECT s.symbol FROM stock_records s
LEFT JOIN universe u ON u.symbol = s.symbol
WHERE u.symbol IS NULL AND s.last_updated <= $1
ORDER BY 1`

// StockStorage implements the StockStorage interface for Postgres
type StockStorage struct {
	db     *DB
	logger arbor.ILogger
	now    func() time.Time
}

// NewStockStorage creates a new StockStorage instance
func NewStockStorage(db *DB, logger arbor.ILogger) *StockStorage {
	return &StockStorage{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ListStale returns symbols with no record or a record older than threshold
func (s *StockStorage) ListStale(ctx context.Context, threshold time.Duration) ([]string, error) {
	cutoff := s.now().UTC().Add(-threshold)

	var symbols []string
	if err := s.db.Conn().SelectContext(ctx, &symbols, listStaleSQL, cutoff); err != nil {
		return nil, fmt.Errorf("failed to list stale symbols: %w", err)
	}

	s.logger.Debug().Int("stale", len(symbols)).Dur("threshold", threshold).Msg("Selected stale symbols")
	return symbols, nil
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

	row, err := newStockRow(record)
	if err != nil {
		return err
	}
	if _, err := s.db.Conn().NamedExecContext(ctx, upsertStockSQL, row); err != nil {
		return fmt.Errorf("failed to upsert stock %s: %w", record.Symbol, err)
	}
	return nil
}

// Get returns the record for symbol or interfaces.ErrStockNotFound
func (s *StockStorage) Get(ctx context.Context, symbol string) (*models.StockRecord, error) {
	var row stockRow
	query := `SELECT ` + stockColumns + ` FROM stock_records WHERE symbol = $1`
	err := s.db.Conn().GetContext(ctx, &row, query, normalizeSymbol(symbol))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrStockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stock %s: %w", symbol, err)
	}

	record, err := row.record()
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// QueryByMinMarginOfSafety returns scored records with margin >= threshold,
// highest margin first
func (s *StockStorage) QueryByMinMarginOfSafety(ctx context.Context, threshold float64) ([]models.StockRecord, error) {
	var rows []stockRow
	query := `SELECT ` + stockColumns + ` FROM stock_records
		WHERE skip_reason = '' AND margin_of_safety >= $1
		ORDER BY margin_of_safety DESC, symbol`
	if err := s.db.Conn().SelectContext(ctx, &rows, query, threshold); err != nil {
		return nil, fmt.Errorf("failed to query by margin of safety: %w", err)
	}
	return stockRecords(rows)
}

// ListScored pages through non-skipped records ordered by symbol
func (s *StockStorage) ListScored(ctx context.Context, offset, limit int) ([]models.StockRecord, error) {
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + stockColumns + ` FROM stock_records WHERE skip_reason = '' ORDER BY symbol OFFSET $1`
	args := []interface{}{offset}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	var rows []stockRow
	if err := s.db.Conn().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list stock records: %w", err)
	}
	return stockRecords(rows)
}
