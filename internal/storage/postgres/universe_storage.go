package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/valuescreen/internal/models"
)

const upsertUniverseSQL = `
INSERT INTO universe (symbol, description, exchange, currency, type, active, listed_at, updated_at)
VALUES (:symbol, :description, :exchange, :currency, :type, :active, :listed_at, :updated_at)
ON CONFLICT (symbol) DO UPDATE SET
	description = EXCLUDED.description,
	exchange = EXCLUDED.exchange,
	currency = EXCLUDED.currency,
	type = EXCLUDED.type,
	active = EXCLUDED.active,
	updated_at = EXCLUDED.updated_at`

// UniverseStorage implements the UniverseStorage interface for Postgres
type UniverseStorage struct {
	db     *DB
	logger arbor.ILogger
}

// NewUniverseStorage creates a new UniverseStorage instance
func NewUniverseStorage(db *DB, logger arbor.ILogger) *UniverseStorage {
	return &UniverseStorage{
		db:     db,
		logger: logger,
	}
}

// UpsertUniverse writes entries in one transaction; listed_at is kept for
// symbols already present
func (s *UniverseStorage) UpsertUniverse(ctx context.Context, entries []models.UniverseEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.Conn().BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin universe upsert: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for i := range entries {
		entry := entries[i]
		entry.Symbol = normalizeSymbol(entry.Symbol)
		if entry.Symbol == "" {
			continue
		}
		if entry.ListedAt.IsZero() {
			entry.ListedAt = now
		}
		entry.UpdatedAt = now

		if _, err := tx.NamedExecContext(ctx, upsertUniverseSQL, &entry); err != nil {
			return fmt.Errorf("failed to upsert universe entry %s: %w", entry.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit universe upsert: %w", err)
	}

	s.logger.Debug().Int("entries", len(entries)).Msg("Universe entries upserted")
	return nil
}

// ListUniverse returns universe entries ordered by symbol
func (s *UniverseStorage) ListUniverse(ctx context.Context, activeOnly bool) ([]models.UniverseEntry, error) {
	query := `SELECT symbol, description, exchange, currency, type, active, listed_at, updated_at FROM universe`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY symbol`

	var entries []models.UniverseEntry
	if err := s.db.Conn().SelectContext(ctx, &entries, query); err != nil {
		return nil, fmt.Errorf("failed to list universe: %w", err)
	}
	return entries, nil
}

// Deactivate marks every active entry of exchange not present in keep as inactive
func (s *UniverseStorage) Deactivate(ctx context.Context, exchange string, keep map[string]struct{}) (int, error) {
	query := `UPDATE universe SET active = FALSE, updated_at = ? WHERE active AND exchange = ?`
	args := []interface{}{time.Now().UTC(), exchange}

	if len(keep) > 0 {
		symbols := make([]string, 0, len(keep))
		for symbol := range keep {
			symbols = append(symbols, symbol)
		}
		query += ` AND symbol NOT IN (?)`
		args = append(args, symbols)
	}

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to build deactivate query: %w", err)
	}

	conn := s.db.Conn()
	result, err := conn.ExecContext(ctx, conn.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate universe entries: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected > 0 {
		s.logger.Info().Str("exchange", exchange).Int("deactivated", int(affected)).Msg("Deactivated delisted universe entries")
	}
	return int(affected), nil
}
