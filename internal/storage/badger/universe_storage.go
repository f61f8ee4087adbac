package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/valuescreen/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// UniverseStorage implements the UniverseStorage interface for Badger
type UniverseStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewUniverseStorage creates a new UniverseStorage instance
func NewUniverseStorage(db *BadgerDB, logger arbor.ILogger) *UniverseStorage {
	return &UniverseStorage{
		db:     db,
		logger: logger,
	}
}

// UpsertUniverse writes entries in a single transaction, preserving ListedAt
// for symbols already known
func (s *UniverseStorage) UpsertUniverse(ctx context.Context, entries []models.UniverseEntry) error {
	if len(entries) == 0 {
		return nil
	}

	store := s.db.Store()
	now := time.Now().UTC()

	err := store.Badger().Update(func(tx *badger.Txn) error {
		for i := range entries {
			entry := entries[i]
			entry.Symbol = normalizeSymbol(entry.Symbol)
			if entry.Symbol == "" {
				continue
			}

			var existing models.UniverseEntry
			err := store.TxGet(tx, entry.Symbol, &existing)
			switch {
			case err == nil && !existing.ListedAt.IsZero():
				entry.ListedAt = existing.ListedAt
			case err == nil || err == badgerhold.ErrNotFound:
				if entry.ListedAt.IsZero() {
					entry.ListedAt = now
				}
			default:
				return err
			}
			entry.UpdatedAt = now

			if err := store.TxUpsert(tx, entry.Symbol, &entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to upsert universe: %w", err)
	}

	s.logger.Debug().Int("entries", len(entries)).Msg("Universe entries upserted")
	return nil
}

// ListUniverse returns universe entries ordered by symbol
func (s *UniverseStorage) ListUniverse(ctx context.Context, activeOnly bool) ([]models.UniverseEntry, error) {
	query := badgerhold.Where("Symbol").Ne("")
	if activeOnly {
		query = query.And("Active").Eq(true)
	}

	var entries []models.UniverseEntry
	if err := s.db.Store().Find(&entries, query.SortBy("Symbol")); err != nil {
		return nil, fmt.Errorf("failed to list universe: %w", err)
	}
	return entries, nil
}

// Deactivate marks every active entry of exchange not present in keep as inactive
func (s *UniverseStorage) Deactivate(ctx context.Context, exchange string, keep map[string]struct{}) (int, error) {
	var active []models.UniverseEntry
	query := badgerhold.Where("Active").Eq(true).And("Exchange").Eq(exchange)
	if err := s.db.Store().Find(&active, query); err != nil {
		return 0, fmt.Errorf("failed to list active universe: %w", err)
	}

	now := time.Now().UTC()
	count := 0
	for i := range active {
		entry := active[i]
		if _, ok := keep[entry.Symbol]; ok {
			continue
		}
		entry.Active = false
		entry.UpdatedAt = now
		if err := s.db.Store().Upsert(entry.Symbol, &entry); err != nil {
			return count, fmt.Errorf("failed to deactivate %s: %w", entry.Symbol, err)
		}
		count++
	}

	if count > 0 {
		s.logger.Info().Str("exchange", exchange).Int("deactivated", count).Msg("Deactivated delisted universe entries")
	}
	return count, nil
}
