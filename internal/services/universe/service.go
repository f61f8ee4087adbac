// Package universe maintains the set of listed identifiers eligible for
// ingestion.
package universe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/valuescreen/internal/finnhub"
	"github.com/ternarybob/valuescreen/internal/interfaces"
	"github.com/ternarybob/valuescreen/internal/models"
)

//go:generate mockgen -package=universe_test -destination=mock_lister_test.go -source=service.go Lister

// Lister lists the identifiers traded on an exchange.
// *finnhub.Client satisfies it.
type Lister interface {
	ListIdentifiers(ctx context.Context, exchange string) ([]finnhub.Symbol, error)
}

// Service refreshes the universe from the provider.
type Service struct {
	lister  Lister
	storage interfaces.UniverseStorage
	logger  arbor.ILogger
}

// NewService creates a new universe service.
func NewService(lister Lister, storage interfaces.UniverseStorage, logger arbor.ILogger) *Service {
	return &Service{
		lister:  lister,
		storage: storage,
		logger:  logger,
	}
}

// Refresh lists common stock on exchange, upserts it as active and
// deactivates entries no longer listed. A listing failure leaves the stored
// universe untouched.
func (s *Service) Refresh(ctx context.Context, exchange string) (*models.UniverseRefresh, error) {
	exchange = strings.ToUpper(strings.TrimSpace(exchange))
	if exchange == "" {
		return nil, fmt.Errorf("exchange is required")
	}

	symbols, err := s.lister.ListIdentifiers(ctx, exchange)
	if err != nil {
		return nil, fmt.Errorf("failed to list identifiers for %s: %w", exchange, err)
	}

	result := &models.UniverseRefresh{Exchange: exchange, Listed: len(symbols)}
	now := time.Now().UTC()
	entries := make([]models.UniverseEntry, 0, len(symbols))
	keep := make(map[string]struct{}, len(symbols))

	for _, sym := range symbols {
		symbol := strings.ToUpper(strings.TrimSpace(sym.Symbol))
		if symbol == "" || sym.Type != finnhub.CommonStock {
			result.Filtered++
			continue
		}
		if _, dup := keep[symbol]; dup {
			result.Filtered++
			continue
		}
		keep[symbol] = struct{}{}
		entries = append(entries, models.UniverseEntry{
			Symbol:      symbol,
			Description: sym.Description,
			Exchange:    exchange,
			Currency:    sym.Currency,
			Type:        sym.Type,
			Active:      true,
			UpdatedAt:   now,
		})
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("no common stock listed for %s", exchange)
	}

	if err := s.storage.UpsertUniverse(ctx, entries); err != nil {
		return nil, fmt.Errorf("failed to store universe: %w", err)
	}
	result.Upserted = len(entries)

	deactivated, err := s.storage.Deactivate(ctx, exchange, keep)
	if err != nil {
		return result, fmt.Errorf("failed to deactivate delisted identifiers: %w", err)
	}
	result.Deactivated = deactivated

	s.logger.Info().
		Str("exchange", exchange).
		Int("listed", result.Listed).
		Int("upserted", result.Upserted).
		Int("filtered", result.Filtered).
		Int("deactivated", result.Deactivated).
		Msg("Universe refreshed")

	return result, nil
}
