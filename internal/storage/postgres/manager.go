package postgres

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/valuescreen/internal/common"
	"github.com/ternarybob/valuescreen/internal/interfaces"
)

// Manager implements the StorageManager interface for Postgres
type Manager struct {
	db       *DB
	stock    interfaces.StockStorage
	universe interfaces.UniverseStorage
	run      interfaces.RunStorage
	logger   arbor.ILogger
}

// NewManager creates a new Postgres storage manager
func NewManager(ctx context.Context, logger arbor.ILogger, config *common.PostgresConfig) (interfaces.StorageManager, error) {
	db, err := NewDB(ctx, logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:       db,
		stock:    NewStockStorage(db, logger),
		universe: NewUniverseStorage(db, logger),
		run:      NewRunStorage(db, logger),
		logger:   logger,
	}

	logger.Info().Msg("Postgres storage manager initialized")
	return manager, nil
}

// StockStorage returns the Stock storage interface
func (m *Manager) StockStorage() interfaces.StockStorage {
	return m.stock
}

// UniverseStorage returns the Universe storage interface
func (m *Manager) UniverseStorage() interfaces.UniverseStorage {
	return m.universe
}

// RunStorage returns the Run storage interface
func (m *Manager) RunStorage() interfaces.RunStorage {
	return m.run
}

// Close closes the connection pool
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
