package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/valuescreen/internal/common"
	"github.com/ternarybob/valuescreen/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db       *BadgerDB
	stock    interfaces.StockStorage
	universe interfaces.UniverseStorage
	run      interfaces.RunStorage
	logger   arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := newManager(db, logger)
	logger.Info().Str("path", config.Path).Msg("Badger storage manager initialized")

	return manager, nil
}

func newManager(db *BadgerDB, logger arbor.ILogger) *Manager {
	return &Manager{
		db:       db,
		stock:    NewStockStorage(db, logger),
		universe: NewUniverseStorage(db, logger),
		run:      NewRunStorage(db, logger),
		logger:   logger,
	}
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

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
