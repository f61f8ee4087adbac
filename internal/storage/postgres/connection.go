package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/valuescreen/internal/common"
)

// DB wraps the sqlx connection pool
type DB struct {
	db     *sqlx.DB
	logger arbor.ILogger
}

// NewDB connects to Postgres and ensures the schema exists
func NewDB(ctx context.Context, logger arbor.ILogger, config *common.PostgresConfig) (*DB, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	maxOpen := config.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 10
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen / 2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	logger.Info().Int("max_open_conns", maxOpen).Msg("Postgres connection established")

	return &DB{db: db, logger: logger}, nil
}

// Conn returns the underlying pool
func (d *DB) Conn() *sqlx.DB {
	return d.db
}

// Close closes the connection pool
func (d *DB) Close() error {
	if d.db != nil {
		d.logger.Debug().Msg("Closing postgres connection")
		return d.db.Close()
	}
	return nil
}
