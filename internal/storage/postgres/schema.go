package postgres

// schemaSQL creates the tables on first connect. Statements are idempotent.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS stock_records (
	symbol              TEXT PRIMARY KEY,
	name                TEXT NOT NULL DEFAULT '',
	exchange            TEXT NOT NULL DEFAULT '',
	industry            TEXT NOT NULL DEFAULT '',
	price               DOUBLE PRECISION NOT NULL DEFAULT 0,
	market_cap          DOUBLE PRECISION NOT NULL DEFAULT 0,
	currency            TEXT NOT NULL DEFAULT 'USD',
	is_price_usd        BOOLEAN NOT NULL DEFAULT TRUE,
	original_price      DOUBLE PRECISION NOT NULL DEFAULT 0,
	original_market_cap DOUBLE PRECISION NOT NULL DEFAULT 0,
	forex_rate          DOUBLE PRECISION NOT NULL DEFAULT 1,
	fundamentals        JSONB NOT NULL DEFAULT '{}',
	metrics             JSONB NOT NULL DEFAULT '{}',
	margin_of_safety    DOUBLE PRECISION NOT NULL DEFAULT 0,
	skip_reason         TEXT NOT NULL DEFAULT '',
	last_updated        TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_stock_records_last_updated ON stock_records (last_updated);
CREATE INDEX IF NOT EXISTS idx_stock_records_margin ON stock_records (margin_of_safety DESC) WHERE skip_reason = '';

CREATE TABLE IF NOT EXISTS universe (
	symbol      TEXT PRIMARY KEY,
	description TEXT NOT NULL DEFAULT '',
	exchange    TEXT NOT NULL DEFAULT '',
	currency    TEXT NOT NULL DEFAULT '',
	type        TEXT NOT NULL DEFAULT '',
	active      BOOLEAN NOT NULL DEFAULT TRUE,
	listed_at   TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	run_id            TEXT PRIMARY KEY,
	kind              TEXT NOT NULL,
	total             INTEGER NOT NULL DEFAULT 0,
	updated           INTEGER NOT NULL DEFAULT 0,
	skipped           INTEGER NOT NULL DEFAULT 0,
	skipped_by_reason JSONB NOT NULL DEFAULT '{}',
	errors            INTEGER NOT NULL DEFAULT 0,
	errors_by_cause   JSONB NOT NULL DEFAULT '{}',
	started_at        TIMESTAMPTZ NOT NULL,
	finished_at       TIMESTAMPTZ NOT NULL,
	cancelled         BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs (started_at DESC);
`
