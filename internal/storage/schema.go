package storage

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaDDL is the relational schema for the symbol registry and the
// three append-only stream tables. Every statement is idempotent so
// EnsureSchema can run on every startup.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS symbols (
	id          BIGSERIAL PRIMARY KEY,
	symbol      TEXT NOT NULL UNIQUE,
	base_asset  TEXT NOT NULL,
	quote_asset TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS symbols_map (
	symbol_id       BIGINT NOT NULL REFERENCES symbols(id),
	exchange        TEXT NOT NULL,
	exchange_symbol TEXT NOT NULL,
	is_unavailable  BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (symbol_id, exchange)
);

CREATE TABLE IF NOT EXISTS symbol_trades_stream (
	exchange   TEXT NOT NULL,
	symbol_id  BIGINT NOT NULL REFERENCES symbols(id),
	ts         TIMESTAMPTZ NOT NULL,
	price      NUMERIC NOT NULL,
	amount     NUMERIC NOT NULL,
	is_buy     BOOLEAN NOT NULL,
	update_ts  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	fetch_ts   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_symbol_trades_stream_symbol_ts
	ON symbol_trades_stream (symbol_id, ts DESC);

CREATE TABLE IF NOT EXISTS symbol_spreads_stream (
	exchange   TEXT NOT NULL,
	symbol_id  BIGINT NOT NULL REFERENCES symbols(id),
	ts         TIMESTAMPTZ NOT NULL,
	best_bid   NUMERIC NOT NULL,
	best_ask   NUMERIC NOT NULL,
	update_ts  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	fetch_ts   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_symbol_spreads_stream_symbol_ts
	ON symbol_spreads_stream (symbol_id, ts DESC);

CREATE TABLE IF NOT EXISTS symbol_true_mid_price_stream (
	symbol_id      BIGINT NOT NULL REFERENCES symbols(id),
	ts             TIMESTAMPTZ NOT NULL,
	true_mid_price NUMERIC NOT NULL,
	update_ts      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_symbol_true_mid_price_stream_symbol_ts
	ON symbol_true_mid_price_stream (symbol_id, ts DESC);

-- Tracks the trade archiver's per-table cursor.
CREATE TABLE IF NOT EXISTS archive_cursor (
	stream_table TEXT PRIMARY KEY,
	last_ts      TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema applies the DDL. Idempotent.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schemaDDL)
	return err
}
