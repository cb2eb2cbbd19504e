package postgres

import (
	"context"
	"fmt"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool opens a connection pool and registers the NUMERIC <-> decimal.Decimal
// codec on every connection.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping DB: %w", err)
	}
	return pool, nil
}

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schema = `
CREATE TABLE IF NOT EXISTS items (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	sku TEXT NOT NULL,
	unit_of_measure TEXT NOT NULL DEFAULT '',
	manufactured BOOLEAN NOT NULL DEFAULT FALSE,
	reorder_level NUMERIC NOT NULL DEFAULT 0,
	cost_price NUMERIC NOT NULL DEFAULT 0,
	sale_price NUMERIC NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_items_name ON items (LOWER(name));
CREATE UNIQUE INDEX IF NOT EXISTS uq_items_sku ON items (LOWER(sku));

CREATE TABLE IF NOT EXISTS locations (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_locations_name ON locations (LOWER(name));

CREATE TABLE IF NOT EXISTS suppliers (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS customers (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS stock_movements (
	id BIGSERIAL PRIMARY KEY,
	item_id BIGINT NOT NULL REFERENCES items(id),
	location_id BIGINT NOT NULL REFERENCES locations(id),
	kind TEXT NOT NULL,
	quantity NUMERIC NOT NULL,
	event_date DATE NOT NULL,
	reference TEXT,
	correlation_id TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_movements_item_location ON stock_movements (item_id, location_id);
CREATE INDEX IF NOT EXISTS idx_movements_date ON stock_movements (event_date DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_movements_correlation ON stock_movements (correlation_id);

CREATE TABLE IF NOT EXISTS bom_edges (
	id BIGSERIAL PRIMARY KEY,
	parent_id BIGINT NOT NULL REFERENCES items(id),
	component_id BIGINT NOT NULL REFERENCES items(id),
	quantity NUMERIC NOT NULL CHECK (quantity > 0),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (parent_id, component_id),
	CHECK (parent_id <> component_id)
);
CREATE INDEX IF NOT EXISTS idx_bom_edges_parent ON bom_edges (parent_id);
`

// Migrate creates the schema if it does not exist.
func Migrate(ctx context.Context, q Querier) error {
	if _, err := q.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
