// Package store selects and opens the configured persistence backend.
package store

import (
	"context"
	"fmt"

	"github.com/warp/stock-engine/bom"
	"github.com/warp/stock-engine/config"
	"github.com/warp/stock-engine/inventory"
	"github.com/warp/stock-engine/store/memory"
	"github.com/warp/stock-engine/store/postgres"
	"github.com/warp/stock-engine/store/sqlite"
)

// Backend is implemented by memory.Store, sqlite.Store and postgres.Store.
type Backend interface {
	inventory.TxStore
	inventory.Catalog
	bom.EdgeStore

	SaveItem(ctx context.Context, it inventory.Item) (inventory.Item, error)
	Items(ctx context.Context) ([]inventory.Item, error)
	SaveLocation(ctx context.Context, l inventory.Location) (inventory.Location, error)
	Locations(ctx context.Context) ([]inventory.Location, error)
	SaveSupplier(ctx context.Context, p inventory.Party) (inventory.Party, error)
	Suppliers(ctx context.Context) ([]inventory.Party, error)
	SaveCustomer(ctx context.Context, p inventory.Party) (inventory.Party, error)
	Customers(ctx context.Context) ([]inventory.Party, error)

	Reset(ctx context.Context) error
}

var (
	_ Backend = (*memory.Store)(nil)
	_ Backend = (*sqlite.Store)(nil)
	_ Backend = (*postgres.Store)(nil)
)

// Open returns the backend named by cfg.Driver and a func that closes it.
func Open(ctx context.Context, cfg config.StoreConfig) (Backend, func() error, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.New(), func() error { return nil }, nil
	case config.DriverSQLite:
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.DriverPostgres:
		s, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
