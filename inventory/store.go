/*
store.go - Persistence interfaces for movements and master data lookups

PURPOSE:
  Defines the boundary between the stock logic and the database.
  Implementations: store/memory (tests, demos), store/sqlite (default),
  store/postgres (multi-instance).

KEY INTERFACES:
  Store:   Movement persistence (append, load, aggregate, query)
  TxStore: Check-and-append under one transaction scoped to StockKeys
  Catalog: Read-only lookups of items, locations, suppliers and customers

APPEND-ONLY CONTRACT:
  - Append(): Single movement write
  - AppendBatch(): Atomic multi-movement write
  - NO Update() or Delete() methods exist for movements

LOCK SCOPE:
  WithTx receives the (item, location) pairs an operation reads and writes.
  Everything fn reads through the Store it is handed is protected against a
  concurrent operation on the same pairs until fn returns. Process-local
  stores serialize all transactions; the postgres store takes one advisory
  lock per key in SortedKeys order.

SEE ALSO:
  - ledger.go: Higher-level interface using Store
  - movements/engine.go: The only writer
*/
package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FILTERS
// =============================================================================

// MovementFilter restricts a movement query. Nil fields match everything.
// From and To are inclusive event dates.
type MovementFilter struct {
	ItemID        *ItemID
	LocationID    *LocationID
	Kind          *MovementKind
	From          *time.Time
	To            *time.Time
	CorrelationID string
	Limit         int // 0 means unlimited
}

// Matches reports whether m passes the filter (Limit is not applied).
func (f MovementFilter) Matches(m Movement) bool {
	if f.ItemID != nil && m.ItemID != *f.ItemID {
		return false
	}
	if f.LocationID != nil && m.LocationID != *f.LocationID {
		return false
	}
	if f.Kind != nil && m.Kind != *f.Kind {
		return false
	}
	if f.From != nil && m.Date.Before(Day(*f.From)) {
		return false
	}
	if f.To != nil && m.Date.After(Day(*f.To)) {
		return false
	}
	if f.CorrelationID != "" && m.CorrelationID != f.CorrelationID {
		return false
	}
	return true
}

// LevelFilter restricts a stock level query.
type LevelFilter struct {
	ItemID           *ItemID
	LocationID       *LocationID
	BelowReorderOnly bool
}

// =============================================================================
// STORE - Movement persistence (append-only)
// =============================================================================

// Store handles persistence of movements.
// IMPORTANT: Store is APPEND-ONLY. Corrections are offsetting movements.
type Store interface {
	// Append persists one movement and returns it with ID and CreatedAt set.
	Append(ctx context.Context, m Movement) (Movement, error)

	// AppendBatch persists movements atomically, in order.
	// Either all succeed or none do.
	AppendBatch(ctx context.Context, ms []Movement) ([]Movement, error)

	// Quantity returns the sum of all movements for key, zero if none exist.
	Quantity(ctx context.Context, key StockKey) (decimal.Decimal, error)

	// Totals returns one row per pair with at least one movement.
	Totals(ctx context.Context, filter LevelFilter) ([]StockTotal, error)

	// Movements returns matching movements ordered by event date descending,
	// then creation order descending.
	Movements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction holding locks on keys.
	// If fn returns error, everything fn wrote is rolled back.
	WithTx(ctx context.Context, keys []StockKey, fn func(Store) error) error
}

// =============================================================================
// CATALOG - Master record lookups (owned by the CRUD collaborator)
// =============================================================================

// Catalog looks up master records by id. A missing record is reported as
// (nil, nil); callers decide whether that is a NotFoundError.
type Catalog interface {
	Item(ctx context.Context, id ItemID) (*Item, error)
	Location(ctx context.Context, id LocationID) (*Location, error)
	Supplier(ctx context.Context, id PartyID) (*Party, error)
	Customer(ctx context.Context, id PartyID) (*Party, error)
}
