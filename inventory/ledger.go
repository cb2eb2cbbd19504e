/*
ledger.go - Append-only stock movement log

PURPOSE:
  The Ledger is the immutable source of truth for stock. Every receipt,
  issue, adjustment, transfer and production run is recorded here.
  Quantities are always computed by summing movements - there's no
  separate "on hand" field that can get out of sync.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. CONSISTENT: CurrentQuantity(i, l) == sum of every movement for (i, l)
  3. SIGNED BY KIND: Receipts, transfers in and production add stock;
     issues, transfers out and consumption remove it; adjustments go either way

CORRECTIONS:
  A wrong receipt is not edited. An Adjustment with the opposite sign is
  appended and both entries stay in the history.

SEE ALSO:
  - store.go: Low-level persistence interface
  - levels.go: Stock level aggregation
  - movements/engine.go: The operations that write here
*/
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER - Append-only movement log
// =============================================================================

// Ledger is the source of truth for all stock changes.
type Ledger interface {
	// Append adds one movement.
	Append(ctx context.Context, m Movement) (Movement, error)

	// AppendBatch adds movements atomically.
	AppendBatch(ctx context.Context, ms []Movement) ([]Movement, error)

	// CurrentQuantity is the sum of all movements for the pair, zero if none.
	CurrentQuantity(ctx context.Context, itemID ItemID, locationID LocationID) (decimal.Decimal, error)

	// StockLevels returns one row per pair that has at least one movement.
	StockLevels(ctx context.Context, filter LevelFilter) ([]StockLevel, error)

	// Movements returns matching movements, newest event date first.
	Movements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using Store
// =============================================================================

type DefaultLedger struct {
	Store   Store
	Catalog Catalog
}

// NewLedger builds a ledger over store. Catalog decorates stock levels with
// names and reorder thresholds; it may be nil when only quantities are needed.
func NewLedger(store Store, catalog Catalog) *DefaultLedger {
	return &DefaultLedger{Store: store, Catalog: catalog}
}

func (l *DefaultLedger) Append(ctx context.Context, m Movement) (Movement, error) {
	if err := validateMovement(m); err != nil {
		return Movement{}, err
	}
	return l.Store.Append(ctx, m)
}

func (l *DefaultLedger) AppendBatch(ctx context.Context, ms []Movement) ([]Movement, error) {
	if len(ms) == 0 {
		return nil, errors.New("empty movement batch")
	}
	for _, m := range ms {
		if err := validateMovement(m); err != nil {
			return nil, err
		}
	}
	return l.Store.AppendBatch(ctx, ms)
}

func (l *DefaultLedger) CurrentQuantity(ctx context.Context, itemID ItemID, locationID LocationID) (decimal.Decimal, error) {
	return l.Store.Quantity(ctx, StockKey{ItemID: itemID, LocationID: locationID})
}

func (l *DefaultLedger) Movements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	return l.Store.Movements(ctx, filter)
}

func validateMovement(m Movement) error {
	if m.ItemID <= 0 {
		return fmt.Errorf("movement requires an item id, got %d", m.ItemID)
	}
	if m.LocationID <= 0 {
		return fmt.Errorf("movement requires a location id, got %d", m.LocationID)
	}
	if !m.Kind.Valid() {
		return fmt.Errorf("unknown movement kind %q", m.Kind)
	}
	if !m.Kind.checkSign(m.Quantity) {
		return fmt.Errorf("%w: %s movement cannot carry %s",
			ErrInvalidQuantity, m.Kind.Label(), m.Quantity.String())
	}
	if m.Date.IsZero() {
		return errors.New("movement requires an event date")
	}
	return nil
}
