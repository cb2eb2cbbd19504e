/*
Package movements implements the stock operations: Receive, Issue, Adjust,
Transfer and Produce.

PURPOSE:
  This is the only writer of the ledger. Every operation follows the same
  shape:
    1. Validate input (quantity sign, distinct locations)
    2. Resolve referenced records (item, location, supplier, customer, BOM)
    3. Inside one TxStore transaction scoped to the affected (item, location)
       pairs: re-read current quantities, check sufficiency, append
  Any failure before commit leaves zero movements behind.

CORRELATION:
  All movements written by one call share a CorrelationID, event date and
  reference, so a transfer pair or a production set can be told apart from
  its neighbours in the history.

SEE ALSO:
  - annotate.go: Reference text composition (outside the transaction)
  - inventory/ledger.go: Append validation
  - bom/graph.go: DirectComponents used by Produce
*/
package movements

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/stock-engine/bom"
	"github.com/warp/stock-engine/inventory"
)

// ComponentSource lists the direct components of a manufactured item.
// *bom.Manager implements it.
type ComponentSource interface {
	DirectComponents(ctx context.Context, parentID inventory.ItemID) ([]bom.Component, error)
}

// Engine executes stock operations.
type Engine struct {
	store      inventory.TxStore
	catalog    inventory.Catalog
	components ComponentSource
	logger     zerolog.Logger

	today         func() time.Time
	correlationID func() string
}

func NewEngine(store inventory.TxStore, catalog inventory.Catalog, components ComponentSource, logger zerolog.Logger) *Engine {
	return &Engine{
		store:         store,
		catalog:       catalog,
		components:    components,
		logger:        logger,
		today:         inventory.Today,
		correlationID: func() string { return uuid.NewString() },
	}
}

// =============================================================================
// INPUTS
// =============================================================================

// Date is optional on every input; the zero value means today (UTC).

type ReceiveInput struct {
	ItemID     inventory.ItemID
	LocationID inventory.LocationID
	Quantity   decimal.Decimal
	SupplierID *inventory.PartyID
	Reference  string
	Date       time.Time
}

type IssueInput struct {
	ItemID     inventory.ItemID
	LocationID inventory.LocationID
	Quantity   decimal.Decimal
	CustomerID *inventory.PartyID
	Reference  string
	Date       time.Time
}

type AdjustInput struct {
	ItemID     inventory.ItemID
	LocationID inventory.LocationID
	Quantity   decimal.Decimal // signed, zero allowed
	Reference  string
	Date       time.Time
}

type TransferInput struct {
	ItemID         inventory.ItemID
	FromLocationID inventory.LocationID
	ToLocationID   inventory.LocationID
	Quantity       decimal.Decimal
	Reference      string
	Date           time.Time
}

type ProduceInput struct {
	ItemID     inventory.ItemID
	LocationID inventory.LocationID
	Quantity   decimal.Decimal
	Reference  string
	Date       time.Time
}

// =============================================================================
// RECEIVE
// =============================================================================

// Receive records goods arriving at a location.
func (e *Engine) Receive(ctx context.Context, in ReceiveInput) (inventory.Movement, error) {
	if err := requirePositive(in.Quantity); err != nil {
		return inventory.Movement{}, err
	}
	if _, err := e.item(ctx, in.ItemID); err != nil {
		return inventory.Movement{}, err
	}
	if _, err := e.location(ctx, in.LocationID); err != nil {
		return inventory.Movement{}, err
	}
	var supplier *inventory.Party
	if in.SupplierID != nil {
		var err error
		if supplier, err = e.supplier(ctx, *in.SupplierID); err != nil {
			return inventory.Movement{}, err
		}
	}

	m := inventory.Movement{
		ItemID:        in.ItemID,
		LocationID:    in.LocationID,
		Kind:          inventory.KindReceipt,
		Quantity:      in.Quantity,
		Date:          e.eventDate(in.Date),
		Reference:     Annotate(in.Reference, PartySupplier, supplier),
		CorrelationID: e.correlationID(),
	}
	saved, err := e.commit(ctx, []inventory.StockKey{m.Key()}, func(context.Context, *inventory.DefaultLedger) ([]inventory.Movement, error) {
		return []inventory.Movement{m}, nil
	})
	if err != nil {
		return inventory.Movement{}, err
	}
	e.logCommitted("receive", saved)
	return saved[0], nil
}

// =============================================================================
// ISSUE
// =============================================================================

// Issue records goods leaving a location. The location must hold at least
// the requested quantity.
func (e *Engine) Issue(ctx context.Context, in IssueInput) (inventory.Movement, error) {
	if err := requirePositive(in.Quantity); err != nil {
		return inventory.Movement{}, err
	}
	if _, err := e.item(ctx, in.ItemID); err != nil {
		return inventory.Movement{}, err
	}
	if _, err := e.location(ctx, in.LocationID); err != nil {
		return inventory.Movement{}, err
	}
	var customer *inventory.Party
	if in.CustomerID != nil {
		var err error
		if customer, err = e.customer(ctx, *in.CustomerID); err != nil {
			return inventory.Movement{}, err
		}
	}

	m := inventory.Movement{
		ItemID:        in.ItemID,
		LocationID:    in.LocationID,
		Kind:          inventory.KindIssue,
		Quantity:      in.Quantity.Neg(),
		Date:          e.eventDate(in.Date),
		Reference:     Annotate(in.Reference, PartyCustomer, customer),
		CorrelationID: e.correlationID(),
	}
	saved, err := e.commit(ctx, []inventory.StockKey{m.Key()}, func(ctx context.Context, l *inventory.DefaultLedger) ([]inventory.Movement, error) {
		if err := requireAvailable(ctx, l, in.ItemID, in.LocationID, in.Quantity); err != nil {
			return nil, err
		}
		return []inventory.Movement{m}, nil
	})
	if err != nil {
		e.logRejected("issue", err)
		return inventory.Movement{}, err
	}
	e.logCommitted("issue", saved)
	return saved[0], nil
}

// =============================================================================
// ADJUST
// =============================================================================

// Adjust records a signed correction. No sufficiency check: stock may be
// driven to any value, including below zero.
func (e *Engine) Adjust(ctx context.Context, in AdjustInput) (inventory.Movement, error) {
	if _, err := e.item(ctx, in.ItemID); err != nil {
		return inventory.Movement{}, err
	}
	if _, err := e.location(ctx, in.LocationID); err != nil {
		return inventory.Movement{}, err
	}

	m := inventory.Movement{
		ItemID:        in.ItemID,
		LocationID:    in.LocationID,
		Kind:          inventory.KindAdjustment,
		Quantity:      in.Quantity,
		Date:          e.eventDate(in.Date),
		Reference:     in.Reference,
		CorrelationID: e.correlationID(),
	}
	saved, err := e.commit(ctx, []inventory.StockKey{m.Key()}, func(context.Context, *inventory.DefaultLedger) ([]inventory.Movement, error) {
		return []inventory.Movement{m}, nil
	})
	if err != nil {
		return inventory.Movement{}, err
	}
	e.logCommitted("adjust", saved)
	return saved[0], nil
}

// =============================================================================
// TRANSFER
// =============================================================================

// Transfer moves stock between two locations. It returns the Transfer Out
// movement followed by the Transfer In movement.
func (e *Engine) Transfer(ctx context.Context, in TransferInput) ([]inventory.Movement, error) {
	if err := requirePositive(in.Quantity); err != nil {
		return nil, err
	}
	if in.FromLocationID == in.ToLocationID {
		return nil, &inventory.SameLocationError{LocationID: in.FromLocationID}
	}
	if _, err := e.item(ctx, in.ItemID); err != nil {
		return nil, err
	}
	if _, err := e.location(ctx, in.FromLocationID); err != nil {
		return nil, err
	}
	if _, err := e.location(ctx, in.ToLocationID); err != nil {
		return nil, err
	}

	date := e.eventDate(in.Date)
	correlationID := e.correlationID()
	out := inventory.Movement{
		ItemID:        in.ItemID,
		LocationID:    in.FromLocationID,
		Kind:          inventory.KindTransferOut,
		Quantity:      in.Quantity.Neg(),
		Date:          date,
		Reference:     in.Reference,
		CorrelationID: correlationID,
	}
	inbound := out
	inbound.LocationID = in.ToLocationID
	inbound.Kind = inventory.KindTransferIn
	inbound.Quantity = in.Quantity

	keys := []inventory.StockKey{out.Key(), inbound.Key()}
	saved, err := e.commit(ctx, keys, func(ctx context.Context, l *inventory.DefaultLedger) ([]inventory.Movement, error) {
		if err := requireAvailable(ctx, l, in.ItemID, in.FromLocationID, in.Quantity); err != nil {
			return nil, err
		}
		return []inventory.Movement{out, inbound}, nil
	})
	if err != nil {
		e.logRejected("transfer", err)
		return nil, err
	}
	e.logCommitted("transfer", saved)
	return saved, nil
}

// =============================================================================
// PRODUCE
// =============================================================================

// Produce manufactures Quantity units of a manufactured item from its direct
// components. It returns the Production movement followed by one Consumption
// movement per component, in BOM order.
//
// Only one BOM level is consumed. A component that is itself manufactured
// must already be in stock; it is never produced on the fly.
func (e *Engine) Produce(ctx context.Context, in ProduceInput) ([]inventory.Movement, error) {
	if err := requirePositive(in.Quantity); err != nil {
		return nil, err
	}
	item, err := e.item(ctx, in.ItemID)
	if err != nil {
		return nil, err
	}
	if _, err := e.location(ctx, in.LocationID); err != nil {
		return nil, err
	}
	if !item.Manufactured {
		return nil, &inventory.NotManufacturedError{ItemID: item.ID, ItemName: item.Name}
	}
	components, err := e.components.DirectComponents(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("load bom for item %d: %w", item.ID, err)
	}
	if len(components) == 0 {
		return nil, &inventory.NoBOMError{ItemID: item.ID, ItemName: item.Name}
	}

	names := make(map[inventory.ItemID]string, len(components))
	for _, c := range components {
		comp, err := e.catalog.Item(ctx, c.ItemID)
		if err != nil {
			return nil, err
		}
		if comp != nil {
			names[c.ItemID] = comp.Name
		}
	}

	date := e.eventDate(in.Date)
	correlationID := e.correlationID()
	consumptionRef := ProductionReference(item.Name, in.Reference)

	batch := make([]inventory.Movement, 0, len(components)+1)
	batch = append(batch, inventory.Movement{
		ItemID:        item.ID,
		LocationID:    in.LocationID,
		Kind:          inventory.KindProduction,
		Quantity:      in.Quantity,
		Date:          date,
		Reference:     in.Reference,
		CorrelationID: correlationID,
	})
	keys := []inventory.StockKey{batch[0].Key()}
	for _, c := range components {
		m := inventory.Movement{
			ItemID:        c.ItemID,
			LocationID:    in.LocationID,
			Kind:          inventory.KindConsumption,
			Quantity:      c.Quantity.Mul(in.Quantity).Neg(),
			Date:          date,
			Reference:     consumptionRef,
			CorrelationID: correlationID,
		}
		batch = append(batch, m)
		keys = append(keys, m.Key())
	}

	saved, err := e.commit(ctx, keys, func(ctx context.Context, l *inventory.DefaultLedger) ([]inventory.Movement, error) {
		var shortages []inventory.ComponentShortage
		for _, m := range batch[1:] {
			required := m.Quantity.Neg()
			available, err := l.CurrentQuantity(ctx, m.ItemID, m.LocationID)
			if err != nil {
				return nil, err
			}
			if available.LessThan(required) {
				shortages = append(shortages, inventory.ComponentShortage{
					ComponentID:   m.ItemID,
					ComponentName: names[m.ItemID],
					Required:      required,
					Available:     available,
				})
			}
		}
		if len(shortages) > 0 {
			return nil, &inventory.InsufficientComponentStockError{
				ItemID:     item.ID,
				LocationID: in.LocationID,
				Shortages:  shortages,
			}
		}
		return batch, nil
	})
	if err != nil {
		e.logRejected("produce", err)
		return nil, err
	}
	e.logCommitted("produce", saved)
	return saved, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// commit opens a transaction over keys, lets build decide what to write
// using a ledger bound to the transaction, and appends the result as one
// batch.
func (e *Engine) commit(
	ctx context.Context,
	keys []inventory.StockKey,
	build func(ctx context.Context, l *inventory.DefaultLedger) ([]inventory.Movement, error),
) ([]inventory.Movement, error) {
	var saved []inventory.Movement
	err := e.store.WithTx(ctx, inventory.SortedKeys(keys), func(tx inventory.Store) error {
		l := inventory.NewLedger(tx, nil)
		batch, err := build(ctx, l)
		if err != nil {
			return err
		}
		saved, err = l.AppendBatch(ctx, batch)
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func requireAvailable(ctx context.Context, l *inventory.DefaultLedger, itemID inventory.ItemID, locationID inventory.LocationID, requested decimal.Decimal) error {
	available, err := l.CurrentQuantity(ctx, itemID, locationID)
	if err != nil {
		return err
	}
	if available.LessThan(requested) {
		return &inventory.InsufficientStockError{
			ItemID:     itemID,
			LocationID: locationID,
			Available:  available,
			Requested:  requested,
		}
	}
	return nil
}

func requirePositive(q decimal.Decimal) error {
	if !q.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive, got %s", inventory.ErrInvalidQuantity, q.String())
	}
	return nil
}

func (e *Engine) eventDate(d time.Time) time.Time {
	if d.IsZero() {
		return e.today()
	}
	return inventory.Day(d)
}

func (e *Engine) item(ctx context.Context, id inventory.ItemID) (*inventory.Item, error) {
	item, err := e.catalog.Item(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, &inventory.NotFoundError{Kind: "item", ID: int64(id)}
	}
	return item, nil
}

func (e *Engine) location(ctx context.Context, id inventory.LocationID) (*inventory.Location, error) {
	loc, err := e.catalog.Location(ctx, id)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		return nil, &inventory.NotFoundError{Kind: "location", ID: int64(id)}
	}
	return loc, nil
}

func (e *Engine) supplier(ctx context.Context, id inventory.PartyID) (*inventory.Party, error) {
	p, err := e.catalog.Supplier(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &inventory.NotFoundError{Kind: "supplier", ID: int64(id)}
	}
	return p, nil
}

func (e *Engine) customer(ctx context.Context, id inventory.PartyID) (*inventory.Party, error) {
	p, err := e.catalog.Customer(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &inventory.NotFoundError{Kind: "customer", ID: int64(id)}
	}
	return p, nil
}

func (e *Engine) logCommitted(op string, ms []inventory.Movement) {
	if len(ms) == 0 {
		return
	}
	e.logger.Info().
		Str("operation", op).
		Str("correlation_id", ms[0].CorrelationID).
		Int64("item_id", int64(ms[0].ItemID)).
		Int64("location_id", int64(ms[0].LocationID)).
		Str("quantity", ms[0].Quantity.String()).
		Int("movements", len(ms)).
		Msg("stock operation committed")
}

func (e *Engine) logRejected(op string, err error) {
	if inventory.IsClientError(err) {
		e.logger.Debug().Str("operation", op).Err(err).Msg("stock operation rejected")
		return
	}
	e.logger.Error().Str("operation", op).Err(err).Msg("stock operation failed")
}
