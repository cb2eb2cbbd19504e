/*
Package inventory provides the core stock ledger.

PURPOSE:
  Stock is never stored as a mutable counter. Every change is an immutable
  Movement appended to a ledger, and the quantity of an item at a location
  is always derived by summing the movements for that (item, location) pair.

KEY CONCEPTS IN THIS FILE (types.go):
  - Movement: An immutable, signed ledger entry for one (item, location) pair
  - MovementKind: Receipt, Issue, Adjustment, Transfer In/Out, Production, Consumption
  - StockKey: The (item, location) pair quantities are aggregated over
  - StockLevel: A derived, never-stored view of the current quantity
  - Item/Location/Party: Read-only views of master records owned elsewhere

DESIGN PRINCIPLES:
  1. Immutability: Movements are never modified, only offset
  2. Precision: Uses decimal.Decimal, never float64, for every quantity
  3. Type Safety: Distinct ID types prevent mixing items and locations
  4. Attribution: Movements of one operation share a CorrelationID

USAGE:
  m := inventory.Movement{
      ItemID:     3,
      LocationID: 1,
      Kind:       inventory.KindReceipt,
      Quantity:   decimal.NewFromInt(100),
  }

SEE ALSO:
  - ledger.go: Append and query interface
  - levels.go: Stock level aggregation
  - store.go: Persistence interfaces
*/
package inventory

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ItemID int64
type LocationID int64
type PartyID int64
type MovementID int64

// =============================================================================
// DATES
// =============================================================================

// DateLayout is the wire and storage format of movement event dates.
const DateLayout = "2006-01-02"

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current UTC calendar day.
func Today() time.Time {
	return Day(time.Now())
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected %s", s, DateLayout)
	}
	return t, nil
}

// =============================================================================
// MOVEMENT KIND
// =============================================================================

type MovementKind string

const (
	KindReceipt     MovementKind = "receipt"      // Goods received, optionally from a supplier
	KindIssue       MovementKind = "issue"        // Goods issued, optionally to a customer
	KindAdjustment  MovementKind = "adjustment"   // Manual correction, any sign
	KindTransferIn  MovementKind = "transfer_in"  // Destination side of a transfer
	KindTransferOut MovementKind = "transfer_out" // Source side of a transfer
	KindProduction  MovementKind = "production"   // Manufactured item output
	KindConsumption MovementKind = "consumption"  // Component consumed by production
)

// MovementKinds lists every kind in display order.
var MovementKinds = []MovementKind{
	KindReceipt,
	KindIssue,
	KindAdjustment,
	KindTransferIn,
	KindTransferOut,
	KindProduction,
	KindConsumption,
}

var kindLabels = map[MovementKind]string{
	KindReceipt:     "Receipt",
	KindIssue:       "Issue",
	KindAdjustment:  "Adjustment",
	KindTransferIn:  "Transfer In",
	KindTransferOut: "Transfer Out",
	KindProduction:  "Production",
	KindConsumption: "Consumption",
}

// ParseMovementKind accepts either the stored value ("transfer_in") or the
// display label ("Transfer In").
func ParseMovementKind(s string) (MovementKind, error) {
	for _, k := range MovementKinds {
		if string(k) == s || kindLabels[k] == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown movement kind %q", s)
}

func (k MovementKind) Valid() bool {
	_, ok := kindLabels[k]
	return ok
}

// Label returns the human-readable name.
func (k MovementKind) Label() string {
	if l, ok := kindLabels[k]; ok {
		return l
	}
	return string(k)
}

// checkSign reports whether q carries the sign this kind requires.
// Adjustments accept any value including zero.
func (k MovementKind) checkSign(q decimal.Decimal) bool {
	switch k {
	case KindReceipt, KindTransferIn, KindProduction:
		return q.IsPositive()
	case KindIssue, KindTransferOut, KindConsumption:
		return q.IsNegative()
	case KindAdjustment:
		return true
	}
	return false
}

// =============================================================================
// MOVEMENT - Immutable ledger entry
// =============================================================================

// Movement is a signed change to the quantity of one item at one location.
// Positive quantities increase stock, negative quantities decrease it.
type Movement struct {
	ID            MovementID
	ItemID        ItemID
	LocationID    LocationID
	Kind          MovementKind
	Quantity      decimal.Decimal
	Date          time.Time // event date, day granularity
	Reference     string
	CorrelationID string // shared by every movement of one operation
	CreatedAt     time.Time
}

// Key returns the (item, location) pair the movement belongs to.
func (m Movement) Key() StockKey {
	return StockKey{ItemID: m.ItemID, LocationID: m.LocationID}
}

// =============================================================================
// STOCK KEY
// =============================================================================

// StockKey identifies the (item, location) pair quantities are derived for.
type StockKey struct {
	ItemID     ItemID
	LocationID LocationID
}

func (k StockKey) String() string {
	return fmt.Sprintf("item:%d/location:%d", k.ItemID, k.LocationID)
}

// Less orders keys by item, then location.
func (k StockKey) Less(o StockKey) bool {
	if k.ItemID != o.ItemID {
		return k.ItemID < o.ItemID
	}
	return k.LocationID < o.LocationID
}

// SortedKeys returns the distinct keys in ascending order. Stores that lock
// per key acquire locks in this order.
func SortedKeys(keys []StockKey) []StockKey {
	seen := make(map[StockKey]bool, len(keys))
	out := make([]StockKey, 0, len(keys))
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// =============================================================================
// STOCK LEVEL - Derived, never stored
// =============================================================================

type StockLevel struct {
	ItemID        ItemID
	ItemName      string
	SKU           string
	LocationID    LocationID
	LocationName  string
	Quantity      decimal.Decimal
	ReorderLevel  decimal.Decimal
	UnitOfMeasure string
	BelowReorder  bool // Quantity <= ReorderLevel
}

// StockTotal is the raw per-pair sum a Store produces before decoration.
type StockTotal struct {
	Key      StockKey
	Quantity decimal.Decimal
}

// =============================================================================
// MASTER RECORDS - Read-only views, owned by the catalog
// =============================================================================

type Item struct {
	ID            ItemID
	Name          string
	SKU           string
	UnitOfMeasure string
	Manufactured  bool
	ReorderLevel  decimal.Decimal
	CostPrice     decimal.Decimal
	SalePrice     decimal.Decimal
	CreatedAt     time.Time
}

type Location struct {
	ID        LocationID
	Name      string
	CreatedAt time.Time
}

// Party is a supplier or a customer. Both only carry a display name.
type Party struct {
	ID        PartyID
	Name      string
	CreatedAt time.Time
}
