package inventory_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-engine/inventory"
	"github.com/warp/stock-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type fixture struct {
	store  *memory.Store
	ledger *inventory.DefaultLedger
	widget inventory.Item
	bolt   inventory.Item
	main   inventory.Location
	annex  inventory.Location
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	s := memory.New()

	widget, err := s.SaveItem(ctx, inventory.Item{Name: "Widget", SKU: "W-1", UnitOfMeasure: "pcs", ReorderLevel: dec("10")})
	require.NoError(t, err)
	bolt, err := s.SaveItem(ctx, inventory.Item{Name: "Bolt", SKU: "B-1", UnitOfMeasure: "pcs", ReorderLevel: dec("50")})
	require.NoError(t, err)
	main, err := s.SaveLocation(ctx, inventory.Location{Name: "Main"})
	require.NoError(t, err)
	annex, err := s.SaveLocation(ctx, inventory.Location{Name: "Annex"})
	require.NoError(t, err)

	return fixture{
		store:  s,
		ledger: inventory.NewLedger(s, s),
		widget: widget,
		bolt:   bolt,
		main:   main,
		annex:  annex,
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (f fixture) move(t *testing.T, item inventory.Item, loc inventory.Location, kind inventory.MovementKind, qty string, date time.Time) inventory.Movement {
	t.Helper()
	m, err := f.ledger.Append(context.Background(), inventory.Movement{
		ItemID:     item.ID,
		LocationID: loc.ID,
		Kind:       kind,
		Quantity:   dec(qty),
		Date:       date,
	})
	require.NoError(t, err)
	return m
}

// =============================================================================
// CURRENT QUANTITY
// =============================================================================

func TestLedger_CurrentQuantity_SumsAllMovementsForPair(t *testing.T) {
	// GIVEN: Mixed movements for Widget at Main, plus noise at Annex and for Bolt
	f := newFixture(t)
	d := day(2025, time.March, 1)
	f.move(t, f.widget, f.main, inventory.KindReceipt, "100", d)
	f.move(t, f.widget, f.main, inventory.KindIssue, "-30.25", d)
	f.move(t, f.widget, f.main, inventory.KindAdjustment, "0.0001", d)
	f.move(t, f.widget, f.annex, inventory.KindReceipt, "7", d)
	f.move(t, f.bolt, f.main, inventory.KindReceipt, "9", d)

	// WHEN: Reading the derived quantity
	q, err := f.ledger.CurrentQuantity(context.Background(), f.widget.ID, f.main.ID)

	// THEN: Only the pair's movements count, with exact decimal arithmetic
	require.NoError(t, err)
	assert.True(t, q.Equal(dec("69.7501")), "got %s", q)
}

func TestLedger_CurrentQuantity_NoMovementsIsZero(t *testing.T) {
	f := newFixture(t)

	q, err := f.ledger.CurrentQuantity(context.Background(), f.widget.ID, f.main.ID)

	require.NoError(t, err)
	assert.True(t, q.IsZero())
}

func TestLedger_CurrentQuantity_NoFloatDrift(t *testing.T) {
	// GIVEN: 1000 receipts of 0.1, which drift when summed as float64
	f := newFixture(t)
	for i := 0; i < 1000; i++ {
		f.move(t, f.widget, f.main, inventory.KindReceipt, "0.1", day(2025, time.January, 1))
	}

	q, err := f.ledger.CurrentQuantity(context.Background(), f.widget.ID, f.main.ID)

	require.NoError(t, err)
	assert.True(t, q.Equal(dec("100")), "got %s", q)
}

// =============================================================================
// APPEND VALIDATION
// =============================================================================

func TestLedger_Append_RejectsSignThatContradictsKind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		kind inventory.MovementKind
		qty  string
	}{
		{inventory.KindReceipt, "-1"},
		{inventory.KindReceipt, "0"},
		{inventory.KindIssue, "5"},
		{inventory.KindTransferOut, "5"},
		{inventory.KindTransferIn, "-5"},
		{inventory.KindProduction, "-1"},
		{inventory.KindConsumption, "2"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind)+"_"+tt.qty, func(t *testing.T) {
			_, err := f.ledger.Append(ctx, inventory.Movement{
				ItemID: f.widget.ID, LocationID: f.main.ID,
				Kind: tt.kind, Quantity: dec(tt.qty), Date: day(2025, 1, 1),
			})
			assert.ErrorIs(t, err, inventory.ErrInvalidQuantity)
		})
	}

	q, err := f.ledger.CurrentQuantity(ctx, f.widget.ID, f.main.ID)
	require.NoError(t, err)
	assert.True(t, q.IsZero(), "rejected movements must not be stored")
}

func TestLedger_Append_AdjustmentAcceptsAnySign(t *testing.T) {
	f := newFixture(t)

	for _, q := range []string{"-5", "0", "3"} {
		f.move(t, f.widget, f.main, inventory.KindAdjustment, q, day(2025, 1, 1))
	}

	q, err := f.ledger.CurrentQuantity(context.Background(), f.widget.ID, f.main.ID)
	require.NoError(t, err)
	assert.True(t, q.Equal(dec("-2")))
}

func TestLedger_AppendBatch_Empty(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.AppendBatch(context.Background(), nil)

	assert.Error(t, err)
}

// =============================================================================
// STOCK LEVELS
// =============================================================================

func TestLedger_StockLevels_OneRowPerPairWithMovements(t *testing.T) {
	// GIVEN: Widget at Main and Annex, Bolt only at Main
	f := newFixture(t)
	d := day(2025, time.March, 1)
	f.move(t, f.widget, f.main, inventory.KindReceipt, "100", d)
	f.move(t, f.widget, f.annex, inventory.KindReceipt, "5", d)
	f.move(t, f.widget, f.annex, inventory.KindAdjustment, "-5", d)
	f.move(t, f.bolt, f.main, inventory.KindReceipt, "60", d)

	// WHEN
	levels, err := f.ledger.StockLevels(context.Background(), inventory.LevelFilter{})

	// THEN: Three rows. Bolt at Annex has no movements and no row.
	// Widget at Annex sums to zero but still has a row.
	require.NoError(t, err)
	require.Len(t, levels, 3)

	byKey := map[inventory.StockKey]inventory.StockLevel{}
	for _, l := range levels {
		byKey[inventory.StockKey{ItemID: l.ItemID, LocationID: l.LocationID}] = l
	}

	wm := byKey[inventory.StockKey{ItemID: f.widget.ID, LocationID: f.main.ID}]
	assert.Equal(t, "Widget", wm.ItemName)
	assert.Equal(t, "W-1", wm.SKU)
	assert.Equal(t, "Main", wm.LocationName)
	assert.Equal(t, "pcs", wm.UnitOfMeasure)
	assert.True(t, wm.Quantity.Equal(dec("100")))
	assert.False(t, wm.BelowReorder)

	wa, ok := byKey[inventory.StockKey{ItemID: f.widget.ID, LocationID: f.annex.ID}]
	require.True(t, ok)
	assert.True(t, wa.Quantity.IsZero())
	assert.True(t, wa.BelowReorder)

	_, ok = byKey[inventory.StockKey{ItemID: f.bolt.ID, LocationID: f.annex.ID}]
	assert.False(t, ok)
}

func TestLedger_StockLevels_BelowReorderIsInclusive(t *testing.T) {
	// GIVEN: Widget has reorder level 10 and exactly 10 on hand
	f := newFixture(t)
	f.move(t, f.widget, f.main, inventory.KindReceipt, "10", day(2025, 1, 1))

	levels, err := f.ledger.StockLevels(context.Background(), inventory.LevelFilter{})

	require.NoError(t, err)
	require.Len(t, levels, 1)
	assert.True(t, levels[0].BelowReorder)
	assert.True(t, levels[0].ReorderLevel.Equal(dec("10")))
}

func TestLedger_StockLevels_Filters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := day(2025, 1, 1)
	f.move(t, f.widget, f.main, inventory.KindReceipt, "100", d)
	f.move(t, f.widget, f.annex, inventory.KindReceipt, "3", d)
	f.move(t, f.bolt, f.main, inventory.KindReceipt, "60", d)

	byItem, err := f.ledger.StockLevels(ctx, inventory.LevelFilter{ItemID: &f.widget.ID})
	require.NoError(t, err)
	assert.Len(t, byItem, 2)

	byLoc, err := f.ledger.StockLevels(ctx, inventory.LevelFilter{LocationID: &f.main.ID})
	require.NoError(t, err)
	assert.Len(t, byLoc, 2)

	both, err := f.ledger.StockLevels(ctx, inventory.LevelFilter{ItemID: &f.widget.ID, LocationID: &f.annex.ID})
	require.NoError(t, err)
	require.Len(t, both, 1)
	assert.True(t, both[0].Quantity.Equal(dec("3")))

	low, err := f.ledger.StockLevels(ctx, inventory.LevelFilter{BelowReorderOnly: true})
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, f.annex.ID, low[0].LocationID)
}

// =============================================================================
// MOVEMENT QUERIES
// =============================================================================

func TestLedger_Movements_OrderedByDateThenCreationDescending(t *testing.T) {
	// GIVEN: Movements appended out of date order, two sharing a date
	f := newFixture(t)
	m1 := f.move(t, f.widget, f.main, inventory.KindReceipt, "1", day(2025, 3, 2))
	m2 := f.move(t, f.widget, f.main, inventory.KindReceipt, "2", day(2025, 3, 1))
	m3 := f.move(t, f.widget, f.main, inventory.KindReceipt, "3", day(2025, 3, 2))
	m4 := f.move(t, f.widget, f.main, inventory.KindReceipt, "4", day(2025, 3, 3))

	// WHEN: Querying twice
	first, err := f.ledger.Movements(context.Background(), inventory.MovementFilter{})
	require.NoError(t, err)
	second, err := f.ledger.Movements(context.Background(), inventory.MovementFilter{})
	require.NoError(t, err)

	// THEN: Date desc, then creation desc, and stable across calls
	ids := func(ms []inventory.Movement) []inventory.MovementID {
		out := make([]inventory.MovementID, len(ms))
		for i, m := range ms {
			out[i] = m.ID
		}
		return out
	}
	assert.Equal(t, []inventory.MovementID{m4.ID, m3.ID, m1.ID, m2.ID}, ids(first))
	assert.Equal(t, ids(first), ids(second))
}

func TestLedger_Movements_Filters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.move(t, f.widget, f.main, inventory.KindReceipt, "10", day(2025, 1, 5))
	f.move(t, f.widget, f.main, inventory.KindIssue, "-2", day(2025, 1, 10))
	f.move(t, f.widget, f.annex, inventory.KindReceipt, "4", day(2025, 1, 15))
	f.move(t, f.bolt, f.main, inventory.KindReceipt, "8", day(2025, 1, 20))

	issue := inventory.KindIssue
	byKind, err := f.ledger.Movements(ctx, inventory.MovementFilter{Kind: &issue})
	require.NoError(t, err)
	require.Len(t, byKind, 1)
	assert.True(t, byKind[0].Quantity.Equal(dec("-2")))

	from, to := day(2025, 1, 10), day(2025, 1, 15)
	inRange, err := f.ledger.Movements(ctx, inventory.MovementFilter{From: &from, To: &to})
	require.NoError(t, err)
	assert.Len(t, inRange, 2, "date bounds are inclusive")

	byPair, err := f.ledger.Movements(ctx, inventory.MovementFilter{ItemID: &f.widget.ID, LocationID: &f.main.ID})
	require.NoError(t, err)
	assert.Len(t, byPair, 2)

	limited, err := f.ledger.Movements(ctx, inventory.MovementFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, f.bolt.ID, limited[0].ItemID)
}

// =============================================================================
// KEYS AND KINDS
// =============================================================================

func TestSortedKeys_DeduplicatesAndOrders(t *testing.T) {
	keys := []inventory.StockKey{
		{ItemID: 2, LocationID: 1},
		{ItemID: 1, LocationID: 2},
		{ItemID: 2, LocationID: 1},
		{ItemID: 1, LocationID: 1},
	}

	got := inventory.SortedKeys(keys)

	assert.Equal(t, []inventory.StockKey{
		{ItemID: 1, LocationID: 1},
		{ItemID: 1, LocationID: 2},
		{ItemID: 2, LocationID: 1},
	}, got)
}

func TestParseMovementKind(t *testing.T) {
	k, err := inventory.ParseMovementKind("Transfer In")
	require.NoError(t, err)
	assert.Equal(t, inventory.KindTransferIn, k)

	k, err = inventory.ParseMovementKind("consumption")
	require.NoError(t, err)
	assert.Equal(t, inventory.KindConsumption, k)

	_, err = inventory.ParseMovementKind("theft")
	assert.Error(t, err)
}
