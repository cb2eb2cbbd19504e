package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-engine/bom"
	"github.com/warp/stock-engine/inventory"
)

func seed(t *testing.T) (*Store, inventory.Item, inventory.Location) {
	t.Helper()
	ctx := context.Background()
	s := New()
	it, err := s.SaveItem(ctx, inventory.Item{Name: "Bolt", SKU: "B-1", UnitOfMeasure: "pcs"})
	require.NoError(t, err)
	loc, err := s.SaveLocation(ctx, inventory.Location{Name: "Bin A"})
	require.NoError(t, err)
	return s, it, loc
}

func TestWithTx_RollbackDiscardsAppends(t *testing.T) {
	// GIVEN: One committed receipt
	ctx := context.Background()
	s, it, loc := seed(t)
	_, err := s.Append(ctx, inventory.Movement{
		ItemID: it.ID, LocationID: loc.ID, Kind: inventory.KindReceipt,
		Quantity: decimal.NewFromInt(10), Date: inventory.Today(),
	})
	require.NoError(t, err)

	// WHEN: A transaction appends and then fails
	boom := errors.New("boom")
	err = s.WithTx(ctx, []inventory.StockKey{{ItemID: it.ID, LocationID: loc.ID}}, func(tx inventory.Store) error {
		_, err := tx.Append(ctx, inventory.Movement{
			ItemID: it.ID, LocationID: loc.ID, Kind: inventory.KindIssue,
			Quantity: decimal.NewFromInt(-4), Date: inventory.Today(),
		})
		require.NoError(t, err)
		return boom
	})

	// THEN: The error is returned and only the receipt remains
	assert.ErrorIs(t, err, boom)
	qty, err := s.Quantity(ctx, inventory.StockKey{ItemID: it.ID, LocationID: loc.ID})
	require.NoError(t, err)
	assert.True(t, qty.Equal(decimal.NewFromInt(10)))

	// AND: The next movement reuses the rolled back ID
	m, err := s.Append(ctx, inventory.Movement{
		ItemID: it.ID, LocationID: loc.ID, Kind: inventory.KindReceipt,
		Quantity: decimal.NewFromInt(1), Date: inventory.Today(),
	})
	require.NoError(t, err)
	assert.Equal(t, inventory.MovementID(2), m.ID)
}

func TestAppendBatch_UnknownLocationIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s, it, loc := seed(t)

	_, err := s.AppendBatch(ctx, []inventory.Movement{
		{ItemID: it.ID, LocationID: loc.ID, Kind: inventory.KindReceipt, Quantity: decimal.NewFromInt(1)},
		{ItemID: it.ID, LocationID: 99, Kind: inventory.KindReceipt, Quantity: decimal.NewFromInt(1)},
	})
	require.Error(t, err)

	ms, err := s.Movements(ctx, inventory.MovementFilter{})
	require.NoError(t, err)
	assert.Empty(t, ms)
}

func TestEdges_DuplicatePairRejected(t *testing.T) {
	ctx := context.Background()
	s, it, _ := seed(t)
	comp, err := s.SaveItem(ctx, inventory.Item{Name: "Nut", SKU: "N-1"})
	require.NoError(t, err)

	first, err := s.InsertEdge(ctx, bom.Edge{ParentID: it.ID, ComponentID: comp.ID, Quantity: decimal.NewFromInt(2)})
	require.NoError(t, err)

	_, err = s.InsertEdge(ctx, bom.Edge{ParentID: it.ID, ComponentID: comp.ID, Quantity: decimal.NewFromInt(3)})
	assert.ErrorIs(t, err, inventory.ErrDuplicateEdge)

	// Updating an edge onto its own pair is not a duplicate.
	first.Quantity = decimal.NewFromInt(4)
	updated, err := s.UpdateEdge(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, updated.CreatedAt)

	deleted, err := s.DeleteEdge(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = s.DeleteEdge(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestMasterData_NamesAreCaseInsensitiveUnique(t *testing.T) {
	ctx := context.Background()
	s, _, _ := seed(t)

	_, err := s.SaveItem(ctx, inventory.Item{Name: "BOLT", SKU: "other"})
	assert.ErrorIs(t, err, inventory.ErrDuplicateRecord)
	_, err = s.SaveLocation(ctx, inventory.Location{Name: "bin a"})
	assert.ErrorIs(t, err, inventory.ErrDuplicateRecord)

	require.NoError(t, s.Reset(ctx))
	items, err := s.Items(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}
