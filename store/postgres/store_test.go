package postgres

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-engine/bom"
	"github.com/warp/stock-engine/inventory"
)

func TestAdvisoryLockKeys_SortedAndDeduplicated(t *testing.T) {
	keys := []inventory.StockKey{
		{ItemID: 2, LocationID: 1},
		{ItemID: 1, LocationID: 3},
		{ItemID: 2, LocationID: 1},
		{ItemID: 1, LocationID: 2},
	}

	got := advisoryLockKeys(keys)

	require.Len(t, got, 3)
	assert.Equal(t, "stock:"+inventory.StockKey{ItemID: 1, LocationID: 2}.String(), got[0])
	assert.Equal(t, "stock:"+inventory.StockKey{ItemID: 1, LocationID: 3}.String(), got[1])
	assert.Equal(t, "stock:"+inventory.StockKey{ItemID: 2, LocationID: 1}.String(), got[2])
}

func TestWhereClause(t *testing.T) {
	assert.Equal(t, "", whereClause(nil))
	assert.Equal(t, " WHERE a = $1 AND b = $2", whereClause([]string{"a = $1", "b = $2"}))
}

// The tests below need a disposable database; every run truncates it.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("STOCK_ENGINE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("STOCK_ENGINE_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, url)
	require.NoError(t, err)
	require.NoError(t, s.Reset(ctx))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_QuantityIsExact(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	item, err := s.SaveItem(ctx, inventory.Item{Name: "Bolt", SKU: "B-1"})
	require.NoError(t, err)
	loc, err := s.SaveLocation(ctx, inventory.Location{Name: "Main"})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := s.Append(ctx, inventory.Movement{
			ItemID: item.ID, LocationID: loc.ID, Kind: inventory.KindReceipt,
			Quantity: decimal.RequireFromString("0.1"), Date: inventory.Today(), CorrelationID: "c",
		})
		require.NoError(t, err)
	}

	qty, err := s.Quantity(ctx, inventory.StockKey{ItemID: item.ID, LocationID: loc.ID})
	require.NoError(t, err)
	assert.True(t, qty.Equal(decimal.NewFromInt(1)), "got %s", qty)
}

func TestStore_WithTxSerializesCheckAndAppend(t *testing.T) {
	// GIVEN: 10 units on hand
	s := openTestStore(t)
	ctx := context.Background()
	item, err := s.SaveItem(ctx, inventory.Item{Name: "Bolt", SKU: "B-1"})
	require.NoError(t, err)
	loc, err := s.SaveLocation(ctx, inventory.Location{Name: "Main"})
	require.NoError(t, err)
	key := inventory.StockKey{ItemID: item.ID, LocationID: loc.ID}
	_, err = s.Append(ctx, inventory.Movement{
		ItemID: item.ID, LocationID: loc.ID, Kind: inventory.KindReceipt,
		Quantity: decimal.NewFromInt(10), Date: inventory.Today(), CorrelationID: "seed",
	})
	require.NoError(t, err)

	// WHEN: 20 transactions each try to take 1 unit after checking availability
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithTx(ctx, []inventory.StockKey{key}, func(tx inventory.Store) error {
				qty, err := tx.Quantity(ctx, key)
				if err != nil {
					return err
				}
				if qty.LessThan(decimal.NewFromInt(1)) {
					return inventory.ErrInsufficientStock
				}
				_, err = tx.Append(ctx, inventory.Movement{
					ItemID: item.ID, LocationID: loc.ID, Kind: inventory.KindIssue,
					Quantity: decimal.NewFromInt(-1), Date: inventory.Today(), CorrelationID: "issue",
				})
				return err
			})
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// THEN: Exactly 10 succeed and stock never goes negative
	assert.Equal(t, 10, success)
	qty, err := s.Quantity(ctx, key)
	require.NoError(t, err)
	assert.True(t, qty.IsZero())
}

func TestStore_DuplicateEdge(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a, err := s.SaveItem(ctx, inventory.Item{Name: "A", SKU: "A"})
	require.NoError(t, err)
	b, err := s.SaveItem(ctx, inventory.Item{Name: "B", SKU: "B"})
	require.NoError(t, err)

	_, err = s.InsertEdge(ctx, bom.Edge{ParentID: a.ID, ComponentID: b.ID, Quantity: decimal.NewFromInt(2)})
	require.NoError(t, err)
	_, err = s.InsertEdge(ctx, bom.Edge{ParentID: a.ID, ComponentID: b.ID, Quantity: decimal.NewFromInt(3)})
	assert.ErrorIs(t, err, inventory.ErrDuplicateEdge)

	_, err = s.SaveItem(ctx, inventory.Item{Name: "a", SKU: "Z"})
	assert.ErrorIs(t, err, inventory.ErrDuplicateRecord)
}
