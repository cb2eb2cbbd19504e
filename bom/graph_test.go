package bom_test

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-engine/bom"
	"github.com/warp/stock-engine/inventory"
	"github.com/warp/stock-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newManager(t *testing.T, itemCount int) (*bom.Manager, *memory.Store, []inventory.ItemID) {
	t.Helper()
	s := memory.New()
	ids := make([]inventory.ItemID, itemCount)
	for i := range ids {
		it, err := s.SaveItem(context.Background(), inventory.Item{
			Name: fmt.Sprintf("Item %d", i), SKU: fmt.Sprintf("SKU-%d", i),
		})
		require.NoError(t, err)
		ids[i] = it.ID
	}
	return bom.NewManager(s, s, nil, zerolog.Nop()), s, ids
}

func qty(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func itemPtr(id inventory.ItemID) *inventory.ItemID { return &id }

// =============================================================================
// CREATE
// =============================================================================

func TestManager_Create_Success(t *testing.T) {
	m, _, ids := newManager(t, 2)
	ctx := context.Background()

	e, err := m.Create(ctx, ids[0], ids[1], qty("1.5"))

	require.NoError(t, err)
	assert.NotZero(t, e.ID)
	assert.Equal(t, ids[0], e.ParentID)
	assert.Equal(t, ids[1], e.ComponentID)
	assert.True(t, e.Quantity.Equal(qty("1.5")))
	assert.False(t, e.CreatedAt.IsZero())
}

func TestManager_Create_SelfReference(t *testing.T) {
	m, s, ids := newManager(t, 1)

	_, err := m.Create(context.Background(), ids[0], ids[0], qty("1"))

	var sre *inventory.SelfReferenceError
	require.ErrorAs(t, err, &sre)
	assert.Equal(t, ids[0], sre.ItemID)
	edges, _ := s.Edges(context.Background(), nil)
	assert.Empty(t, edges)
}

func TestManager_Create_Duplicate(t *testing.T) {
	m, _, ids := newManager(t, 2)
	ctx := context.Background()
	_, err := m.Create(ctx, ids[0], ids[1], qty("1"))
	require.NoError(t, err)

	_, err = m.Create(ctx, ids[0], ids[1], qty("3"))

	assert.ErrorIs(t, err, inventory.ErrDuplicateEdge)
}

func TestManager_Create_DirectCycle(t *testing.T) {
	// GIVEN: A -> B
	m, _, ids := newManager(t, 2)
	ctx := context.Background()
	_, err := m.Create(ctx, ids[0], ids[1], qty("1"))
	require.NoError(t, err)

	// WHEN: Adding B -> A
	_, err = m.Create(ctx, ids[1], ids[0], qty("1"))

	// THEN: Rejected
	var cde *inventory.CircularDependencyError
	require.ErrorAs(t, err, &cde)
	assert.Equal(t, ids[1], cde.ParentID)
	assert.Equal(t, ids[0], cde.ComponentID)
}

func TestManager_Create_TransitiveCycle(t *testing.T) {
	// GIVEN: A -> B -> C -> D
	m, s, ids := newManager(t, 4)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := m.Create(ctx, ids[i], ids[i+1], qty("1"))
		require.NoError(t, err)
	}

	// WHEN: Adding D -> A
	_, err := m.Create(ctx, ids[3], ids[0], qty("1"))

	// THEN: Rejected and graph unchanged
	assert.ErrorIs(t, err, inventory.ErrCircularDependency)
	edges, _ := s.Edges(ctx, nil)
	assert.Len(t, edges, 3)
}

func TestManager_Create_DiamondIsNotACycle(t *testing.T) {
	// GIVEN: A -> B, A -> C, B -> D
	m, _, ids := newManager(t, 4)
	ctx := context.Background()
	_, err := m.Create(ctx, ids[0], ids[1], qty("1"))
	require.NoError(t, err)
	_, err = m.Create(ctx, ids[0], ids[2], qty("1"))
	require.NoError(t, err)
	_, err = m.Create(ctx, ids[1], ids[3], qty("1"))
	require.NoError(t, err)

	// WHEN: C -> D (D reachable twice from A, but never back to C)
	_, err = m.Create(ctx, ids[2], ids[3], qty("1"))

	assert.NoError(t, err)
}

func TestManager_Create_Validation(t *testing.T) {
	m, _, ids := newManager(t, 2)
	ctx := context.Background()

	_, err := m.Create(ctx, ids[0], ids[1], qty("0"))
	assert.ErrorIs(t, err, inventory.ErrInvalidQuantity)

	_, err = m.Create(ctx, ids[0], ids[1], qty("-2"))
	assert.ErrorIs(t, err, inventory.ErrInvalidQuantity)

	_, err = m.Create(ctx, ids[0], 999, qty("1"))
	var nfe *inventory.NotFoundError
	require.ErrorAs(t, err, &nfe)
	assert.Equal(t, "item", nfe.Kind)
	assert.Equal(t, int64(999), nfe.ID)
}

// =============================================================================
// UPDATE
// =============================================================================

func TestManager_Update_QuantityOnly(t *testing.T) {
	m, _, ids := newManager(t, 2)
	ctx := context.Background()
	e, err := m.Create(ctx, ids[0], ids[1], qty("1"))
	require.NoError(t, err)

	q := qty("2.25")
	updated, err := m.Update(ctx, e.ID, bom.EdgeUpdate{Quantity: &q})

	require.NoError(t, err)
	assert.True(t, updated.Quantity.Equal(q))
	assert.Equal(t, e.ParentID, updated.ParentID)
	assert.Equal(t, e.CreatedAt, updated.CreatedAt)
}

func TestManager_Update_RewireIgnoresOwnPriorState(t *testing.T) {
	// GIVEN: A -> B
	m, _, ids := newManager(t, 2)
	ctx := context.Background()
	e, err := m.Create(ctx, ids[0], ids[1], qty("1"))
	require.NoError(t, err)

	// WHEN: Flipping the same edge to B -> A. With the old A -> B still
	// counted this would look like a cycle; excluding it, it is fine.
	updated, err := m.Update(ctx, e.ID, bom.EdgeUpdate{ParentID: itemPtr(ids[1]), ComponentID: itemPtr(ids[0])})

	require.NoError(t, err)
	assert.Equal(t, ids[1], updated.ParentID)
	assert.Equal(t, ids[0], updated.ComponentID)
}

func TestManager_Update_RewireIntoCycleRejected(t *testing.T) {
	// GIVEN: A -> B, B -> C, and a spare edge A -> D
	m, _, ids := newManager(t, 4)
	ctx := context.Background()
	_, err := m.Create(ctx, ids[0], ids[1], qty("1"))
	require.NoError(t, err)
	_, err = m.Create(ctx, ids[1], ids[2], qty("1"))
	require.NoError(t, err)
	spare, err := m.Create(ctx, ids[0], ids[3], qty("1"))
	require.NoError(t, err)

	// WHEN: Rewiring the spare to C -> A
	_, err = m.Update(ctx, spare.ID, bom.EdgeUpdate{ParentID: itemPtr(ids[2]), ComponentID: itemPtr(ids[0])})

	// THEN: Rejected, edge unchanged
	assert.ErrorIs(t, err, inventory.ErrCircularDependency)
	got, err := m.Get(ctx, spare.ID)
	require.NoError(t, err)
	assert.Equal(t, ids[0], got.ParentID)
	assert.Equal(t, ids[3], got.ComponentID)
}

func TestManager_Update_Errors(t *testing.T) {
	m, _, ids := newManager(t, 3)
	ctx := context.Background()
	e1, err := m.Create(ctx, ids[0], ids[1], qty("1"))
	require.NoError(t, err)
	_, err = m.Create(ctx, ids[0], ids[2], qty("1"))
	require.NoError(t, err)

	_, err = m.Update(ctx, 999, bom.EdgeUpdate{})
	assert.True(t, inventory.IsNotFound(err))

	_, err = m.Update(ctx, e1.ID, bom.EdgeUpdate{ComponentID: itemPtr(ids[0])})
	assert.ErrorIs(t, err, inventory.ErrSelfReference)

	_, err = m.Update(ctx, e1.ID, bom.EdgeUpdate{ComponentID: itemPtr(ids[2])})
	assert.ErrorIs(t, err, inventory.ErrDuplicateEdge)

	_, err = m.Update(ctx, e1.ID, bom.EdgeUpdate{ComponentID: itemPtr(777)})
	assert.True(t, inventory.IsNotFound(err))

	zero := qty("0")
	_, err = m.Update(ctx, e1.ID, bom.EdgeUpdate{Quantity: &zero})
	assert.ErrorIs(t, err, inventory.ErrInvalidQuantity)
}

// =============================================================================
// DELETE AND LOOKUP
// =============================================================================

func TestManager_Delete(t *testing.T) {
	m, _, ids := newManager(t, 2)
	ctx := context.Background()
	e, err := m.Create(ctx, ids[0], ids[1], qty("1"))
	require.NoError(t, err)

	deleted, err := m.Delete(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = m.Delete(ctx, e.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	// The reverse edge is legal once the original is gone.
	_, err = m.Create(ctx, ids[1], ids[0], qty("1"))
	assert.NoError(t, err)
}

func TestManager_DirectComponents_OneLevelOnly(t *testing.T) {
	// GIVEN: A -> B (2), A -> C (1.5), B -> D (4)
	m, _, ids := newManager(t, 4)
	ctx := context.Background()
	_, err := m.Create(ctx, ids[0], ids[1], qty("2"))
	require.NoError(t, err)
	_, err = m.Create(ctx, ids[0], ids[2], qty("1.5"))
	require.NoError(t, err)
	_, err = m.Create(ctx, ids[1], ids[3], qty("4"))
	require.NoError(t, err)

	comps, err := m.DirectComponents(ctx, ids[0])

	require.NoError(t, err)
	require.Len(t, comps, 2)
	assert.Equal(t, ids[1], comps[0].ItemID)
	assert.True(t, comps[0].Quantity.Equal(qty("2")))
	assert.Equal(t, ids[2], comps[1].ItemID)
	assert.True(t, comps[1].Quantity.Equal(qty("1.5")))

	list, err := m.List(ctx, itemPtr(ids[1]))
	require.NoError(t, err)
	assert.Len(t, list, 1)

	all, err := m.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

// =============================================================================
// PROPERTIES
// =============================================================================

func TestManager_RandomEditsNeverProduceCycle(t *testing.T) {
	// GIVEN: 8 items and a few hundred random creates and rewires
	m, s, ids := newManager(t, 8)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 300; i++ {
		a, b := ids[rng.Intn(len(ids))], ids[rng.Intn(len(ids))]
		edges, err := s.Edges(ctx, nil)
		require.NoError(t, err)

		if len(edges) > 0 && rng.Intn(3) == 0 {
			e := edges[rng.Intn(len(edges))]
			_, _ = m.Update(ctx, e.ID, bom.EdgeUpdate{ParentID: &a, ComponentID: &b})
		} else {
			_, _ = m.Create(ctx, a, b, qty("1"))
		}
	}

	// THEN: No item reaches itself
	edges, err := s.Edges(ctx, nil)
	require.NoError(t, err)
	children := map[inventory.ItemID][]inventory.ItemID{}
	for _, e := range edges {
		children[e.ParentID] = append(children[e.ParentID], e.ComponentID)
	}
	for _, start := range ids {
		seen := map[inventory.ItemID]bool{}
		stack := append([]inventory.ItemID{}, children[start]...)
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			require.NotEqual(t, start, n, "item %d reaches itself", start)
			if seen[n] {
				continue
			}
			seen[n] = true
			stack = append(stack, children[n]...)
		}
	}
}

func TestManager_ConcurrentCreatesCannotFormCycle(t *testing.T) {
	// GIVEN: Two admins racing A -> B and B -> A
	for round := 0; round < 20; round++ {
		m, s, ids := newManager(t, 2)
		ctx := context.Background()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); _, _ = m.Create(ctx, ids[0], ids[1], qty("1")) }()
		go func() { defer wg.Done(); _, _ = m.Create(ctx, ids[1], ids[0], qty("1")) }()
		wg.Wait()

		// THEN: Exactly one wins
		edges, err := s.Edges(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, edges, 1)
	}
}

func TestLocalLocker_ReleasesAndHonoursContext(t *testing.T) {
	var l bom.Locker = bom.NewLocalLocker()
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)

	unlock()
	unlock() // second call is a no-op

	unlock2, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock2()
}
