// Package memory provides an in-memory implementation of every store
// interface (movements, BOM edges, master data). Used by tests and demos.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/stock-engine/bom"
	"github.com/warp/stock-engine/inventory"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Store struct {
	mu sync.RWMutex

	movements      []inventory.Movement // creation order
	nextMovementID int64

	edges      map[bom.EdgeID]bom.Edge
	nextEdgeID int64

	items      map[inventory.ItemID]inventory.Item
	locations  map[inventory.LocationID]inventory.Location
	suppliers  map[inventory.PartyID]inventory.Party
	customers  map[inventory.PartyID]inventory.Party
	nextItemID int64
	nextLocID  int64
	nextSupID  int64
	nextCusID  int64

	now func() time.Time
}

func New() *Store {
	s := &Store{now: func() time.Time { return time.Now().UTC() }}
	s.clear()
	return s
}

func (s *Store) clear() {
	s.movements = nil
	s.nextMovementID = 0
	s.edges = make(map[bom.EdgeID]bom.Edge)
	s.nextEdgeID = 0
	s.items = make(map[inventory.ItemID]inventory.Item)
	s.locations = make(map[inventory.LocationID]inventory.Location)
	s.suppliers = make(map[inventory.PartyID]inventory.Party)
	s.customers = make(map[inventory.PartyID]inventory.Party)
	s.nextItemID, s.nextLocID, s.nextSupID, s.nextCusID = 0, 0, 0, 0
}

// Reset clears all data.
func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clear()
	return nil
}

// =============================================================================
// MOVEMENTS (inventory.Store)
// =============================================================================

// Append adds a single movement. Append-only.
func (s *Store) Append(_ context.Context, m inventory.Movement) (inventory.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(m)
}

// AppendBatch adds multiple movements atomically.
func (s *Store) AppendBatch(_ context.Context, ms []inventory.Movement) ([]inventory.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendBatchLocked(ms)
}

func (s *Store) appendLocked(m inventory.Movement) (inventory.Movement, error) {
	if _, ok := s.items[m.ItemID]; !ok {
		return inventory.Movement{}, fmt.Errorf("append movement: unknown item %d", m.ItemID)
	}
	if _, ok := s.locations[m.LocationID]; !ok {
		return inventory.Movement{}, fmt.Errorf("append movement: unknown location %d", m.LocationID)
	}
	s.nextMovementID++
	m.ID = inventory.MovementID(s.nextMovementID)
	m.Date = inventory.Day(m.Date)
	m.CreatedAt = s.now()
	s.movements = append(s.movements, m)
	return m, nil
}

func (s *Store) appendBatchLocked(ms []inventory.Movement) ([]inventory.Movement, error) {
	mark, markID := len(s.movements), s.nextMovementID
	out := make([]inventory.Movement, 0, len(ms))
	for _, m := range ms {
		saved, err := s.appendLocked(m)
		if err != nil {
			s.movements, s.nextMovementID = s.movements[:mark], markID
			return nil, err
		}
		out = append(out, saved)
	}
	return out, nil
}

func (s *Store) Quantity(_ context.Context, key inventory.StockKey) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quantityLocked(key), nil
}

func (s *Store) quantityLocked(key inventory.StockKey) decimal.Decimal {
	sum := decimal.Zero
	for _, m := range s.movements {
		if m.Key() == key {
			sum = sum.Add(m.Quantity)
		}
	}
	return sum
}

func (s *Store) Totals(_ context.Context, filter inventory.LevelFilter) ([]inventory.StockTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return inventory.SumByKey(s.movements, filter), nil
}

func (s *Store) Movements(_ context.Context, filter inventory.MovementFilter) ([]inventory.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.movementsLocked(filter), nil
}

func (s *Store) movementsLocked(filter inventory.MovementFilter) []inventory.Movement {
	var result []inventory.Movement
	for _, m := range s.movements {
		if filter.Matches(m) {
			result = append(result, m)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.After(result[j].Date)
		}
		return result[i].ID > result[j].ID
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result
}

// =============================================================================
// TRANSACTIONS (inventory.TxStore)
// =============================================================================

// WithTx runs fn with the store locked. Keys are not needed: every
// transaction is serialized. Movements are append-only, so rollback
// truncates back to the mark taken on entry.
func (s *Store) WithTx(_ context.Context, _ []inventory.StockKey, fn func(inventory.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mark, markID := len(s.movements), s.nextMovementID
	if err := fn(&txView{parent: s}); err != nil {
		s.movements, s.nextMovementID = s.movements[:mark], markID
		return err
	}
	return nil
}

type txView struct {
	parent *Store
}

func (tv *txView) Append(_ context.Context, m inventory.Movement) (inventory.Movement, error) {
	return tv.parent.appendLocked(m)
}

func (tv *txView) AppendBatch(_ context.Context, ms []inventory.Movement) ([]inventory.Movement, error) {
	return tv.parent.appendBatchLocked(ms)
}

func (tv *txView) Quantity(_ context.Context, key inventory.StockKey) (decimal.Decimal, error) {
	return tv.parent.quantityLocked(key), nil
}

func (tv *txView) Totals(_ context.Context, filter inventory.LevelFilter) ([]inventory.StockTotal, error) {
	return inventory.SumByKey(tv.parent.movements, filter), nil
}

func (tv *txView) Movements(_ context.Context, filter inventory.MovementFilter) ([]inventory.Movement, error) {
	return tv.parent.movementsLocked(filter), nil
}

// =============================================================================
// BOM EDGES (bom.EdgeStore)
// =============================================================================

func (s *Store) InsertEdge(_ context.Context, e bom.Edge) (bom.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pairTaken(e.ParentID, e.ComponentID, 0) {
		return bom.Edge{}, &inventory.DuplicateEdgeError{ParentID: e.ParentID, ComponentID: e.ComponentID}
	}
	s.nextEdgeID++
	e.ID = bom.EdgeID(s.nextEdgeID)
	e.CreatedAt = s.now()
	s.edges[e.ID] = e
	return e, nil
}

func (s *Store) UpdateEdge(_ context.Context, e bom.Edge) (bom.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.edges[e.ID]
	if !ok {
		return bom.Edge{}, &inventory.NotFoundError{Kind: "bom edge", ID: int64(e.ID)}
	}
	if s.pairTaken(e.ParentID, e.ComponentID, e.ID) {
		return bom.Edge{}, &inventory.DuplicateEdgeError{ParentID: e.ParentID, ComponentID: e.ComponentID}
	}
	e.CreatedAt = current.CreatedAt
	s.edges[e.ID] = e
	return e, nil
}

func (s *Store) pairTaken(parent, component inventory.ItemID, skip bom.EdgeID) bool {
	for id, e := range s.edges {
		if id != skip && e.ParentID == parent && e.ComponentID == component {
			return true
		}
	}
	return false
}

func (s *Store) DeleteEdge(_ context.Context, id bom.EdgeID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.edges[id]; !ok {
		return false, nil
	}
	delete(s.edges, id)
	return true, nil
}

func (s *Store) Edge(_ context.Context, id bom.EdgeID) (*bom.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.edges[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *Store) Edges(_ context.Context, parentID *inventory.ItemID) ([]bom.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var edges []bom.Edge
	for _, e := range s.edges {
		if parentID != nil && e.ParentID != *parentID {
			continue
		}
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
	return edges, nil
}

// =============================================================================
// MASTER DATA (inventory.Catalog and writes)
// =============================================================================

func (s *Store) Item(_ context.Context, id inventory.ItemID) (*inventory.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if it, ok := s.items[id]; ok {
		return &it, nil
	}
	return nil, nil
}

func (s *Store) Location(_ context.Context, id inventory.LocationID) (*inventory.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if l, ok := s.locations[id]; ok {
		return &l, nil
	}
	return nil, nil
}

func (s *Store) Supplier(_ context.Context, id inventory.PartyID) (*inventory.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.suppliers[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (s *Store) Customer(_ context.Context, id inventory.PartyID) (*inventory.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.customers[id]; ok {
		return &p, nil
	}
	return nil, nil
}

// SaveItem inserts an item. Name and SKU are unique, case-insensitively.
func (s *Store) SaveItem(_ context.Context, it inventory.Item) (inventory.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.items {
		if strings.EqualFold(existing.Name, it.Name) {
			return inventory.Item{}, fmt.Errorf("%w: item name %q", inventory.ErrDuplicateRecord, it.Name)
		}
		if strings.EqualFold(existing.SKU, it.SKU) {
			return inventory.Item{}, fmt.Errorf("%w: item sku %q", inventory.ErrDuplicateRecord, it.SKU)
		}
	}
	s.nextItemID++
	it.ID = inventory.ItemID(s.nextItemID)
	it.CreatedAt = s.now()
	s.items[it.ID] = it
	return it, nil
}

func (s *Store) Items(_ context.Context) ([]inventory.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]inventory.Item, 0, len(s.items))
	for _, it := range s.items {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func (s *Store) SaveLocation(_ context.Context, l inventory.Location) (inventory.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.locations {
		if strings.EqualFold(existing.Name, l.Name) {
			return inventory.Location{}, fmt.Errorf("%w: location name %q", inventory.ErrDuplicateRecord, l.Name)
		}
	}
	s.nextLocID++
	l.ID = inventory.LocationID(s.nextLocID)
	l.CreatedAt = s.now()
	s.locations[l.ID] = l
	return l, nil
}

func (s *Store) Locations(_ context.Context) ([]inventory.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	locs := make([]inventory.Location, 0, len(s.locations))
	for _, l := range s.locations {
		locs = append(locs, l)
	}
	sort.Slice(locs, func(i, j int) bool { return locs[i].Name < locs[j].Name })
	return locs, nil
}

func (s *Store) SaveSupplier(_ context.Context, p inventory.Party) (inventory.Party, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSupID++
	p.ID = inventory.PartyID(s.nextSupID)
	p.CreatedAt = s.now()
	s.suppliers[p.ID] = p
	return p, nil
}

func (s *Store) Suppliers(_ context.Context) ([]inventory.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedParties(s.suppliers), nil
}

func (s *Store) SaveCustomer(_ context.Context, p inventory.Party) (inventory.Party, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextCusID++
	p.ID = inventory.PartyID(s.nextCusID)
	p.CreatedAt = s.now()
	s.customers[p.ID] = p
	return p, nil
}

func (s *Store) Customers(_ context.Context) ([]inventory.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedParties(s.customers), nil
}

func sortedParties(m map[inventory.PartyID]inventory.Party) []inventory.Party {
	parties := make([]inventory.Party, 0, len(m))
	for _, p := range m {
		parties = append(parties, p)
	}
	sort.Slice(parties, func(i, j int) bool { return parties[i].Name < parties[j].Name })
	return parties
}
