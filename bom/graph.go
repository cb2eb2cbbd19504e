package bom

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/stock-engine/inventory"
)

// Manager validates and applies edits to the BOM graph.
type Manager struct {
	store   EdgeStore
	catalog inventory.Catalog
	locker  Locker
	logger  zerolog.Logger
}

// NewManager wires a Manager. A nil locker falls back to a LocalLocker.
func NewManager(store EdgeStore, catalog inventory.Catalog, locker Locker, logger zerolog.Logger) *Manager {
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Manager{store: store, catalog: catalog, locker: locker, logger: logger}
}

// EdgeUpdate carries the fields to change. Nil fields keep their value.
type EdgeUpdate struct {
	ParentID    *inventory.ItemID
	ComponentID *inventory.ItemID
	Quantity    *decimal.Decimal
}

// Create adds parent -> component with the given multiplier.
func (m *Manager) Create(ctx context.Context, parentID, componentID inventory.ItemID, quantity decimal.Decimal) (Edge, error) {
	if err := checkMultiplier(quantity); err != nil {
		return Edge{}, err
	}
	if parentID == componentID {
		return Edge{}, &inventory.SelfReferenceError{ItemID: parentID}
	}
	if err := m.requireItems(ctx, parentID, componentID); err != nil {
		return Edge{}, err
	}

	unlock, err := m.locker.Lock(ctx, GraphLockKey)
	if err != nil {
		return Edge{}, fmt.Errorf("lock bom graph: %w", err)
	}
	defer unlock()

	edges, err := m.store.Edges(ctx, nil)
	if err != nil {
		return Edge{}, err
	}
	if err := checkStructure(edges, parentID, componentID, 0); err != nil {
		return Edge{}, err
	}

	edge, err := m.store.InsertEdge(ctx, Edge{
		ParentID:    parentID,
		ComponentID: componentID,
		Quantity:    quantity,
	})
	if err != nil {
		return Edge{}, err
	}

	m.logger.Info().
		Int64("edge_id", int64(edge.ID)).
		Int64("parent_id", int64(parentID)).
		Int64("component_id", int64(componentID)).
		Str("quantity", quantity.String()).
		Msg("bom edge created")
	return edge, nil
}

// Update applies the supplied fields. Rewiring parent or component re-runs
// the structural checks against the graph without this edge.
func (m *Manager) Update(ctx context.Context, id EdgeID, upd EdgeUpdate) (Edge, error) {
	if upd.Quantity != nil {
		if err := checkMultiplier(*upd.Quantity); err != nil {
			return Edge{}, err
		}
	}

	unlock, err := m.locker.Lock(ctx, GraphLockKey)
	if err != nil {
		return Edge{}, fmt.Errorf("lock bom graph: %w", err)
	}
	defer unlock()

	current, err := m.store.Edge(ctx, id)
	if err != nil {
		return Edge{}, err
	}
	if current == nil {
		return Edge{}, &inventory.NotFoundError{Kind: "bom edge", ID: int64(id)}
	}

	next := *current
	if upd.ParentID != nil {
		next.ParentID = *upd.ParentID
	}
	if upd.ComponentID != nil {
		next.ComponentID = *upd.ComponentID
	}
	if upd.Quantity != nil {
		next.Quantity = *upd.Quantity
	}

	rewired := next.ParentID != current.ParentID || next.ComponentID != current.ComponentID
	if rewired {
		if next.ParentID == next.ComponentID {
			return Edge{}, &inventory.SelfReferenceError{ItemID: next.ParentID}
		}
		if err := m.requireItems(ctx, next.ParentID, next.ComponentID); err != nil {
			return Edge{}, err
		}
		edges, err := m.store.Edges(ctx, nil)
		if err != nil {
			return Edge{}, err
		}
		if err := checkStructure(edges, next.ParentID, next.ComponentID, id); err != nil {
			return Edge{}, err
		}
	}

	updated, err := m.store.UpdateEdge(ctx, next)
	if err != nil {
		return Edge{}, err
	}

	m.logger.Info().
		Int64("edge_id", int64(id)).
		Int64("parent_id", int64(updated.ParentID)).
		Int64("component_id", int64(updated.ComponentID)).
		Str("quantity", updated.Quantity.String()).
		Bool("rewired", rewired).
		Msg("bom edge updated")
	return updated, nil
}

// Delete removes the edge. It reports false if there was nothing to remove.
func (m *Manager) Delete(ctx context.Context, id EdgeID) (bool, error) {
	deleted, err := m.store.DeleteEdge(ctx, id)
	if err != nil {
		return false, err
	}
	if deleted {
		m.logger.Info().Int64("edge_id", int64(id)).Msg("bom edge deleted")
	}
	return deleted, nil
}

// Get returns one edge or a NotFoundError.
func (m *Manager) Get(ctx context.Context, id EdgeID) (Edge, error) {
	e, err := m.store.Edge(ctx, id)
	if err != nil {
		return Edge{}, err
	}
	if e == nil {
		return Edge{}, &inventory.NotFoundError{Kind: "bom edge", ID: int64(id)}
	}
	return *e, nil
}

// List returns every edge, or only those of parentID when it is set.
func (m *Manager) List(ctx context.Context, parentID *inventory.ItemID) ([]Edge, error) {
	return m.store.Edges(ctx, parentID)
}

// DirectComponents returns one level of the parent's inputs. Components that
// are themselves manufactured are not expanded.
func (m *Manager) DirectComponents(ctx context.Context, parentID inventory.ItemID) ([]Component, error) {
	edges, err := m.store.Edges(ctx, &parentID)
	if err != nil {
		return nil, err
	}
	components := make([]Component, len(edges))
	for i, e := range edges {
		components[i] = Component{ItemID: e.ComponentID, Quantity: e.Quantity}
	}
	return components, nil
}

func (m *Manager) requireItems(ctx context.Context, ids ...inventory.ItemID) error {
	for _, id := range ids {
		item, err := m.catalog.Item(ctx, id)
		if err != nil {
			return err
		}
		if item == nil {
			return &inventory.NotFoundError{Kind: "item", ID: int64(id)}
		}
	}
	return nil
}

func checkMultiplier(q decimal.Decimal) error {
	if !q.IsPositive() {
		return fmt.Errorf("%w: bom quantity must be positive, got %s", inventory.ErrInvalidQuantity, q.String())
	}
	return nil
}

// checkStructure rejects a duplicate pair or a cycle, ignoring edge skip.
func checkStructure(edges []Edge, parentID, componentID inventory.ItemID, skip EdgeID) error {
	if findDuplicate(edges, parentID, componentID, skip) != nil {
		return &inventory.DuplicateEdgeError{ParentID: parentID, ComponentID: componentID}
	}
	if reaches(edges, componentID, parentID, skip) {
		return &inventory.CircularDependencyError{ParentID: parentID, ComponentID: componentID}
	}
	return nil
}
