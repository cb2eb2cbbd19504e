/*
Package bom manages the bill-of-materials graph.

PURPOSE:
  A BOM edge says "producing one unit of Parent consumes Quantity units of
  Component". The graph is stored as a flat edge list; structure is checked
  on demand with a depth-first search whenever an edge is created or
  rewired.

GRAPH INVARIANTS:
  1. No self-loop: Parent != Component
  2. No duplicate: at most one edge per (Parent, Component)
  3. Acyclic: no item is, transitively, its own component

  Deleting an edge can never break these, so Delete needs no checks.

SEE ALSO:
  - graph.go: Manager (create, update, delete, lookup)
  - cycle.go: Reachability search
  - movements/engine.go: Produce reads DirectComponents
*/
package bom

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/stock-engine/inventory"
)

type EdgeID int64

// Edge is one parent -> component link with its per-unit multiplier.
type Edge struct {
	ID          EdgeID
	ParentID    inventory.ItemID
	ComponentID inventory.ItemID
	Quantity    decimal.Decimal // units of component per unit of parent, > 0
	CreatedAt   time.Time
}

// Component is one direct input of a manufactured item.
type Component struct {
	ItemID   inventory.ItemID
	Quantity decimal.Decimal
}

// EdgeStore persists BOM edges. Unlike movements, edges are mutable.
type EdgeStore interface {
	// InsertEdge assigns ID and CreatedAt. A second edge for the same
	// (parent, component) pair is rejected with a DuplicateEdgeError.
	InsertEdge(ctx context.Context, e Edge) (Edge, error)

	// UpdateEdge overwrites parent, component and quantity of e.ID.
	UpdateEdge(ctx context.Context, e Edge) (Edge, error)

	// DeleteEdge reports whether an edge was removed.
	DeleteEdge(ctx context.Context, id EdgeID) (bool, error)

	// Edge returns nil, nil when the edge does not exist.
	Edge(ctx context.Context, id EdgeID) (*Edge, error)

	// Edges returns all edges, or those of one parent, ordered by ID.
	Edges(ctx context.Context, parentID *inventory.ItemID) ([]Edge, error)
}
