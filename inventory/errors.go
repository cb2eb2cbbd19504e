/*
errors.go - Centralized error types for the stock engine

PURPOSE:
  All business errors in one place for consistency and discoverability.
  The movements engine and the BOM graph return these; the HTTP layer maps
  them to status codes.

ERROR CATEGORIES:
  1. Lookup errors - Referenced item, location, party or edge is missing
  2. Stock errors - Draw-down exceeds the derived quantity
  3. Operation errors - Transfer to same location, producing a bought item
  4. Graph errors - Self reference, duplicate edge, circular dependency

  Anything else a store returns (connectivity, unexpected constraint
  violations) is an infrastructure error and matches none of the sentinels.

USAGE:
  if errors.Is(err, inventory.ErrInsufficientStock) {
      var ise *inventory.InsufficientStockError
      errors.As(err, &ise)
      // ise.Available, ise.Requested
  }

SEE ALSO:
  - movements/engine.go: Stock and operation errors
  - bom/graph.go: Graph errors
  - api/errors.go: HTTP status mapping
*/
package inventory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientStock is returned when a draw-down exceeds the current quantity.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInsufficientComponentStock is returned when production lacks one or more components.
	ErrInsufficientComponentStock = errors.New("insufficient component stock")

	// ErrSameLocation is returned when a transfer names the same source and destination.
	ErrSameLocation = errors.New("source and destination location are the same")

	// ErrSelfReference is returned when a BOM edge names an item as its own component.
	ErrSelfReference = errors.New("item cannot be a component of itself")

	// ErrDuplicateEdge is returned when a BOM edge for the pair already exists.
	ErrDuplicateEdge = errors.New("duplicate bom edge")

	// ErrCircularDependency is returned when a BOM edge would close a cycle.
	ErrCircularDependency = errors.New("circular bom dependency")

	// ErrNotManufactured is returned when producing an item without the manufactured flag.
	ErrNotManufactured = errors.New("item is not manufactured")

	// ErrNoBOM is returned when producing an item that has no components.
	ErrNoBOM = errors.New("item has no bill of materials")

	// ErrInvalidQuantity is returned when a quantity is missing, malformed or has the wrong sign.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrDuplicateRecord is returned when a master record violates a uniqueness rule.
	ErrDuplicateRecord = errors.New("duplicate record")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the kind and id of the missing record.
type NotFoundError struct {
	Kind string // "item", "location", "supplier", "customer", "bom edge"
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InsufficientStockError reports a draw-down that exceeds the current quantity.
type InsufficientStockError struct {
	ItemID     ItemID
	LocationID LocationID
	Available  decimal.Decimal
	Requested  decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %d at location %d: available: %s, requested: %s",
		e.ItemID, e.LocationID, e.Available.String(), e.Requested.String())
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// Shortfall is how much is missing.
func (e *InsufficientStockError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}

// ComponentShortage describes one component production could not draw.
type ComponentShortage struct {
	ComponentID   ItemID
	ComponentName string
	Required      decimal.Decimal
	Available     decimal.Decimal
}

// InsufficientComponentStockError lists every short component, not just the first.
type InsufficientComponentStockError struct {
	ItemID     ItemID
	LocationID LocationID
	Shortages  []ComponentShortage
}

func (e *InsufficientComponentStockError) Error() string {
	parts := make([]string, len(e.Shortages))
	for i, s := range e.Shortages {
		name := s.ComponentName
		if name == "" {
			name = fmt.Sprintf("item %d", s.ComponentID)
		}
		parts[i] = fmt.Sprintf("%s (id %d): required: %s, available: %s",
			name, s.ComponentID, s.Required.String(), s.Available.String())
	}
	return fmt.Sprintf("insufficient component stock to produce item %d at location %d: %s",
		e.ItemID, e.LocationID, strings.Join(parts, "; "))
}

func (e *InsufficientComponentStockError) Unwrap() error { return ErrInsufficientComponentStock }

type SameLocationError struct {
	LocationID LocationID
}

func (e *SameLocationError) Error() string {
	return fmt.Sprintf("cannot transfer from location %d to itself", e.LocationID)
}

func (e *SameLocationError) Unwrap() error { return ErrSameLocation }

type SelfReferenceError struct {
	ItemID ItemID
}

func (e *SelfReferenceError) Error() string {
	return fmt.Sprintf("item %d cannot be a component of itself", e.ItemID)
}

func (e *SelfReferenceError) Unwrap() error { return ErrSelfReference }

type DuplicateEdgeError struct {
	ParentID    ItemID
	ComponentID ItemID
}

func (e *DuplicateEdgeError) Error() string {
	return fmt.Sprintf("bom edge from item %d to component %d already exists", e.ParentID, e.ComponentID)
}

func (e *DuplicateEdgeError) Unwrap() error { return ErrDuplicateEdge }

// CircularDependencyError reports that ComponentID already reaches ParentID.
type CircularDependencyError struct {
	ParentID    ItemID
	ComponentID ItemID
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("adding component %d to item %d would create a circular dependency",
		e.ComponentID, e.ParentID)
}

func (e *CircularDependencyError) Unwrap() error { return ErrCircularDependency }

type NotManufacturedError struct {
	ItemID   ItemID
	ItemName string
}

func (e *NotManufacturedError) Error() string {
	return fmt.Sprintf("item %d (%s) is not a manufactured item", e.ItemID, e.ItemName)
}

func (e *NotManufacturedError) Unwrap() error { return ErrNotManufactured }

type NoBOMError struct {
	ItemID   ItemID
	ItemName string
}

func (e *NoBOMError) Error() string {
	return fmt.Sprintf("item %d (%s) has no bill of materials", e.ItemID, e.ItemName)
}

func (e *NoBOMError) Unwrap() error { return ErrNoBOM }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input
// or a business precondition the caller can act on.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInsufficientComponentStock) ||
		errors.Is(err, ErrSameLocation) ||
		errors.Is(err, ErrSelfReference) ||
		errors.Is(err, ErrDuplicateEdge) ||
		errors.Is(err, ErrCircularDependency) ||
		errors.Is(err, ErrNotManufactured) ||
		errors.Is(err, ErrNoBOM) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrDuplicateRecord)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true if the error reflects a conflict with existing state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateEdge) ||
		errors.Is(err, ErrCircularDependency) ||
		errors.Is(err, ErrDuplicateRecord)
}
