/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Response wrappers

TYPES:
  Stock operations:
    ReceiveRequest, IssueRequest, AdjustRequest, TransferRequest, ProduceRequest

  Stock queries:
    MovementDTO, StockLevelDTO

  BOM:
    CreateBOMEdgeRequest, UpdateBOMEdgeRequest, BOMEdgeDTO, DeleteResponse

  Master data:
    ItemDTO, CreateItemRequest, LocationDTO, CreateLocationRequest,
    PartyDTO, CreatePartyRequest

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

  Errors:
    ErrorResponse, ShortageDTO

QUANTITIES:
  decimal.Decimal accepts a JSON string or number and always renders as a
  string, so no precision is lost in either direction.

VALIDATION:
  Shape is validated with go-playground/validator struct tags before the
  request reaches the engine. Business rules (sign, sufficiency, graph
  structure) stay in the engine and surface as domain errors.

SEE ALSO:
  - handlers.go: Uses these types
  - errors.go: Error status mapping
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/stock-engine/bom"
	"github.com/warp/stock-engine/inventory"
)

// =============================================================================
// STOCK OPERATION REQUESTS
// =============================================================================

// Date fields are optional YYYY-MM-DD; empty means today (UTC).

type ReceiveRequest struct {
	ItemID     int64            `json:"item_id" validate:"required,gt=0"`
	LocationID int64            `json:"location_id" validate:"required,gt=0"`
	Quantity   *decimal.Decimal `json:"quantity" validate:"required"`
	SupplierID *int64           `json:"supplier_id,omitempty" validate:"omitempty,gt=0"`
	Reference  string           `json:"reference,omitempty" validate:"max=255"`
	Date       string           `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type IssueRequest struct {
	ItemID     int64            `json:"item_id" validate:"required,gt=0"`
	LocationID int64            `json:"location_id" validate:"required,gt=0"`
	Quantity   *decimal.Decimal `json:"quantity" validate:"required"`
	CustomerID *int64           `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	Reference  string           `json:"reference,omitempty" validate:"max=255"`
	Date       string           `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// AdjustRequest carries a signed quantity; zero is accepted.
type AdjustRequest struct {
	ItemID     int64            `json:"item_id" validate:"required,gt=0"`
	LocationID int64            `json:"location_id" validate:"required,gt=0"`
	Quantity   *decimal.Decimal `json:"quantity" validate:"required"`
	Reference  string           `json:"reference,omitempty" validate:"max=255"`
	Date       string           `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type TransferRequest struct {
	ItemID         int64            `json:"item_id" validate:"required,gt=0"`
	FromLocationID int64            `json:"from_location_id" validate:"required,gt=0"`
	ToLocationID   int64            `json:"to_location_id" validate:"required,gt=0"`
	Quantity       *decimal.Decimal `json:"quantity" validate:"required"`
	Reference      string           `json:"reference,omitempty" validate:"max=255"`
	Date           string           `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type ProduceRequest struct {
	ItemID     int64            `json:"item_id" validate:"required,gt=0"`
	LocationID int64            `json:"location_id" validate:"required,gt=0"`
	Quantity   *decimal.Decimal `json:"quantity" validate:"required"`
	Reference  string           `json:"reference,omitempty" validate:"max=255"`
	Date       string           `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// =============================================================================
// STOCK QUERY RESPONSES
// =============================================================================

type MovementDTO struct {
	ID            int64           `json:"id"`
	ItemID        int64           `json:"item_id"`
	LocationID    int64           `json:"location_id"`
	Kind          string          `json:"kind"`
	KindLabel     string          `json:"kind_label"`
	Quantity      decimal.Decimal `json:"quantity"`
	Date          string          `json:"date"`
	Reference     string          `json:"reference,omitempty"`
	CorrelationID string          `json:"correlation_id"`
	CreatedAt     time.Time       `json:"created_at"`
}

type StockLevelDTO struct {
	ItemID        int64           `json:"item_id"`
	ItemName      string          `json:"item_name"`
	SKU           string          `json:"sku"`
	LocationID    int64           `json:"location_id"`
	LocationName  string          `json:"location_name"`
	Quantity      decimal.Decimal `json:"quantity"`
	ReorderLevel  decimal.Decimal `json:"reorder_level"`
	UnitOfMeasure string          `json:"unit_of_measure"`
	BelowReorder  bool            `json:"below_reorder"`
}

// =============================================================================
// BOM
// =============================================================================

type CreateBOMEdgeRequest struct {
	ParentID    int64            `json:"parent_id" validate:"required,gt=0"`
	ComponentID int64            `json:"component_id" validate:"required,gt=0"`
	Quantity    *decimal.Decimal `json:"quantity" validate:"required"`
}

// UpdateBOMEdgeRequest is a partial update: absent fields are unchanged.
type UpdateBOMEdgeRequest struct {
	ParentID    *int64           `json:"parent_id,omitempty" validate:"omitempty,gt=0"`
	ComponentID *int64           `json:"component_id,omitempty" validate:"omitempty,gt=0"`
	Quantity    *decimal.Decimal `json:"quantity,omitempty"`
}

type BOMEdgeDTO struct {
	ID          int64           `json:"id"`
	ParentID    int64           `json:"parent_id"`
	ComponentID int64           `json:"component_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	CreatedAt   time.Time       `json:"created_at"`
}

type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}

// =============================================================================
// MASTER DATA
// =============================================================================

type ItemDTO struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	SKU           string          `json:"sku"`
	UnitOfMeasure string          `json:"unit_of_measure"`
	Manufactured  bool            `json:"manufactured"`
	ReorderLevel  decimal.Decimal `json:"reorder_level"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	CreatedAt     time.Time       `json:"created_at"`
}

type CreateItemRequest struct {
	Name          string           `json:"name" validate:"required,max=200"`
	SKU           string           `json:"sku" validate:"required,max=64"`
	UnitOfMeasure string           `json:"unit_of_measure" validate:"max=32"`
	Manufactured  bool             `json:"manufactured"`
	ReorderLevel  *decimal.Decimal `json:"reorder_level,omitempty"`
	CostPrice     *decimal.Decimal `json:"cost_price,omitempty"`
	SalePrice     *decimal.Decimal `json:"sale_price,omitempty"`
}

type LocationDTO struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateLocationRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

// PartyDTO is a supplier or a customer.
type PartyDTO struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type CreatePartyRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// ERRORS
// =============================================================================

type ErrorResponse struct {
	Error     string        `json:"error"`
	Details   string        `json:"details,omitempty"`
	Shortages []ShortageDTO `json:"shortages,omitempty"`
}

type ShortageDTO struct {
	ComponentID   int64           `json:"component_id"`
	ComponentName string          `json:"component_name"`
	Required      decimal.Decimal `json:"required"`
	Available     decimal.Decimal `json:"available"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toMovementDTO(m inventory.Movement) MovementDTO {
	return MovementDTO{
		ID:            int64(m.ID),
		ItemID:        int64(m.ItemID),
		LocationID:    int64(m.LocationID),
		Kind:          string(m.Kind),
		KindLabel:     m.Kind.Label(),
		Quantity:      m.Quantity,
		Date:          m.Date.Format(inventory.DateLayout),
		Reference:     m.Reference,
		CorrelationID: m.CorrelationID,
		CreatedAt:     m.CreatedAt,
	}
}

func toMovementDTOs(ms []inventory.Movement) []MovementDTO {
	out := make([]MovementDTO, len(ms))
	for i, m := range ms {
		out[i] = toMovementDTO(m)
	}
	return out
}

func toStockLevelDTO(l inventory.StockLevel) StockLevelDTO {
	return StockLevelDTO{
		ItemID:        int64(l.ItemID),
		ItemName:      l.ItemName,
		SKU:           l.SKU,
		LocationID:    int64(l.LocationID),
		LocationName:  l.LocationName,
		Quantity:      l.Quantity,
		ReorderLevel:  l.ReorderLevel,
		UnitOfMeasure: l.UnitOfMeasure,
		BelowReorder:  l.BelowReorder,
	}
}

func toBOMEdgeDTO(e bom.Edge) BOMEdgeDTO {
	return BOMEdgeDTO{
		ID:          int64(e.ID),
		ParentID:    int64(e.ParentID),
		ComponentID: int64(e.ComponentID),
		Quantity:    e.Quantity,
		CreatedAt:   e.CreatedAt,
	}
}

func toItemDTO(it inventory.Item) ItemDTO {
	return ItemDTO{
		ID:            int64(it.ID),
		Name:          it.Name,
		SKU:           it.SKU,
		UnitOfMeasure: it.UnitOfMeasure,
		Manufactured:  it.Manufactured,
		ReorderLevel:  it.ReorderLevel,
		CostPrice:     it.CostPrice,
		SalePrice:     it.SalePrice,
		CreatedAt:     it.CreatedAt,
	}
}

func toPartyDTO(p inventory.Party) PartyDTO {
	return PartyDTO{ID: int64(p.ID), Name: p.Name, CreatedAt: p.CreatedAt}
}

func decimalOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
