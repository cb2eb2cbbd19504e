/*
handlers.go - HTTP API handlers for the stock engine

PURPOSE:
  Exposes the movements engine, the stock ledger and the BOM manager via a
  REST API. Handles HTTP request/response, JSON serialization, and delegates
  to domain logic.

ENDPOINTS:
  Stock operations:
    POST   /api/stock/receive          Receive from a supplier
    POST   /api/stock/issue            Issue to a customer
    POST   /api/stock/adjust           Signed correction
    POST   /api/stock/transfer         Move between locations -> [out, in]
    POST   /api/stock/produce          Produce from BOM -> [production, consumption...]

  Stock queries:
    GET    /api/stock/levels           ?item_id&location_id&below_reorder
    GET    /api/stock/movements        ?item_id&location_id&kind&start_date&end_date&limit

  BOM:
    GET    /api/bom                    ?parent_id
    POST   /api/bom                    Create edge
    GET    /api/bom/{id}               Get edge
    PATCH  /api/bom/{id}               Partial update
    DELETE /api/bom/{id}               Delete -> {"deleted": bool}

  Master data:
    GET/POST /api/items, /api/locations, /api/suppliers, /api/customers

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Database access (movements, edges, master data)
  - Engine: The only writer of movements
  - Ledger: Read side (quantities, levels, history)
  - BOM: Graph edits with cycle and duplicate checks

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input shape (validator tags)
  3. Call domain logic
  4. Serialize response
  5. Map domain errors to status codes (errors.go)

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: Status mapping
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/warp/stock-engine/bom"
	"github.com/warp/stock-engine/inventory"
	"github.com/warp/stock-engine/movements"
	"github.com/warp/stock-engine/store"
	"golang.org/x/sync/singleflight"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is everything the API needs from persistence.
type Store = store.Backend

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  Store
	Engine *movements.Engine
	Ledger *inventory.DefaultLedger
	BOM    *bom.Manager

	validate *validator.Validate
	levels   singleflight.Group
	logger   zerolog.Logger

	// Track currently loaded scenario
	mu              sync.RWMutex
	currentScenario string
}

// NewHandler wires the domain services over store. locker may be nil for a
// single-instance deployment.
func NewHandler(store Store, locker bom.Locker, logger zerolog.Logger) *Handler {
	manager := bom.NewManager(store, store, locker, logger.With().Str("component", "bom").Logger())
	return &Handler{
		Store:    store,
		Engine:   movements.NewEngine(store, store, manager, logger.With().Str("component", "movements").Logger()),
		Ledger:   inventory.NewLedger(store, store),
		BOM:      manager,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// STOCK OPERATIONS
// =============================================================================

// ReceiveStock records goods arriving from a supplier.
func (h *Handler) ReceiveStock(w http.ResponseWriter, r *http.Request) {
	var req ReceiveRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	date, ok := parseOptionalDate(w, req.Date)
	if !ok {
		return
	}

	in := movements.ReceiveInput{
		ItemID:     inventory.ItemID(req.ItemID),
		LocationID: inventory.LocationID(req.LocationID),
		Quantity:   *req.Quantity,
		Reference:  req.Reference,
		Date:       date,
	}
	if req.SupplierID != nil {
		id := inventory.PartyID(*req.SupplierID)
		in.SupplierID = &id
	}

	m, err := h.Engine.Receive(r.Context(), in)
	if err != nil {
		writeDomainError(w, r, "Failed to receive stock", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMovementDTO(m))
}

// IssueStock records goods leaving to a customer.
func (h *Handler) IssueStock(w http.ResponseWriter, r *http.Request) {
	var req IssueRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	date, ok := parseOptionalDate(w, req.Date)
	if !ok {
		return
	}

	in := movements.IssueInput{
		ItemID:     inventory.ItemID(req.ItemID),
		LocationID: inventory.LocationID(req.LocationID),
		Quantity:   *req.Quantity,
		Reference:  req.Reference,
		Date:       date,
	}
	if req.CustomerID != nil {
		id := inventory.PartyID(*req.CustomerID)
		in.CustomerID = &id
	}

	m, err := h.Engine.Issue(r.Context(), in)
	if err != nil {
		writeDomainError(w, r, "Failed to issue stock", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMovementDTO(m))
}

// AdjustStock records a signed correction.
func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var req AdjustRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	date, ok := parseOptionalDate(w, req.Date)
	if !ok {
		return
	}

	m, err := h.Engine.Adjust(r.Context(), movements.AdjustInput{
		ItemID:     inventory.ItemID(req.ItemID),
		LocationID: inventory.LocationID(req.LocationID),
		Quantity:   *req.Quantity,
		Reference:  req.Reference,
		Date:       date,
	})
	if err != nil {
		writeDomainError(w, r, "Failed to adjust stock", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMovementDTO(m))
}

// TransferStock moves goods between two locations.
func (h *Handler) TransferStock(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	date, ok := parseOptionalDate(w, req.Date)
	if !ok {
		return
	}

	ms, err := h.Engine.Transfer(r.Context(), movements.TransferInput{
		ItemID:         inventory.ItemID(req.ItemID),
		FromLocationID: inventory.LocationID(req.FromLocationID),
		ToLocationID:   inventory.LocationID(req.ToLocationID),
		Quantity:       *req.Quantity,
		Reference:      req.Reference,
		Date:           date,
	})
	if err != nil {
		writeDomainError(w, r, "Failed to transfer stock", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMovementDTOs(ms))
}

// ProduceItem consumes direct components and adds the finished item.
func (h *Handler) ProduceItem(w http.ResponseWriter, r *http.Request) {
	var req ProduceRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	date, ok := parseOptionalDate(w, req.Date)
	if !ok {
		return
	}

	ms, err := h.Engine.Produce(r.Context(), movements.ProduceInput{
		ItemID:     inventory.ItemID(req.ItemID),
		LocationID: inventory.LocationID(req.LocationID),
		Quantity:   *req.Quantity,
		Reference:  req.Reference,
		Date:       date,
	})
	if err != nil {
		writeDomainError(w, r, "Failed to produce item", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMovementDTOs(ms))
}

// =============================================================================
// STOCK QUERIES
// =============================================================================

// GetStockLevels returns current quantities per (item, location).
// Identical concurrent queries share one computation.
func (h *Handler) GetStockLevels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter inventory.LevelFilter

	itemID, ok := parseOptionalID(w, q.Get("item_id"), "item_id")
	if !ok {
		return
	}
	if itemID != nil {
		id := inventory.ItemID(*itemID)
		filter.ItemID = &id
	}
	locationID, ok := parseOptionalID(w, q.Get("location_id"), "location_id")
	if !ok {
		return
	}
	if locationID != nil {
		id := inventory.LocationID(*locationID)
		filter.LocationID = &id
	}
	if v := q.Get("below_reorder"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid below_reorder", err)
			return
		}
		filter.BelowReorderOnly = b
	}

	key := fmt.Sprintf("item=%s&location=%s&below=%t", q.Get("item_id"), q.Get("location_id"), filter.BelowReorderOnly)
	ctx := context.WithoutCancel(r.Context())
	v, err, _ := h.levels.Do(key, func() (any, error) {
		return h.Ledger.StockLevels(ctx, filter)
	})
	if err != nil {
		writeDomainError(w, r, "Failed to load stock levels", err)
		return
	}

	levels := v.([]inventory.StockLevel)
	dtos := make([]StockLevelDTO, len(levels))
	for i, l := range levels {
		dtos[i] = toStockLevelDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetStockMovements returns movement history, newest event date first.
func (h *Handler) GetStockMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter inventory.MovementFilter

	itemID, ok := parseOptionalID(w, q.Get("item_id"), "item_id")
	if !ok {
		return
	}
	if itemID != nil {
		id := inventory.ItemID(*itemID)
		filter.ItemID = &id
	}
	locationID, ok := parseOptionalID(w, q.Get("location_id"), "location_id")
	if !ok {
		return
	}
	if locationID != nil {
		id := inventory.LocationID(*locationID)
		filter.LocationID = &id
	}
	if v := q.Get("kind"); v != "" {
		kind, err := inventory.ParseMovementKind(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid kind", err)
			return
		}
		filter.Kind = &kind
	}
	for _, p := range []struct {
		param string
		dst   **time.Time
	}{{"start_date", &filter.From}, {"end_date", &filter.To}} {
		if v := q.Get(p.param); v != "" {
			d, err := inventory.ParseDate(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid "+p.param, err)
				return
			}
			*p.dst = &d
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		filter.Limit = n
	}
	filter.CorrelationID = q.Get("correlation_id")

	ms, err := h.Ledger.Movements(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, "Failed to load movements", err)
		return
	}
	writeJSON(w, http.StatusOK, toMovementDTOs(ms))
}

// =============================================================================
// BOM HANDLERS
// =============================================================================

// ListBOMEdges returns edges, optionally only those of one parent.
func (h *Handler) ListBOMEdges(w http.ResponseWriter, r *http.Request) {
	parentID, ok := parseOptionalID(w, r.URL.Query().Get("parent_id"), "parent_id")
	if !ok {
		return
	}
	var parent *inventory.ItemID
	if parentID != nil {
		id := inventory.ItemID(*parentID)
		parent = &id
	}

	edges, err := h.BOM.List(r.Context(), parent)
	if err != nil {
		writeDomainError(w, r, "Failed to list BOM edges", err)
		return
	}
	dtos := make([]BOMEdgeDTO, len(edges))
	for i, e := range edges {
		dtos[i] = toBOMEdgeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateBOMEdge adds a parent -> component link.
func (h *Handler) CreateBOMEdge(w http.ResponseWriter, r *http.Request) {
	var req CreateBOMEdgeRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	edge, err := h.BOM.Create(r.Context(), inventory.ItemID(req.ParentID), inventory.ItemID(req.ComponentID), *req.Quantity)
	if err != nil {
		writeDomainError(w, r, "Failed to create BOM edge", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBOMEdgeDTO(edge))
}

// GetBOMEdge returns one edge.
func (h *Handler) GetBOMEdge(w http.ResponseWriter, r *http.Request) {
	id, ok := parseEdgeID(w, r)
	if !ok {
		return
	}
	edge, err := h.BOM.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, "Failed to get BOM edge", err)
		return
	}
	writeJSON(w, http.StatusOK, toBOMEdgeDTO(edge))
}

// UpdateBOMEdge applies a partial update.
func (h *Handler) UpdateBOMEdge(w http.ResponseWriter, r *http.Request) {
	id, ok := parseEdgeID(w, r)
	if !ok {
		return
	}
	var req UpdateBOMEdgeRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	var upd bom.EdgeUpdate
	if req.ParentID != nil {
		p := inventory.ItemID(*req.ParentID)
		upd.ParentID = &p
	}
	if req.ComponentID != nil {
		c := inventory.ItemID(*req.ComponentID)
		upd.ComponentID = &c
	}
	upd.Quantity = req.Quantity

	edge, err := h.BOM.Update(r.Context(), id, upd)
	if err != nil {
		writeDomainError(w, r, "Failed to update BOM edge", err)
		return
	}
	writeJSON(w, http.StatusOK, toBOMEdgeDTO(edge))
}

// DeleteBOMEdge removes an edge. Deleting a missing edge is not an error.
func (h *Handler) DeleteBOMEdge(w http.ResponseWriter, r *http.Request) {
	id, ok := parseEdgeID(w, r)
	if !ok {
		return
	}
	deleted, err := h.BOM.Delete(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, "Failed to delete BOM edge", err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Deleted: deleted})
}

// =============================================================================
// MASTER DATA HANDLERS
// =============================================================================

func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Store.Items(r.Context())
	if err != nil {
		writeDomainError(w, r, "Failed to list items", err)
		return
	}
	dtos := make([]ItemDTO, len(items))
	for i, it := range items {
		dtos[i] = toItemDTO(it)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	reorder := decimalOrZero(req.ReorderLevel)
	if reorder.IsNegative() {
		writeError(w, http.StatusBadRequest, "Validation failed", fmt.Errorf("%w: reorder level %s", inventory.ErrInvalidQuantity, reorder))
		return
	}

	it, err := h.Store.SaveItem(r.Context(), inventory.Item{
		Name:          strings.TrimSpace(req.Name),
		SKU:           strings.TrimSpace(req.SKU),
		UnitOfMeasure: req.UnitOfMeasure,
		Manufactured:  req.Manufactured,
		ReorderLevel:  reorder,
		CostPrice:     decimalOrZero(req.CostPrice),
		SalePrice:     decimalOrZero(req.SalePrice),
	})
	if err != nil {
		writeDomainError(w, r, "Failed to create item", err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemDTO(it))
}

func (h *Handler) ListLocations(w http.ResponseWriter, r *http.Request) {
	locs, err := h.Store.Locations(r.Context())
	if err != nil {
		writeDomainError(w, r, "Failed to list locations", err)
		return
	}
	dtos := make([]LocationDTO, len(locs))
	for i, l := range locs {
		dtos[i] = LocationDTO{ID: int64(l.ID), Name: l.Name, CreatedAt: l.CreatedAt}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateLocation(w http.ResponseWriter, r *http.Request) {
	var req CreateLocationRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	l, err := h.Store.SaveLocation(r.Context(), inventory.Location{Name: strings.TrimSpace(req.Name)})
	if err != nil {
		writeDomainError(w, r, "Failed to create location", err)
		return
	}
	writeJSON(w, http.StatusCreated, LocationDTO{ID: int64(l.ID), Name: l.Name, CreatedAt: l.CreatedAt})
}

func (h *Handler) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	h.listParties(w, r, "suppliers", h.Store.Suppliers)
}

func (h *Handler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	h.createParty(w, r, "supplier", h.Store.SaveSupplier)
}

func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	h.listParties(w, r, "customers", h.Store.Customers)
}

func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	h.createParty(w, r, "customer", h.Store.SaveCustomer)
}

func (h *Handler) listParties(w http.ResponseWriter, r *http.Request, what string, list func(context.Context) ([]inventory.Party, error)) {
	parties, err := list(r.Context())
	if err != nil {
		writeDomainError(w, r, "Failed to list "+what, err)
		return
	}
	dtos := make([]PartyDTO, len(parties))
	for i, p := range parties {
		dtos[i] = toPartyDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) createParty(w http.ResponseWriter, r *http.Request, what string, save func(context.Context, inventory.Party) (inventory.Party, error)) {
	var req CreatePartyRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	p, err := save(r.Context(), inventory.Party{Name: strings.TrimSpace(req.Name)})
	if err != nil {
		writeDomainError(w, r, "Failed to create "+what, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPartyDTO(p))
}

// =============================================================================
// PARAMETER HELPERS
// =============================================================================

func parseOptionalDate(w http.ResponseWriter, s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, true
	}
	d, err := inventory.ParseDate(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return time.Time{}, false
	}
	return d, true
}

func parseOptionalID(w http.ResponseWriter, s, name string) (*int64, bool) {
	if s == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid "+name, err)
		return nil, false
	}
	return &id, true
}

func parseEdgeID(w http.ResponseWriter, r *http.Request) (bom.EdgeID, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid BOM edge id", err)
		return 0, false
	}
	return bom.EdgeID(id), true
}
