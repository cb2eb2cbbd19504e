/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic data
	for demos. Each scenario creates master data and runs real operations
	through the movements engine, so every invariant holds on the result.

AVAILABLE SCENARIOS:

	basic-ledger:       Receive, issue, transfer and adjust one item
	production:         Manufactured item with a two-component BOM, produced once
	insufficient-stock: An issue larger than stock on hand, rejected

HOW SCENARIOS WORK:
 1. Reset store (clear all data)
 2. Create items, locations, suppliers, customers
 3. Create BOM edges through the BOM manager
 4. Run stock operations through the engine

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "production"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler wiring
  - movements/engine.go: Operations used by the loaders
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/warp/stock-engine/inventory"
	"github.com/warp/stock-engine/movements"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "basic-ledger",
		Name:        "Basic Ledger",
		Description: "Receive 100, issue 30, transfer 20 to the annex, adjust -5",
	},
	{
		ID:          "production",
		Name:        "Production",
		Description: "Produce 5 bicycles consuming frames (x2) and wheels (x1.5)",
	},
	{
		ID:          "insufficient-stock",
		Name:        "Insufficient Stock",
		Description: "100 on hand, an issue of 150 is rejected and stock is unchanged",
	},
}

var scenarioLoaders = map[string]func(context.Context, *Handler) error{
	"basic-ledger":       loadBasicLedgerScenario,
	"production":         loadProductionScenario,
	"insufficient-stock": loadInsufficientStockScenario,
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns the available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the ID of the last loaded scenario.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]string{"scenario_id": h.currentScenario})
}

// LoadScenario resets the store and loads the requested scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if err := h.loadScenario(r.Context(), req.ScenarioID); err != nil {
		if errors.Is(err, errUnknownScenario) {
			writeError(w, http.StatusNotFound, "Unknown scenario", err)
			return
		}
		writeDomainError(w, r, "Failed to load scenario", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario_id": req.ScenarioID})
}

// ResetDatabase clears every table.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		writeDomainError(w, r, "Failed to reset store", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

var errUnknownScenario = errors.New("unknown scenario")

func (h *Handler) loadScenario(ctx context.Context, id string) error {
	load, ok := scenarioLoaders[id]
	if !ok {
		return fmt.Errorf("%w: %q", errUnknownScenario, id)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	if err := load(ctx, h); err != nil {
		return fmt.Errorf("scenario %s: %w", id, err)
	}
	h.currentScenario = id
	h.logger.Info().Str("scenario", id).Msg("scenario loaded")
	return nil
}

// =============================================================================
// LOADERS
// =============================================================================

func loadBasicLedgerScenario(ctx context.Context, h *Handler) error {
	widget, err := h.Store.SaveItem(ctx, inventory.Item{
		Name: "Widget", SKU: "WID-001", UnitOfMeasure: "pcs",
		ReorderLevel: decimal.NewFromInt(10),
		CostPrice:    decimal.RequireFromString("2.50"),
		SalePrice:    decimal.RequireFromString("4.00"),
	})
	if err != nil {
		return err
	}
	main, err := h.Store.SaveLocation(ctx, inventory.Location{Name: "Main Warehouse"})
	if err != nil {
		return err
	}
	annex, err := h.Store.SaveLocation(ctx, inventory.Location{Name: "Annex"})
	if err != nil {
		return err
	}
	supplier, err := h.Store.SaveSupplier(ctx, inventory.Party{Name: "Acme Supply"})
	if err != nil {
		return err
	}
	customer, err := h.Store.SaveCustomer(ctx, inventory.Party{Name: "Globex"})
	if err != nil {
		return err
	}

	if _, err := h.Engine.Receive(ctx, movements.ReceiveInput{
		ItemID: widget.ID, LocationID: main.ID, Quantity: decimal.NewFromInt(100),
		SupplierID: &supplier.ID, Reference: "PO-1001",
	}); err != nil {
		return err
	}
	if _, err := h.Engine.Issue(ctx, movements.IssueInput{
		ItemID: widget.ID, LocationID: main.ID, Quantity: decimal.NewFromInt(30),
		CustomerID: &customer.ID, Reference: "SO-2001",
	}); err != nil {
		return err
	}
	if _, err := h.Engine.Transfer(ctx, movements.TransferInput{
		ItemID: widget.ID, FromLocationID: main.ID, ToLocationID: annex.ID,
		Quantity: decimal.NewFromInt(20), Reference: "Rebalance",
	}); err != nil {
		return err
	}
	_, err = h.Engine.Adjust(ctx, movements.AdjustInput{
		ItemID: widget.ID, LocationID: main.ID, Quantity: decimal.NewFromInt(-5),
		Reference: "Cycle count",
	})
	return err
}

func loadProductionScenario(ctx context.Context, h *Handler) error {
	bike, err := h.Store.SaveItem(ctx, inventory.Item{
		Name: "Bicycle", SKU: "BIKE-001", UnitOfMeasure: "pcs", Manufactured: true,
		ReorderLevel: decimal.NewFromInt(2),
	})
	if err != nil {
		return err
	}
	frame, err := h.Store.SaveItem(ctx, inventory.Item{
		Name: "Frame", SKU: "FRM-001", UnitOfMeasure: "pcs",
		ReorderLevel: decimal.NewFromInt(12),
	})
	if err != nil {
		return err
	}
	wheel, err := h.Store.SaveItem(ctx, inventory.Item{
		Name: "Wheel", SKU: "WHL-001", UnitOfMeasure: "pcs",
		ReorderLevel: decimal.NewFromInt(5),
	})
	if err != nil {
		return err
	}
	shop, err := h.Store.SaveLocation(ctx, inventory.Location{Name: "Workshop"})
	if err != nil {
		return err
	}

	if _, err := h.BOM.Create(ctx, bike.ID, frame.ID, decimal.NewFromInt(2)); err != nil {
		return err
	}
	if _, err := h.BOM.Create(ctx, bike.ID, wheel.ID, decimal.RequireFromString("1.5")); err != nil {
		return err
	}

	if _, err := h.Engine.Receive(ctx, movements.ReceiveInput{
		ItemID: frame.ID, LocationID: shop.ID, Quantity: decimal.NewFromInt(20),
	}); err != nil {
		return err
	}
	if _, err := h.Engine.Receive(ctx, movements.ReceiveInput{
		ItemID: wheel.ID, LocationID: shop.ID, Quantity: decimal.NewFromInt(15),
	}); err != nil {
		return err
	}
	_, err = h.Engine.Produce(ctx, movements.ProduceInput{
		ItemID: bike.ID, LocationID: shop.ID, Quantity: decimal.NewFromInt(5),
		Reference: "WO-1",
	})
	return err
}

func loadInsufficientStockScenario(ctx context.Context, h *Handler) error {
	widget, err := h.Store.SaveItem(ctx, inventory.Item{
		Name: "Widget", SKU: "WID-001", UnitOfMeasure: "pcs",
		ReorderLevel: decimal.NewFromInt(10),
	})
	if err != nil {
		return err
	}
	main, err := h.Store.SaveLocation(ctx, inventory.Location{Name: "Main Warehouse"})
	if err != nil {
		return err
	}

	if _, err := h.Engine.Receive(ctx, movements.ReceiveInput{
		ItemID: widget.ID, LocationID: main.ID, Quantity: decimal.NewFromInt(100),
	}); err != nil {
		return err
	}

	_, err = h.Engine.Issue(ctx, movements.IssueInput{
		ItemID: widget.ID, LocationID: main.ID, Quantity: decimal.NewFromInt(150),
	})
	if errors.Is(err, inventory.ErrInsufficientStock) {
		return nil
	}
	if err == nil {
		return errors.New("issue of 150 against 100 on hand was accepted")
	}
	return err
}
