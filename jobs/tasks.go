// Package jobs raises reorder alerts in the background: a scanner enqueues
// one asynq task per (item, location) at or below its reorder level and the
// worker processes them.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/stock-engine/inventory"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReorderAlert is raised for a pair whose stock fell to its reorder level.
	TaskReorderAlert = "stock:reorder_alert"
)

// ReorderAlertPayload describes the pair that crossed its reorder level.
type ReorderAlertPayload struct {
	ItemID       inventory.ItemID     `json:"item_id"`
	LocationID   inventory.LocationID `json:"location_id"`
	Quantity     decimal.Decimal      `json:"quantity"`
	ReorderLevel decimal.Decimal      `json:"reorder_level"`
	DetectedAt   time.Time            `json:"detected_at"`
}

// NewReorderAlertTask constructs an asynq task.
func NewReorderAlertTask(payload ReorderAlertPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReorderAlert, data), nil
}

// QuantityReader is the slice of inventory.Ledger the alert handler needs.
type QuantityReader interface {
	CurrentQuantity(ctx context.Context, itemID inventory.ItemID, locationID inventory.LocationID) (decimal.Decimal, error)
}

// ReorderAlertHandler re-checks the quantity when the task runs, since stock
// may have been received between the scan and now.
type ReorderAlertHandler struct {
	quantities QuantityReader
	catalog    inventory.Catalog
	logger     zerolog.Logger
}

func NewReorderAlertHandler(quantities QuantityReader, catalog inventory.Catalog, logger zerolog.Logger) *ReorderAlertHandler {
	return &ReorderAlertHandler{quantities: quantities, catalog: catalog, logger: logger}
}

// ProcessTask implements asynq.Handler.
func (h *ReorderAlertHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload ReorderAlertPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", TaskReorderAlert, err, asynq.SkipRetry)
	}

	item, err := h.catalog.Item(ctx, payload.ItemID)
	if err != nil {
		return fmt.Errorf("load item %d: %w", payload.ItemID, err)
	}
	if item == nil {
		return fmt.Errorf("item %d: %w", payload.ItemID, asynq.SkipRetry)
	}

	qty, err := h.quantities.CurrentQuantity(ctx, payload.ItemID, payload.LocationID)
	if err != nil {
		return fmt.Errorf("load quantity: %w", err)
	}

	logger := h.logger.With().
		Int64("item_id", int64(payload.ItemID)).
		Str("item", item.Name).
		Int64("location_id", int64(payload.LocationID)).
		Str("quantity", qty.String()).
		Str("reorder_level", item.ReorderLevel.String()).
		Logger()

	if qty.GreaterThan(item.ReorderLevel) {
		logger.Info().Msg("stock recovered above reorder level")
		return nil
	}
	logger.Warn().Msg("stock at or below reorder level")
	return nil
}
