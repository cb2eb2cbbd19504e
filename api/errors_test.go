package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/stock-engine/inventory"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid quantity", fmt.Errorf("receive: %w", inventory.ErrInvalidQuantity), http.StatusBadRequest},
		{"same location", &inventory.SameLocationError{LocationID: 1}, http.StatusBadRequest},
		{"self reference", &inventory.SelfReferenceError{ItemID: 1}, http.StatusBadRequest},
		{"not found", &inventory.NotFoundError{Kind: "item", ID: 9}, http.StatusNotFound},
		{"duplicate edge", &inventory.DuplicateEdgeError{ParentID: 1, ComponentID: 2}, http.StatusConflict},
		{"cycle", fmt.Errorf("create: %w", inventory.ErrCircularDependency), http.StatusConflict},
		{"duplicate record", fmt.Errorf("%w: item name %q", inventory.ErrDuplicateRecord, "Bolt"), http.StatusConflict},
		{"insufficient stock", fmt.Errorf("issue: %w", inventory.ErrInsufficientStock), http.StatusUnprocessableEntity},
		{"component shortage", &inventory.InsufficientComponentStockError{}, http.StatusUnprocessableEntity},
		{"not manufactured", fmt.Errorf("x: %w", inventory.ErrNotManufactured), http.StatusUnprocessableEntity},
		{"no bom", fmt.Errorf("x: %w", inventory.ErrNoBOM), http.StatusUnprocessableEntity},
		{"storage failure", errors.New("failed to scan quantity: bad decimal"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
