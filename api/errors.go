package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/hlog"
	"github.com/warp/stock-engine/inventory"
)

// statusFor maps the error taxonomy to an HTTP status. Anything outside the
// taxonomy is an infrastructure failure.
func statusFor(err error) int {
	switch {
	case !inventory.IsClientError(err):
		return http.StatusInternalServerError
	case inventory.IsNotFound(err):
		return http.StatusNotFound
	case inventory.IsConflict(err):
		return http.StatusConflict
	case errors.Is(err, inventory.ErrInsufficientStock),
		errors.Is(err, inventory.ErrInsufficientComponentStock),
		errors.Is(err, inventory.ErrNotManufactured),
		errors.Is(err, inventory.ErrNoBOM):
		return http.StatusUnprocessableEntity
	default:
		// invalid quantity, same location, self reference
		return http.StatusBadRequest
	}
}

// writeDomainError writes err with its mapped status. Infrastructure errors
// are logged and their details withheld from the client.
func writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Msg(message)
		writeError(w, status, message, nil)
		return
	}

	resp := ErrorResponse{Error: message, Details: err.Error()}
	var ice *inventory.InsufficientComponentStockError
	if errors.As(err, &ice) {
		for _, s := range ice.Shortages {
			resp.Shortages = append(resp.Shortages, ShortageDTO{
				ComponentID:   int64(s.ComponentID),
				ComponentName: s.ComponentName,
				Required:      s.Required,
				Available:     s.Available,
			})
		}
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
// It writes the 400 response itself and reports false on failure.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeError(w, http.StatusBadRequest, "Validation failed", verrs)
			return false
		}
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}
