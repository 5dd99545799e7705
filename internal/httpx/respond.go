package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-gift-mall/internal/collection"
	"github.com/ariefcatur/go-gift-mall/internal/donations"
	"github.com/ariefcatur/go-gift-mall/internal/inventory"
	"github.com/ariefcatur/go-gift-mall/internal/orders"
	"github.com/ariefcatur/go-gift-mall/internal/rewards"
	"github.com/ariefcatur/go-gift-mall/internal/store"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, collection.ErrUnknownProduct):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrInvalidReference),
		errors.Is(err, orders.ErrInvalidQuantity),
		errors.Is(err, orders.ErrEmptyOrder),
		errors.Is(err, collection.ErrInvalidEntry),
		errors.Is(err, inventory.ErrInvalidProduct),
		errors.Is(err, rewards.ErrInvalidCount),
		errors.Is(err, donations.ErrInvalidDonation):
		return http.StatusBadRequest
	case errors.Is(err, rewards.ErrInsufficientChances),
		errors.Is(err, rewards.ErrNoEligibleInventory),
		errors.Is(err, inventory.ErrDonationLocked),
		errors.Is(err, store.ErrDuplicateReceipt):
		return http.StatusConflict
	case errors.Is(err, orders.ErrPaymentNotVerified):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

func messageOf(err error) string {
	switch {
	case errors.Is(err, rewards.ErrInsufficientChances):
		return "You have no draw chances left. Every purchase total step earns a new one."
	case errors.Is(err, rewards.ErrNoEligibleInventory):
		return "The random box is empty right now. Your chance was kept."
	default:
		return err.Error()
	}
}

// writeError maps domain errors to status codes. Internal errors are logged
// and answered with a generic message.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	code := statusOf(err)
	if code == http.StatusInternalServerError {
		if log != nil {
			log.Error("request failed", zap.Error(err))
		}
		writeJSON(w, code, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, code, map[string]string{"error": messageOf(err)})
}
