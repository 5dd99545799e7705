package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-gift-mall/internal/orders"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type OrdersHandler struct {
	Orders *orders.Service
	Log    *zap.Logger
}

type PlaceOrderReq struct {
	CouponCode string             `json:"coupon_code"`
	ReceiptID  string             `json:"receipt_id"`
	Lines      []orders.LineInput `json:"lines"`
}

type AttachReceiptReq struct {
	ReceiptID string `json:"receipt_id"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/payments/verify/{receiptId}", h.verifyPayment)
	r.Group(func(r chi.Router) {
		r.Use(RequireUser)
		r.Post("/orders", h.placeOrder)
		r.Get("/orders/history", h.history)
		r.Get("/orders/lifetime", h.lifetime)
		r.Post("/orders/{id}/receipt", h.attachReceipt)
	})
}

func (h *OrdersHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderReq
	if !decode(w, r, &req) {
		return
	}
	if len(req.Lines) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	sum, err := h.Orders.PlaceOrder(ctx, orders.PlaceOrderInput{
		OwnerEmail: caller(r),
		CouponCode: req.CouponCode,
		ReceiptID:  req.ReceiptID,
		Lines:      req.Lines,
	})
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	code := http.StatusCreated
	if sum.Existing {
		code = http.StatusOK
	}
	writeJSON(w, code, sum)
}

func (h *OrdersHandler) history(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Orders.GetOrderHistory(ctx, caller(r))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) lifetime(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	total, err := h.Orders.LifetimeTotal(ctx, caller(r))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"lifetime_total": total})
}

func (h *OrdersHandler) attachReceipt(w http.ResponseWriter, r *http.Request) {
	var req AttachReceiptReq
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Orders.AttachReceipt(ctx, caller(r), chi.URLParam(r, "id"), req.ReceiptID); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// verifyPayment is the provider callback: verify the receipt, then hide the order's products.
func (h *OrdersHandler) verifyPayment(w http.ResponseWriter, r *http.Request) {
	receiptID := chi.URLParam(r, "receiptId")

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	hidden, err := h.Orders.VerifyAndConfirm(ctx, receiptID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipt_id": receiptID, "verified": true, "hidden": hidden})
}
