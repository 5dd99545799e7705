package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-gift-mall/internal/donations"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type DonationsHandler struct {
	Donations *donations.Service
	Log       *zap.Logger
}

func (h *DonationsHandler) Register(r chi.Router) {
	r.Route("/donations", func(r chi.Router) {
		r.Use(RequireUser)
		r.Post("/", h.donate)
		r.Get("/history", h.history)
		r.With(RequireAdmin).Get("/donor/{email}", h.donorHistory)
		r.Get("/{id}", h.get)
	})
}

func (h *DonationsHandler) donate(w http.ResponseWriter, r *http.Request) {
	var in donations.DonationInput
	if !decode(w, r, &in) {
		return
	}
	in.DonorEmail = caller(r)
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	d, err := h.Donations.Donate(ctx, in)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *DonationsHandler) history(w http.ResponseWriter, r *http.Request) {
	h.writeHistory(w, r, caller(r))
}

func (h *DonationsHandler) donorHistory(w http.ResponseWriter, r *http.Request) {
	h.writeHistory(w, r, chi.URLParam(r, "email"))
}

func (h *DonationsHandler) writeHistory(w http.ResponseWriter, r *http.Request, email string) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	items, err := h.Donations.GetDonationHistory(ctx, email)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *DonationsHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	d, err := h.Donations.Get(ctx, caller(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
