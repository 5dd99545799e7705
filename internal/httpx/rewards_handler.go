package httpx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/go-gift-mall/internal/rewards"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type RewardsHandler struct {
	Rewards *rewards.Service
	Log     *zap.Logger
}

type GrantChancesReq struct {
	Email string `json:"email"`
	Count int64  `json:"count"`
}

type chancesResp struct {
	Remaining    int64 `json:"remaining"`
	Granted      int64 `json:"granted"`
	Lifetime     int64 `json:"lifetime_total"`
	ToNextChance int64 `json:"to_next_chance"`
}

func (h *RewardsHandler) Register(r chi.Router) {
	r.Route("/rewards", func(r chi.Router) {
		r.Use(RequireUser)
		r.Get("/chances", h.chances)
		r.Post("/use", h.use)
		r.Post("/draw", h.draw)
		r.With(RequireAdmin).Post("/admin/chances", h.grant)
	})
}

func (h *RewardsHandler) chances(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	email := caller(r)
	l, err := h.Rewards.GetChances(ctx, email)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	p, err := h.Rewards.AmountToNextChance(ctx, email)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, chancesResp{Remaining: l.Remaining, Granted: l.Granted, Lifetime: p.LifetimeTotal, ToNextChance: p.ToNextChance})
}

func (h *RewardsHandler) use(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	l, err := h.Rewards.UseChance(ctx, caller(r))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"remaining": l.Remaining})
}

func (h *RewardsHandler) draw(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Rewards.Draw(ctx, caller(r))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *RewardsHandler) grant(w http.ResponseWriter, r *http.Request) {
	var req GrantChancesReq
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	l, err := h.Rewards.AddManualChances(ctx, req.Email, req.Count)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"remaining": l.Remaining, "granted": l.Granted})
}
