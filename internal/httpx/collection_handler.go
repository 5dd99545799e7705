package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-gift-mall/internal/collection"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CollectionHandler struct {
	Collection *collection.Service
	Log        *zap.Logger
}

type AddEntryReq struct {
	ProductID string `json:"product_id"`
}

func (h *CollectionHandler) Register(r chi.Router) {
	r.Route("/collection", func(r chi.Router) {
		r.Use(RequireUser)
		r.Get("/", h.list)
		r.Post("/", h.add)
		r.Get("/count", h.count)
		r.Get("/{productId}", h.has)
		r.Delete("/{productId}", h.remove)
	})
}

func (h *CollectionHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	entries, err := h.Collection.List(ctx, caller(r))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *CollectionHandler) add(w http.ResponseWriter, r *http.Request) {
	var req AddEntryReq
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	e, err := h.Collection.Add(ctx, caller(r), req.ProductID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (h *CollectionHandler) count(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	n, err := h.Collection.Count(ctx, caller(r))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

func (h *CollectionHandler) has(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ok, err := h.Collection.Has(ctx, caller(r), chi.URLParam(r, "productId"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": ok})
}

func (h *CollectionHandler) remove(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	n, err := h.Collection.Remove(ctx, caller(r), chi.URLParam(r, "productId"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"removed": n})
}
