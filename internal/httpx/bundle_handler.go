package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-reward-ledger.git/internal/bundle"
	"github.com/ariefcatur/go-reward-ledger.git/internal/redisx"
)

type BundleHandler struct {
	Repo  *bundle.Repo
	Redis *redis.Client
}

func (h *BundleHandler) Register(r *chi.Mux) {
	r.Get("/bundles/{id}/quote", h.quote)
	r.Post("/bundles/{id}/publish", h.publish)
	r.Delete("/variants/{id}", h.deleteVariant)
}

type QuoteResp struct {
	BundleID   string `json:"bundle_id"`
	Version    int    `json:"version"`
	PriceCents int64  `json:"price_cents"`
	Available  int64  `json:"available"`
}

// quote: harga + virtual availability. Availability di-cache sebentar di
// Redis; dibaca tiap render katalog, stok jarang gerak sedetik dua detik.
func (h *BundleHandler) quote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyBundleAvail, id)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	b, err := h.Repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, bundle.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	price, err := bundle.Price(b)
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}

	ids := make([]string, 0, len(b.Items))
	for _, it := range b.Items {
		ids = append(ids, it.VariantID)
	}
	stock, err := h.Repo.ComponentStock(ctx, ids)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	resp := QuoteResp{
		BundleID:   b.ID,
		Version:    b.Version,
		PriceCents: price,
		Available:  bundle.Availability(b, stock),
	}
	buf, _ := json.Marshal(resp)
	_ = h.Redis.Set(ctx, key, buf, redisx.TTLBundleAvail).Err()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf)
}

func (h *BundleHandler) publish(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	b, err := h.Repo.Publish(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, bundle.ErrNotFound):
			writeError(w, http.StatusNotFound, err)
		case errors.Is(err, bundle.ErrConfig), errors.Is(err, bundle.ErrBadState):
			writeError(w, http.StatusConflict, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeyBundleAvail, id)).Err()
	writeJSON(w, http.StatusOK, b)
}

func (h *BundleHandler) deleteVariant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Repo.DeleteVariant(ctx, id); err != nil {
		switch {
		case errors.Is(err, bundle.ErrVariantInUse):
			writeError(w, http.StatusConflict, err)
		case errors.Is(err, bundle.ErrNotFound):
			writeError(w, http.StatusNotFound, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
