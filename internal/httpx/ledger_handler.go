package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-reward-ledger.git/internal/ledger"
	"github.com/ariefcatur/go-reward-ledger.git/internal/redisx"
)

// LedgerHandler: checkout (reserve/release) + surface admin (adjust, list,
// settings). Transport tipis; semua aturan di Balance Service.
type LedgerHandler struct {
	Svc         *ledger.Service
	Settings    *ledger.SettingsStore
	OrderPoints ledger.OrderPointsStore
	Redis       *redis.Client
}

func (h *LedgerHandler) Register(r *chi.Mux) {
	r.Get("/customers/{id}/balance", h.getBalance)
	r.Get("/customers/{id}/transactions", h.listTransactions)
	r.Post("/customers/{id}/reserve", h.reserve)
	r.Post("/customers/{id}/release", h.release)
	r.Post("/customers/{id}/adjust", h.adjust)
	r.Get("/balances", h.listBalances)
	r.Get("/settings", h.getSettings)
	r.Put("/settings", h.updateSettings)
}

func (h *LedgerHandler) getBalance(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) coba cache
	key := fmt.Sprintf(redisx.KeyBalance, customerID)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	// 2) fallback store
	bv, err := h.Svc.GetBalance(ctx, customerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	b, _ := json.Marshal(bv)
	_ = h.Redis.Set(ctx, key, b, redisx.TTLBalanceCache).Err()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (h *LedgerHandler) invalidateBalance(ctx context.Context, customerID string) {
	_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeyBalance, customerID)).Err()
}

type ReserveReq struct {
	Points   int64  `json:"points"`
	OrderRef string `json:"order_ref"`
}

type ReserveResp struct {
	Reserved           int64 `json:"reserved"`
	DiscountValueCents int64 `json:"discount_value_cents"`
}

func (h *LedgerHandler) reserve(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "id")
	var req ReserveReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.OrderRef == "" || req.Points <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Svc.Reserve(ctx, customerID, req.Points, req.OrderRef); err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientAvailable),
			errors.Is(err, ledger.ErrRedemptionOutOfBounds),
			errors.Is(err, ledger.ErrReservationMismatch),
			errors.Is(err, ledger.ErrRewardsDisabled):
			// checkout lanjut tanpa diskon; bukan fatal
			writeError(w, http.StatusUnprocessableEntity, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	value, err := h.Svc.DiscountValueCents(ctx, req.Points)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	// catat state order_points: reconciler baca ini pas event settle datang
	if err := h.OrderPoints.Put(ctx, ledger.OrderPoints{
		OrderRef:           req.OrderRef,
		CustomerID:         customerID,
		State:              ledger.OrderPointsReserved,
		PointsReserved:     req.Points,
		DiscountValueCents: value,
	}); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	h.invalidateBalance(ctx, customerID)
	writeJSON(w, http.StatusOK, ReserveResp{Reserved: req.Points, DiscountValueCents: value})
}

type ReleaseReq struct {
	OrderRef string `json:"order_ref"`
}

func (h *LedgerHandler) release(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "id")
	var req ReleaseReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderRef == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing order_ref"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	t, err := h.Svc.Release(ctx, customerID, req.OrderRef)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if op, gerr := h.OrderPoints.Get(ctx, req.OrderRef); gerr == nil && op != nil && t != nil {
		op.State = ledger.OrderPointsReleased
		op.PointsReleased = op.PointsReserved
		_ = h.OrderPoints.Put(ctx, *op)
	}

	h.invalidateBalance(ctx, customerID)
	writeJSON(w, http.StatusOK, map[string]bool{"released": t != nil})
}

type AdjustReq struct {
	Points      int64  `json:"points"`
	Description string `json:"description"`
}

func (h *LedgerHandler) adjust(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "id")
	var req AdjustReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Points == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "points must be non-zero"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	t, err := h.Svc.Adjust(ctx, customerID, req.Points, req.Description)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientAvailable) {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.invalidateBalance(ctx, customerID)
	writeJSON(w, http.StatusOK, t)
}

func (h *LedgerHandler) listBalances(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 50)
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	views, total, err := h.Svc.ListBalances(ctx, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": total, "items": views})
}

func (h *LedgerHandler) listTransactions(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "id")
	limit, offset := pagination(r, 50)
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	txs, err := h.Svc.ListTransactions(ctx, customerID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

type SettingsResp struct {
	ledger.Settings
	// Contoh kalkulasi untuk admin; wajib pakai aritmetika yang sama dengan
	// earn/redeem beneran (floor), jangan sampai tampilan beda sama hitungan.
	ExampleEarn struct {
		OrderTotalCents int64 `json:"order_total_cents"`
		Points          int64 `json:"points"`
	} `json:"example_earn"`
	ExampleRedeem struct {
		Points     int64 `json:"points"`
		ValueCents int64 `json:"value_cents"`
	} `json:"example_redeem"`
}

func (h *LedgerHandler) getSettings(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	s, err := h.Settings.Get(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	resp := SettingsResp{Settings: s}
	resp.ExampleEarn.OrderTotalCents = 10000
	resp.ExampleEarn.Points = s.EarnPoints(10000)
	resp.ExampleRedeem.Points = 100
	resp.ExampleRedeem.ValueCents = s.RedeemValueCents(100)
	writeJSON(w, http.StatusOK, resp)
}

func (h *LedgerHandler) updateSettings(w http.ResponseWriter, r *http.Request) {
	var s ledger.Settings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	updated, err := h.Settings.Update(ctx, s)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidSettings) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func pagination(r *http.Request, defLimit int) (limit, offset int) {
	limit = defLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
