package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// State reconciliation per order. Baris tidak ada = belum ada poin yang
// nyangkut di order itu.
const (
	OrderPointsReserved = "RESERVED" // hold aktif, belum settle
	OrderPointsSettled  = "SETTLED"  // redeem committed dan/atau earn tercatat
	OrderPointsReleased = "RELEASED" // hold dilepas (cancel pre-payment, declined, expired)
	OrderPointsReversed = "REVERSED" // post-settlement cancel: refund + remove selesai
)

// OrderPoints: field milik kita di order record eksternal. Reconciler membaca
// baris ini sebelum bertindak untuk deteksi event out-of-order / duplikat.
type OrderPoints struct {
	OrderRef           string    `json:"order_ref"`
	CustomerID         string    `json:"customer_id"`
	State              string    `json:"state"`
	PointsReserved     int64     `json:"points_reserved"`
	PointsRedeemed     int64     `json:"points_redeemed"`
	PointsEarned       int64     `json:"points_earned"`
	PointsReleased     int64     `json:"points_released"`
	PointsRefunded     int64     `json:"points_refunded"`
	PointsRemoved      int64     `json:"points_removed"`
	DiscountValueCents int64     `json:"discount_value_cents"`
	OrderTotalCents    int64     `json:"order_total_cents"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type OrderPointsStore interface {
	Get(ctx context.Context, orderRef string) (*OrderPoints, error) // nil kalau belum ada
	Put(ctx context.Context, op OrderPoints) error                  // upsert
}

// OrderPointsRepo: Postgres, satu baris per order_ref.
type OrderPointsRepo struct{ DB DB }

var _ OrderPointsStore = (*OrderPointsRepo)(nil)

const orderPointsCols = `order_ref, customer_id, state, points_reserved, points_redeemed, points_earned,
	points_released, points_refunded, points_removed, discount_value_cents, order_total_cents, updated_at`

func (r *OrderPointsRepo) Get(ctx context.Context, orderRef string) (*OrderPoints, error) {
	var op OrderPoints
	err := r.DB.QueryRow(ctx, `
		SELECT `+orderPointsCols+` FROM order_points WHERE order_ref = $1`, orderRef).
		Scan(&op.OrderRef, &op.CustomerID, &op.State, &op.PointsReserved, &op.PointsRedeemed, &op.PointsEarned,
			&op.PointsReleased, &op.PointsRefunded, &op.PointsRemoved, &op.DiscountValueCents, &op.OrderTotalCents, &op.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get order points: %w", err)
	}
	return &op, nil
}

func (r *OrderPointsRepo) Put(ctx context.Context, op OrderPoints) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO order_points (order_ref, customer_id, state, points_reserved, points_redeemed, points_earned,
			points_released, points_refunded, points_removed, discount_value_cents, order_total_cents, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
		ON CONFLICT (order_ref) DO UPDATE SET
			customer_id = EXCLUDED.customer_id,
			state = EXCLUDED.state,
			points_reserved = EXCLUDED.points_reserved,
			points_redeemed = EXCLUDED.points_redeemed,
			points_earned = EXCLUDED.points_earned,
			points_released = EXCLUDED.points_released,
			points_refunded = EXCLUDED.points_refunded,
			points_removed = EXCLUDED.points_removed,
			discount_value_cents = EXCLUDED.discount_value_cents,
			order_total_cents = EXCLUDED.order_total_cents,
			updated_at = now()`,
		op.OrderRef, op.CustomerID, op.State, op.PointsReserved, op.PointsRedeemed, op.PointsEarned,
		op.PointsReleased, op.PointsRefunded, op.PointsRemoved, op.DiscountValueCents, op.OrderTotalCents)
	if err != nil {
		return fmt.Errorf("put order points: %w", err)
	}
	return nil
}

// MemOrderPoints: untuk test.
type MemOrderPoints struct {
	mu   sync.Mutex
	rows map[string]OrderPoints
}

func NewMemOrderPoints() *MemOrderPoints {
	return &MemOrderPoints{rows: map[string]OrderPoints{}}
}

var _ OrderPointsStore = (*MemOrderPoints)(nil)

func (m *MemOrderPoints) Get(_ context.Context, orderRef string) (*OrderPoints, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.rows[orderRef]
	if !ok {
		return nil, nil
	}
	return &op, nil
}

func (m *MemOrderPoints) Put(_ context.Context, op OrderPoints) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	op.UpdatedAt = time.Now()
	m.rows[op.OrderRef] = op
	return nil
}
