package bundle

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-reward-ledger.git/internal/ledger"
)

// Repo: bundle + snapshot item di Postgres; stok komponen dibaca dari tabel
// variants milik catalog.
type Repo struct{ DB ledger.DB }

func (r *Repo) Get(ctx context.Context, id string) (Bundle, error) {
	var (
		b          Bundle
		percentOff *string
	)
	err := r.DB.QueryRow(ctx, `
		SELECT id, name, status, discount_type, fixed_price_cents, percent_off::text, version, cap, reserved_open, created_at, updated_at
		FROM bundles WHERE id = $1`, id).
		Scan(&b.ID, &b.Name, &b.Status, &b.DiscountType, &b.FixedPriceCents, &percentOff, &b.Version, &b.Cap, &b.ReservedOpen, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Bundle{}, ErrNotFound
	}
	if err != nil {
		return Bundle{}, fmt.Errorf("get bundle: %w", err)
	}
	if percentOff != nil {
		p, err := decimal.NewFromString(*percentOff)
		if err != nil {
			return Bundle{}, fmt.Errorf("parse percent_off: %w", err)
		}
		b.PercentOff = &p
	}

	rows, err := r.DB.Query(ctx, `
		SELECT variant_id, quantity, unit_price_cents
		FROM bundle_items WHERE bundle_id = $1 ORDER BY variant_id`, id)
	if err != nil {
		return Bundle{}, fmt.Errorf("get bundle items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.VariantID, &it.Quantity, &it.UnitPriceCents); err != nil {
			return Bundle{}, err
		}
		b.Items = append(b.Items, it)
	}
	return b, rows.Err()
}

// ComponentStock: stok per variant untuk hitung availability.
func (r *Repo) ComponentStock(ctx context.Context, variantIDs []string) (map[string]int64, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, stock FROM variants WHERE id = ANY($1)`, variantIDs)
	if err != nil {
		return nil, fmt.Errorf("component stock: %w", err)
	}
	defer rows.Close()
	out := map[string]int64{}
	for rows.Next() {
		var id string
		var stock int64
		if err := rows.Scan(&id, &stock); err != nil {
			return nil, err
		}
		out[id] = stock
	}
	return out, rows.Err()
}

// Publish: DRAFT -> ACTIVE, version naik. Validasi diskon dan eksistensi
// semua komponen dulu; komponen hilang -> bundle di-mark BROKEN, bukan publish.
func (r *Repo) Publish(ctx context.Context, id string) (Bundle, error) {
	b, err := r.Get(ctx, id)
	if err != nil {
		return Bundle{}, err
	}
	if b.Status != StatusDraft {
		return Bundle{}, fmt.Errorf("%w: publish requires DRAFT, got %s", ErrBadState, b.Status)
	}
	if err := ValidateDiscount(b); err != nil {
		return Bundle{}, err
	}

	ids := make([]string, 0, len(b.Items))
	for _, it := range b.Items {
		ids = append(ids, it.VariantID)
	}
	stock, err := r.ComponentStock(ctx, ids)
	if err != nil {
		return Bundle{}, err
	}
	for _, it := range b.Items {
		if _, ok := stock[it.VariantID]; !ok {
			if _, err := r.DB.Exec(ctx, `
				UPDATE bundles SET status = 'BROKEN', updated_at = now() WHERE id = $1`, id); err != nil {
				return Bundle{}, fmt.Errorf("mark broken: %w", err)
			}
			return Bundle{}, fmt.Errorf("%w: component %s no longer exists", ErrBadState, it.VariantID)
		}
	}

	err = r.DB.QueryRow(ctx, `
		UPDATE bundles SET status = 'ACTIVE', version = version + 1, updated_at = now()
		WHERE id = $1 AND status = 'DRAFT'
		RETURNING version`, id).Scan(&b.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return Bundle{}, fmt.Errorf("%w: bundle state changed concurrently", ErrBadState)
	}
	if err != nil {
		return Bundle{}, fmt.Errorf("publish bundle: %w", err)
	}
	b.Status = StatusActive
	return b, nil
}

// DeleteVariant: guard referential integrity. Variant yang masih direferensi
// bundle DRAFT/ACTIVE tidak boleh dihapus, jangan diam-diam bikin bundle yatim.
func (r *Repo) DeleteVariant(ctx context.Context, variantID string) error {
	var n int
	err := r.DB.QueryRow(ctx, `
		SELECT COUNT(*) FROM bundle_items bi
		JOIN bundles b ON b.id = bi.bundle_id
		WHERE bi.variant_id = $1 AND b.status IN ('DRAFT', 'ACTIVE')`, variantID).Scan(&n)
	if err != nil {
		return fmt.Errorf("variant guard: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: %d open bundle(s)", ErrVariantInUse, n)
	}
	ct, err := r.DB.Exec(ctx, `DELETE FROM variants WHERE id = $1`, variantID)
	if err != nil {
		return fmt.Errorf("delete variant: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
