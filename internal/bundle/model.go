package bundle

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusActive   Status = "ACTIVE"
	StatusBroken   Status = "BROKEN"
	StatusArchived Status = "ARCHIVED"
)

type DiscountType string

const (
	DiscountFixed   DiscountType = "fixed"
	DiscountPercent DiscountType = "percent"
)

// Bundle: produk gabungan dengan satu harga. Persis satu dari
// FixedPriceCents / PercentOff yang terisi, konsisten dengan DiscountType.
type Bundle struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Status          Status           `json:"status"`
	DiscountType    DiscountType     `json:"discount_type"`
	FixedPriceCents *int64           `json:"fixed_price_cents,omitempty"`
	PercentOff      *decimal.Decimal `json:"percent_off,omitempty"` // (0,100]
	Version         int              `json:"version"`               // naik tiap publish
	Cap             *int64           `json:"cap,omitempty"`         // marketing cap, optional
	ReservedOpen    int64            `json:"reserved_open"`         // dipegang order yang belum settle
	Items           []Item           `json:"items"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

type Item struct {
	VariantID      string `json:"variant_id"`
	Quantity       int64  `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"` // snapshot saat bundle disusun
}
