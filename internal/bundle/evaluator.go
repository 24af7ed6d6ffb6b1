package bundle

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrConfig       = errors.New("bundle discount config invalid")
	ErrNotFound     = errors.New("bundle not found")
	ErrBadState     = errors.New("bundle state does not allow operation")
	ErrVariantInUse = errors.New("variant referenced by open bundle")
)

var hundred = decimal.NewFromInt(100)

// ValidateDiscount: invariant fixed xor percent, percent di (0,100].
func ValidateDiscount(b Bundle) error {
	switch b.DiscountType {
	case DiscountFixed:
		if b.FixedPriceCents == nil || b.PercentOff != nil {
			return fmt.Errorf("%w: fixed bundle must set fixed_price_cents only", ErrConfig)
		}
		if *b.FixedPriceCents < 0 {
			return fmt.Errorf("%w: fixed_price_cents must be >= 0", ErrConfig)
		}
	case DiscountPercent:
		if b.PercentOff == nil || b.FixedPriceCents != nil {
			return fmt.Errorf("%w: percent bundle must set percent_off only", ErrConfig)
		}
		if !b.PercentOff.IsPositive() || b.PercentOff.GreaterThan(hundred) {
			return fmt.Errorf("%w: percent_off must be in (0,100]", ErrConfig)
		}
	default:
		return fmt.Errorf("%w: unknown discount type %q", ErrConfig, b.DiscountType)
	}
	if len(b.Items) == 0 {
		return fmt.Errorf("%w: bundle has no items", ErrConfig)
	}
	for _, it := range b.Items {
		if it.Quantity <= 0 {
			return fmt.Errorf("%w: item %s quantity must be > 0", ErrConfig, it.VariantID)
		}
	}
	return nil
}

// Price: fixed -> harga fixed; percent -> sum(unit*qty) * (1 - p/100),
// dibulatkan half-up ke minor unit.
func Price(b Bundle) (int64, error) {
	if err := ValidateDiscount(b); err != nil {
		return 0, err
	}
	if b.DiscountType == DiscountFixed {
		return *b.FixedPriceCents, nil
	}
	var sum int64
	for _, it := range b.Items {
		sum += it.UnitPriceCents * it.Quantity
	}
	price := decimal.NewFromInt(sum).
		Mul(hundred.Sub(*b.PercentOff)).
		Div(hundred).
		Round(0) // half-up untuk nilai positif
	return price.IntPart(), nil
}

// Availability: min per komponen floor(stock/qty), lalu dipotong
// cap - reservedOpen kalau cap di-set. Tidak pernah negatif.
func Availability(b Bundle, stock map[string]int64) int64 {
	if len(b.Items) == 0 {
		return 0
	}
	var avail int64 = -1
	for _, it := range b.Items {
		if it.Quantity <= 0 {
			return 0
		}
		n := stock[it.VariantID] / it.Quantity
		if avail < 0 || n < avail {
			avail = n
		}
	}
	if avail < 0 {
		avail = 0
	}
	if b.Cap != nil {
		room := *b.Cap - b.ReservedOpen
		if room < 0 {
			room = 0
		}
		if room < avail {
			avail = room
		}
	}
	return avail
}
