package bundle

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func i64(v int64) *int64 { return &v }

func pct(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func percentBundle(p string, items ...Item) Bundle {
	return Bundle{
		ID:           "bdl-1",
		Status:       StatusActive,
		DiscountType: DiscountPercent,
		PercentOff:   pct(p),
		Items:        items,
	}
}

func TestPrice_PercentOff(t *testing.T) {
	// 2x2000 + 1x5500 = 9500; 25% off -> 7125
	b := percentBundle("25",
		Item{VariantID: "v1", Quantity: 2, UnitPriceCents: 2000},
		Item{VariantID: "v2", Quantity: 1, UnitPriceCents: 5500},
	)
	got, err := Price(b)
	require.NoError(t, err)
	assert.Equal(t, int64(7125), got)
}

func TestPrice_RoundsHalfUp(t *testing.T) {
	// 99 * 0.5 = 49.5 -> 50
	b := percentBundle("50", Item{VariantID: "v1", Quantity: 1, UnitPriceCents: 99})
	got, err := Price(b)
	require.NoError(t, err)
	assert.Equal(t, int64(50), got)
}

func TestPrice_FullDiscount(t *testing.T) {
	b := percentBundle("100", Item{VariantID: "v1", Quantity: 1, UnitPriceCents: 4999})
	got, err := Price(b)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)
}

func TestPrice_Fixed(t *testing.T) {
	b := Bundle{
		Status:          StatusActive,
		DiscountType:    DiscountFixed,
		FixedPriceCents: i64(7500),
		Items:           []Item{{VariantID: "v1", Quantity: 3, UnitPriceCents: 9999}},
	}
	got, err := Price(b)
	require.NoError(t, err)
	assert.Equal(t, int64(7500), got)
}

func TestValidateDiscount(t *testing.T) {
	item := Item{VariantID: "v1", Quantity: 1, UnitPriceCents: 100}
	cases := []struct {
		name string
		b    Bundle
		ok   bool
	}{
		{"fixed ok", Bundle{DiscountType: DiscountFixed, FixedPriceCents: i64(100), Items: []Item{item}}, true},
		{"percent ok", Bundle{DiscountType: DiscountPercent, PercentOff: pct("12.5"), Items: []Item{item}}, true},
		{"percent at 100 ok", Bundle{DiscountType: DiscountPercent, PercentOff: pct("100"), Items: []Item{item}}, true},
		{"both set", Bundle{DiscountType: DiscountFixed, FixedPriceCents: i64(100), PercentOff: pct("10"), Items: []Item{item}}, false},
		{"neither set", Bundle{DiscountType: DiscountPercent, Items: []Item{item}}, false},
		{"percent zero", Bundle{DiscountType: DiscountPercent, PercentOff: pct("0"), Items: []Item{item}}, false},
		{"percent over 100", Bundle{DiscountType: DiscountPercent, PercentOff: pct("100.01"), Items: []Item{item}}, false},
		{"negative fixed", Bundle{DiscountType: DiscountFixed, FixedPriceCents: i64(-1), Items: []Item{item}}, false},
		{"unknown type", Bundle{DiscountType: "bogo", Items: []Item{item}}, false},
		{"no items", Bundle{DiscountType: DiscountFixed, FixedPriceCents: i64(100)}, false},
		{"zero quantity", Bundle{DiscountType: DiscountFixed, FixedPriceCents: i64(100), Items: []Item{{VariantID: "v1", Quantity: 0}}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateDiscount(tc.b)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrConfig)
			}
		})
	}
}

func TestAvailability_MinAcrossComponents(t *testing.T) {
	b := percentBundle("10",
		Item{VariantID: "v1", Quantity: 1},
		Item{VariantID: "v2", Quantity: 1},
		Item{VariantID: "v3", Quantity: 2},
	)
	stock := map[string]int64{"v1": 10, "v2": 3, "v3": 20}
	assert.Equal(t, int64(3), Availability(b, stock))

	// komponen habis -> bundle habis
	stock["v2"] = 0
	assert.Equal(t, int64(0), Availability(b, stock))

	// komponen tidak dikenal stok-nya dihitung 0
	delete(stock, "v3")
	assert.Equal(t, int64(0), Availability(b, stock))
}

func TestAvailability_QuantityDivision(t *testing.T) {
	b := percentBundle("10", Item{VariantID: "v1", Quantity: 3})
	assert.Equal(t, int64(2), Availability(b, map[string]int64{"v1": 8})) // floor(8/3)
}

func TestAvailability_CapAndReservedOpen(t *testing.T) {
	b := percentBundle("10", Item{VariantID: "v1", Quantity: 1})
	b.Cap = i64(5)
	stock := map[string]int64{"v1": 100}

	assert.Equal(t, int64(5), Availability(b, stock))

	b.ReservedOpen = 3
	assert.Equal(t, int64(2), Availability(b, stock))

	// reserved melewati cap (cap diturunkan setelah order masuk): clamp ke 0
	b.ReservedOpen = 9
	assert.Equal(t, int64(0), Availability(b, stock))
}

func TestAvailability_Monotonic(t *testing.T) {
	b := percentBundle("10",
		Item{VariantID: "v1", Quantity: 2},
		Item{VariantID: "v2", Quantity: 1},
	)
	b.Cap = i64(40)

	// tidak naik saat reservedOpen naik
	prev := int64(1 << 30)
	for r := int64(0); r <= 50; r += 5 {
		b.ReservedOpen = r
		got := Availability(b, map[string]int64{"v1": 60, "v2": 25})
		require.LessOrEqual(t, got, prev, "availability must not increase as reservedOpen grows")
		require.GreaterOrEqual(t, got, int64(0))
		prev = got
	}

	// tidak turun saat stok naik
	b.ReservedOpen = 2
	prev = -1
	for s := int64(0); s <= 30; s += 3 {
		got := Availability(b, map[string]int64{"v1": s, "v2": s})
		require.GreaterOrEqual(t, got, prev, "availability must not decrease as stock grows")
		prev = got
	}
}
