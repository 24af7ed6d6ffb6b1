package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestEarnPoints_Floor(t *testing.T) {
	cases := []struct {
		name       string
		rate       string
		totalCents int64
		want       int64
	}{
		{"whole units rate 1", "1", 10000, 100},
		{"fraction floored rate 1", "1", 9999, 99},
		{"rate 0.5", "0.5", 9999, 49},
		{"rate 2.5", "2.5", 1000, 25},
		{"zero total", "1", 0, 0},
		{"negative total", "1", -500, 0},
		{"sub-point total", "1", 99, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := Settings{Enabled: true, EarnRate: dec(tc.rate), RedeemRate: dec("0.01")}
			assert.Equal(t, tc.want, s.EarnPoints(tc.totalCents))
		})
	}
}

func TestRedeemValueCents(t *testing.T) {
	s := Settings{Enabled: true, EarnRate: dec("1"), RedeemRate: dec("0.01")}
	assert.Equal(t, int64(100), s.RedeemValueCents(100)) // 100 poin = 1.00
	assert.Equal(t, int64(1), s.RedeemValueCents(1))
	assert.Equal(t, int64(0), s.RedeemValueCents(0))
	assert.Equal(t, int64(0), s.RedeemValueCents(-10))

	s.RedeemRate = dec("0.015")
	assert.Equal(t, int64(1), s.RedeemValueCents(1)) // 1.5 cents -> floor 1
}

func TestSettingsValidate(t *testing.T) {
	ok := DefaultSettings()
	require.NoError(t, ok.Validate())

	bad := ok
	bad.EarnRate = decimal.Zero
	require.ErrorIs(t, bad.Validate(), ErrInvalidSettings)

	bad = ok
	bad.RedeemRate = dec("-0.5")
	require.ErrorIs(t, bad.Validate(), ErrInvalidSettings)

	bad = ok
	bad.MinRedeemAmount = -1
	require.ErrorIs(t, bad.Validate(), ErrInvalidSettings)

	bad = ok
	bad.MinRedeemAmount = 500
	bad.MaxRedeemPerOrder = 100
	require.ErrorIs(t, bad.Validate(), ErrInvalidSettings)

	// max 0 = tanpa cap, min berapapun sah
	ok.MinRedeemAmount = 500
	ok.MaxRedeemPerOrder = 0
	require.NoError(t, ok.Validate())
}
