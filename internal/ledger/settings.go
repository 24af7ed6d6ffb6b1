package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-reward-ledger.git/internal/redisx"
)

// Settings: singleton konfigurasi reward. Dibaca tiap operasi Balance Service,
// diubah hanya lewat update admin.
type Settings struct {
	Enabled           bool            `json:"enabled"`
	EarnRate          decimal.Decimal `json:"earn_rate"`   // poin per unit currency
	RedeemRate        decimal.Decimal `json:"redeem_rate"` // nilai currency per poin
	MinRedeemAmount   int64           `json:"min_redeem_amount"`
	MaxRedeemPerOrder int64           `json:"max_redeem_per_order"` // 0 = tanpa cap
	UpdatedAt         time.Time       `json:"updated_at"`
}

func DefaultSettings() Settings {
	return Settings{
		Enabled:           true,
		EarnRate:          decimal.NewFromInt(1),
		RedeemRate:        decimal.New(1, -2), // 0.01 currency per poin
		MinRedeemAmount:   0,
		MaxRedeemPerOrder: 0,
	}
}

func (s Settings) Validate() error {
	if s.EarnRate.IsNegative() || s.EarnRate.IsZero() {
		return fmt.Errorf("%w: earn_rate must be > 0", ErrInvalidSettings)
	}
	if s.RedeemRate.IsNegative() || s.RedeemRate.IsZero() {
		return fmt.Errorf("%w: redeem_rate must be > 0", ErrInvalidSettings)
	}
	if s.MinRedeemAmount < 0 || s.MaxRedeemPerOrder < 0 {
		return fmt.Errorf("%w: redemption bounds must be >= 0", ErrInvalidSettings)
	}
	if s.MaxRedeemPerOrder > 0 && s.MinRedeemAmount > s.MaxRedeemPerOrder {
		return fmt.Errorf("%w: min_redeem_amount exceeds max_redeem_per_order", ErrInvalidSettings)
	}
	return nil
}

var cents = decimal.NewFromInt(100)

// EarnPoints = floor(total * earnRate). Total dalam minor unit (cents),
// rate per unit currency, jadi dibagi 100 dulu. Floor konsisten ke arah
// platform; tampilan contoh kalkulasi di admin harus pakai fungsi ini juga.
func (s Settings) EarnPoints(totalCents int64) int64 {
	if totalCents <= 0 {
		return 0
	}
	return decimal.NewFromInt(totalCents).Div(cents).Mul(s.EarnRate).Floor().IntPart()
}

// RedeemValueCents: nilai diskon (minor unit) untuk sejumlah poin.
func (s Settings) RedeemValueCents(points int64) int64 {
	if points <= 0 {
		return 0
	}
	return decimal.NewFromInt(points).Mul(s.RedeemRate).Mul(cents).Floor().IntPart()
}

type SettingsProvider interface {
	Get(ctx context.Context) (Settings, error)
}

// StaticSettings: provider untuk test / backend memory.
type StaticSettings struct{ S Settings }

func (p StaticSettings) Get(context.Context) (Settings, error) { return p.S, nil }

// SettingsStore: satu baris di Postgres + cache Redis TTL pendek.
// Lazy-insert default saat pertama kali dibaca.
type SettingsStore struct {
	DB    DB
	Redis *redis.Client
}

func (st *SettingsStore) Get(ctx context.Context) (Settings, error) {
	if st.Redis != nil {
		if b, err := st.Redis.Get(ctx, redisx.KeySettings).Bytes(); err == nil {
			var s Settings
			if json.Unmarshal(b, &s) == nil {
				return s, nil
			}
		}
	}

	var (
		s                    Settings
		earnRate, redeemRate string
	)
	err := st.DB.QueryRow(ctx, `
		SELECT enabled, earn_rate::text, redeem_rate::text, min_redeem_amount, max_redeem_per_order, updated_at
		FROM reward_settings WHERE id = 1`).
		Scan(&s.Enabled, &earnRate, &redeemRate, &s.MinRedeemAmount, &s.MaxRedeemPerOrder, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		s = DefaultSettings()
		if err := st.insertDefaults(ctx, s); err != nil {
			return Settings{}, err
		}
		st.cache(ctx, s)
		return s, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	if s.EarnRate, err = decimal.NewFromString(earnRate); err != nil {
		return Settings{}, fmt.Errorf("parse earn_rate: %w", err)
	}
	if s.RedeemRate, err = decimal.NewFromString(redeemRate); err != nil {
		return Settings{}, fmt.Errorf("parse redeem_rate: %w", err)
	}
	st.cache(ctx, s)
	return s, nil
}

func (st *SettingsStore) Update(ctx context.Context, s Settings) (Settings, error) {
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	err := st.DB.QueryRow(ctx, `
		INSERT INTO reward_settings (id, enabled, earn_rate, redeem_rate, min_redeem_amount, max_redeem_per_order, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			earn_rate = EXCLUDED.earn_rate,
			redeem_rate = EXCLUDED.redeem_rate,
			min_redeem_amount = EXCLUDED.min_redeem_amount,
			max_redeem_per_order = EXCLUDED.max_redeem_per_order,
			updated_at = now()
		RETURNING updated_at`,
		s.Enabled, s.EarnRate.String(), s.RedeemRate.String(), s.MinRedeemAmount, s.MaxRedeemPerOrder).
		Scan(&s.UpdatedAt)
	if err != nil {
		return Settings{}, fmt.Errorf("update settings: %w", err)
	}
	// invalidate cache, jangan tunggu TTL
	if st.Redis != nil {
		_ = st.Redis.Del(ctx, redisx.KeySettings).Err()
	}
	return s, nil
}

func (st *SettingsStore) insertDefaults(ctx context.Context, s Settings) error {
	_, err := st.DB.Exec(ctx, `
		INSERT INTO reward_settings (id, enabled, earn_rate, redeem_rate, min_redeem_amount, max_redeem_per_order, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO NOTHING`,
		s.Enabled, s.EarnRate.String(), s.RedeemRate.String(), s.MinRedeemAmount, s.MaxRedeemPerOrder)
	if err != nil {
		return fmt.Errorf("insert default settings: %w", err)
	}
	return nil
}

func (st *SettingsStore) cache(ctx context.Context, s Settings) {
	if st.Redis == nil {
		return
	}
	if b, err := json.Marshal(s); err == nil {
		_ = st.Redis.Set(ctx, redisx.KeySettings, b, redisx.TTLSettings).Err()
	}
}
