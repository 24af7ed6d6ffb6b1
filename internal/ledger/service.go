package ledger

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-reward-ledger.git/internal/metrics"
)

// Service: satu-satunya pintu mutasi ledger. Validasi settings di sini,
// aritmetika balance di Store (atomik per operasi).
type Service struct {
	Store    Store
	Settings SettingsProvider
}

type BalanceView struct {
	CustomerID       string `json:"customer_id"`
	Balance          int64  `json:"balance"`
	Reserved         int64  `json:"reserved"`
	Available        int64  `json:"available"`
	LifetimeEarned   int64  `json:"lifetime_earned"`
	LifetimeRedeemed int64  `json:"lifetime_redeemed"`
}

func view(l CustomerLedger) BalanceView {
	return BalanceView{
		CustomerID:       l.CustomerID,
		Balance:          l.Balance,
		Reserved:         l.Reserved,
		Available:        l.Available(),
		LifetimeEarned:   l.LifetimeEarned,
		LifetimeRedeemed: l.LifetimeRedeemed,
	}
}

func (s *Service) GetBalance(ctx context.Context, customerID string) (BalanceView, error) {
	l, err := s.Store.GetOrCreate(ctx, customerID)
	if err != nil {
		return BalanceView{}, err
	}
	return view(l), nil
}

// Earn: points = floor(total * earnRate). Nil transaksi kalau rewards off
// atau hasil 0 poin. Idempotent per orderRef (delivery ulang aman).
func (s *Service) Earn(ctx context.Context, customerID string, orderTotalCents int64, orderRef string) (*Transaction, error) {
	cfg, err := s.Settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, nil
	}
	points := cfg.EarnPoints(orderTotalCents)
	if points <= 0 {
		return nil, nil
	}
	desc := fmt.Sprintf("earned on order %s", orderRef)
	t, existed, err := s.Store.Earn(ctx, customerID, points, orderRef, desc)
	if err != nil {
		return nil, err
	}
	if !existed {
		metrics.TransactionsTotal.WithLabelValues(string(TxEarned)).Inc()
	}
	return &t, nil
}

// Reserve: hold poin saat checkout. Validasi enabled + min/max redemption
// dari settings, lalu cek available di Store.
func (s *Service) Reserve(ctx context.Context, customerID string, points int64, orderRef string) error {
	cfg, err := s.Settings.Get(ctx)
	if err != nil {
		return err
	}
	if !cfg.Enabled {
		return ErrRewardsDisabled
	}
	if points <= 0 {
		return fmt.Errorf("%w: points must be > 0", ErrRedemptionOutOfBounds)
	}
	if points < cfg.MinRedeemAmount {
		return fmt.Errorf("%w: minimum redemption is %d points", ErrRedemptionOutOfBounds, cfg.MinRedeemAmount)
	}
	if cfg.MaxRedeemPerOrder > 0 && points > cfg.MaxRedeemPerOrder {
		return fmt.Errorf("%w: maximum redemption per order is %d points", ErrRedemptionOutOfBounds, cfg.MaxRedeemPerOrder)
	}
	return s.Store.Reserve(ctx, customerID, points, orderRef)
}

func (s *Service) CommitRedeem(ctx context.Context, customerID, orderRef string) (*Transaction, error) {
	t, err := s.Store.CommitRedeem(ctx, customerID, orderRef)
	if err != nil {
		return nil, err
	}
	metrics.TransactionsTotal.WithLabelValues(string(TxRedeemed)).Inc()
	return &t, nil
}

// Release: idempotent; (nil, nil) kalau tidak ada reservasi terbuka.
func (s *Service) Release(ctx context.Context, customerID, orderRef string) (*Transaction, error) {
	t, err := s.Store.Release(ctx, customerID, orderRef, TxReleased, fmt.Sprintf("reservation released for order %s", orderRef))
	if err != nil {
		return nil, err
	}
	if t != nil {
		metrics.TransactionsTotal.WithLabelValues(string(TxReleased)).Inc()
	}
	return t, nil
}

func (s *Service) Refund(ctx context.Context, customerID string, points int64, orderRef string) (*Transaction, error) {
	if points <= 0 {
		return nil, nil
	}
	t, existed, err := s.Store.Refund(ctx, customerID, points, orderRef, fmt.Sprintf("points refunded for order %s", orderRef))
	if err != nil {
		return nil, err
	}
	if !existed {
		metrics.TransactionsTotal.WithLabelValues(string(TxRefunded)).Inc()
	}
	return &t, nil
}

type RemoveResult struct {
	Requested int64 `json:"requested"`
	Removed   int64 `json:"removed"`
	// Partial: sebagian poin earned sudah dipakai customer di tempat lain
	// dan tidak ditarik. Kebijakan sengaja, bukan silent success; operator
	// dapet warning lewat alert.
	Partial bool `json:"partial"`
}

func (s *Service) Remove(ctx context.Context, customerID string, pointsEarned int64, orderRef string) (RemoveResult, error) {
	if pointsEarned <= 0 {
		return RemoveResult{}, nil
	}
	removed, t, err := s.Store.Remove(ctx, customerID, pointsEarned, orderRef, fmt.Sprintf("points removed for cancelled order %s", orderRef))
	if err != nil {
		return RemoveResult{}, err
	}
	if t != nil {
		metrics.TransactionsTotal.WithLabelValues(string(TxRemoved)).Inc()
	}
	res := RemoveResult{Requested: pointsEarned, Removed: removed, Partial: removed < pointsEarned}
	if res.Partial {
		metrics.PartialRemovalsTotal.Inc()
	}
	return res, nil
}

func (s *Service) Adjust(ctx context.Context, customerID string, points int64, description string) (*Transaction, error) {
	if description == "" {
		description = "manual adjustment"
	}
	t, err := s.Store.Adjust(ctx, customerID, points, description)
	if err != nil {
		return nil, err
	}
	metrics.TransactionsTotal.WithLabelValues(string(TxAdjusted)).Inc()
	return &t, nil
}

// RedeemedPoints: jumlah poin yang sudah di-redeem untuk order; 0 kalau belum
// ada. Dipakai reconciler untuk rekonstruksi saat event di-redeliver.
func (s *Service) RedeemedPoints(ctx context.Context, customerID, orderRef string) (int64, error) {
	t, err := s.Store.FindTransaction(ctx, customerID, orderRef, TxRedeemed)
	if err != nil || t == nil {
		return 0, err
	}
	return -t.Points, nil
}

// RemovedPoints: total poin yang sudah ditarik untuk order.
func (s *Service) RemovedPoints(ctx context.Context, customerID, orderRef string) (int64, error) {
	return s.Store.RemovedPoints(ctx, customerID, orderRef)
}

// DiscountValueCents: nilai diskon untuk poin yang di-reserve, dipakai
// checkout untuk menghitung total tagihan order.
func (s *Service) DiscountValueCents(ctx context.Context, points int64) (int64, error) {
	cfg, err := s.Settings.Get(ctx)
	if err != nil {
		return 0, err
	}
	return cfg.RedeemValueCents(points), nil
}

func (s *Service) ListBalances(ctx context.Context, limit, offset int) ([]BalanceView, int64, error) {
	ledgers, total, err := s.Store.ListLedgers(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	out := make([]BalanceView, 0, len(ledgers))
	for _, l := range ledgers {
		out = append(out, view(l))
	}
	return out, total, nil
}

func (s *Service) ListTransactions(ctx context.Context, customerID string, limit, offset int) ([]Transaction, error) {
	return s.Store.ListTransactions(ctx, customerID, limit, offset)
}
