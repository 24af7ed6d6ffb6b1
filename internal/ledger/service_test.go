package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(s Settings) (*Service, *MemStore) {
	store := NewMemStore()
	return &Service{Store: store, Settings: StaticSettings{S: s}}, store
}

func enabledSettings() Settings {
	s := DefaultSettings()
	s.EarnRate = dec("1")
	s.RedeemRate = dec("0.01")
	return s
}

// sum(points) semua transaksi harus == balance, selalu.
func assertLedgerConsistent(t *testing.T, svc *Service, customerID string) {
	t.Helper()
	ctx := context.Background()
	bv, err := svc.GetBalance(ctx, customerID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, bv.Available, int64(0))
	require.GreaterOrEqual(t, bv.Reserved, int64(0))
	require.LessOrEqual(t, bv.Reserved, bv.Balance)

	txs, err := svc.ListTransactions(ctx, customerID, 0, 0)
	require.NoError(t, err)
	var sum int64
	for _, tx := range txs {
		sum += tx.Points
	}
	require.Equal(t, bv.Balance, sum, "signed sum of transactions must equal balance")
}

func seedBalance(t *testing.T, svc *Service, customerID string, points int64) {
	t.Helper()
	_, err := svc.Adjust(context.Background(), customerID, points, "seed")
	require.NoError(t, err)
}

func TestGetBalance_LazyCreate(t *testing.T) {
	svc, _ := newTestService(enabledSettings())
	bv, err := svc.GetBalance(context.Background(), "cust-new")
	require.NoError(t, err)
	assert.Equal(t, int64(0), bv.Balance)
	assert.Equal(t, int64(0), bv.Reserved)
	assert.Equal(t, int64(0), bv.Available)
}

func TestEarn_ComputesAndIsIdempotent(t *testing.T) {
	svc, _ := newTestService(enabledSettings())
	ctx := context.Background()

	tx, err := svc.Earn(ctx, "cust-1", 10000, "order-1")
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, int64(100), tx.Points)
	assert.Equal(t, TxEarned, tx.Type)

	// delivery ulang: no-op, transaksi lama yang balik
	again, err := svc.Earn(ctx, "cust-1", 10000, "order-1")
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, tx.ID, again.ID)

	bv, err := svc.GetBalance(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), bv.Balance)
	assert.Equal(t, int64(100), bv.LifetimeEarned)

	txs, err := svc.ListTransactions(ctx, "cust-1", 0, 0)
	require.NoError(t, err)
	assert.Len(t, txs, 1, "redelivered settle must produce exactly one EARNED transaction")
	assertLedgerConsistent(t, svc, "cust-1")
}

func TestEarn_Disabled(t *testing.T) {
	s := enabledSettings()
	s.Enabled = false
	svc, _ := newTestService(s)

	tx, err := svc.Earn(context.Background(), "cust-1", 10000, "order-1")
	require.NoError(t, err)
	assert.Nil(t, tx)
}

func TestReserveCommit_Scenario(t *testing.T) {
	svc, _ := newTestService(enabledSettings())
	ctx := context.Background()
	seedBalance(t, svc, "cust-1", 1000)

	require.NoError(t, svc.Reserve(ctx, "cust-1", 500, "order-1"))
	bv, _ := svc.GetBalance(ctx, "cust-1")
	assert.Equal(t, int64(500), bv.Available)
	assert.Equal(t, int64(500), bv.Reserved)

	tx, err := svc.CommitRedeem(ctx, "cust-1", "order-1")
	require.NoError(t, err)
	assert.Equal(t, int64(-500), tx.Points)
	assert.Equal(t, TxRedeemed, tx.Type)

	bv, _ = svc.GetBalance(ctx, "cust-1")
	assert.Equal(t, int64(500), bv.Balance)
	assert.Equal(t, int64(0), bv.Reserved)
	assert.Equal(t, int64(500), bv.LifetimeRedeemed)
	assertLedgerConsistent(t, svc, "cust-1")
}

func TestReserveRelease_Scenario(t *testing.T) {
	svc, _ := newTestService(enabledSettings())
	ctx := context.Background()
	seedBalance(t, svc, "cust-1", 1000)

	require.NoError(t, svc.Reserve(ctx, "cust-1", 500, "order-2"))
	tx, err := svc.Release(ctx, "cust-1", "order-2")
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, TxReleased, tx.Type)
	assert.Equal(t, int64(0), tx.Points) // balance memang tidak berubah

	bv, _ := svc.GetBalance(ctx, "cust-1")
	assert.Equal(t, int64(1000), bv.Balance)
	assert.Equal(t, int64(0), bv.Reserved)

	// release kedua: no-op
	tx, err = svc.Release(ctx, "cust-1", "order-2")
	require.NoError(t, err)
	assert.Nil(t, tx)
	assertLedgerConsistent(t, svc, "cust-1")
}

func TestReserve_Insufficient(t *testing.T) {
	svc, _ := newTestService(enabledSettings())
	ctx := context.Background()
	seedBalance(t, svc, "cust-1", 100)

	err := svc.Reserve(ctx, "cust-1", 200, "order-1")
	require.ErrorIs(t, err, ErrInsufficientAvailable)

	// available = balance - reserved, bukan balance
	require.NoError(t, svc.Reserve(ctx, "cust-1", 80, "order-2"))
	err = svc.Reserve(ctx, "cust-1", 30, "order-3")
	require.ErrorIs(t, err, ErrInsufficientAvailable)
}

func TestReserve_RetrySameOrderRef(t *testing.T) {
	svc, _ := newTestService(enabledSettings())
	ctx := context.Background()
	seedBalance(t, svc, "cust-1", 1000)

	require.NoError(t, svc.Reserve(ctx, "cust-1", 500, "order-1"))
	// retry jumlah sama: no-op, reserved tidak dobel
	require.NoError(t, svc.Reserve(ctx, "cust-1", 500, "order-1"))
	bv, _ := svc.GetBalance(ctx, "cust-1")
	assert.Equal(t, int64(500), bv.Reserved)

	// jumlah beda: tolak
	err := svc.Reserve(ctx, "cust-1", 300, "order-1")
	require.ErrorIs(t, err, ErrReservationMismatch)
}

func TestReserve_SettingsBounds(t *testing.T) {
	s := enabledSettings()
	s.MinRedeemAmount = 100
	s.MaxRedeemPerOrder = 500
	svc, _ := newTestService(s)
	ctx := context.Background()
	seedBalance(t, svc, "cust-1", 10000)

	require.ErrorIs(t, svc.Reserve(ctx, "cust-1", 50, "order-1"), ErrRedemptionOutOfBounds)
	require.ErrorIs(t, svc.Reserve(ctx, "cust-1", 600, "order-2"), ErrRedemptionOutOfBounds)
	require.NoError(t, svc.Reserve(ctx, "cust-1", 300, "order-3"))

	s.Enabled = false
	svc2, _ := newTestService(s)
	require.ErrorIs(t, svc2.Reserve(ctx, "cust-1", 300, "order-4"), ErrRewardsDisabled)
}

func TestCommitRedeem_NoReservation(t *testing.T) {
	svc, _ := newTestService(enabledSettings())
	_, err := svc.CommitRedeem(context.Background(), "cust-1", "order-x")
	require.ErrorIs(t, err, ErrNoReservationFound)
}

func TestCommitThenRelease_NoOp(t *testing.T) {
	svc, _ := newTestService(enabledSettings())
	ctx := context.Background()
	seedBalance(t, svc, "cust-1", 1000)

	require.NoError(t, svc.Reserve(ctx, "cust-1", 400, "order-1"))
	_, err := svc.CommitRedeem(ctx, "cust-1", "order-1")
	require.NoError(t, err)

	// release setelah commit: reservasi sudah tertutup, no-op
	tx, err := svc.Release(ctx, "cust-1", "order-1")
	require.NoError(t, err)
	assert.Nil(t, tx)
	assertLedgerConsistent(t, svc, "cust-1")
}

func TestRefund_RoundTripAndIdempotent(t *testing.T) {
	svc, _ := newTestService(enabledSettings())
	ctx := context.Background()
	seedBalance(t, svc, "cust-1", 1000)

	require.NoError(t, svc.Reserve(ctx, "cust-1", 500, "order-1"))
	_, err := svc.CommitRedeem(ctx, "cust-1", "order-1")
	require.NoError(t, err)

	// refund mengembalikan balance ke nilai pre-redemption
	_, err = svc.Refund(ctx, "cust-1", 500, "order-1")
	require.NoError(t, err)
	bv, _ := svc.GetBalance(ctx, "cust-1")
	assert.Equal(t, int64(1000), bv.Balance)

	// jangan double-refund
	_, err = svc.Refund(ctx, "cust-1", 500, "order-1")
	require.NoError(t, err)
	bv, _ = svc.GetBalance(ctx, "cust-1")
	assert.Equal(t, int64(1000), bv.Balance)
	assertLedgerConsistent(t, svc, "cust-1")
}

func TestRemove_PartialPolicy(t *testing.T) {
	svc, _ := newTestService(enabledSettings())
	ctx := context.Background()
	seedBalance(t, svc, "cust-1", 100)

	// customer sudah reserve 40 buat order lain yang masih terbuka
	require.NoError(t, svc.Reserve(ctx, "cust-1", 40, "order-other"))

	res, err := svc.Remove(ctx, "cust-1", 100, "order-cancelled")
	require.NoError(t, err)
	assert.Equal(t, int64(60), res.Removed) // cuma available yang ditarik
	assert.True(t, res.Partial)

	bv, _ := svc.GetBalance(ctx, "cust-1")
	assert.Equal(t, int64(40), bv.Balance)
	assert.Equal(t, int64(40), bv.Reserved)
	assert.Equal(t, int64(0), bv.Available) // tidak pernah negatif
	assertLedgerConsistent(t, svc, "cust-1")
}

func TestRemove_FullWhenAvailable(t *testing.T) {
	svc, _ := newTestService(enabledSettings())
	ctx := context.Background()
	seedBalance(t, svc, "cust-1", 500)

	res, err := svc.Remove(ctx, "cust-1", 100, "order-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.Removed)
	assert.False(t, res.Partial)
}

func TestAdjust_RejectsOverdraw(t *testing.T) {
	svc, _ := newTestService(enabledSettings())
	ctx := context.Background()
	seedBalance(t, svc, "cust-1", 100)
	require.NoError(t, svc.Reserve(ctx, "cust-1", 80, "order-1"))

	_, err := svc.Adjust(ctx, "cust-1", -50, "correction")
	require.ErrorIs(t, err, ErrInsufficientAvailable)

	_, err = svc.Adjust(ctx, "cust-1", -20, "correction")
	require.NoError(t, err)
	assertLedgerConsistent(t, svc, "cust-1")
}

// Dua reserve berebut available yang sama: tepat satu yang boleh lolos.
func TestReserve_ConcurrentCheckThenAct(t *testing.T) {
	svc, _ := newTestService(enabledSettings())
	ctx := context.Background()
	seedBalance(t, svc, "cust-1", 1000)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.Reserve(ctx, "cust-1", 700, []string{"order-a", "order-b"}[i])
		}(i)
	}
	wg.Wait()

	var okCount, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			okCount++
		case assert.ErrorIs(t, err, ErrInsufficientAvailable):
			insufficient++
		}
	}
	assert.Equal(t, 1, okCount)
	assert.Equal(t, 1, insufficient)

	bv, _ := svc.GetBalance(ctx, "cust-1")
	assert.Equal(t, int64(700), bv.Reserved)
	assertLedgerConsistent(t, svc, "cust-1")
}

// Invariant 0 <= reserved <= balance harus bertahan di sembarang urutan operasi.
func TestInvariants_OperationSequence(t *testing.T) {
	svc, _ := newTestService(enabledSettings())
	ctx := context.Background()
	seedBalance(t, svc, "cust-1", 2000)

	type step struct {
		op  string
		pts int64
		ref string
	}
	steps := []step{
		{"reserve", 500, "o1"},
		{"reserve", 300, "o2"},
		{"commit", 0, "o1"},
		{"release", 0, "o2"},
		{"reserve", 700, "o3"},
		{"release", 0, "o3"},
		{"reserve", 1000, "o4"},
		{"commit", 0, "o4"},
		{"refund", 1000, "o4"},
		{"remove", 400, "o5"},
	}
	for _, st := range steps {
		switch st.op {
		case "reserve":
			require.NoError(t, svc.Reserve(ctx, "cust-1", st.pts, st.ref))
		case "commit":
			_, err := svc.CommitRedeem(ctx, "cust-1", st.ref)
			require.NoError(t, err)
		case "release":
			_, err := svc.Release(ctx, "cust-1", st.ref)
			require.NoError(t, err)
		case "refund":
			_, err := svc.Refund(ctx, "cust-1", st.pts, st.ref)
			require.NoError(t, err)
		case "remove":
			_, err := svc.Remove(ctx, "cust-1", st.pts, st.ref)
			require.NoError(t, err)
		}
		assertLedgerConsistent(t, svc, "cust-1")
	}
}

func TestExpireStale(t *testing.T) {
	svc, store := newTestService(enabledSettings())
	ctx := context.Background()
	seedBalance(t, svc, "cust-1", 1000)
	require.NoError(t, svc.Reserve(ctx, "cust-1", 300, "order-stale"))

	// cutoff di masa depan: reservasi barusan pun dianggap basi
	expired, err := store.ExpireStale(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "order-stale", expired[0].OrderRef)
	assert.Equal(t, int64(300), expired[0].Points)

	bv, _ := svc.GetBalance(ctx, "cust-1")
	assert.Equal(t, int64(1000), bv.Balance)
	assert.Equal(t, int64(0), bv.Reserved)

	// idempotent: sweep kedua tidak menemukan apa-apa
	expired, err = store.ExpireStale(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, expired)
	assertLedgerConsistent(t, svc, "cust-1")
}

func TestListBalances_Pagination(t *testing.T) {
	svc, _ := newTestService(enabledSettings())
	for _, id := range []string{"cust-a", "cust-b", "cust-c"} {
		seedBalance(t, svc, id, 100)
	}
	views, total, err := svc.ListBalances(context.Background(), 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, views, 2)
	assert.Equal(t, "cust-a", views[0].CustomerID)

	views, _, err = svc.ListBalances(context.Background(), 2, 2)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "cust-c", views[0].CustomerID)
}
