package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repo: Store di atas Postgres. Tiap operasi satu transaksi; serialisasi per
// customer pakai row lock di ledgers (FOR UPDATE), jadi check-then-act terhadap
// available aman antar koneksi.
type Repo struct{ DB DB }

var _ Store = (*Repo)(nil)

const ledgerCols = `customer_id, balance, reserved, lifetime_earned, lifetime_redeemed, created_at, updated_at`

// lockLedger: lazy-insert baris kosong lalu ambil dengan FOR UPDATE.
func lockLedger(ctx context.Context, tx pgx.Tx, customerID string) (CustomerLedger, error) {
	if _, err := tx.Exec(ctx, `
		INSERT INTO ledgers (customer_id) VALUES ($1)
		ON CONFLICT (customer_id) DO NOTHING`, customerID); err != nil {
		return CustomerLedger{}, fmt.Errorf("ensure ledger: %w", err)
	}
	var l CustomerLedger
	err := tx.QueryRow(ctx, `
		SELECT `+ledgerCols+` FROM ledgers WHERE customer_id = $1 FOR UPDATE`, customerID).
		Scan(&l.CustomerID, &l.Balance, &l.Reserved, &l.LifetimeEarned, &l.LifetimeRedeemed, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return CustomerLedger{}, fmt.Errorf("lock ledger: %w", err)
	}
	return l, nil
}

func insertTx(ctx context.Context, tx pgx.Tx, t *Transaction) error {
	t.ID = uuid.NewString()
	err := tx.QueryRow(ctx, `
		INSERT INTO reward_transactions (id, customer_id, type, points, description, order_ref)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		RETURNING created_at`,
		t.ID, t.CustomerID, string(t.Type), t.Points, t.Description, t.OrderRef).
		Scan(&t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// rowQuerier: dipenuhi pgx.Tx maupun DB, biar lookup bisa jalan di dalam
// atau di luar transaksi.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func findTxByOrderRef(ctx context.Context, q rowQuerier, customerID, orderRef string, typ TxType) (*Transaction, error) {
	var t Transaction
	var ref *string
	err := q.QueryRow(ctx, `
		SELECT id, customer_id, type, points, description, order_ref, created_at
		FROM reward_transactions
		WHERE customer_id = $1 AND order_ref = $2 AND type = $3
		ORDER BY created_at LIMIT 1`, customerID, orderRef, string(typ)).
		Scan(&t.ID, &t.CustomerID, &t.Type, &t.Points, &t.Description, &ref, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	if ref != nil {
		t.OrderRef = *ref
	}
	return &t, nil
}

func (r *Repo) GetOrCreate(ctx context.Context, customerID string) (CustomerLedger, error) {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return CustomerLedger{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	l, err := lockLedger(ctx, tx, customerID)
	if err != nil {
		return CustomerLedger{}, err
	}
	return l, tx.Commit(ctx)
}

func (r *Repo) Earn(ctx context.Context, customerID string, points int64, orderRef, description string) (Transaction, bool, error) {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return Transaction{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := lockLedger(ctx, tx, customerID); err != nil {
		return Transaction{}, false, err
	}

	// idempotent per order_ref: event settle bisa ke-deliver dua kali
	if prev, err := findTxByOrderRef(ctx, tx, customerID, orderRef, TxEarned); err != nil {
		return Transaction{}, false, err
	} else if prev != nil {
		return *prev, true, tx.Commit(ctx)
	}

	t := Transaction{CustomerID: customerID, Type: TxEarned, Points: points, Description: description, OrderRef: orderRef}
	if err := insertTx(ctx, tx, &t); err != nil {
		return Transaction{}, false, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE ledgers SET balance = balance + $2, lifetime_earned = lifetime_earned + $2, updated_at = now()
		WHERE customer_id = $1`, customerID, points); err != nil {
		return Transaction{}, false, fmt.Errorf("apply earn: %w", err)
	}
	return t, false, tx.Commit(ctx)
}

func (r *Repo) Reserve(ctx context.Context, customerID string, points int64, orderRef string) error {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	l, err := lockLedger(ctx, tx, customerID)
	if err != nil {
		return err
	}

	var (
		prevPoints int64
		prevStatus string
	)
	err = tx.QueryRow(ctx, `
		SELECT points, status FROM point_reservations
		WHERE customer_id = $1 AND order_ref = $2`, customerID, orderRef).
		Scan(&prevPoints, &prevStatus)
	switch {
	case err == nil && prevStatus == ReservationReserved:
		if prevPoints != points {
			return ErrReservationMismatch
		}
		return tx.Commit(ctx) // retry dengan jumlah sama: no-op
	case err == nil && prevStatus == ReservationCommitted:
		// sudah jadi redemption, jangan buka lagi
		return ErrReservationMismatch
	case err != nil && !errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("find reservation: %w", err)
	}

	if points > l.Available() {
		return ErrInsufficientAvailable
	}

	// released/expired boleh di-reserve ulang (customer apply poin lagi)
	if _, err := tx.Exec(ctx, `
		INSERT INTO point_reservations (customer_id, order_ref, points, status, created_at)
		VALUES ($1, $2, $3, 'RESERVED', now())
		ON CONFLICT (customer_id, order_ref) DO UPDATE SET
			points = EXCLUDED.points, status = 'RESERVED', created_at = now()`,
		customerID, orderRef, points); err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE ledgers SET reserved = reserved + $2, updated_at = now()
		WHERE customer_id = $1`, customerID, points); err != nil {
		return fmt.Errorf("apply reserve: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *Repo) CommitRedeem(ctx context.Context, customerID, orderRef string) (Transaction, error) {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return Transaction{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := lockLedger(ctx, tx, customerID); err != nil {
		return Transaction{}, err
	}

	var points int64
	err = tx.QueryRow(ctx, `
		SELECT points FROM point_reservations
		WHERE customer_id = $1 AND order_ref = $2 AND status = 'RESERVED'`, customerID, orderRef).
		Scan(&points)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrNoReservationFound
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("find reservation: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE point_reservations SET status = 'COMMITTED'
		WHERE customer_id = $1 AND order_ref = $2`, customerID, orderRef); err != nil {
		return Transaction{}, fmt.Errorf("commit reservation: %w", err)
	}
	t := Transaction{CustomerID: customerID, Type: TxRedeemed, Points: -points, Description: "points redeemed", OrderRef: orderRef}
	if err := insertTx(ctx, tx, &t); err != nil {
		return Transaction{}, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE ledgers SET balance = balance - $2, reserved = reserved - $2,
			lifetime_redeemed = lifetime_redeemed + $2, updated_at = now()
		WHERE customer_id = $1`, customerID, points); err != nil {
		return Transaction{}, fmt.Errorf("apply redeem: %w", err)
	}
	return t, tx.Commit(ctx)
}

func (r *Repo) Release(ctx context.Context, customerID, orderRef string, txType TxType, description string) (*Transaction, error) {
	if txType != TxReleased && txType != TxExpired {
		return nil, fmt.Errorf("release: unexpected transaction type %s", txType)
	}
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := lockLedger(ctx, tx, customerID); err != nil {
		return nil, err
	}

	var points int64
	err = tx.QueryRow(ctx, `
		SELECT points FROM point_reservations
		WHERE customer_id = $1 AND order_ref = $2 AND status = 'RESERVED'`, customerID, orderRef).
		Scan(&points)
	if errors.Is(err, pgx.ErrNoRows) {
		// sudah released atau sudah committed: no-op
		return nil, tx.Commit(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("find reservation: %w", err)
	}

	status := ReservationReleased
	if txType == TxExpired {
		status = ReservationExpired
	}
	if _, err := tx.Exec(ctx, `
		UPDATE point_reservations SET status = $3
		WHERE customer_id = $1 AND order_ref = $2`, customerID, orderRef, status); err != nil {
		return nil, fmt.Errorf("release reservation: %w", err)
	}
	// points=0: balance memang tidak berubah, cuma reserved yang turun
	t := Transaction{CustomerID: customerID, Type: txType, Points: 0, Description: description, OrderRef: orderRef}
	if err := insertTx(ctx, tx, &t); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE ledgers SET reserved = reserved - $2, updated_at = now()
		WHERE customer_id = $1`, customerID, points); err != nil {
		return nil, fmt.Errorf("apply release: %w", err)
	}
	return &t, tx.Commit(ctx)
}

func (r *Repo) Refund(ctx context.Context, customerID string, points int64, orderRef, description string) (Transaction, bool, error) {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return Transaction{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := lockLedger(ctx, tx, customerID); err != nil {
		return Transaction{}, false, err
	}

	// jangan double-refund
	if prev, err := findTxByOrderRef(ctx, tx, customerID, orderRef, TxRefunded); err != nil {
		return Transaction{}, false, err
	} else if prev != nil {
		return *prev, true, tx.Commit(ctx)
	}

	t := Transaction{CustomerID: customerID, Type: TxRefunded, Points: points, Description: description, OrderRef: orderRef}
	if err := insertTx(ctx, tx, &t); err != nil {
		return Transaction{}, false, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE ledgers SET balance = balance + $2, updated_at = now()
		WHERE customer_id = $1`, customerID, points); err != nil {
		return Transaction{}, false, fmt.Errorf("apply refund: %w", err)
	}
	return t, false, tx.Commit(ctx)
}

func (r *Repo) Remove(ctx context.Context, customerID string, points int64, orderRef, description string) (int64, *Transaction, error) {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	l, err := lockLedger(ctx, tx, customerID)
	if err != nil {
		return 0, nil, err
	}

	removed := points
	if avail := l.Available(); removed > avail {
		removed = avail
	}
	if removed <= 0 {
		return 0, nil, tx.Commit(ctx)
	}

	t := Transaction{CustomerID: customerID, Type: TxRemoved, Points: -removed, Description: description, OrderRef: orderRef}
	if err := insertTx(ctx, tx, &t); err != nil {
		return 0, nil, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE ledgers SET balance = balance - $2, updated_at = now()
		WHERE customer_id = $1`, customerID, removed); err != nil {
		return 0, nil, fmt.Errorf("apply remove: %w", err)
	}
	return removed, &t, tx.Commit(ctx)
}

func (r *Repo) Adjust(ctx context.Context, customerID string, points int64, description string) (Transaction, error) {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return Transaction{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	l, err := lockLedger(ctx, tx, customerID)
	if err != nil {
		return Transaction{}, err
	}
	if points < 0 && -points > l.Available() {
		return Transaction{}, ErrInsufficientAvailable
	}

	t := Transaction{CustomerID: customerID, Type: TxAdjusted, Points: points, Description: description}
	if err := insertTx(ctx, tx, &t); err != nil {
		return Transaction{}, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE ledgers SET balance = balance + $2, updated_at = now()
		WHERE customer_id = $1`, customerID, points); err != nil {
		return Transaction{}, fmt.Errorf("apply adjust: %w", err)
	}
	return t, tx.Commit(ctx)
}

func (r *Repo) FindTransaction(ctx context.Context, customerID, orderRef string, typ TxType) (*Transaction, error) {
	return findTxByOrderRef(ctx, r.DB, customerID, orderRef, typ)
}

func (r *Repo) RemovedPoints(ctx context.Context, customerID, orderRef string) (int64, error) {
	var total int64
	err := r.DB.QueryRow(ctx, `
		SELECT COALESCE(SUM(-points), 0) FROM reward_transactions
		WHERE customer_id = $1 AND order_ref = $2 AND type = 'REMOVED'`, customerID, orderRef).
		Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum removed points: %w", err)
	}
	return total, nil
}

func (r *Repo) OpenReservation(ctx context.Context, customerID, orderRef string) (*Reservation, error) {
	var res Reservation
	err := r.DB.QueryRow(ctx, `
		SELECT customer_id, order_ref, points, status, created_at
		FROM point_reservations
		WHERE customer_id = $1 AND order_ref = $2 AND status = 'RESERVED'`, customerID, orderRef).
		Scan(&res.CustomerID, &res.OrderRef, &res.Points, &res.Status, &res.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find reservation: %w", err)
	}
	return &res, nil
}

func (r *Repo) ListLedgers(ctx context.Context, limit, offset int) ([]CustomerLedger, int64, error) {
	var total int64
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM ledgers`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count ledgers: %w", err)
	}
	rows, err := r.DB.Query(ctx, `
		SELECT `+ledgerCols+` FROM ledgers ORDER BY customer_id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list ledgers: %w", err)
	}
	defer rows.Close()

	var out []CustomerLedger
	for rows.Next() {
		var l CustomerLedger
		if err := rows.Scan(&l.CustomerID, &l.Balance, &l.Reserved, &l.LifetimeEarned, &l.LifetimeRedeemed, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, l)
	}
	return out, total, rows.Err()
}

func (r *Repo) ListTransactions(ctx context.Context, customerID string, limit, offset int) ([]Transaction, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, customer_id, type, points, description, order_ref, created_at
		FROM reward_transactions
		WHERE customer_id = $1
		ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`, customerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		var ref *string
		if err := rows.Scan(&t.ID, &t.CustomerID, &t.Type, &t.Points, &t.Description, &ref, &t.CreatedAt); err != nil {
			return nil, err
		}
		if ref != nil {
			t.OrderRef = *ref
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ExpireStale: kandidat diambil tanpa lock, lalu release satu-satu lewat path
// Release biasa (ledger lock dulu) supaya urutan lock konsisten dengan operasi
// lain. Release idempotent, jadi balapan dengan commit/release normal aman.
func (r *Repo) ExpireStale(ctx context.Context, cutoff time.Time) ([]Reservation, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT customer_id, order_ref, points, status, created_at
		FROM point_reservations
		WHERE status = 'RESERVED' AND created_at < $1
		ORDER BY created_at`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("find stale reservations: %w", err)
	}
	var stale []Reservation
	for rows.Next() {
		var res Reservation
		if err := rows.Scan(&res.CustomerID, &res.OrderRef, &res.Points, &res.Status, &res.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		stale = append(stale, res)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var expired []Reservation
	for _, res := range stale {
		t, err := r.Release(ctx, res.CustomerID, res.OrderRef, TxExpired, "reservation expired")
		if err != nil {
			return expired, err
		}
		if t != nil {
			res.Status = ReservationExpired
			expired = append(expired, res)
		}
	}
	return expired, nil
}
