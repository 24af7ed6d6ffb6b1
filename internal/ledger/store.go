package ledger

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB: subset pgxpool.Pool yang dipakai repo, supaya bisa di-mock (pgxmock).
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store: operasi ledger per customer, masing-masing atomik. Implementasi wajib
// men-serialize mutasi per customer (row lock di Postgres, mutex di memory);
// dua reserve paralel tidak boleh sama-sama lolos cek available yang sama.
type Store interface {
	// GetOrCreate lazy-create ledger kosong kalau belum ada.
	GetOrCreate(ctx context.Context, customerID string) (CustomerLedger, error)

	// Earn idempotent per order_ref: kalau sudah ada transaksi EARNED untuk
	// order itu, balikin transaksi lama dengan existed=true tanpa mutasi.
	Earn(ctx context.Context, customerID string, points int64, orderRef, description string) (Transaction, bool, error)

	// Reserve hold poin tanpa transaksi. ErrInsufficientAvailable kalau
	// points > available; reserve ulang order_ref sama + jumlah sama = no-op,
	// jumlah beda = ErrReservationMismatch.
	Reserve(ctx context.Context, customerID string, points int64, orderRef string) error

	// CommitRedeem tukar reservasi jadi transaksi REDEEMED.
	// ErrNoReservationFound kalau reservasi terbuka tidak ada.
	CommitRedeem(ctx context.Context, customerID, orderRef string) (Transaction, error)

	// Release lepas reservasi yang belum di-commit; balance tidak berubah.
	// Idempotent: tanpa reservasi terbuka -> (nil, nil).
	// txType RELEASED untuk release normal, EXPIRED untuk sweep.
	Release(ctx context.Context, customerID, orderRef string, txType TxType, description string) (*Transaction, error)

	// Refund kembalikan poin yang sudah di-redeem. Idempotent per order_ref.
	Refund(ctx context.Context, customerID string, points int64, orderRef, description string) (Transaction, bool, error)

	// Remove tarik kembali poin earned, maksimal sebesar available saat ini
	// (poin yang sudah di-reserve order lain tidak boleh ikut hilang).
	// removed < points berarti partial. Tidak di-key per order_ref: refund
	// parsial bisa remove berkali-kali untuk order yang sama; idempotensi
	// dijaga reconciler lewat state order_points.
	Remove(ctx context.Context, customerID string, points int64, orderRef, description string) (int64, *Transaction, error)

	// Adjust koreksi manual admin; debit ditolak kalau melebihi available.
	Adjust(ctx context.Context, customerID string, points int64, description string) (Transaction, error)

	OpenReservation(ctx context.Context, customerID, orderRef string) (*Reservation, error)

	// FindTransaction: transaksi pertama dengan order_ref + type, nil kalau
	// tidak ada. Dipakai reconciler untuk rekonstruksi state saat redelivery.
	FindTransaction(ctx context.Context, customerID, orderRef string, typ TxType) (*Transaction, error)

	// RemovedPoints: total poin yang sudah ditarik (REMOVED) untuk order_ref.
	// Sumber kebenaran untuk removal kumulatif; jangan andalkan state row yang
	// bisa ketinggalan kalau write-nya gagal.
	RemovedPoints(ctx context.Context, customerID, orderRef string) (int64, error)

	ListLedgers(ctx context.Context, limit, offset int) ([]CustomerLedger, int64, error)
	ListTransactions(ctx context.Context, customerID string, limit, offset int) ([]Transaction, error)

	// ExpireStale release semua reservasi RESERVED yang lebih tua dari cutoff,
	// masing-masing dengan transaksi EXPIRED. Balikin yang di-expire.
	ExpireStale(ctx context.Context, cutoff time.Time) ([]Reservation, error)
}
