package ledger

import "time"

// CustomerLedger: satu baris per customer, lazy-create saat pertama disentuh.
// Tidak pernah dihapus (audit).
type CustomerLedger struct {
	CustomerID       string    `json:"customer_id"`
	Balance          int64     `json:"balance"`
	Reserved         int64     `json:"reserved"`
	LifetimeEarned   int64     `json:"lifetime_earned"`
	LifetimeRedeemed int64     `json:"lifetime_redeemed"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Available = balance - reserved; satu-satunya jumlah yang boleh di-reserve baru.
func (l CustomerLedger) Available() int64 { return l.Balance - l.Reserved }

type TxType string

const (
	TxEarned   TxType = "EARNED"
	TxRedeemed TxType = "REDEEMED"
	TxAdjusted TxType = "ADJUSTED"
	TxExpired  TxType = "EXPIRED"
	TxReleased TxType = "RELEASED"
	TxRefunded TxType = "REFUNDED"
	TxRemoved  TxType = "REMOVED"
)

// Transaction: append-only, satu baris per mutasi ledger.
// Invariant: sum(points) semua transaksi customer == balance.
// RELEASED dan EXPIRED tercatat dengan points=0 (balance memang tidak berubah,
// yang turun cuma reserved) supaya audit trail tetap utuh.
type Transaction struct {
	ID          string    `json:"id"`
	CustomerID  string    `json:"customer_id"`
	Type        TxType    `json:"type"`
	Points      int64     `json:"points"` // signed: + kredit, - debit
	Description string    `json:"description"`
	OrderRef    string    `json:"order_ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

const (
	ReservationReserved  = "RESERVED"
	ReservationCommitted = "COMMITTED"
	ReservationReleased  = "RELEASED"
	ReservationExpired   = "EXPIRED"
)

// Reservation: hold poin untuk satu order yang belum settle. Bukan ledger
// event; baru jadi transaksi saat commit/release/expire.
type Reservation struct {
	CustomerID string    `json:"customer_id"`
	OrderRef   string    `json:"order_ref"`
	Points     int64     `json:"points"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}
