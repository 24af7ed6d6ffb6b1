package ledger

import "errors"

var (
	// Poin diminta melebihi available (balance - reserved). Recoverable:
	// checkout lanjut tanpa diskon.
	ErrInsufficientAvailable = errors.New("insufficient available points")

	// commitRedeem/release untuk order_ref tanpa reservasi terbuka.
	// Kemungkinan duplicate event atau ordering bug; caller log warning, no-op.
	ErrNoReservationFound = errors.New("no open reservation for order")

	// Reserve ulang dengan order_ref sama tapi jumlah beda.
	ErrReservationMismatch = errors.New("reservation exists with different points")

	ErrRewardsDisabled = errors.New("reward points disabled")

	// Jumlah redemption di luar batas min/max dari settings.
	ErrRedemptionOutOfBounds = errors.New("redemption amount out of bounds")

	ErrInvalidSettings = errors.New("invalid reward settings")
)
