package ledger

import (
	"encoding/json"
	"time"
)

const (
	EventOrderStateChanged = "OrderStateChanged"
	EventReconcileAlert    = "PointsReconcileAlert"
)

// State order dari engine eksternal. Kita tidak memiliki state machine order,
// cuma memetakan transisinya ke operasi ledger.
const (
	StateArrangingPayment  = "ArrangingPayment"
	StatePaymentAuthorized = "PaymentAuthorized"
	StatePaymentSettled    = "PaymentSettled"
	StatePaymentDeclined   = "PaymentDeclined"
	StateCancelled         = "Cancelled"
	StateRefunded          = "Refunded"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "order-engine"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // biasanya order_id
	Payload       json.RawMessage `json:"payload"`
}

type OrderStateChangedPayload struct {
	OrderID         string `json:"order_id"`
	CustomerID      string `json:"customer_id"`
	FromState       string `json:"from_state"`
	ToState         string `json:"to_state"`
	OrderTotalCents int64  `json:"order_total_cents"`
	// RefundCents: total yang sudah di-refund untuk order ini, kumulatif.
	// Hanya terisi untuk refund parsial (to_state=Refunded).
	RefundCents int64 `json:"refund_cents,omitempty"`
}

// Alert kinds
const (
	AlertPartialRemove      = "PARTIAL_REMOVE"
	AlertSkippedTransition  = "SKIPPED_TRANSITION"
	AlertReservationExpired = "RESERVATION_EXPIRED"
)

type ReconcileAlertPayload struct {
	OrderID    string `json:"order_id,omitempty"`
	CustomerID string `json:"customer_id"`
	Kind       string `json:"kind"`
	Points     int64  `json:"points,omitempty"`
	Detail     string `json:"detail,omitempty"`
}
