package reconciler

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-reward-ledger.git/internal/kafka"
	"github.com/ariefcatur/go-reward-ledger.git/internal/ledger"
	"github.com/ariefcatur/go-reward-ledger.git/internal/metrics"
)

// Sweeper release reservasi yang tidak pernah sampai state terminal (order
// ditinggal pre-payment, event cancel tidak pernah datang). Tanpa ini poin
// nyangkut di reserved selamanya.
type Sweeper struct {
	Store       ledger.Store
	States      ledger.OrderPointsStore
	Alerts      Publisher
	TTL         time.Duration
	Interval    time.Duration
	ServiceName string
}

func (s *Sweeper) Run(ctx context.Context) {
	if s.TTL <= 0 {
		log.Printf("sweeper disabled (RESERVATION_TTL=0)")
		return
	}
	tick := time.NewTicker(s.Interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				log.Printf("sweep: %v", err)
			}
			if n > 0 {
				log.Printf("sweep: expired %d stale reservations", n)
			}
		}
	}
}

func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.TTL)
	expired, err := s.Store.ExpireStale(ctx, cutoff)
	for _, res := range expired {
		metrics.ReservationsExpiredTotal.Inc()
		metrics.TransactionsTotal.WithLabelValues(string(ledger.TxExpired)).Inc()

		if op, gerr := s.States.Get(ctx, res.OrderRef); gerr == nil && op != nil {
			op.State = ledger.OrderPointsReleased
			op.PointsReleased = op.PointsReserved
			_ = s.States.Put(ctx, *op)
		}
		s.alertExpired(res)
	}
	return len(expired), err
}

func (s *Sweeper) alertExpired(res ledger.Reservation) {
	if s.Alerts == nil {
		return
	}
	ev := ledger.Envelope{
		EventID:       uuid.NewString(),
		EventType:     ledger.EventReconcileAlert,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		CorrelationID: res.OrderRef,
		Payload: kafkax.MustMarshal(ledger.ReconcileAlertPayload{
			OrderID:    res.OrderRef,
			CustomerID: res.CustomerID,
			Kind:       ledger.AlertReservationExpired,
			Points:     res.Points,
			Detail:     "reservation held past TTL, released by sweep",
		}),
	}
	s.Alerts.Publish(ledger.PartitionKey(res.OrderRef), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(ledger.EventReconcileAlert)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
