package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-reward-ledger.git/internal/kafka"
	"github.com/ariefcatur/go-reward-ledger.git/internal/ledger"
	"github.com/ariefcatur/go-reward-ledger.git/internal/metrics"
	"github.com/ariefcatur/go-reward-ledger.git/internal/redisx"
)

// Publisher: subset kafka.Producer yang dipakai di sini (gampang di-fake).
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Service memetakan transisi state order ke operasi ledger:
//
//   - ke PaymentSettled: commitRedeem (kalau ada reservasi) lalu earn
//   - ke PaymentDeclined, atau Cancelled pre-payment: release
//   - PaymentSettled ke Cancelled: refund(pointsRedeemed) + remove(pointsEarned)
//   - PaymentSettled ke Refunded parsial: remove proporsional, floor(earned * refund / total)
//
// Delivery at-least-once: semua operasi di-key order_ref dan state order_points
// dicek dulu, jadi event ganda / nyasar urutan tidak diapply buta. Jumlah yang
// sudah di-redeem/di-remove direkonstruksi dari transaksi ledger saat retry,
// bukan dari state row, karena write state bisa gagal setelah mutasi ledger
// commit.
type Service struct {
	Ledger      *ledger.Service
	States      ledger.OrderPointsStore
	Redis       *redis.Client
	Alerts      Publisher
	ServiceName string
}

// HandleOrderStateChanged: dipasang sebagai handler consumer. Return error
// hanya untuk kegagalan storage, supaya offset tidak di-commit dan event
// di-redeliver; event yang memang tidak applicable di-skip (plus alert).
func (s *Service) HandleOrderStateChanged(ctx context.Context, m kafkago.Message) error {
	var env ledger.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// payload rusak tidak akan membaik kalau diulang
		log.Printf("reconciler: drop undecodable event: %v", err)
		metrics.EventsTotal.WithLabelValues("failed").Inc()
		return nil
	}
	if env.EventType != ledger.EventOrderStateChanged {
		return nil // ignore
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, "reconciler", env.EventID)
	if exists, _ := redisx.Exists(ctx, s.Redis, dkey); exists {
		metrics.EventsTotal.WithLabelValues("duplicate").Inc()
		return nil
	}

	p, err := kafkax.UnwrapPayload[ledger.OrderStateChangedPayload](env.Payload)
	if err != nil {
		log.Printf("reconciler: drop undecodable payload event_id=%s: %v", env.EventID, err)
		metrics.EventsTotal.WithLabelValues("failed").Inc()
		return nil
	}

	if err := s.apply(ctx, p); err != nil {
		metrics.EventsTotal.WithLabelValues("failed").Inc()
		return err
	}

	// dedup di-set setelah sukses; kalau gagal di tengah, event wajib bisa
	// diproses ulang (operasi ledger-nya idempotent per order_ref)
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	metrics.EventsTotal.WithLabelValues("applied").Inc()
	return nil
}

func (s *Service) apply(ctx context.Context, p ledger.OrderStateChangedPayload) error {
	op, err := s.States.Get(ctx, p.OrderID)
	if err != nil {
		return err
	}

	switch {
	case p.ToState == ledger.StatePaymentSettled:
		return s.settle(ctx, p, op)
	case p.ToState == ledger.StatePaymentDeclined:
		return s.release(ctx, p, op)
	case p.ToState == ledger.StateCancelled && p.FromState == ledger.StatePaymentSettled:
		return s.reverse(ctx, p, op)
	case p.ToState == ledger.StateCancelled:
		return s.release(ctx, p, op)
	case p.ToState == ledger.StateRefunded:
		return s.partialRemove(ctx, p, op)
	default:
		return nil // transisi yang tidak menyentuh poin
	}
}

// settle: commitRedeem dulu (kalau customer pakai poin), lalu earn. Keduanya
// idempotent per order, jadi settle ganda aman.
func (s *Service) settle(ctx context.Context, p ledger.OrderStateChangedPayload, op *ledger.OrderPoints) error {
	if op != nil && (op.State == ledger.OrderPointsSettled || op.State == ledger.OrderPointsReversed) {
		metrics.EventsTotal.WithLabelValues("duplicate").Inc()
		return nil
	}

	next := ledger.OrderPoints{OrderRef: p.OrderID, CustomerID: p.CustomerID}
	if op != nil {
		next = *op
	}
	next.OrderTotalCents = p.OrderTotalCents

	t, err := s.Ledger.CommitRedeem(ctx, p.CustomerID, p.OrderID)
	switch {
	case errors.Is(err, ledger.ErrNoReservationFound):
		// order tanpa poin, atau commit sudah jalan di delivery sebelumnya
		// yang keburu gagal nyimpen state; pulihkan dari transaksi REDEEMED
		redeemed, rerr := s.Ledger.RedeemedPoints(ctx, p.CustomerID, p.OrderID)
		if rerr != nil {
			return rerr
		}
		if redeemed == 0 {
			log.Printf("reconciler: no open reservation order=%s (ok if no points applied)", p.OrderID)
		}
		next.PointsRedeemed = redeemed
	case err != nil:
		return err
	default:
		next.PointsRedeemed = -t.Points
	}

	et, err := s.Ledger.Earn(ctx, p.CustomerID, p.OrderTotalCents, p.OrderID)
	if err != nil {
		return err
	}
	if et != nil {
		next.PointsEarned = et.Points
	}

	next.State = ledger.OrderPointsSettled
	return s.States.Put(ctx, next)
}

// release: cancel pre-payment atau payment declined; balance tidak berubah.
func (s *Service) release(ctx context.Context, p ledger.OrderStateChangedPayload, op *ledger.OrderPoints) error {
	if op != nil && op.State == ledger.OrderPointsSettled {
		// Cancelled nyasar datang sesudah settle tapi from_state bukan
		// PaymentSettled: jangan apply buta
		s.alert(p, ledger.AlertSkippedTransition, 0,
			fmt.Sprintf("%s -> %s arrived while order already settled", p.FromState, p.ToState))
		metrics.EventsTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	t, err := s.Ledger.Release(ctx, p.CustomerID, p.OrderID)
	if err != nil {
		return err
	}
	if t == nil && op == nil {
		return nil // tidak ada poin yang nyangkut sama sekali
	}

	next := ledger.OrderPoints{OrderRef: p.OrderID, CustomerID: p.CustomerID}
	if op != nil {
		next = *op
	}
	if t != nil {
		next.PointsReleased = next.PointsReserved
	}
	next.State = ledger.OrderPointsReleased
	return s.States.Put(ctx, next)
}

// reverse: cancel post-settlement. Refund dan remove dua-duanya, independen:
// satu order bisa punya spend dan earn sekaligus.
func (s *Service) reverse(ctx context.Context, p ledger.OrderStateChangedPayload, op *ledger.OrderPoints) error {
	if op == nil || op.State != ledger.OrderPointsSettled {
		if op != nil && op.State == ledger.OrderPointsReversed {
			metrics.EventsTotal.WithLabelValues("duplicate").Inc()
			return nil
		}
		s.alert(p, ledger.AlertSkippedTransition, 0,
			fmt.Sprintf("PaymentSettled -> Cancelled but order points state is %q", stateOf(op)))
		metrics.EventsTotal.WithLabelValues("skipped").Inc()
		return nil
	}
	next := *op

	if op.PointsRedeemed > 0 {
		// Refund idempotent per order_ref, jadi retry aman
		if _, err := s.Ledger.Refund(ctx, p.CustomerID, op.PointsRedeemed, p.OrderID); err != nil {
			return err
		}
		next.PointsRefunded = op.PointsRedeemed
	}

	// removal kumulatif dibaca dari ledger, bukan state row: attempt
	// sebelumnya bisa sudah remove lalu gagal nyimpen state
	removedSoFar, err := s.Ledger.RemovedPoints(ctx, p.CustomerID, p.OrderID)
	if err != nil {
		return err
	}
	next.PointsRemoved = removedSoFar
	if target := op.PointsEarned - removedSoFar; target > 0 {
		res, err := s.Ledger.Remove(ctx, p.CustomerID, target, p.OrderID)
		if err != nil {
			return err
		}
		next.PointsRemoved += res.Removed
		if res.Partial {
			s.alert(p, ledger.AlertPartialRemove, res.Requested-res.Removed,
				"earned points already spent elsewhere; partial removal")
		}
	}

	next.State = ledger.OrderPointsReversed
	return s.States.Put(ctx, next)
}

// partialRemove: refund parsial post-settlement. Target kumulatif
// floor(earned * refunded / total); yang ditarik cuma delta terhadap
// removal sebelumnya, jadi refund bertahap tidak double-remove.
func (s *Service) partialRemove(ctx context.Context, p ledger.OrderStateChangedPayload, op *ledger.OrderPoints) error {
	if op == nil || op.State != ledger.OrderPointsSettled {
		s.alert(p, ledger.AlertSkippedTransition, 0,
			fmt.Sprintf("Refunded event but order points state is %q", stateOf(op)))
		metrics.EventsTotal.WithLabelValues("skipped").Inc()
		return nil
	}
	if p.RefundCents <= 0 || op.OrderTotalCents <= 0 || op.PointsEarned <= 0 {
		return nil
	}

	target := op.PointsEarned * p.RefundCents / op.OrderTotalCents // floor, integer division
	if target > op.PointsEarned {
		target = op.PointsEarned
	}
	// delta terhadap removal yang sudah tercatat di ledger, bukan state row
	removedSoFar, err := s.Ledger.RemovedPoints(ctx, p.CustomerID, p.OrderID)
	if err != nil {
		return err
	}
	next := *op
	next.PointsRemoved = removedSoFar
	if delta := target - removedSoFar; delta > 0 {
		res, err := s.Ledger.Remove(ctx, p.CustomerID, delta, p.OrderID)
		if err != nil {
			return err
		}
		next.PointsRemoved += res.Removed
		if res.Partial {
			s.alert(p, ledger.AlertPartialRemove, res.Requested-res.Removed,
				"earned points already spent elsewhere; partial removal")
		}
	}
	return s.States.Put(ctx, next)
}

func stateOf(op *ledger.OrderPoints) string {
	if op == nil {
		return "UNRESERVED"
	}
	return op.State
}

func (s *Service) alert(p ledger.OrderStateChangedPayload, kind string, points int64, detail string) {
	if s.Alerts == nil {
		return
	}
	ev := ledger.Envelope{
		EventID:       uuid.NewString(),
		EventType:     ledger.EventReconcileAlert,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		CorrelationID: p.OrderID,
		Payload: kafkax.MustMarshal(ledger.ReconcileAlertPayload{
			OrderID:    p.OrderID,
			CustomerID: p.CustomerID,
			Kind:       kind,
			Points:     points,
			Detail:     detail,
		}),
	}
	s.Alerts.Publish(ledger.PartitionKey(p.OrderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(ledger.EventReconcileAlert)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
