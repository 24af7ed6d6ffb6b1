package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reward_events_total",
			Help: "Order-state events consumed, by outcome",
		},
		[]string{"outcome"}, // applied | duplicate | skipped | failed
	)

	TransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reward_transactions_total",
			Help: "Ledger transactions appended, by type",
		},
		[]string{"type"},
	)

	PartialRemovalsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reward_partial_removals_total",
			Help: "Removals that could not reverse the full earned amount",
		},
	)

	ReservationsExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reward_reservations_expired_total",
			Help: "Stale reservations released by the sweep",
		},
	)
)
