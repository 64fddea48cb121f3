// Package observability exposes Prometheus metrics for the negotiation
// core: offer verdicts, trade transitions, reservation conflicts, coin
// movements, and per-action latency.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Metrics ────────────────────────────────────────────────────────────────

var (
	// OffersSubmitted counts submitted buy offers by verdict
	// (accepted, below_threshold, below_asking, rejected).
	OffersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "barterdeck_offers_submitted_total",
		Help: "Buy offers submitted, labeled by verdict.",
	}, []string{"verdict"})

	// TradeTransitions counts trade proposal status transitions.
	TradeTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "barterdeck_trade_transitions_total",
		Help: "Trade proposal status transitions, labeled by target status.",
	}, []string{"to"})

	// ReservationConflicts counts tryReserve losses.
	ReservationConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "barterdeck_reservation_conflicts_total",
		Help: "Reservation claims that lost to an existing hold.",
	})

	// ForcedCancellations counts proposals swept by the conflict resolver.
	ForcedCancellations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "barterdeck_forced_cancellations_total",
		Help: "Proposals force-cancelled because an item committed elsewhere.",
	})

	// CoinMovements counts ledger writes by status (SUCCESS, REFUND).
	CoinMovements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "barterdeck_coin_movements_total",
		Help: "Credit ledger entries written, labeled by entry status.",
	}, []string{"status"})

	// ActionDuration observes negotiation action latency.
	ActionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "barterdeck_action_duration_seconds",
		Help:    "Duration of negotiation actions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})

	// HoldsExpired counts cart holds released by the sweeper.
	HoldsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "barterdeck_holds_expired_total",
		Help: "Cart holds released by the expiry sweeper.",
	})
)

// ObserveAction records one action's duration.
func ObserveAction(action string, start time.Time) {
	ActionDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
}
