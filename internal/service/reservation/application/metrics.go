// internal/service/reservation/application/metrics.go
package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	holdsPlacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "reservation",
		Name:      "holds_placed_total",
		Help:      "Holds successfully placed against the hold ledger.",
	})
	holdsRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "reservation",
		Name:      "holds_rejected_total",
		Help:      "Reserve attempts rejected because the ledger was exhausted.",
	})
	holdsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "reservation",
		Name:      "holds_expired_total",
		Help:      "Holds reclaimed by the expiry reconciler.",
	})
	settlementsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "reservation",
		Name:      "settlements_completed_total",
		Help:      "Fulfill jobs that durably completed an order.",
	})
	settlementsDeadLetteredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "reservation",
		Name:      "settlements_dead_lettered_total",
		Help:      "Fulfill jobs that exhausted retries and were dead-lettered.",
	})
	checkoutCompensationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "reservation",
		Name:      "checkout_compensations_total",
		Help:      "Payment authorization failures that triggered compensation.",
	})
	inventorySyncLastRun = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "reservation",
		Name:      "inventory_sync_last_run_timestamp_seconds",
		Help:      "Unix time of the last successful inventory sync.",
	})
)

// SettlementDeadLettered 供消费侧在任务进入死信时上报计数。
func SettlementDeadLettered() {
	settlementsDeadLetteredTotal.Inc()
}
