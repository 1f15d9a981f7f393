package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		subscriptionsActivatedTotal,
		subscriptionsDeactivatedTotal,
		subscriptionsActive,
	)
}

var (
	subscriptionsActivatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscriptions_activated_total",
			Help: "Subscriptions written to the ledger, by plan and actor (payment/admin).",
		},
		[]string{"plan", "actor"},
	)

	subscriptionsDeactivatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriptions_deactivated_total",
			Help: "Subscriptions switched off by an administrator.",
		},
	)

	subscriptionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "subscriptions_active",
			Help: "Users whose subscription currently grants access.",
		},
	)
)

func IncSubscriptionActivated(plan, actor string) {
	subscriptionsActivatedTotal.WithLabelValues(norm(plan), norm(actor)).Inc()
}

func IncSubscriptionDeactivated() {
	subscriptionsDeactivatedTotal.Inc()
}

func SetSubscriptionsActive(n int) {
	subscriptionsActive.Set(float64(n))
}
