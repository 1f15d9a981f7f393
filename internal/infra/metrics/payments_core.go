package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		checkoutTotal,
		paymentsRevenueTotal,
		callbackOutcomesTotal,
		gatewayRequestsTotal,
		gatewayRequestDuration,
	)
}

var (
	checkoutTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_total",
			Help: "Checkout attempts by result (redirected/login_required/unknown_plan/gateway_error/...).",
		},
		[]string{"result"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "The total monetary value of confirmed payments, labeled by currency.",
		},
		[]string{"currency"},
	)

	callbackOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_callback_outcomes_total",
			Help: "Payment callback reconciliations by final state.",
		},
		[]string{"state"},
	)

	gatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Outbound payment gateway calls by operation and result.",
		},
		[]string{"op", "result"},
	)

	gatewayRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Latency of outbound payment gateway calls.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

func IncCheckout(result string) {
	checkoutTotal.WithLabelValues(norm(result)).Inc()
}

func AddPaymentRevenue(currency string, amount int64) {
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}

func IncCallbackOutcome(state string) {
	callbackOutcomesTotal.WithLabelValues(norm(state)).Inc()
}

// ObserveGatewayRequest records one gateway call that started at start.
func ObserveGatewayRequest(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	gatewayRequestsTotal.WithLabelValues(norm(op), result).Inc()
	gatewayRequestDuration.WithLabelValues(norm(op)).Observe(time.Since(start).Seconds())
}
