package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(downloadGrantsTotal) }

var downloadGrantsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "download_grants_total",
		Help: "Download link events (created/direct/redeemed/used/expired/invalid/failure).",
	},
	[]string{"result"},
)

func IncDownloadGrant(result string) {
	downloadGrantsTotal.WithLabelValues(norm(result)).Inc()
}
