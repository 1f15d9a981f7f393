package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbPoolConnections, documentListenerReconnects) }

var (
	dbPoolConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_connections",
			Help: "Postgres pool connections by state (total/idle/in_use).",
		},
		[]string{"state"},
	)

	documentListenerReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "document_listener_reconnects_total",
			Help: "Times the document change listener lost its connection.",
		},
	)
)

func SetDBPoolStats(total, idle, inUse int32) {
	dbPoolConnections.WithLabelValues("total").Set(float64(total))
	dbPoolConnections.WithLabelValues("idle").Set(float64(idle))
	dbPoolConnections.WithLabelValues("in_use").Set(float64(inUse))
}

func IncDocumentListenerReconnect() {
	documentListenerReconnects.Inc()
}
