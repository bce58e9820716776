package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LinesRead counts raw lines handed to the normalizer
	LinesRead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evewatch_lines_read_total",
		Help: "Raw log lines read from the eve.json source",
	})

	// LinesDropped counts lines rejected by the normalizer
	LinesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evewatch_lines_dropped_total",
		Help: "Lines dropped as malformed or non-alert events",
	})

	// AlertsAccepted counts accepted alerts by severity
	AlertsAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evewatch_alerts_accepted_total",
		Help: "Normalized alerts accepted into the pipeline",
	}, []string{"severity"})

	// TailRotations counts detected log rotations/truncations
	TailRotations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evewatch_tail_rotations_total",
		Help: "Log file rotations or truncations detected by the tailer",
	})

	// NotificationsSent counts webhook notifications attempted
	NotificationsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evewatch_notifications_sent_total",
		Help: "Webhook notifications dispatched for high and critical alerts",
	})

	// ConnectedClients tracks currently connected websocket subscribers
	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "evewatch_connected_clients",
		Help: "Currently connected websocket subscribers",
	})

	// Resets counts combined store resets
	Resets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evewatch_resets_total",
		Help: "Combined aggregate and durable log resets",
	})
)

// StartServer exposes the Prometheus registry on addr. Blocks.
func StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
