// Package metrics exposes the Prometheus counters and gauges the pipeline
// publishes, registered against prometheus/client_golang.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DBInserts counts rows written per sink worker and stream.
	DBInserts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "db_inserts_total",
		Help: "Database rows inserted by sink workers.",
	}, []string{"worker", "stream_name"})

	// BusPublishes counts every message handed to a bus topic's Publish,
	// labeled by topic and outcome ("ok", "dropped", "error").
	BusPublishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_publishes_total",
		Help: "Messages published to the internal bus.",
	}, []string{"topic", "outcome"})

	// ProducerHealthTransitions counts producer state-machine transitions,
	// labeled by (exchange, kind, to_state).
	ProducerHealthTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "producer_health_transitions_total",
		Help: "Producer state machine transitions.",
	}, []string{"exchange", "kind", "to_state"})

	// GatewayConnections tracks the number of live client feed gateway
	// websocket connections.
	GatewayConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_connections",
		Help: "Currently connected client feed gateway websocket clients.",
	})
)

// Serve starts the Prometheus /metrics HTTP server on addr. Blocks; call
// in its own goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
