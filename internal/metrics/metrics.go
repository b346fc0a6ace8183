package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the frame daemon and telemetry bridge

var (
	// Daemon request metrics
	DaemonRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inkframe_daemon_requests_total",
		Help: "Daemon requests by verb and result",
	}, []string{"verb", "result"}) // result: ok|error|unknown|timeout

	DaemonRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inkframe_daemon_request_duration_seconds",
		Help:    "Time from admission to completion of a daemon request, queueing included",
		Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 20, 30, 60, 120},
	}, []string{"verb"})

	DaemonQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "inkframe_daemon_queue_depth",
		Help: "Requests waiting for the display",
	})

	// Telemetry metrics
	TelemetryPublishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inkframe_telemetry_publishes_total",
		Help: "Telemetry state publishes by result",
	}, []string{"result"})

	RemoteCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inkframe_remote_commands_total",
		Help: "Commands received over MQTT by action and result",
	}, []string{"action", "result"})
)

// Result label values
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultUnknown = "unknown"
	ResultTimeout = "timeout"
	ResultLimited = "rate_limited"
)
