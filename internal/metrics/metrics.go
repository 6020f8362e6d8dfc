// Package metrics exposes process-wide Prometheus counters for Gearbox.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	commandsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gearbox_commands_processed_total",
			Help: "Total number of commands processed",
		},
	)

	commandErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gearbox_command_errors_total",
			Help: "Total number of command handler errors",
		},
	)

	hookExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gearbox_hook_executions_total",
			Help: "Total number of hook executions",
		},
		[]string{"template", "status"},
	)

	quotaDenials = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gearbox_quota_denials_total",
			Help: "Total number of commands denied by the quota guard",
		},
	)

	persistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gearbox_persist_failures_total",
			Help: "Total number of failed document-store writes",
		},
	)

	pluginsLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gearbox_plugins_loaded",
			Help: "Number of plugins currently registered",
		},
	)

	feedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gearbox_feed_clients",
			Help: "Number of connected diagnostics feed clients",
		},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordCommand(err bool) {
	commandsProcessed.Inc()
	if err {
		commandErrors.Inc()
	}
}

func RecordHookExecution(template string, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	hookExecutions.WithLabelValues(template, status).Inc()
}

func RecordQuotaDenial() {
	quotaDenials.Inc()
}

func RecordPersistFailure() {
	persistFailures.Inc()
}

func SetPluginsLoaded(n int) {
	pluginsLoaded.Set(float64(n))
}

func IncrementFeedClients() {
	feedClients.Inc()
}

func DecrementFeedClients() {
	feedClients.Dec()
}
