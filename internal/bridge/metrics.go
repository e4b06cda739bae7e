package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edgeberry_bridge_commands_total",
		Help: "Direct method calls by outcome",
	}, []string{"outcome"})

	commandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "edgeberry_bridge_command_duration_seconds",
		Help:    "Time from publish to settle",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"outcome"})

	pendingGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "edgeberry_bridge_pending_requests",
		Help: "Calls waiting for a device response",
	})

	ignoredResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edgeberry_bridge_ignored_responses_total",
		Help: "Response messages discarded without settling a call",
	}, []string{"reason"})

	pollFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edgeberry_bridge_poll_fetches_total",
		Help: "Retained response fetches by result",
	}, []string{"result"})

	clearFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edgeberry_bridge_clear_failures_total",
		Help: "Failed attempts to clear a retained response",
	})
)
