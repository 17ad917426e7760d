package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	ForwardSuccesses  prometheus.Counter
	ForwardFailures   prometheus.Counter
	FloodWaits        prometheus.Counter
	ReconnectAttempts prometheus.Counter
	ActiveAccounts    prometheus.Gauge
	RunningRules      prometheus.Gauge
	ForwardDuration   prometheus.Histogram
}

// NewMetrics creates new Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ForwardSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tg_tool_bot_forward_successes",
			Help: "Total number of messages forwarded to a destination",
		}),
		ForwardFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tg_tool_bot_forward_failures",
			Help: "Total number of failed destination forwards",
		}),
		FloodWaits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tg_tool_bot_flood_waits",
			Help: "Total number of flood wait signals honored",
		}),
		ReconnectAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tg_tool_bot_reconnect_attempts",
			Help: "Total number of account reconnect attempts",
		}),
		ActiveAccounts: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tg_tool_bot_active_accounts",
			Help: "Number of accounts currently in active status",
		}),
		RunningRules: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tg_tool_bot_running_rules",
			Help: "Number of forwarding rules with a live subscription",
		}),
		ForwardDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tg_tool_bot_forward_duration_seconds",
			Help:    "Time spent fanning one message out to all destinations",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
