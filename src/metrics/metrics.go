package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var BarsDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "gateway_bars_delivered_total",
	Help: "Bars pushed to stream clients",
}, []string{"symbol", "timeframe"})

var StreamTasks = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "gateway_stream_tasks_running",
	Help: "Streaming scheduler tasks currently running",
})

var StreamTerminations = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "gateway_stream_terminations_total",
	Help: "Streaming scheduler tasks that stopped, by cause",
}, []string{"cause"})

var Orders = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "gateway_orders_total",
	Help: "Order requests by outcome",
}, []string{"kind", "outcome"})

var Notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "gateway_notifications_total",
	Help: "Notification messages by result",
}, []string{"result"})

var CircuitState = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "gateway_notifier_circuit_state",
	Help: "0 closed, 1 open",
})

var ReconcilerSweeps = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "gateway_reconciler_sweeps_total",
	Help: "Closed-position sweeps by result",
}, []string{"result"})

var ClosedDeals = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "gateway_closed_deals_total",
	Help: "Classified closing deals",
}, []string{"symbol", "reason"})

var UpstreamDurations = prometheus.NewSummaryVec(prometheus.SummaryOpts{
	Name:       "gateway_upstream_duration_seconds",
	Help:       "Time spent holding the upstream session",
	AgeBuckets: 1,
}, []string{"op"})

func init() {
	prometheus.MustRegister(
		BarsDelivered,
		StreamTasks,
		StreamTerminations,
		Orders,
		Notifications,
		CircuitState,
		ReconcilerSweeps,
		ClosedDeals,
		UpstreamDurations,
	)
}
