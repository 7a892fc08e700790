package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus metrics. All metrics live on the
// returned Registry so tests can create independent instances.
type Metrics struct {
	Registry *prometheus.Registry

	EventsTotal   *prometheus.CounterVec // labels: provider, type
	ParseErrors   *prometheus.CounterVec // labels: provider
	WSReconnects  *prometheus.CounterVec // labels: provider
	DroppedEvents *prometheus.CounterVec // labels: component

	HistoryGaps    prometheus.Counter
	HistoryCandles prometheus.Counter

	SessionsOpen   *prometheus.GaugeVec   // labels: endpoint
	BroadcastDrops *prometheus.CounterVec // labels: endpoint

	IndicatorComputeDur prometheus.Histogram
	IndicatorUpdates    prometheus.Counter
	IndicatorInstances  prometheus.Gauge

	OrdersTotal *prometheus.CounterVec // labels: status

	MirrorBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	MirrorDrops        prometheus.Counter
}

// New registers and returns all engine metrics on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketflow_events_total",
			Help: "Normalized market-data events emitted by providers",
		}, []string{"provider", "type"}),
		ParseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketflow_parse_errors_total",
			Help: "Inbound frames that failed to parse or correlate",
		}, []string{"provider"}),
		WSReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketflow_ws_reconnects_total",
			Help: "WebSocket reconnection attempts per provider",
		}, []string{"provider"}),
		DroppedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketflow_dropped_events_total",
			Help: "Events dropped under backpressure per component",
		}, []string{"component"}),

		HistoryGaps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketflow_history_gaps_total",
			Help: "Gaps detected between consecutive stored candles",
		}),
		HistoryCandles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketflow_history_candles_total",
			Help: "Candles accepted into the history store",
		}),

		SessionsOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marketflow_sessions_open",
			Help: "Open websocket sessions per endpoint",
		}, []string{"endpoint"}),
		BroadcastDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketflow_broadcast_drops_total",
			Help: "Sessions removed for falling behind the broadcast rate",
		}, []string{"endpoint"}),

		IndicatorComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketflow_indicator_compute_duration_seconds",
			Help:    "Indicator lifecycle-method latency",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005},
		}),
		IndicatorUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketflow_indicator_updates_total",
			Help: "Indicator updates produced",
		}),
		IndicatorInstances: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketflow_indicator_instances",
			Help: "Live indicator instances",
		}),

		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketflow_orders_total",
			Help: "Simulated orders by final status",
		}, []string{"status"}),

		MirrorBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketflow_mirror_breaker_state",
			Help: "Redis mirror circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		MirrorDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketflow_mirror_drops_total",
			Help: "Publishes lost to mirror errors or an open breaker",
		}),
	}

	m.Registry.MustRegister(
		m.EventsTotal,
		m.ParseErrors,
		m.WSReconnects,
		m.DroppedEvents,
		m.HistoryGaps,
		m.HistoryCandles,
		m.SessionsOpen,
		m.BroadcastDrops,
		m.IndicatorComputeDur,
		m.IndicatorUpdates,
		m.IndicatorInstances,
		m.OrdersTotal,
		m.MirrorBreakerState,
		m.MirrorDrops,
	)

	return m
}
