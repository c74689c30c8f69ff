package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Channel: текущее состояние (0 CLOSED, 1 CONNECTING, 2 OPEN, 3 RECONNECT_PENDING)
	ChannelState prometheus.Gauge
	// Текущий множитель backoff
	ChannelBackoff prometheus.Gauge
	// Запланированные переподключения
	ReconnectsTotal prometheus.Counter
	// Входящие кадры по типу (alert, pong, opaque, ...)
	FramesTotal *prometheus.CounterVec
	// Неудачные keepalive ping (на состояние не влияют)
	PingFailuresTotal prometheus.Counter

	// Alerts: обработка тревог
	AlertsTotal        prometheus.Counter
	AlertsDroppedTotal prometheus.Counter
	NotificationsTotal *prometheus.CounterVec // result: ok, error
	StoreWritesTotal   *prometheus.CounterVec // result: ok, error

	// Scanner: вердикты и обращения к сервису классификации
	VerdictsTotal       *prometheus.CounterVec // verdict: SAFE, MALICIOUS, INSECURE, PENDING
	ScanRequestsTotal   *prometheus.CounterVec // result: ok, error, breaker_open
	ScanDuration        prometheus.Histogram
	CircuitBreakerState *prometheus.GaugeVec // 0 closed, 1 half-open, 2 open

	// Journal: заполненность буфера (backpressure)
	JournalBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		ChannelState: f.NewGauge(prometheus.GaugeOpts{
			Name: "crisisguard_channel_state",
			Help: "Current control channel state (0=closed, 1=connecting, 2=open, 3=reconnect_pending).",
		}),
		ChannelBackoff: f.NewGauge(prometheus.GaugeOpts{
			Name: "crisisguard_channel_backoff_counter",
			Help: "Current reconnect backoff multiplier.",
		}),
		ReconnectsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "crisisguard_channel_reconnects_total",
			Help: "Total number of scheduled reconnect attempts.",
		}),
		FramesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crisisguard_channel_frames_total",
			Help: "Inbound frames by declared kind.",
		}, []string{"kind"}),
		PingFailuresTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "crisisguard_channel_ping_failures_total",
			Help: "Keepalive pings that failed to send.",
		}),

		AlertsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "crisisguard_alerts_total",
			Help: "Alerts handled by the dispatcher.",
		}),
		AlertsDroppedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "crisisguard_alerts_dropped_total",
			Help: "Alerts dropped because the dispatch queue was full or stopped.",
		}),
		NotificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crisisguard_notifications_total",
			Help: "Notification delivery attempts by result.",
		}, []string{"result"}),
		StoreWritesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crisisguard_store_writes_total",
			Help: "Last-alert slot writes by result.",
		}, []string{"result"}),

		VerdictsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crisisguard_link_verdicts_total",
			Help: "Link verdicts by tag.",
		}, []string{"verdict"}),
		ScanRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crisisguard_scan_requests_total",
			Help: "Link classification requests by result.",
		}, []string{"result"}),
		ScanDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "crisisguard_scan_request_duration_seconds",
			Help:    "Histogram of link classification latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		CircuitBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "crisisguard_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=half-open, 2=open).",
		}, []string{"name"}),

		JournalBufferFill: f.NewGauge(prometheus.GaugeOpts{
			Name: "crisisguard_journal_buffer_utilization",
			Help: "Current number of events in the verdict journal buffer.",
		}),
	}
}
