package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"nodelink/internal/execution"
)

var _ execution.Recorder = (*Metrics)(nil)

// Metrics holds the Prometheus metrics of graph runs. A nil *Metrics records nothing.
type Metrics struct {
	// Run metrics
	RunsTotal   *prometheus.CounterVec
	RunDuration prometheus.Histogram
	ActiveRuns  prometheus.Gauge

	// Block metrics
	BlockExecutions *prometheus.CounterVec
	BlockLatency    *prometheus.HistogramVec
	DialogueWaits   prometheus.Gauge
	Fallbacks       *prometheus.CounterVec

	// Graph editing
	ConnectorReplacements prometheus.Counter

	// WebSocket metrics
	WebSocketConnections prometheus.Gauge
	WebSocketMessages    *prometheus.CounterVec
}

// NewMetrics registers the metrics with reg (prometheus.DefaultRegisterer in the server)
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nodelink_runs_total",
			Help: "Total number of graph runs by final status",
		}, []string{"status"}),

		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "nodelink_run_duration_seconds",
			Help:    "Graph run duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 300, 600},
		}),

		ActiveRuns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "nodelink_runs_active",
			Help: "Number of graph runs in progress",
		}),

		BlockExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nodelink_block_executions_total",
			Help: "Total number of block executions by type and status",
		}, []string{"block_type", "status"}),

		BlockLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nodelink_block_duration_seconds",
			Help:    "Block execution latency in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"block_type"}),

		DialogueWaits: factory.NewGauge(prometheus.GaugeOpts{
			Name: "nodelink_dialogue_waiting",
			Help: "Number of Dialogue blocks waiting for a user response",
		}),

		Fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nodelink_config_fallbacks_total",
			Help: "Total number of handled configuration fallbacks by kind",
		}, []string{"kind"}),

		ConnectorReplacements: factory.NewCounter(prometheus.CounterOpts{
			Name: "nodelink_connector_replacements_total",
			Help: "Total number of connects that replaced an existing input binding",
		}),

		WebSocketConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "nodelink_websocket_connections_active",
			Help: "Number of active project WebSocket connections",
		}),

		WebSocketMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nodelink_websocket_messages_total",
			Help: "Total number of WebSocket messages by type",
		}, []string{"type", "direction"}), // direction: "inbound" or "outbound"
	}
}

// RecordBlock implements execution.Recorder
func (m *Metrics) RecordBlock(blockType, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.BlockExecutions.WithLabelValues(blockType, status).Inc()
	if duration > 0 {
		m.BlockLatency.WithLabelValues(blockType).Observe(duration.Seconds())
	}
}

// RecordFallback implements execution.Recorder
func (m *Metrics) RecordFallback(kind string) {
	if m == nil {
		return
	}
	m.Fallbacks.WithLabelValues(kind).Inc()
}

// DialogueWaiting implements execution.Recorder
func (m *Metrics) DialogueWaiting(delta int) {
	if m == nil {
		return
	}
	m.DialogueWaits.Add(float64(delta))
}

// RunStarted marks a run as active
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.ActiveRuns.Inc()
}

// RunFinished records the outcome of a run started with RunStarted
func (m *Metrics) RunFinished(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ActiveRuns.Dec()
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(duration.Seconds())
}

// RecordConnectorReplaced counts a rebound input
func (m *Metrics) RecordConnectorReplaced() {
	if m == nil {
		return
	}
	m.ConnectorReplacements.Inc()
}

// RecordWebSocketConnect records a new WebSocket connection
func (m *Metrics) RecordWebSocketConnect() {
	if m == nil {
		return
	}
	m.WebSocketConnections.Inc()
}

// RecordWebSocketDisconnect records a WebSocket disconnection
func (m *Metrics) RecordWebSocketDisconnect() {
	if m == nil {
		return
	}
	m.WebSocketConnections.Dec()
}

// RecordWebSocketMessage records a WebSocket message
func (m *Metrics) RecordWebSocketMessage(msgType, direction string) {
	if m == nil {
		return
	}
	m.WebSocketMessages.WithLabelValues(msgType, direction).Inc()
}
