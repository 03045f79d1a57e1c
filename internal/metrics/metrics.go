// Package metrics exposes Prometheus collectors for bridge activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the bridge collectors. A nil *Metrics records nothing.
type Metrics struct {
	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	activeSessions  prometheus.Gauge
	sessions        *prometheus.CounterVec
	sessionDuration prometheus.Histogram
	results         *prometheus.CounterVec
	audioBytes      prometheus.Counter
	droppedPartials prometheus.Counter
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "speechbridge_commands_total",
			Help: "Total number of bridge commands by action and status",
		}, []string{"action", "status"}),

		commandDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "speechbridge_command_duration_seconds",
			Help:    "Time until a bridge command was resolved",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30, 120},
		}, []string{"action"}),

		activeSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "speechbridge_active_sessions",
			Help: "Number of listening sessions in progress",
		}),

		sessions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "speechbridge_sessions_total",
			Help: "Total number of finished sessions by outcome",
		}, []string{"outcome"}),

		sessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "speechbridge_session_duration_seconds",
			Help:    "Duration of listening sessions in seconds",
			Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300},
		}),

		results: f.NewCounterVec(prometheus.CounterOpts{
			Name: "speechbridge_results_total",
			Help: "Total number of results delivered by kind",
		}, []string{"kind"}), // kind: "partial" or "final"

		audioBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "speechbridge_audio_bytes_total",
			Help: "Total captured audio bytes sent to the recognizer",
		}),

		droppedPartials: f.NewCounter(prometheus.CounterOpts{
			Name: "speechbridge_dropped_partials_total",
			Help: "Partial results dropped because the consumer was behind",
		}),
	}
}

// RecordCommand records a resolved command.
func (m *Metrics) RecordCommand(action string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.commands.WithLabelValues(action, status).Inc()
	m.commandDuration.WithLabelValues(action).Observe(d.Seconds())
}

// SessionStarted records the start of a listening session.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

// SessionEnded records the end of a listening session.
func (m *Metrics) SessionEnded(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
	m.sessions.WithLabelValues(outcome).Inc()
	m.sessionDuration.Observe(d.Seconds())
}

// RecordResult counts a delivered result.
func (m *Metrics) RecordResult(kind string) {
	if m == nil {
		return
	}
	m.results.WithLabelValues(kind).Inc()
}

// RecordAudio counts audio bytes forwarded to the recognizer.
func (m *Metrics) RecordAudio(n int) {
	if m == nil {
		return
	}
	m.audioBytes.Add(float64(n))
}

// RecordDropped counts a dropped partial result.
func (m *Metrics) RecordDropped() {
	if m == nil {
		return
	}
	m.droppedPartials.Inc()
}
