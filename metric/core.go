package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ecgannotate"

// Metrics contains the annotation engine metrics. All Record methods are safe
// to call on a nil *Metrics.
type Metrics struct {
	// Caliper metrics
	CaliperChanges     *prometheus.CounterVec
	CaliperEvictions   *prometheus.CounterVec
	SyncToggles        *prometheus.CounterVec
	ProtocolViolations prometheus.Counter
	LiveMeasurements   prometheus.Gauge

	// Comment metrics
	CommentWrites        *prometheus.CounterVec
	CommentFlushDuration prometheus.Histogram
	CommentsStored       prometheus.Gauge

	// Gateway metrics
	Gestures        *prometheus.CounterVec
	GestureDuration *prometheus.HistogramVec
	ActiveSessions  prometheus.Gauge
}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		CaliperChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "caliper",
				Name:      "changes_total",
				Help:      "Caliper changes inferred from shape diffs",
			},
			[]string{"mode", "change"},
		),

		CaliperEvictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "caliper",
				Name:      "evictions_total",
				Help:      "Measurements removed because they left the visible window",
			},
			[]string{"mode"},
		),

		SyncToggles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "caliper",
				Name:      "mode_switches_total",
				Help:      "Caliper mode switches by the mode switched to",
			},
			[]string{"mode"},
		),

		ProtocolViolations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "caliper",
				Name:      "protocol_violations_total",
				Help:      "Shape diffs rejected as malformed or inconsistent",
			},
		),

		LiveMeasurements: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "caliper",
				Name:      "live_measurements",
				Help:      "Measurements currently held",
			},
		),

		CommentWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "comments",
				Name:      "writes_total",
				Help:      "Comment store mutations",
			},
			[]string{"operation", "status"},
		),

		CommentFlushDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "comments",
				Name:      "flush_duration_seconds",
				Help:      "Time to write the comment document to storage",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
		),

		CommentsStored: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "comments",
				Name:      "stored",
				Help:      "Comments held for the open recording",
			},
		),

		Gestures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "gestures_total",
				Help:      "Gestures handled by type and outcome",
			},
			[]string{"type", "status"},
		),

		GestureDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "gesture_duration_seconds",
				Help:      "Gesture handling duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 14),
			},
			[]string{"type"},
		),

		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "active_sessions",
				Help:      "Open gesture sessions",
			},
		),
	}
}

// collectors lists every metric for registration
func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.CaliperChanges,
		m.CaliperEvictions,
		m.SyncToggles,
		m.ProtocolViolations,
		m.LiveMeasurements,
		m.CommentWrites,
		m.CommentFlushDuration,
		m.CommentsStored,
		m.Gestures,
		m.GestureDuration,
		m.ActiveSessions,
	}
}

// RecordCaliperChange increments the change counter
func (m *Metrics) RecordCaliperChange(mode, change string) {
	if m == nil {
		return
	}
	m.CaliperChanges.WithLabelValues(mode, change).Inc()
}

// RecordEvictions adds evicted measurements
func (m *Metrics) RecordEvictions(mode string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CaliperEvictions.WithLabelValues(mode).Add(float64(n))
}

// RecordSyncToggle counts a mode switch
func (m *Metrics) RecordSyncToggle(mode string) {
	if m == nil {
		return
	}
	m.SyncToggles.WithLabelValues(mode).Inc()
}

// RecordProtocolViolation counts a rejected shape diff
func (m *Metrics) RecordProtocolViolation() {
	if m == nil {
		return
	}
	m.ProtocolViolations.Inc()
}

// RecordLiveMeasurements updates the live measurement gauge
func (m *Metrics) RecordLiveMeasurements(n int) {
	if m == nil {
		return
	}
	m.LiveMeasurements.Set(float64(n))
}

// RecordCommentWrite counts a comment mutation and its flush
func (m *Metrics) RecordCommentWrite(operation string, err error, flush time.Duration, stored int) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.CommentWrites.WithLabelValues(operation, status).Inc()
	m.CommentFlushDuration.Observe(flush.Seconds())
	m.CommentsStored.Set(float64(stored))
}

// RecordCommentsStored sets the stored comment gauge
func (m *Metrics) RecordCommentsStored(n int) {
	if m == nil {
		return
	}
	m.CommentsStored.Set(float64(n))
}

// RecordGesture counts a gesture and its duration
func (m *Metrics) RecordGesture(gestureType, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Gestures.WithLabelValues(gestureType, status).Inc()
	m.GestureDuration.WithLabelValues(gestureType).Observe(duration.Seconds())
}

// RecordSessionOpened increments the session gauge
func (m *Metrics) RecordSessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

// RecordSessionClosed decrements the session gauge
func (m *Metrics) RecordSessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}
