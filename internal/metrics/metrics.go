// Package metrics exposes the supervisor's Prometheus instrumentation:
// active session count, channel backpressure stalls, PC/SC transaction
// hold time, and audio silence ratio (SPEC_FULL §B).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every metric the supervisor and its sessions touch.
// One Registry is created per process and threaded through the session
// table and collaborators that need to record observations.
type Registry struct {
	ActiveSessions      prometheus.Gauge
	SessionsTotal       prometheus.Counter
	ChannelBackpressure *prometheus.CounterVec
	TransactionHoldTime prometheus.Histogram
	AudioSilenceRatio   prometheus.Histogram
}

// NewRegistry builds a Registry and registers every metric against reg.
// Passing prometheus.NewRegistry() keeps tests hermetic; production wires
// prometheus.DefaultRegisterer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	m := &Registry{
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ltsm",
			Subsystem: "supervisor",
			Name:      "active_sessions",
			Help:      "Number of RFB sessions currently attached to the supervisor.",
		}),
		SessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ltsm",
			Subsystem: "supervisor",
			Name:      "sessions_total",
			Help:      "Total number of sessions accepted since process start.",
		}),
		ChannelBackpressure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ltsm",
			Subsystem: "channel",
			Name:      "backpressure_stalls_total",
			Help:      "Number of times a channel push blocked on backpressure, by channel type.",
		}, []string{"channel_type"}),
		TransactionHoldTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ltsm",
			Subsystem: "pcsc",
			Name:      "transaction_hold_seconds",
			Help:      "Duration the process-wide PC/SC transaction lock was held.",
			Buckets:   prometheus.DefBuckets,
		}),
		AudioSilenceRatio: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ltsm",
			Subsystem: "audio",
			Name:      "silence_ratio",
			Help:      "Fraction of captured frames classified silent per reporting window.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}

	reg.MustRegister(
		m.ActiveSessions,
		m.SessionsTotal,
		m.ChannelBackpressure,
		m.TransactionHoldTime,
		m.AudioSilenceRatio,
	)
	return m
}

// SessionStarted records a newly accepted session.
func (m *Registry) SessionStarted() {
	m.ActiveSessions.Inc()
	m.SessionsTotal.Inc()
}

// SessionEnded records a session leaving the table.
func (m *Registry) SessionEnded() {
	m.ActiveSessions.Dec()
}

// ChannelStalled records one backpressure stall on the named channel type
// (spec §5: "channel backpressure wait" is a suspension point worth
// observing).
func (m *Registry) ChannelStalled(channelType string) {
	m.ChannelBackpressure.WithLabelValues(channelType).Inc()
}

// TransactionHeld records how long a PC/SC transaction lock was held
// between Begin and End/Release.
func (m *Registry) TransactionHeld(d time.Duration) {
	m.TransactionHoldTime.Observe(d.Seconds())
}

// SilenceRatioObserved records the fraction of silent frames in one
// audio reporting window.
func (m *Registry) SilenceRatioObserved(ratio float64) {
	m.AudioSilenceRatio.Observe(ratio)
}
