// Package metrics instruments the event scheduler, local/exchange
// processors, and live order manager with Prometheus collectors
// (SPEC_FULL.md ambient stack), adapted from teacher's
// internal/hft/metrics.BaselineMetrics (histogram/gauge/counter shape)
// and pkg/matching.HFTEngine's stats-snapshot pattern, re-themed around
// the core backtest/live engine instead of an HTTP/WebSocket gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EngineMetrics is one Prometheus-backed counter/histogram set for the
// scheduler + processor pipeline. A nil *EngineMetrics is valid and every
// method is a no-op on it, so instrumentation stays optional for callers
// that construct a Driver/Bot without a metrics registry.
type EngineMetrics struct {
	EventsProcessed  *prometheus.CounterVec // label: slot (local_data, exch_data, local_order, exch_order)
	Fills            prometheus.Counter
	Rejects          *prometheus.CounterVec // label: reason ("gtx", or the hfterrors code of an exchange-side rejection)
	SchedulerLatency prometheus.Histogram   // nanoseconds between successive Driver.step calls
	ReconcileSurface *prometheus.CounterVec // label: channel (rest, ws)
	PrefixUnmatched  prometheus.Counter
}

// NewEngineMetrics registers a fresh collector set against reg.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	factory := promauto.With(reg)
	return &EngineMetrics{
		EventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hftbacktest_events_processed_total",
			Help: "Events dispatched by the scheduler, by slot.",
		}, []string{"slot"}),
		Fills: factory.NewCounter(prometheus.CounterOpts{
			Name: "hftbacktest_fills_total",
			Help: "Total fills (full or partial) applied by the exchange processor.",
		}),
		Rejects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hftbacktest_order_rejects_total",
			Help: "Order requests rejected, by reason.",
		}, []string{"reason"}),
		SchedulerLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "hftbacktest_scheduler_step_nanoseconds",
			Help:    "Virtual-time delta between successive scheduled events.",
			Buckets: prometheus.ExponentialBuckets(100, 4, 12),
		}),
		ReconcileSurface: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hftbacktest_ordermanager_surfaced_total",
			Help: "Terminal order states surfaced to the strategy, by originating channel.",
		}, []string{"channel"}),
		PrefixUnmatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "hftbacktest_ordermanager_prefix_unmatched_total",
			Help: "Messages observed carrying a client-order-id outside this bot's prefix.",
		}),
	}
}

func (m *EngineMetrics) EventProcessed(slot string) {
	if m == nil {
		return
	}
	m.EventsProcessed.WithLabelValues(slot).Inc()
}

func (m *EngineMetrics) Fill() {
	if m == nil {
		return
	}
	m.Fills.Inc()
}

func (m *EngineMetrics) Reject(reason string) {
	if m == nil {
		return
	}
	m.Rejects.WithLabelValues(reason).Inc()
}

func (m *EngineMetrics) ObserveStep(deltaNs float64) {
	if m == nil {
		return
	}
	m.SchedulerLatency.Observe(deltaNs)
}

func (m *EngineMetrics) Surfaced(channel string) {
	if m == nil {
		return
	}
	m.ReconcileSurface.WithLabelValues(channel).Inc()
}

func (m *EngineMetrics) PrefixMismatch() {
	if m == nil {
		return
	}
	m.PrefixUnmatched.Inc()
}
