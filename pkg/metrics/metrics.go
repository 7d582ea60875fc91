// Package metrics holds the Prometheus collectors of the diagnosis pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mechanic"

// StageBuckets are histogram buckets in seconds; model calls dominate.
var StageBuckets = []float64{0.001, 0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20}

// Metrics groups the collectors. Build one per process with New.
type Metrics struct {
	gatherer prometheus.Gatherer

	Turns        *prometheus.CounterVec
	Overrides    *prometheus.CounterVec
	Transitions  *prometheus.CounterVec
	Fallbacks    *prometheus.CounterVec
	Promotions   prometheus.Counter
	StoreErrors  *prometheus.CounterVec
	StageLatency *prometheus.HistogramVec
	Alerts       *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry registers the collectors on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "turns_total",
			Help: "Diagnosis turns handled, by final action.",
		}, []string{"action"}),
		Overrides: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rule_overrides_total",
			Help: "Responses changed by a deterministic rule.",
		}, []string{"rule"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "escalation_transitions_total",
			Help: "Action changes made by the escalation state machine.",
		}, []string{"rule", "from", "to"}),
		Fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "fallbacks_total",
			Help: "Turns answered with the safe fallback response.",
		}, []string{"reason"}),
		Promotions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "issue_promotions_total",
			Help: "Chat summaries promoted to vehicle issues.",
		}),
		StoreErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "store_errors_total",
			Help: "Memory store failures.",
		}, []string{"op"}),
		StageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "stage_duration_seconds",
			Help:    "Time spent in each pipeline stage.",
			Buckets: StageBuckets,
		}, []string{"stage"}),
		Alerts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "telemetry_alerts_total",
			Help: "OBD threshold alerts raised, by metric.",
		}, []string{"metric"}),
	}
}

// Since observes the time elapsed since start for stage.
func (m *Metrics) Since(stage string, start time.Time) {
	m.StageLatency.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
