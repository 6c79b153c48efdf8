// Package metrics provides Prometheus metrics for the annotation engine.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Label values for the result label.
const (
	ResultOK        = "ok"
	ResultError     = "error"
	ResultCancelled = "cancelled"
	ResultStale     = "stale"
	ResultMatched   = "matched"
	ResultNoMatch   = "no_match"
	ResultCommitted = "committed"
	ResultDiscarded = "discarded"
)

// EngineMetrics contains the Prometheus metrics of the annotation engine.
// A nil *EngineMetrics is valid and records nothing.
type EngineMetrics struct {
	Draws               *prometheus.CounterVec
	SyncRebuilds        prometheus.Counter
	SyncObjects         prometheus.Histogram
	Recognitions        *prometheus.CounterVec
	RecognitionDuration prometheus.Histogram
	Matches             *prometheus.CounterVec
	AutoLinks           prometheus.Counter
	StoreErrors         *prometheus.CounterVec
	OpenEngines         prometheus.Gauge
}

// NewEngineMetrics creates and registers the engine metrics.
func NewEngineMetrics(registry prometheus.Registerer) (*EngineMetrics, error) {
	m := &EngineMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register engine metrics: %w", err)
	}
	return m, nil
}

func (m *EngineMetrics) initMetrics() {
	m.Draws = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "plantag_draws_total",
		Help: "Drawing gestures by outcome.",
	}, []string{"result"})

	m.SyncRebuilds = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "plantag_surface_rebuilds_total",
		Help: "Full surface rebuilds from the annotation list.",
	})

	m.SyncObjects = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "plantag_surface_objects",
		Help:    "Objects drawn per surface rebuild.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	m.Recognitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "plantag_recognitions_total",
		Help: "Text recognitions by result.",
	}, []string{"result"})

	m.RecognitionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "plantag_recognition_duration_seconds",
		Help:    "Duration of region extraction, preprocessing and recognition.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	m.Matches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "plantag_pattern_matches_total",
		Help: "Pattern matcher results.",
	}, []string{"result"})

	m.AutoLinks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "plantag_autolinks_total",
		Help: "Annotations linked automatically after recognition.",
	})

	m.StoreErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "plantag_store_errors_total",
		Help: "Persistence failures by operation.",
	}, []string{"operation"})

	m.OpenEngines = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "plantag_open_engines",
		Help: "Per-document engines currently open.",
	})
}

// RecordDraw counts a finished drawing gesture.
func (m *EngineMetrics) RecordDraw(committed bool) {
	if m == nil {
		return
	}
	if committed {
		m.Draws.WithLabelValues(ResultCommitted).Inc()
		return
	}
	m.Draws.WithLabelValues(ResultDiscarded).Inc()
}

// RecordSync records one surface rebuild.
func (m *EngineMetrics) RecordSync(objects int) {
	if m == nil {
		return
	}
	m.SyncRebuilds.Inc()
	m.SyncObjects.Observe(float64(objects))
}

// RecordRecognition records a recognition outcome and its duration in seconds.
func (m *EngineMetrics) RecordRecognition(result string, seconds float64) {
	if m == nil {
		return
	}
	m.Recognitions.WithLabelValues(result).Inc()
	m.RecognitionDuration.Observe(seconds)
}

// RecordMatch records whether recognized text matched a pattern.
func (m *EngineMetrics) RecordMatch(matched bool) {
	if m == nil {
		return
	}
	if matched {
		m.Matches.WithLabelValues(ResultMatched).Inc()
		return
	}
	m.Matches.WithLabelValues(ResultNoMatch).Inc()
}

// IncrementAutoLinks counts one automatic link.
func (m *EngineMetrics) IncrementAutoLinks() {
	if m == nil {
		return
	}
	m.AutoLinks.Inc()
}

// RecordStoreError counts a persistence failure.
func (m *EngineMetrics) RecordStoreError(operation string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(operation).Inc()
}

// EngineOpened increments the open engine gauge.
func (m *EngineMetrics) EngineOpened() {
	if m == nil {
		return
	}
	m.OpenEngines.Inc()
}

// EngineClosed decrements the open engine gauge.
func (m *EngineMetrics) EngineClosed() {
	if m == nil {
		return
	}
	m.OpenEngines.Dec()
}

// Collect implements the prometheus.Collector interface.
func (m *EngineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Draws.Collect(ch)
	ch <- m.SyncRebuilds
	ch <- m.SyncObjects
	m.Recognitions.Collect(ch)
	ch <- m.RecognitionDuration
	m.Matches.Collect(ch)
	ch <- m.AutoLinks
	m.StoreErrors.Collect(ch)
	ch <- m.OpenEngines
}

// Describe implements the prometheus.Collector interface.
func (m *EngineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Draws.Describe(ch)
	ch <- m.SyncRebuilds.Desc()
	ch <- m.SyncObjects.Desc()
	m.Recognitions.Describe(ch)
	ch <- m.RecognitionDuration.Desc()
	m.Matches.Describe(ch)
	ch <- m.AutoLinks.Desc()
	m.StoreErrors.Describe(ch)
	ch <- m.OpenEngines.Desc()
}
