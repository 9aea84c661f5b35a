// Package metrics holds the Prometheus collectors of the prediction pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "carbon"

// Outcome label values
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Cache result label values
const (
	CacheHit    = "hit"
	CacheMiss   = "miss"
	CacheBypass = "bypass"
)

// Metrics groups the collectors
type Metrics struct {
	PredictionRequests *prometheus.CounterVec
	CacheLookups       *prometheus.CounterVec
	PredictionDuration *prometheus.HistogramVec
	InferenceInFlight  prometheus.Gauge
	CacheEntries       prometheus.Gauge
	Optimizations      *prometheus.CounterVec
	SensorMessages     *prometheus.CounterVec
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PredictionRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "prediction_requests_total",
				Help:      "Prediction requests by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "prediction_cache_total",
				Help:      "Prediction cache lookups by kind and result",
			},
			[]string{"kind", "result"},
		),
		PredictionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "prediction_duration_seconds",
				Help:      "Prediction latency including cache lookups",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"kind"},
		),
		InferenceInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inference_inflight",
			Help:      "Inference calls currently executing on the worker pool",
		}),
		CacheEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Resident prediction cache entries",
		}),
		Optimizations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "optimizations_total",
				Help:      "Comprehensive unit optimizations by strategy and outcome",
			},
			[]string{"strategy", "outcome"},
		),
		SensorMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sensor_messages_total",
				Help:      "Sensor messages received by sensor type",
			},
			[]string{"sensor_type"},
		),
	}
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}

// ObservePrediction records one prediction request
func (m *Metrics) ObservePrediction(kind string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.PredictionRequests.WithLabelValues(kind, outcome(err)).Inc()
	m.PredictionDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveCache records a cache lookup result
func (m *Metrics) ObserveCache(kind, result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(kind, result).Inc()
}

// SetInFlight sets the in-flight inference gauge
func (m *Metrics) SetInFlight(n int64) {
	if m == nil {
		return
	}
	m.InferenceInFlight.Set(float64(n))
}

// SetCacheEntries sets the resident cache entry gauge
func (m *Metrics) SetCacheEntries(n int) {
	if m == nil {
		return
	}
	m.CacheEntries.Set(float64(n))
}

// ObserveOptimization records one unit optimization
func (m *Metrics) ObserveOptimization(strategy string, err error) {
	if m == nil {
		return
	}
	m.Optimizations.WithLabelValues(strategy, outcome(err)).Inc()
}

// ObserveSensorMessage records one received sensor message
func (m *Metrics) ObserveSensorMessage(sensorType string) {
	if m == nil {
		return
	}
	m.SensorMessages.WithLabelValues(sensorType).Inc()
}
