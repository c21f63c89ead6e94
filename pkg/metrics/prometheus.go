package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain/repository.Metrics using Prometheus.
type Recorder struct {
	ticks       *prometheus.CounterVec
	labels      *prometheus.CounterVec
	transitions *prometheus.CounterVec
	anomalies   *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	sessions    prometheus.Gauge
	confidence  *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
}

// New registers the classifier metrics on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the classifier metrics on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		ticks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aerotrend_ticks_total",
				Help: "Ticks processed, by preset and outcome (classified, warming, rejected)",
			},
			[]string{"preset", "outcome"},
		),
		labels: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aerotrend_labels_total",
				Help: "Reported labels of warm ticks",
			},
			[]string{"label"},
		),
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aerotrend_label_transitions_total",
				Help: "Changes of the reported label",
			},
			[]string{"from", "to"},
		),
		anomalies: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aerotrend_anomalies_total",
				Help: "Warm ticks with an out-of-bounds sample in the window",
			},
			[]string{"preset"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aerotrend_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		sessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "aerotrend_active_sessions",
				Help: "Open classifier sessions",
			},
		),
		confidence: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "aerotrend_last_confidence",
				Help: "Confidence of the last warm tick per preset",
			},
			[]string{"preset"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aerotrend_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"operation"},
		),
	}
}

// RecordTick counts one tick outcome for a preset.
func (r *Recorder) RecordTick(preset, outcome string) {
	r.ticks.WithLabelValues(preset, outcome).Inc()
}

// RecordLabel counts a reported label and, when it differs from the previous
// one, the transition.
func (r *Recorder) RecordLabel(preset, previous, current string, confidence float64, anomaly bool) {
	r.labels.WithLabelValues(current).Inc()
	if previous != current {
		r.transitions.WithLabelValues(previous, current).Inc()
	}
	if anomaly {
		r.anomalies.WithLabelValues(preset).Inc()
	}
	r.confidence.WithLabelValues(preset).Set(confidence)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// SetActiveSessions sets the open session gauge.
func (r *Recorder) SetActiveSessions(n int) {
	r.sessions.Set(float64(n))
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
