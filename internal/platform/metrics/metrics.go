package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the segment buffer.
type Metrics struct {
	registry         *prometheus.Registry
	requestsTotal    prometheus.Counter
	segmentsPutTotal prometheus.Counter
	streamsEnded     prometheus.Counter
	outputsIdleTotal prometheus.Counter
	activeOutputs    prometheus.Gauge
	idleOutputs      prometheus.Gauge
	errorsTotal      prometheus.Counter
}

// New creates and registers Prometheus metrics for the segment buffer.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stream_requests_total",
		Help: "Total number of HTTP requests received",
	})
	segmentsPutTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stream_segments_put_total",
		Help: "Total number of segments accepted into output windows",
	})
	streamsEnded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stream_streams_ended_total",
		Help: "Total number of streams torn down",
	})
	outputsIdleTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stream_outputs_idle_total",
		Help: "Total number of idle-timer firings across all outputs",
	})
	activeOutputs := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stream_active_outputs",
		Help: "Number of outputs currently registered",
	})
	idleOutputs := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stream_idle_outputs",
		Help: "Number of outputs whose idle timer has fired without reset",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stream_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})

	registry.MustRegister(
		requestsTotal,
		segmentsPutTotal,
		streamsEnded,
		outputsIdleTotal,
		activeOutputs,
		idleOutputs,
		errorsTotal,
	)

	return &Metrics{
		registry:         registry,
		requestsTotal:    requestsTotal,
		segmentsPutTotal: segmentsPutTotal,
		streamsEnded:     streamsEnded,
		outputsIdleTotal: outputsIdleTotal,
		activeOutputs:    activeOutputs,
		idleOutputs:      idleOutputs,
		errorsTotal:      errorsTotal,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncSegmentsPut increments the accepted segments counter.
func (m *Metrics) IncSegmentsPut() {
	m.segmentsPutTotal.Inc()
}

// IncStreamsEnded increments the streams ended counter.
func (m *Metrics) IncStreamsEnded() {
	m.streamsEnded.Inc()
}

// IncOutputsIdle increments the idle-timer firing counter.
func (m *Metrics) IncOutputsIdle() {
	m.outputsIdleTotal.Inc()
}

// SetActiveOutputs sets the registered outputs gauge.
func (m *Metrics) SetActiveOutputs(n int) {
	m.activeOutputs.Set(float64(n))
}

// SetIdleOutputs sets the idle outputs gauge.
func (m *Metrics) SetIdleOutputs(n int) {
	m.idleOutputs.Set(float64(n))
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values
// (e.g. active and idle output counts).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
