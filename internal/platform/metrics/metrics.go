package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for a capture session.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry              *prometheus.Registry
	requestsObservedTotal prometheus.Counter
	capturesLatchedTotal  *prometheus.CounterVec
	transcodeTotal        *prometheus.CounterVec
	slidesCapturedTotal   prometheus.Counter
	sessionPhase          *prometheus.GaugeVec
	statusRequestsTotal   *prometheus.CounterVec
	statusErrorsTotal     *prometheus.CounterVec
}

// New creates and registers Prometheus metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsObservedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slidecast_network_requests_observed_total",
		Help: "Total number of page network requests seen by the capture listener",
	})
	capturesLatchedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slidecast_captures_latched_total",
		Help: "Captured values latched, by slot",
	}, []string{"slot"})
	transcodeTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slidecast_transcode_invocations_total",
		Help: "External transcoder invocations, by operation and result",
	}, []string{"op", "result"})
	slidesCapturedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slidecast_slides_captured_total",
		Help: "Total number of slide samples captured",
	})
	sessionPhase := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "slidecast_session_phase",
		Help: "Set to 1 for the phase the session is currently in",
	}, []string{"phase"})
	statusRequestsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slidecast_status_requests_total",
		Help: "HTTP requests served by the status server, by route",
	}, []string{"route"})
	statusErrorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slidecast_status_errors_total",
		Help: "Status server responses with error status (4xx or 5xx), by route",
	}, []string{"route"})

	registry.MustRegister(
		requestsObservedTotal,
		capturesLatchedTotal,
		transcodeTotal,
		slidesCapturedTotal,
		sessionPhase,
		statusRequestsTotal,
		statusErrorsTotal,
	)

	return &Metrics{
		registry:              registry,
		requestsObservedTotal: requestsObservedTotal,
		capturesLatchedTotal:  capturesLatchedTotal,
		transcodeTotal:        transcodeTotal,
		slidesCapturedTotal:   slidesCapturedTotal,
		sessionPhase:          sessionPhase,
		statusRequestsTotal:   statusRequestsTotal,
		statusErrorsTotal:     statusErrorsTotal,
	}
}

// IncRequestsObserved increments the observed network request counter.
func (m *Metrics) IncRequestsObserved() {
	if m == nil {
		return
	}
	m.requestsObservedTotal.Inc()
}

// IncLatched records that slot was filled.
func (m *Metrics) IncLatched(slot string) {
	if m == nil {
		return
	}
	m.capturesLatchedTotal.WithLabelValues(slot).Inc()
}

// ObserveTranscode records one transcoder invocation.
func (m *Metrics) ObserveTranscode(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.transcodeTotal.WithLabelValues(op, result).Inc()
}

// IncSlidesCaptured increments the captured slide counter.
func (m *Metrics) IncSlidesCaptured() {
	if m == nil {
		return
	}
	m.slidesCapturedTotal.Inc()
}

// SetPhase marks phase as current and clears the previous one.
func (m *Metrics) SetPhase(prev, phase string) {
	if m == nil {
		return
	}
	if prev != "" {
		m.sessionPhase.WithLabelValues(prev).Set(0)
	}
	m.sessionPhase.WithLabelValues(phase).Set(1)
}

// ObserveStatusRequest counts one status server response for route.
func (m *Metrics) ObserveStatusRequest(route string, status int) {
	if m == nil {
		return
	}
	m.statusRequestsTotal.WithLabelValues(route).Inc()
	if status >= 400 {
		m.statusErrorsTotal.WithLabelValues(route).Inc()
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
