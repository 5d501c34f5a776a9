package mux

import "github.com/prometheus/client_golang/prometheus"

// metrics carries the request multiplexer's Prometheus collectors.
// All methods are nil-safe: calls on a nil *metrics are no-ops, so a
// Mux built with no registerer pays no cost beyond a nil check.
type metrics struct {
	inFlight     prometheus.Gauge
	requests     *prometheus.CounterVec
	saturation   *prometheus.CounterVec
	callDuration prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}

	m := &metrics{
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "piglet",
			Subsystem: "mux",
			Name:      "in_flight_requests",
			Help:      "Number of method calls awaiting a reply.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "piglet",
			Subsystem: "mux",
			Name:      "requests_total",
			Help:      "Total number of requests issued, by outcome.",
		}, []string{"outcome"}),
		saturation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "piglet",
			Subsystem: "mux",
			Name:      "allocator_saturated_total",
			Help:      "Total number of request-id allocation failures, by destination.",
		}, []string{"destination"}),
		callDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "piglet",
			Subsystem: "mux",
			Name:      "request_duration_seconds",
			Help:      "Time from request submission to reply delivery.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(m.inFlight, m.requests, m.saturation, m.callDuration)

	return m
}

func (m *metrics) requestStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *metrics) requestFinished(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.requests.WithLabelValues(outcome).Inc()
	m.callDuration.Observe(seconds)
}

func (m *metrics) saturated(destination string) {
	if m == nil {
		return
	}
	m.saturation.WithLabelValues(destination).Inc()
}
