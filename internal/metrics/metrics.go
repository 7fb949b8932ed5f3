// Package metrics holds the Prometheus collectors for the gateway.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Status sources for DBStatusTotal.
const (
	SourceUpstream  = "upstream"
	SourceAggregate = "aggregate"
	SourceFailure   = "failure"
)

// Collector holds every metric the gateway exports.
type Collector struct {
	UpstreamRequestsTotal *prometheus.CounterVec
	UpstreamDuration      *prometheus.HistogramVec
	AggregationsTotal     *prometheus.CounterVec
	AggregationDuration   prometheus.Histogram
	DBStatusTotal         *prometheus.CounterVec
	HTTPRequestsTotal     *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them, plus the Go and process
// collectors, with a fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry creates the collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Collector {
	m := &Collector{
		UpstreamRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dac_upstream_requests_total",
				Help: "Upstream API calls by path and outcome.",
			},
			[]string{"path", "outcome"},
		),
		UpstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dac_upstream_request_duration_seconds",
				Help:    "Duration of upstream API calls in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path"},
		),
		AggregationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dac_status_aggregations_total",
				Help: "Local database status aggregations by outcome.",
			},
			[]string{"outcome"},
		),
		AggregationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dac_status_aggregation_duration_seconds",
				Help:    "Duration of local database status aggregations in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
		DBStatusTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dac_db_status_responses_total",
				Help: "Database status responses by the source that produced them.",
			},
			[]string{"source"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dac_http_requests_total",
				Help: "HTTP requests served by route pattern and status code.",
			},
			[]string{"route", "code"},
		),
		gatherer: gatherer,
	}

	reg.MustRegister(
		m.UpstreamRequestsTotal,
		m.UpstreamDuration,
		m.AggregationsTotal,
		m.AggregationDuration,
		m.DBStatusTotal,
		m.HTTPRequestsTotal,
	)
	return m
}

// ObserveUpstream records one upstream call.
func (m *Collector) ObserveUpstream(path string, ok bool, elapsed time.Duration) {
	m.UpstreamRequestsTotal.WithLabelValues(path, outcome(ok)).Inc()
	m.UpstreamDuration.WithLabelValues(path).Observe(elapsed.Seconds())
}

// ObserveAggregation records one local status aggregation.
func (m *Collector) ObserveAggregation(ok bool, elapsed time.Duration) {
	m.AggregationsTotal.WithLabelValues(outcome(ok)).Inc()
	m.AggregationDuration.Observe(elapsed.Seconds())
}

// IncDBStatus counts a database status response by source.
func (m *Collector) IncDBStatus(source string) {
	m.DBStatusTotal.WithLabelValues(source).Inc()
}

// IncHTTPRequest counts a served request.
func (m *Collector) IncHTTPRequest(route string, code int) {
	m.HTTPRequestsTotal.WithLabelValues(route, statusText(code)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func outcome(ok bool) string {
	if ok {
		return OutcomeOK
	}
	return OutcomeError
}

func statusText(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	}
	return "2xx"
}
