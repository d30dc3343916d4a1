// Package metrics exposes Prometheus instrumentation fed by the event bus.
// Subscribing keeps the hot paths free of metric plumbing; packages publish
// events and this package turns them into series.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/graphbridge/graphbridge/internal/eventbus"
	"github.com/graphbridge/graphbridge/internal/events"
)

// Metrics owns a private registry so tests can run collectors side by side.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	gqlOperations *prometheus.CounterVec
	gqlDuration   *prometheus.HistogramVec
	gqlErrors     prometheus.Counter
	dispatches    *prometheus.CounterVec
	dispatchTime  *prometheus.HistogramVec
	schemaBuilds  *prometheus.CounterVec
	schemaTime    *prometheus.HistogramVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "graphbridge_http_requests_total",
		Help: "HTTP requests served, by status code.",
	}, []string{"status"})
	m.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "graphbridge_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})

	m.gqlOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "graphbridge_graphql_operations_total",
		Help: "GraphQL operations executed, by operation type.",
	}, []string{"type"})
	m.gqlDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "graphbridge_graphql_operation_duration_seconds",
		Help:    "GraphQL operation latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})
	m.gqlErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "graphbridge_graphql_errors_total",
		Help: "GraphQL field and request errors returned to clients.",
	})

	m.dispatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "graphbridge_dispatches_total",
		Help: "Resolver dispatches to the REST surface, by method and status.",
	}, []string{"method", "status"})
	m.dispatchTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "graphbridge_dispatch_duration_seconds",
		Help:    "Resolver dispatch latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	m.schemaBuilds = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "graphbridge_schema_builds_total",
		Help: "Schema fragment builds, by fragment kind and outcome.",
	}, []string{"fragment", "outcome"})
	m.schemaTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "graphbridge_schema_build_duration_seconds",
		Help:    "Schema fragment build latency.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"fragment"})

	m.registry.MustRegister(
		m.httpRequests, m.httpDuration,
		m.gqlOperations, m.gqlDuration, m.gqlErrors,
		m.dispatches, m.dispatchTime,
		m.schemaBuilds, m.schemaTime,
	)
	return m
}

// Subscribe attaches the collectors to the process-wide event bus.
func (m *Metrics) Subscribe() {
	eventbus.Subscribe(func(_ context.Context, e events.HTTPFinish) {
		status := strconv.Itoa(e.Status)
		m.httpRequests.WithLabelValues(status).Inc()
		m.httpDuration.WithLabelValues(status).Observe(e.Duration.Seconds())
	})
	eventbus.Subscribe(func(_ context.Context, e events.GraphQLFinish) {
		m.gqlOperations.WithLabelValues(e.OperationType).Inc()
		m.gqlDuration.WithLabelValues(e.OperationType).Observe(e.Duration.Seconds())
		if e.ErrorCount > 0 {
			m.gqlErrors.Add(float64(e.ErrorCount))
		}
	})
	eventbus.Subscribe(func(_ context.Context, e events.DispatchFinish) {
		status := "error"
		if e.Err == nil {
			status = strconv.Itoa(e.Status)
		}
		m.dispatches.WithLabelValues(e.Method, status).Inc()
		m.dispatchTime.WithLabelValues(e.Method).Observe(e.Duration.Seconds())
	})
	eventbus.Subscribe(func(_ context.Context, e events.SchemaBuildFinish) {
		outcome := "ok"
		if e.Err != nil {
			outcome = "error"
		}
		m.schemaBuilds.WithLabelValues(e.Fragment, outcome).Inc()
		m.schemaTime.WithLabelValues(e.Fragment).Observe(e.Duration.Seconds())
	})
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
