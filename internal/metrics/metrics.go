package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry is the dedicated Prometheus registry for the service
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// Solves counts solve attempts by outcome (ok, data_error, upstream_error, conflict, error)
	Solves = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "route_solves_total", Help: "Route solves by outcome."},
		[]string{"outcome"},
	)
	// SolveDuration tracks wall time of a full solve in seconds
	SolveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "route_solve_duration_seconds", Help: "Route solve duration in seconds.", Buckets: []float64{0.5, 1, 5, 10, 30, 60, 90, 120}},
	)
	// SearchIterations records guided local search iterations per solve
	SearchIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "route_search_iterations", Help: "Search iterations per solve.", Buckets: prometheus.ExponentialBuckets(1, 4, 8)},
	)
	// DroppedNodes counts customers left out of every route
	DroppedNodes = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "route_dropped_nodes_total", Help: "Customers dropped from plans."},
	)
	// MatrixRequests counts matrix lookups by source and outcome
	MatrixRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "matrix_requests_total", Help: "Distance matrix lookups by source and outcome."},
		[]string{"source", "outcome"},
	)
)

// RegisterDefault registers collectors to the service registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(Solves)
		Registry.MustRegister(SolveDuration)
		Registry.MustRegister(SearchIterations)
		Registry.MustRegister(DroppedNodes)
		Registry.MustRegister(MatrixRequests)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	RegisterDefault()
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

var regOnce sync.Once
