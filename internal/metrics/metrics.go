// Package metrics provides Prometheus metrics collection for the makin server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "makin"

// Module kinds for [Collector.ModuleLoaded] and [Collector.ModuleFailed].
const (
	KindRoutes = "routes"
	KindModels = "models"
)

// Collector holds all Prometheus metrics for the server.
type Collector struct {
	gatherer prometheus.Gatherer

	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
	RateLimitHits    prometheus.Counter

	// Module metrics
	ModulesLoaded *prometheus.GaugeVec
	ModulesFailed *prometheus.GaugeVec

	// OAuth metrics
	OAuthExchanges *prometheus.CounterVec
}

// New creates a collector on a fresh registry that also carries the Go and process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return NewWithRegistry(reg)
}

// NewWithRegistry creates a collector registering its metrics on reg.
func NewWithRegistry(reg *prometheus.Registry) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		gatherer: reg,
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of requests currently being processed",
			},
		),
		RateLimitHits: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Requests rejected by the rate limiter",
			},
		),
		ModulesLoaded: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "modules_loaded",
				Help:      "Modules registered at startup by kind",
			},
			[]string{"kind"},
		),
		ModulesFailed: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "modules_failed",
				Help:      "Modules that failed to load at startup by kind",
			},
			[]string{"kind"},
		),
		OAuthExchanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "oauth_exchanges_total",
				Help:      "Authorization code exchanges by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// ObserveRequest records one finished request.
func (c *Collector) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	c.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.RequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Modules records the outcome of one loader run.
func (c *Collector) Modules(kind string, loaded, failed int) {
	c.ModulesLoaded.WithLabelValues(kind).Set(float64(loaded))
	c.ModulesFailed.WithLabelValues(kind).Set(float64(failed))
}

// Handler exposes the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
