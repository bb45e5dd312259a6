// Package metrics provides Prometheus metrics collection for recordkit.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/artpar/recordkit/ports"
)

const namespace = "recordkit"

// Import results recorded in ImportsTotal.
const (
	ResultCacheHit     = "cache_hit"
	ResultDeclined     = "declined"
	ResultMaterialized = "materialized"
	ResultFailed       = "failed"
)

// Collector holds all Prometheus metrics for recordkit.
type Collector struct {
	registry *prometheus.Registry

	// Import metrics
	ImportsTotal        *prometheus.CounterVec
	ImportFailures      *prometheus.CounterVec
	MaterializeDuration *prometheus.HistogramVec
	ModulesLoaded       prometheus.Gauge
	ClassesLoaded       prometheus.Gauge

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a collector on its own registry, including Go runtime and
// process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry creates a collector registered on reg.
func NewWithRegistry(reg *prometheus.Registry) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		ImportsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "imports_total",
				Help:      "Total number of module imports by result",
			},
			[]string{"result"},
		),
		ImportFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "import_failures_total",
				Help:      "Total number of failed module imports by pipeline stage",
			},
			[]string{"stage"},
		),
		MaterializeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "materialize_duration_seconds",
				Help:      "Time spent translating and building a module",
				Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"format"},
		),
		ModulesLoaded: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "modules_loaded",
				Help:      "Number of modules in the import cache",
			},
		),
		ClassesLoaded: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "classes_loaded",
				Help:      "Number of record classes across cached modules",
			},
		),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"method", "route"},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
	}
}

// Registry returns the registry the collector's metrics live on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// CacheHit implements ports.ImportRecorder.
func (c *Collector) CacheHit(string) {
	c.ImportsTotal.WithLabelValues(ResultCacheHit).Inc()
}

// Declined implements ports.ImportRecorder.
func (c *Collector) Declined(string) {
	c.ImportsTotal.WithLabelValues(ResultDeclined).Inc()
}

// Materialized implements ports.ImportRecorder.
func (c *Collector) Materialized(_ string, format string, classes int, took time.Duration) {
	c.ImportsTotal.WithLabelValues(ResultMaterialized).Inc()
	c.MaterializeDuration.WithLabelValues(format).Observe(took.Seconds())
	c.ModulesLoaded.Inc()
	c.ClassesLoaded.Add(float64(classes))
}

// Failed implements ports.ImportRecorder.
func (c *Collector) Failed(_ string, stage string) {
	c.ImportsTotal.WithLabelValues(ResultFailed).Inc()
	c.ImportFailures.WithLabelValues(stage).Inc()
}

// ObserveRequest records one HTTP request.
func (c *Collector) ObserveRequest(method, route string, status int, took time.Duration) {
	c.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.RequestDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

// ConfigReloaded records a config reload attempt.
func (c *Collector) ConfigReloaded(err error) {
	if err != nil {
		c.ConfigReloadErrors.Inc()
		return
	}
	c.ConfigReloads.Inc()
	c.ConfigLastReload.SetToCurrentTime()
}

var _ ports.ImportRecorder = (*Collector)(nil)
