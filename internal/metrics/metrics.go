// Package metrics holds the Prometheus collectors describing the registry
// and the decompilation cache.
//
// Each Metrics value owns its own prometheus.Registry instead of using the
// global default one, so several sessions (and parallel tests) never
// collide on collector registration. All observation methods are safe to
// call on a nil *Metrics, which lets core components treat metrics as
// optional.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "classlens"

// Metrics holds all collectors.
type Metrics struct {
	// Registry is the registry every collector below is registered with.
	// The HTTP server exposes it on /metrics.
	Registry *prometheus.Registry

	// Cache metrics
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter
	DecompileFailures prometheus.Counter
	DecompileDuration prometheus.Histogram
	CacheEntries      prometheus.Gauge

	// Registry metrics
	ContainersLoaded  prometheus.Gauge
	ContainersEvicted prometheus.Counter
	ClassesIndexed    prometheus.Gauge
	LoadFailures      prometheus.Counter
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Decompilation requests answered from the cache",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Decompilation requests that invoked the decompiler",
		}),
		DecompileFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decompile_failures_total",
			Help:      "Decompiler invocations that failed",
		}),
		DecompileDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decompile_duration_seconds",
			Help:      "Time spent in the decompiler per class",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		CacheEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Decompilation results currently cached",
		}),
		ContainersLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "containers_loaded",
			Help:      "Containers currently registered",
		}),
		ContainersEvicted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "containers_evicted_total",
			Help:      "Containers dropped because the registry was full",
		}),
		ClassesIndexed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "classes_indexed",
			Help:      "Class entries indexed across all registered containers",
		}),
		LoadFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "load_failures_total",
			Help:      "Archives that could not be opened or registered",
		}),
	}
}

// WithProcessCollectors adds the standard Go runtime and process
// collectors. The HTTP server enables them; the CLI does not need them.
func (m *Metrics) WithProcessCollectors() *Metrics {
	if m == nil {
		return nil
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// CacheHit records a request served from the cache.
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

// CacheMiss records a request that had to compute its result.
func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
}

// Decompiled records one decompiler invocation.
func (m *Metrics) Decompiled(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.DecompileDuration.Observe(d.Seconds())
	if err != nil {
		m.DecompileFailures.Inc()
	}
}

// SetCacheEntries records the current cache size.
func (m *Metrics) SetCacheEntries(n int) {
	if m == nil {
		return
	}
	m.CacheEntries.Set(float64(n))
}

// SetRegistrySize records the number of containers and classes held.
func (m *Metrics) SetRegistrySize(containers, classes int) {
	if m == nil {
		return
	}
	m.ContainersLoaded.Set(float64(containers))
	m.ClassesIndexed.Set(float64(classes))
}

// Evicted records containers dropped by the registry capacity.
func (m *Metrics) Evicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ContainersEvicted.Add(float64(n))
}

// LoadFailed records an archive that could not be loaded.
func (m *Metrics) LoadFailed() {
	if m == nil {
		return
	}
	m.LoadFailures.Inc()
}
