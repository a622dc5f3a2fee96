// Package metrics exposes pingtally counters through Prometheus. Collectors
// are registered on a private registry so tests can build isolated instances.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haukened/pingtally/internal/tally/repos/addrcache"
)

const namespace = "pingtally"

// ClientCounter reports the number of distinct clients seen.
type ClientCounter interface {
	Len() int
}

// AddrCache exposes the address cache's running statistics.
type AddrCache interface {
	Stats() addrcache.Stats
}

// Metrics holds every pingtally collector.
type Metrics struct {
	registry *prometheus.Registry

	RequestsCounted   prometheus.Counter
	RequestsUncounted prometheus.Counter
	ReportsEmitted    prometheus.Counter
	ReportFailures    prometheus.Counter
}

// New builds the collectors and registers them, together with the Go runtime
// and process collectors, on a fresh registry. clients may be nil.
func New(clients ClientCounter) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestsCounted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_counted_total",
			Help:      "Requests attributed to a client address.",
		}),
		RequestsUncounted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_uncounted_total",
			Help:      "Requests forwarded without a usable client address.",
		}),
		ReportsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_emitted_total",
			Help:      "Ranked reports successfully written to the sink.",
		}),
		ReportFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_failures_total",
			Help:      "Reports the sink failed to write.",
		}),
	}

	m.registry.MustRegister(
		m.RequestsCounted,
		m.RequestsUncounted,
		m.ReportsEmitted,
		m.ReportFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if clients != nil {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clients",
			Help:      "Distinct client addresses seen since start.",
		}, func() float64 {
			return float64(clients.Len())
		}))
	}
	return m
}

// RegisterAddrCache publishes hit, miss and entry counts of c. Values are
// read from c at scrape time.
func (m *Metrics) RegisterAddrCache(c AddrCache) {
	m.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "addr_cache_hits_total",
			Help:      "Peer address lookups served from the cache.",
		}, func() float64 {
			return float64(c.Stats().Hits)
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "addr_cache_misses_total",
			Help:      "Peer address lookups that had to be parsed.",
		}, func() float64 {
			return float64(c.Stats().Misses)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "addr_cache_entries",
			Help:      "Peer addresses currently cached.",
		}, func() float64 {
			return float64(c.Stats().Size)
		}),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
